// Package mesh defines the simplex mesh container shared by the distortion
// solver together with its geometric measures and gradient operators.
//
// A Mesh couples rest-configuration vertex positions with an element list of
// uniform arity: 3-vertex elements describe a triangulated surface embedded
// in 3-space, 4-vertex elements a tetrahedral volume. Vertex and element
// counts are fixed for the lifetime of the mesh; solvers mutate only their
// own copies of target positions.
package mesh

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Mesh is an immutable simplicial complex: rest positions plus connectivity.
type Mesh struct {
	// Vertices holds rest positions, one row per vertex, always 3 columns.
	// Planar inputs carry z = 0.
	Vertices *mat.Dense

	// Elements lists vertex indices per element. Every element has the same
	// arity: 3 for surface triangles, 4 for tetrahedra.
	Elements [][]int
}

// NewMesh validates connectivity and wraps the inputs. The element arity must
// be uniformly 3 or 4 and every index must address a vertex.
func NewMesh(vertices *mat.Dense, elements [][]int) (*Mesh, error) {
	if vertices == nil {
		return nil, fmt.Errorf("mesh: nil vertex matrix")
	}
	nv, nc := vertices.Dims()
	if nc != 3 {
		return nil, fmt.Errorf("mesh: vertex matrix must have 3 columns, got %d", nc)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("mesh: empty element list")
	}
	arity := len(elements[0])
	if arity != 3 && arity != 4 {
		return nil, fmt.Errorf("mesh: element arity must be 3 or 4, got %d", arity)
	}
	for e, el := range elements {
		if len(el) != arity {
			return nil, fmt.Errorf("mesh: element %d has arity %d, expected %d", e, len(el), arity)
		}
		for _, v := range el {
			if v < 0 || v >= nv {
				return nil, fmt.Errorf("mesh: element %d references vertex %d outside [0,%d)", e, v, nv)
			}
		}
	}
	return &Mesh{Vertices: vertices, Elements: elements}, nil
}

// NumVertices returns the vertex count.
func (m *Mesh) NumVertices() int {
	n, _ := m.Vertices.Dims()
	return n
}

// NumElements returns the element count.
func (m *Mesh) NumElements() int { return len(m.Elements) }

// SimplexSize returns the per-element vertex count (3 or 4).
func (m *Mesh) SimplexSize() int { return len(m.Elements[0]) }

// TargetDim returns the dimension of the target space a mapping of this mesh
// lives in: 2 for surface triangulations, 3 for tetrahedral meshes.
func (m *Mesh) TargetDim() int {
	if m.SimplexSize() == 3 {
		return 2
	}
	return 3
}

// Vertex returns the rest position of vertex i.
func (m *Mesh) Vertex(i int) r3.Vector {
	return r3.Vector{X: m.Vertices.At(i, 0), Y: m.Vertices.At(i, 1), Z: m.Vertices.At(i, 2)}
}

// FaceAreas returns the rest area of every triangle. Only valid for surface
// meshes.
func (m *Mesh) FaceAreas() []float64 {
	areas := make([]float64, len(m.Elements))
	for e, el := range m.Elements {
		a, b, c := m.Vertex(el[0]), m.Vertex(el[1]), m.Vertex(el[2])
		areas[e] = 0.5 * b.Sub(a).Cross(c.Sub(a)).Norm()
	}
	return areas
}

// TetVolumes returns the unsigned rest volume of every tetrahedron.
func (m *Mesh) TetVolumes() []float64 {
	vols := make([]float64, len(m.Elements))
	for e, el := range m.Elements {
		a, b, c, d := m.Vertex(el[0]), m.Vertex(el[1]), m.Vertex(el[2]), m.Vertex(el[3])
		v := b.Sub(a).Dot(c.Sub(a).Cross(d.Sub(a))) / 6.0
		if v < 0 {
			v = -v
		}
		vols[e] = v
	}
	return vols
}

// Measures returns the positive per-element weights used by the distortion
// energy: triangle areas for surfaces, tet volumes for volumes.
func (m *Mesh) Measures() []float64 {
	if m.SimplexSize() == 3 {
		return m.FaceAreas()
	}
	return m.TetVolumes()
}

// SignedAreas evaluates the signed area of every triangle at the given 2-D
// target positions (#V x 2).
func SignedAreas(elements [][]int, pos *mat.Dense) []float64 {
	out := make([]float64, len(elements))
	for e, el := range elements {
		ax, ay := pos.At(el[0], 0), pos.At(el[0], 1)
		bx, by := pos.At(el[1], 0), pos.At(el[1], 1)
		cx, cy := pos.At(el[2], 0), pos.At(el[2], 1)
		out[e] = 0.5 * ((bx-ax)*(cy-ay) - (by-ay)*(cx-ax))
	}
	return out
}

// SignedVolumes evaluates the signed volume of every tetrahedron at the given
// 3-D target positions (#V x 3).
func SignedVolumes(elements [][]int, pos *mat.Dense) []float64 {
	out := make([]float64, len(elements))
	for e, el := range elements {
		a := rowVec(pos, el[0])
		b := rowVec(pos, el[1])
		c := rowVec(pos, el[2])
		d := rowVec(pos, el[3])
		out[e] = b.Sub(a).Dot(c.Sub(a).Cross(d.Sub(a))) / 6.0
	}
	return out
}

func rowVec(pos *mat.Dense, i int) r3.Vector {
	return r3.Vector{X: pos.At(i, 0), Y: pos.At(i, 1), Z: pos.At(i, 2)}
}

// LocalBasis is a per-face orthonormal tangent frame.
type LocalBasis struct {
	B1, B2 []r3.Vector // in-plane unit axes, one per face
	N      []r3.Vector // unit normals
}

// LocalBases computes an orthonormal frame for every triangle: B1 along the
// first edge, N the face normal, B2 completing the right-handed frame.
func (m *Mesh) LocalBases() (*LocalBasis, error) {
	if m.SimplexSize() != 3 {
		return nil, fmt.Errorf("mesh: local bases are defined for triangle meshes only")
	}
	nf := len(m.Elements)
	lb := &LocalBasis{
		B1: make([]r3.Vector, nf),
		B2: make([]r3.Vector, nf),
		N:  make([]r3.Vector, nf),
	}
	for e, el := range m.Elements {
		a, b, c := m.Vertex(el[0]), m.Vertex(el[1]), m.Vertex(el[2])
		e1 := b.Sub(a)
		n := e1.Cross(c.Sub(a))
		if n.Norm() == 0 {
			return nil, fmt.Errorf("mesh: degenerate triangle %d", e)
		}
		lb.B1[e] = e1.Normalize()
		lb.N[e] = n.Normalize()
		lb.B2[e] = lb.N[e].Cross(lb.B1[e])
	}
	return lb, nil
}
