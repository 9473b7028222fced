package mesh

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/james-bowman/sparse"
)

// SurfaceGradients builds the per-axis directional-derivative operators of a
// triangle mesh. D1 and D2 are #F x #V sparse operators: applied to a
// per-vertex scalar field they yield, per face, the derivative of the linear
// interpolant along the face's local tangent axes B1 and B2.
func (m *Mesh) SurfaceGradients() (d1, d2 *sparse.CSR, err error) {
	lb, err := m.LocalBases()
	if err != nil {
		return nil, nil, err
	}
	nf, nv := len(m.Elements), m.NumVertices()
	dok1 := sparse.NewDOK(nf, nv)
	dok2 := sparse.NewDOK(nf, nv)
	for e, el := range m.Elements {
		a, b, c := m.Vertex(el[0]), m.Vertex(el[1]), m.Vertex(el[2])
		n := b.Sub(a).Cross(c.Sub(a))
		dblA := n.Norm()
		if dblA == 0 {
			return nil, nil, fmt.Errorf("mesh: degenerate triangle %d", e)
		}
		u := n.Mul(1 / dblA)
		// Gradient of the hat function at each corner: the unit normal
		// crossed with the opposite edge, over twice the area.
		grads := [3]r3.Vector{
			u.Cross(c.Sub(b)).Mul(1 / dblA),
			u.Cross(a.Sub(c)).Mul(1 / dblA),
			u.Cross(b.Sub(a)).Mul(1 / dblA),
		}
		for k, g := range grads {
			dok1.Set(e, el[k], lb.B1[e].Dot(g))
			dok2.Set(e, el[k], lb.B2[e].Dot(g))
		}
	}
	return dok1.ToCSR(), dok2.ToCSR(), nil
}

// VolumeGradients builds the per-axis directional-derivative operators of a
// tetrahedral mesh along the global x, y, z axes. Each operator is #T x #V.
func (m *Mesh) VolumeGradients() (dx, dy, dz *sparse.CSR, err error) {
	if m.SimplexSize() != 4 {
		return nil, nil, nil, fmt.Errorf("mesh: volume gradients are defined for tet meshes only")
	}
	nt, nv := len(m.Elements), m.NumVertices()
	dokx := sparse.NewDOK(nt, nv)
	doky := sparse.NewDOK(nt, nv)
	dokz := sparse.NewDOK(nt, nv)
	for e, el := range m.Elements {
		p := [4]r3.Vector{m.Vertex(el[0]), m.Vertex(el[1]), m.Vertex(el[2]), m.Vertex(el[3])}
		for k := 0; k < 4; k++ {
			// Opposite face of corner k, in element order.
			var f [3]int
			fi := 0
			for j := 0; j < 4; j++ {
				if j != k {
					f[fi] = j
					fi++
				}
			}
			n := p[f[1]].Sub(p[f[0]]).Cross(p[f[2]].Sub(p[f[0]]))
			den := p[k].Sub(p[f[0]]).Dot(n)
			if den == 0 {
				return nil, nil, nil, fmt.Errorf("mesh: degenerate tetrahedron %d", e)
			}
			// Gradient of the hat function at corner k; the denominator
			// carries the orientation so no sign bookkeeping is needed.
			g := n.Mul(1 / den)
			dokx.Set(e, el[k], g.X)
			doky.Set(e, el[k], g.Y)
			dokz.Set(e, el[k], g.Z)
		}
	}
	return dokx.ToCSR(), doky.ToCSR(), dokz.ToCSR(), nil
}
