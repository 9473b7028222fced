package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ReadOBJ parses a Wavefront OBJ triangle mesh. Only "v" and "f" records are
// interpreted; faces with more than three corners are fan-triangulated and
// texture/normal slots in face corners ("v/vt/vn") are ignored.
func ReadOBJ(r io.Reader) (*Mesh, error) {
	var (
		verts []float64
		elems [][]int
	)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("mesh: obj line %d: vertex needs 3 coordinates", line)
			}
			for _, f := range fields[1:4] {
				x, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, fmt.Errorf("mesh: obj line %d: %w", line, err)
				}
				verts = append(verts, x)
			}
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("mesh: obj line %d: face needs at least 3 corners", line)
			}
			corners := make([]int, 0, len(fields)-1)
			for _, f := range fields[1:] {
				// Strip "/vt/vn" suffixes.
				if i := strings.IndexByte(f, '/'); i >= 0 {
					f = f[:i]
				}
				idx, err := strconv.Atoi(f)
				if err != nil {
					return nil, fmt.Errorf("mesh: obj line %d: %w", line, err)
				}
				if idx < 0 {
					idx = len(verts)/3 + idx + 1
				}
				corners = append(corners, idx-1)
			}
			for i := 1; i+1 < len(corners); i++ {
				elems = append(elems, []int{corners[0], corners[i], corners[i+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(verts) == 0 {
		return nil, fmt.Errorf("mesh: obj stream holds no vertices")
	}
	return NewMesh(mat.NewDense(len(verts)/3, 3, verts), elems)
}

// ReadOBJFile reads an OBJ triangle mesh from disk.
func ReadOBJFile(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadOBJ(f)
}

// WriteOBJ writes the mesh connectivity with the given positions, which may
// have 2 columns (a planar parameterization, written with z = 0) or 3.
func WriteOBJ(w io.Writer, m *Mesh, positions *mat.Dense) error {
	if m.SimplexSize() != 3 {
		return fmt.Errorf("mesh: obj output supports triangle meshes only")
	}
	nv, dim := positions.Dims()
	if nv != m.NumVertices() || (dim != 2 && dim != 3) {
		return fmt.Errorf("mesh: position matrix is %dx%d, want %dx2 or %dx3", nv, dim, m.NumVertices(), m.NumVertices())
	}
	bw := bufio.NewWriter(w)
	for i := 0; i < nv; i++ {
		z := 0.0
		if dim == 3 {
			z = positions.At(i, 2)
		}
		fmt.Fprintf(bw, "v %.17g %.17g %.17g\n", positions.At(i, 0), positions.At(i, 1), z)
	}
	for _, el := range m.Elements {
		fmt.Fprintf(bw, "f %d %d %d\n", el[0]+1, el[1]+1, el[2]+1)
	}
	return bw.Flush()
}
