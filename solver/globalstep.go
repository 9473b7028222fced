package solver

import (
	"errors"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/meshkit/slim/linsolve"
)

// nz is one nonzero of a proxy-matrix row.
type nz struct {
	col int
	val float64
}

// buildProxyRows assembles the fat proxy matrix A row by row, plus the
// per-row targets f. A has dim^2 * #F rows and dim * #V columns; row
// (i*dim+a)*#F + e applies, to target coordinate columns, element e's weight
// row i combined with the axis-a gradient operator, so that A*x stacks the
// entries of W_e * J_e(x) for every element. f stacks the matching entries
// of W_e * R_e.
func (s *Solver) buildProxyRows() (rows [][]nz, f []float64) {
	nRows := s.dim * s.dim * s.fN
	rows = make([][]nz, nRows)
	for a, d := range s.grad {
		d.DoNonZero(func(e, v int, val float64) {
			w := s.wgt.RawRowView(e)
			for i := 0; i < s.dim; i++ {
				r := (i*s.dim+a)*s.fN + e
				for k := 0; k < s.dim; k++ {
					rows[r] = append(rows[r], nz{col: k*s.vN + v, val: val * w[i*s.dim+k]})
				}
			}
		})
	}

	f = make([]float64, nRows)
	for e := 0; e < s.fN; e++ {
		w := s.wgt.RawRowView(e)
		r := s.rot.RawRowView(e)
		for i := 0; i < s.dim; i++ {
			for a := 0; a < s.dim; a++ {
				var sum float64
				for k := 0; k < s.dim; k++ {
					sum += w[i*s.dim+k] * r[k*s.dim+a]
				}
				f[(i*s.dim+a)*s.fN+e] = sum
			}
		}
	}
	return rows, f
}

// ProxyMatrix materializes A as a sparse matrix. Exposed for tests; the
// solve path works from the grouped rows directly.
func (s *Solver) ProxyMatrix() *sparse.CSR {
	rows, _ := s.buildProxyRows()
	coo := sparse.NewCOO(len(rows), s.dim*s.vN, nil, nil, nil)
	for r, entries := range rows {
		for _, e := range entries {
			coo.Set(r, e.col, e.val)
		}
	}
	return coo.ToCSR()
}

// buildLinearSystem forms L = Aᵀ diag(wgl) A + proximal*I with the soft
// constraint diagonal additions, and the matching right-hand side
// Aᵀ diag(wgl) f + proximal*flatten(current) + soft targets. Accumulation
// is triplet-style and compacted once into CSR.
func (s *Solver) buildLinearSystem(current *mat.Dense) (*sparse.CSR, []float64) {
	rows, f := s.buildProxyRows()
	n := s.dim * s.vN
	dok := sparse.NewDOK(n, n)
	rhs := make([]float64, n)

	for r, entries := range rows {
		wr := s.wgl[r]
		for _, a := range entries {
			rhs[a.col] += wr * a.val * f[r]
			for _, b := range entries {
				dok.Set(a.col, b.col, dok.At(a.col, b.col)+wr*a.val*b.val)
			}
		}
	}

	// Proximal anchor at the previous iterate.
	flat := s.flatten(current)
	for i := 0; i < n; i++ {
		dok.Set(i, i, dok.At(i, i)+proximalPenalty)
		rhs[i] += proximalPenalty * flat[i]
	}

	// Soft positional constraints: diagonal penalty plus pulled targets.
	for d := 0; d < s.dim; d++ {
		for i, v := range s.pinned {
			idx := d*s.vN + v
			dok.Set(idx, idx, dok.At(idx, idx)+s.pinPenalty)
			rhs[idx] += s.pinPenalty * s.pinTargets.At(i, d)
		}
	}
	return dok.ToCSR(), rhs
}

// solveProxy solves the weighted proxy problem and writes the minimizer into
// candidate. 2-D systems go through a direct symmetric factorization; 3-D
// systems use conjugate gradients warm-started at the current positions,
// with non-convergence surfaced as a warning while the best iterate is kept.
func (s *Solver) solveProxy(candidate *mat.Dense) error {
	l, rhs := s.buildLinearSystem(candidate)

	var (
		x   []float64
		err error
	)
	if s.dim == 2 {
		x, err = linsolve.Cholesky(l, rhs)
	} else {
		x, err = linsolve.ConjugateGradient(l, rhs, s.flatten(candidate), cgTolerance, 2*len(rhs))
		if errors.Is(err, linsolve.ErrNotConverged) {
			s.warnings = append(s.warnings, err)
			err = nil
		}
	}
	if err != nil {
		return err
	}

	for k := 0; k < s.dim; k++ {
		for j := 0; j < s.vN; j++ {
			candidate.Set(j, k, x[k*s.vN+j])
		}
	}
	return nil
}

// flatten packs positions coordinate-major: entry k*#V + j is coordinate k
// of vertex j.
func (s *Solver) flatten(positions *mat.Dense) []float64 {
	out := make([]float64, s.dim*s.vN)
	for k := 0; k < s.dim; k++ {
		for j := 0; j < s.vN; j++ {
			out[k*s.vN+j] = positions.At(j, k)
		}
	}
	return out
}
