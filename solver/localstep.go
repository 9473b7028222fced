package solver

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/meshkit/slim/decomp"
	"github.com/meshkit/slim/utils"
)

// singularClamp is the tolerance under which a singular value counts as 1,
// removing the 0/0 singularity of the reweighting formulas at the energy
// minimum.
const singularClamp = 1e-8

// computeJacobians fills the per-element Jacobian buffer from the given
// target positions: row e holds, row-major, the dim x dim matrix whose
// (k,a) entry is the derivative of target coordinate k along local axis a.
func (s *Solver) computeJacobians(positions *mat.Dense) {
	s.jac.Zero()
	for a, d := range s.grad {
		d.DoNonZero(func(e, v int, val float64) {
			row := s.jac.RawRowView(e)
			for k := 0; k < s.dim; k++ {
				row[k*s.dim+a] += val * positions.At(v, k)
			}
		})
	}
}

// updateWeightsAndRotations runs the local step on every element: decompose
// the Jacobian, derive the energy-specific proxy weights and the target
// rotation/projection, and store both. Elements are independent, so the loop
// fans out across workers with a barrier before return.
func (s *Solver) updateWeightsAndRotations(positions *mat.Dense) error {
	s.computeJacobians(positions)

	form := energyForms[s.energy]
	var (
		mu       sync.Mutex
		firstErr error
	)
	utils.ParallelFor(s.fN, func(start, end int) {
		ji := mat.NewDense(s.dim, s.dim, nil)
		ud := mat.NewDense(s.dim, s.dim, nil)
		out := mat.NewDense(s.dim, s.dim, nil)
		var target, weight [3]float64
		for e := start; e < end; e++ {
			for i := 0; i < s.dim; i++ {
				for a := 0; a < s.dim; a++ {
					ji.Set(i, a, s.jac.At(e, i*s.dim+a))
				}
			}
			p, err := decomp.PolarSVD(ji)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("solver: element %d: %w", e, err)
				}
				mu.Unlock()
				return
			}

			form.reweight(p.Sigma, s.expFactor, target[:s.dim], weight[:s.dim])
			for k := 0; k < s.dim; k++ {
				if math.Abs(p.Sigma[k]-1) < singularClamp {
					weight[k] = 1
				}
			}

			// R = U * diag(target) * Vᵀ: an exact rotation when the targets
			// are all 1, a scaled projection for the conformal family.
			scaleCols(ud, p.U, target[:s.dim])
			out.Mul(ud, p.V.T())
			storeRow(s.rot, e, out)

			// W = U * diag(weight) * Uᵀ, symmetric by construction.
			scaleCols(ud, p.U, weight[:s.dim])
			out.Mul(ud, p.U.T())
			storeRow(s.wgt, e, out)
		}
	})
	return firstErr
}

// scaleCols sets dst to src with column k scaled by d[k].
func scaleCols(dst, src *mat.Dense, d []float64) {
	n := len(d)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			dst.Set(i, j, src.At(i, j)*d[j])
		}
	}
}

// storeRow flattens an n x n matrix into row e of a #F x n^2 buffer,
// row-major.
func storeRow(buf *mat.Dense, e int, m *mat.Dense) {
	n, _ := m.Dims()
	row := buf.RawRowView(e)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			row[i*n+j] = m.At(i, j)
		}
	}
}
