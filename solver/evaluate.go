package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/meshkit/slim/decomp"
)

// EnergyAt evaluates the true (non-proxy) objective at the given candidate
// positions: the per-element distortion energy weighted by rest area/volume,
// plus the soft-constraint penalty. Deterministic; it drives both line-search
// acceptance and convergence reporting. Elements whose decomposition fails
// evaluate to +Inf so any safeguarded search rejects the candidate.
func (s *Solver) EnergyAt(positions *mat.Dense) float64 {
	total := s.distortionEnergy(positions, nil)
	return total + s.softConstraintEnergy(positions)
}

// ElementEnergies returns the unweighted per-element distortion values at the
// given positions, e.g. for diagnostics or rendering.
func (s *Solver) ElementEnergies(positions *mat.Dense) []float64 {
	out := make([]float64, s.fN)
	s.distortionEnergy(positions, out)
	return out
}

func (s *Solver) distortionEnergy(positions *mat.Dense, perElement []float64) float64 {
	s.computeJacobians(positions)
	form := energyForms[s.energy]
	ji := mat.NewDense(s.dim, s.dim, nil)
	var total float64
	for e := 0; e < s.fN; e++ {
		row := s.jac.RawRowView(e)
		for i := 0; i < s.dim; i++ {
			for a := 0; a < s.dim; a++ {
				ji.Set(i, a, row[i*s.dim+a])
			}
		}
		v := math.Inf(1)
		if p, err := decomp.PolarSVD(ji); err == nil {
			v = form.value(p.Sigma, s.expFactor)
		}
		if perElement != nil {
			perElement[e] = v
		}
		total += s.measures[e] * v
	}
	return total
}

func (s *Solver) softConstraintEnergy(positions *mat.Dense) float64 {
	var e float64
	for i, v := range s.pinned {
		var d2 float64
		for d := 0; d < s.dim; d++ {
			diff := s.pinTargets.At(i, d) - positions.At(v, d)
			d2 += diff * diff
		}
		e += s.pinPenalty * d2
	}
	return e
}
