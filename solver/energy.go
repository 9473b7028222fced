package solver

import (
	"fmt"
	"math"
)

// Energy selects the per-element distortion measure the solver minimizes.
// The set is closed: each variant carries a direct energy form (driving step
// acceptance) and a singular-value reweighting form (turning the energy into
// a weighted-ARAP proxy for the global step).
type Energy int

const (
	// ARAP is the as-rigid-as-possible energy, sum of (s_k - 1)^2.
	ARAP Energy = iota
	// SymmetricDirichlet is the flip-penalizing sum of s_k^2 + s_k^-2.
	SymmetricDirichlet
	// LogARAP measures the sum of log(s_k)^2.
	LogARAP
	// Conformal measures deviation from angle preservation.
	Conformal
	// ExpConformal exponentiates the conformal energy for sharper penalties.
	ExpConformal
	// ExpSymmetricDirichlet exponentiates the symmetric Dirichlet energy.
	ExpSymmetricDirichlet

	numEnergies
)

// String implements fmt.Stringer.
func (e Energy) String() string {
	switch e {
	case ARAP:
		return "ARAP"
	case SymmetricDirichlet:
		return "SymmetricDirichlet"
	case LogARAP:
		return "LogARAP"
	case Conformal:
		return "Conformal"
	case ExpConformal:
		return "ExpConformal"
	case ExpSymmetricDirichlet:
		return "ExpSymmetricDirichlet"
	}
	return fmt.Sprintf("Energy(%d)", int(e))
}

func (e Energy) valid() bool { return e >= 0 && e < numEnergies }

// energyForm is one row of the closed dispatch table: the direct energy value
// per unit area/volume, and the reweighting that fills the target singular
// values (defining the local rotation/projection) and the proxy weights.
// s holds 2 or 3 singular values in descending order.
type energyForm struct {
	value    func(s []float64, expFactor float64) float64
	reweight func(s []float64, expFactor float64, target, weight []float64)
}

var energyForms = [numEnergies]energyForm{
	ARAP:                  {value: arapValue, reweight: arapReweight},
	SymmetricDirichlet:    {value: symDirichletValue, reweight: symDirichletReweight},
	LogARAP:               {value: logARAPValue, reweight: logARAPReweight},
	Conformal:             {value: conformalValue, reweight: conformalReweight},
	ExpConformal:          {value: expConformalValue, reweight: expConformalReweight},
	ExpSymmetricDirichlet: {value: expSymDirichletValue, reweight: expSymDirichletReweight},
}

func sq(x float64) float64 { return x * x }

// symDirichletInner is the symmetric Dirichlet value, shared with its
// exponential variant's sharpness argument.
func symDirichletInner(s []float64) float64 {
	var sum float64
	for _, sk := range s {
		sum += sq(sk) + 1/sq(sk)
	}
	return sum
}

// conformalInner is the conformal value: (s1^2+s2^2)/(2 s1 s2) in 2-D and
// (s1^2+s2^2+s3^2) / (3 (s1 s2 s3)^(2/3)) in 3-D.
func conformalInner(s []float64) float64 {
	if len(s) == 2 {
		return (sq(s[0]) + sq(s[1])) / (2 * s[0] * s[1])
	}
	return (sq(s[0]) + sq(s[1]) + sq(s[2])) / (3 * math.Pow(s[0]*s[1]*s[2], 2.0/3.0))
}

// conformalTarget is the closest angle-preserving singular value set: the
// geometric mean in 2-D, the symmetric balance of the extreme values in 3-D.
func conformalTarget(s []float64) float64 {
	if len(s) == 2 {
		return math.Sqrt(s[0] * s[1])
	}
	return math.Sqrt(sq(s[0])+sq(s[2])) / math.Sqrt2
}

// proxyWeight converts an energy gradient at s toward target t into the
// singular value of the weighted-ARAP proxy. Removable 0/0 singularities near
// the energy minimum are handled by the caller's clamp.
func proxyWeight(g, s, t float64) float64 {
	return math.Sqrt(g / (2 * (s - t)))
}

func arapValue(s []float64, _ float64) float64 {
	var sum float64
	for _, sk := range s {
		sum += sq(sk - 1)
	}
	return sum
}

func arapReweight(s []float64, _ float64, target, weight []float64) {
	for k := range s {
		target[k] = 1
		weight[k] = 1
	}
}

func symDirichletValue(s []float64, _ float64) float64 {
	return symDirichletInner(s)
}

func symDirichletReweight(s []float64, _ float64, target, weight []float64) {
	for k, sk := range s {
		g := 2 * (sk - math.Pow(sk, -3))
		target[k] = 1
		weight[k] = proxyWeight(g, sk, 1)
	}
}

func logARAPValue(s []float64, _ float64) float64 {
	sum := sq(math.Log(s[0]))
	for _, sk := range s[1:] {
		// Trailing values are folded through abs for near-degenerate
		// volumetric elements.
		sum += sq(math.Log(math.Abs(sk)))
	}
	return sum
}

func logARAPReweight(s []float64, _ float64, target, weight []float64) {
	for k, sk := range s {
		g := 2 * math.Log(sk) / sk
		target[k] = 1
		weight[k] = proxyWeight(g, sk, 1)
	}
}

func conformalValue(s []float64, _ float64) float64 {
	return conformalInner(s)
}

func conformalGradients(s []float64, g []float64) {
	if len(s) == 2 {
		g[0] = 1/(2*s[1]) - s[1]/(2*sq(s[0]))
		g[1] = 1/(2*s[0]) - s[0]/(2*sq(s[1]))
		return
	}
	common := 9 * math.Pow(s[0]*s[1]*s[2], 5.0/3.0)
	g[0] = -2 * s[1] * s[2] * (sq(s[1]) + sq(s[2]) - 2*sq(s[0])) / common
	g[1] = -2 * s[0] * s[2] * (sq(s[0]) + sq(s[2]) - 2*sq(s[1])) / common
	g[2] = -2 * s[0] * s[1] * (sq(s[0]) + sq(s[1]) - 2*sq(s[2])) / common
}

func conformalReweight(s []float64, _ float64, target, weight []float64) {
	var g [3]float64
	conformalGradients(s, g[:])
	t := conformalTarget(s)
	for k, sk := range s {
		target[k] = t
		weight[k] = proxyWeight(g[k], sk, t)
	}
}

func expConformalValue(s []float64, expFactor float64) float64 {
	if len(s) == 2 {
		return math.Exp(expFactor * conformalInner(s))
	}
	// The volumetric branch omits the sharpness factor inside the
	// exponential. See TestExpConformalGuardAsymmetry3D.
	return math.Exp(conformalInner(s))
}

func expConformalReweight(s []float64, expFactor float64, target, weight []float64) {
	scale := math.Exp(expFactor*conformalInner(s)) * expFactor
	if len(s) == 2 {
		// The planar branch reweights with the symmetric Dirichlet gradient
		// toward rigidity rather than the conformal projection.
		for k, sk := range s {
			g := 2 * (sk - math.Pow(sk, -3)) * scale
			target[k] = 1
			weight[k] = proxyWeight(g, sk, 1)
		}
		return
	}
	var g [3]float64
	conformalGradients(s, g[:])
	t := conformalTarget(s)
	for k, sk := range s {
		target[k] = t
		weight[k] = proxyWeight(g[k]*scale, sk, t)
	}
}

func expSymDirichletValue(s []float64, expFactor float64) float64 {
	return math.Exp(expFactor * symDirichletInner(s))
}

func expSymDirichletReweight(s []float64, expFactor float64, target, weight []float64) {
	scale := math.Exp(expFactor*symDirichletInner(s)) * expFactor
	for k, sk := range s {
		g := 2 * (sk - math.Pow(sk, -3)) * scale
		target[k] = 1
		weight[k] = proxyWeight(g, sk, 1)
	}
}
