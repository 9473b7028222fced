// Package linesearch implements the flip-avoiding step safeguard used to
// accept global-step candidates: it bounds the step by the first moment any
// element's signed area or volume would reach zero, then backtracks on the
// caller's energy until the move is non-worsening.
package linesearch

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// EnergyFunc evaluates the objective at a full set of candidate positions.
type EnergyFunc func(positions *mat.Dense) float64

const maxHalvings = 12

// MaxStepWithoutFlips returns the largest step t such that moving from cur
// toward cand by any fraction below t keeps every element's signed measure
// away from zero. cur and cand are #V x dim with dim 2 (triangles) or
// 3 (tets). Returns +Inf when no element ever degenerates along the segment.
func MaxStepWithoutFlips(elements [][]int, cur, cand *mat.Dense) float64 {
	_, dim := cur.Dims()
	minT := math.Inf(1)
	for _, el := range elements {
		var t float64
		if dim == 2 {
			t = flipTime2(el, cur, cand)
		} else {
			t = flipTime3(el, cur, cand)
		}
		if t < minT {
			minT = t
		}
	}
	return minT
}

func flipTime2(el []int, cur, cand *mat.Dense) float64 {
	e1x := cur.At(el[1], 0) - cur.At(el[0], 0)
	e1y := cur.At(el[1], 1) - cur.At(el[0], 1)
	e2x := cur.At(el[2], 0) - cur.At(el[0], 0)
	e2y := cur.At(el[2], 1) - cur.At(el[0], 1)
	f1x := cand.At(el[1], 0) - cand.At(el[0], 0) - e1x
	f1y := cand.At(el[1], 1) - cand.At(el[0], 1) - e1y
	f2x := cand.At(el[2], 0) - cand.At(el[0], 0) - e2x
	f2y := cand.At(el[2], 1) - cand.At(el[0], 1) - e2y

	// det(E + t*F) as a quadratic in t.
	c0 := e1x*e2y - e1y*e2x
	c1 := e1x*f2y + f1x*e2y - e1y*f2x - f1y*e2x
	c2 := f1x*f2y - f1y*f2x
	return SmallestPositiveQuadRoot(c2, c1, c0)
}

func flipTime3(el []int, cur, cand *mat.Dense) float64 {
	edge := func(p *mat.Dense, i, j int) r3.Vector {
		return r3.Vector{
			X: p.At(el[i], 0) - p.At(el[j], 0),
			Y: p.At(el[i], 1) - p.At(el[j], 1),
			Z: p.At(el[i], 2) - p.At(el[j], 2),
		}
	}
	e1, e2, e3 := edge(cur, 1, 0), edge(cur, 2, 0), edge(cur, 3, 0)
	f1 := edge(cand, 1, 0).Sub(e1)
	f2 := edge(cand, 2, 0).Sub(e2)
	f3 := edge(cand, 3, 0).Sub(e3)
	det := func(a, b, c r3.Vector) float64 { return a.Dot(b.Cross(c)) }

	// det(E + t*F) as a cubic in t.
	c0 := det(e1, e2, e3)
	c1 := det(f1, e2, e3) + det(e1, f2, e3) + det(e1, e2, f3)
	c2 := det(e1, f2, f3) + det(f1, e2, f3) + det(f1, f2, e3)
	c3 := det(f1, f2, f3)
	return SmallestPositiveCubicRoot(c3, c2, c1, c0)
}

// FlipAvoiding moves cur toward cand by the largest energy-decreasing step
// that keeps every element on its current side of degeneracy, and returns the
// energy at the accepted positions. The initial step is capped at 80% of the
// first flip time (and at a full step); it is then halved up to 12 times until
// the energy strictly decreases. If no improving step is found cur is left
// untouched and curEnergy is returned, so the result never exceeds curEnergy.
func FlipAvoiding(elements [][]int, cur, cand *mat.Dense, energy EnergyFunc, curEnergy float64) float64 {
	nv, dim := cur.Dims()
	d := mat.NewDense(nv, dim, nil)
	d.Sub(cand, cur)

	step := math.Min(1, 0.8*MaxStepWithoutFlips(elements, cur, cand))

	trial := mat.NewDense(nv, dim, nil)
	for iter := 0; iter < maxHalvings; iter++ {
		trial.Scale(step, d)
		trial.Add(trial, cur)
		e := energy(trial)
		if e < curEnergy {
			cur.Copy(trial)
			return e
		}
		step /= 2
	}
	return curEnergy
}
