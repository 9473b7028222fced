package linesearch

import "math"

// SmallestPositiveQuadRoot returns the smallest strictly positive root of
// a*t^2 + b*t + c = 0, or +Inf when none exists.
func SmallestPositiveQuadRoot(a, b, c float64) float64 {
	const tiny = 1e-30
	if math.Abs(a) < tiny {
		if math.Abs(b) < tiny {
			return math.Inf(1)
		}
		return positiveOrInf(-c / b)
	}
	delta := b*b - 4*a*c
	if delta < 0 {
		return math.Inf(1)
	}
	sq := math.Sqrt(delta)
	t1 := (-b - sq) / (2 * a)
	t2 := (-b + sq) / (2 * a)
	return minPositive(t1, t2, math.Inf(1), math.Inf(1))
}

// SmallestPositiveCubicRoot returns the smallest strictly positive root of
// a*t^3 + b*t^2 + c*t + d = 0, or +Inf when none exists.
func SmallestPositiveCubicRoot(a, b, c, d float64) float64 {
	const tiny = 1e-30
	if math.Abs(a) < tiny {
		return SmallestPositiveQuadRoot(b, c, d)
	}
	// Depressed cubic t = s - b/(3a): s^3 + p*s + q = 0.
	p := (3*a*c - b*b) / (3 * a * a)
	q := (2*b*b*b - 9*a*b*c + 27*a*a*d) / (27 * a * a * a)
	shift := -b / (3 * a)

	disc := q*q/4 + p*p*p/27
	var r1, r2, r3 float64
	switch {
	case disc > 0:
		// One real root (Cardano).
		u := math.Cbrt(-q/2 + math.Sqrt(disc))
		v := math.Cbrt(-q/2 - math.Sqrt(disc))
		r1 = u + v + shift
		r2, r3 = math.Inf(1), math.Inf(1)
	case p == 0:
		// Triple root.
		r1 = shift
		r2, r3 = math.Inf(1), math.Inf(1)
	default:
		// Three real roots (trigonometric form).
		m := 2 * math.Sqrt(-p/3)
		arg := 3 * q / (p * m)
		arg = math.Max(-1, math.Min(1, arg))
		theta := math.Acos(arg) / 3
		r1 = m*math.Cos(theta) + shift
		r2 = m*math.Cos(theta-2*math.Pi/3) + shift
		r3 = m*math.Cos(theta-4*math.Pi/3) + shift
	}
	return minPositive(r1, r2, r3, math.Inf(1))
}

func positiveOrInf(t float64) float64 {
	if t > 0 {
		return t
	}
	return math.Inf(1)
}

func minPositive(ts ...float64) float64 {
	best := math.Inf(1)
	for _, t := range ts {
		if t > 0 && t < best {
			best = t
		}
	}
	return best
}
