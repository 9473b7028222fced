// Package linsolve solves the symmetric positive definite sparse systems
// assembled by the global step: a direct factorization for the small-bandwidth
// 2-D problems and a warm-started preconditioned conjugate gradient for 3-D.
package linsolve

import (
	"errors"
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrNotConverged reports that the iterative solver exhausted its iteration
// budget before reaching the requested tolerance. The returned solution is the
// best iterate found and is still usable; callers decide whether to retry.
var ErrNotConverged = errors.New("linsolve: conjugate gradient did not converge")

// MulVec computes y = A*x for a sparse matrix.
func MulVec(a *sparse.CSR, x, y []float64) {
	for i := range y {
		y[i] = 0
	}
	a.DoNonZero(func(i, j int, v float64) {
		y[i] += v * x[j]
	})
}

// Cholesky solves A*x = b by dense symmetric Cholesky factorization. A must
// be symmetric positive definite; a failed factorization is returned as an
// error since it signals a rank-deficient system (degenerate or unconstrained
// mesh), which is a caller-side precondition violation.
func Cholesky(a *sparse.CSR, b []float64) ([]float64, error) {
	n, c := a.Dims()
	if n != c || n != len(b) {
		return nil, fmt.Errorf("linsolve: system is %dx%d with rhs of length %d", n, c, len(b))
	}
	sym := mat.NewSymDense(n, nil)
	a.DoNonZero(func(i, j int, v float64) {
		if i <= j {
			sym.SetSym(i, j, v)
		}
	})
	var ch mat.Cholesky
	if !ch.Factorize(sym) {
		return nil, fmt.Errorf("linsolve: matrix is not positive definite")
	}
	x := mat.NewVecDense(n, nil)
	if err := ch.SolveVecTo(x, mat.NewVecDense(n, b)); err != nil {
		return nil, err
	}
	return x.RawVector().Data, nil
}

// ConjugateGradient solves A*x = b with Jacobi-preconditioned CG. x0, when
// non-nil, seeds the iteration (warm start). Convergence is declared at
// ||b - A*x|| <= tol * ||b||; if maxIter is exhausted first the best iterate
// is returned together with ErrNotConverged.
func ConjugateGradient(a *sparse.CSR, b, x0 []float64, tol float64, maxIter int) ([]float64, error) {
	n, c := a.Dims()
	if n != c || n != len(b) {
		return nil, fmt.Errorf("linsolve: system is %dx%d with rhs of length %d", n, c, len(b))
	}
	if x0 != nil && len(x0) != n {
		return nil, fmt.Errorf("linsolve: warm start has length %d, want %d", len(x0), n)
	}

	// Jacobi preconditioner from the diagonal.
	invDiag := make([]float64, n)
	a.DoNonZero(func(i, j int, v float64) {
		if i == j {
			invDiag[i] = v
		}
	})
	for i, d := range invDiag {
		if d > 0 {
			invDiag[i] = 1 / d
		} else {
			invDiag[i] = 1
		}
	}

	x := make([]float64, n)
	if x0 != nil {
		copy(x, x0)
	}
	r := make([]float64, n)
	MulVec(a, x, r)
	for i := range r {
		r[i] = b[i] - r[i]
	}
	z := make([]float64, n)
	for i := range z {
		z[i] = invDiag[i] * r[i]
	}
	p := make([]float64, n)
	copy(p, z)
	ap := make([]float64, n)

	normB := floats.Norm(b, 2)
	if normB == 0 {
		normB = 1
	}
	rz := floats.Dot(r, z)
	for iter := 0; iter < maxIter; iter++ {
		if floats.Norm(r, 2) <= tol*normB {
			return x, nil
		}
		MulVec(a, p, ap)
		pap := floats.Dot(p, ap)
		if pap <= 0 || math.IsNaN(pap) {
			return x, fmt.Errorf("linsolve: matrix is not positive definite")
		}
		alpha := rz / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		for i := range z {
			z[i] = invDiag[i] * r[i]
		}
		rzNext := floats.Dot(r, z)
		beta := rzNext / rz
		rz = rzNext
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
	}
	if floats.Norm(r, 2) <= tol*normB {
		return x, nil
	}
	return x, ErrNotConverged
}
