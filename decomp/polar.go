// Package decomp provides the small-matrix polar/SVD primitive the
// distortion solver applies to every element Jacobian.
package decomp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Polar is the decomposition A = R * S of a square matrix into the closest
// rotation R (det +1) and a symmetric factor S, together with the adjusted
// SVD it was derived from: A = U * diag(Sigma) * Vᵀ.
//
// Singular values are in descending order. When A reverses orientation the
// last left singular vector is negated and the last singular value carries
// the sign, so Sigma[last] < 0 exactly for inverted inputs while R stays a
// proper rotation.
type Polar struct {
	R, S  *mat.Dense
	U, V  *mat.Dense
	Sigma []float64
}

// PolarSVD decomposes the square matrix a. It fails only if the underlying
// SVD does not converge.
func PolarSVD(a mat.Matrix) (Polar, error) {
	n, c := a.Dims()
	if n != c {
		return Polar{}, fmt.Errorf("decomp: matrix is %dx%d, want square", n, c)
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Polar{}, fmt.Errorf("decomp: SVD failed to converge")
	}
	p := Polar{
		R:     mat.NewDense(n, n, nil),
		S:     mat.NewDense(n, n, nil),
		U:     &mat.Dense{},
		V:     &mat.Dense{},
		Sigma: svd.Values(nil),
	}
	svd.UTo(p.U)
	svd.VTo(p.V)

	p.R.Mul(p.U, p.V.T())
	if mat.Det(p.R) < 0 {
		// Orientation-reversing input: fold the reflection into the last
		// singular pair so R becomes a proper rotation.
		last := n - 1
		for i := 0; i < n; i++ {
			p.U.Set(i, last, -p.U.At(i, last))
		}
		p.Sigma[last] = -p.Sigma[last]
		p.R.Mul(p.U, p.V.T())
	}

	// S = V * diag(Sigma) * Vᵀ.
	tmp := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			tmp.Set(i, j, p.V.At(i, j)*p.Sigma[j])
		}
	}
	p.S.Mul(tmp, p.V.T())
	return p, nil
}
