package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/meshkit/slim/linsolve"
	"github.com/meshkit/slim/mesh"
)

var allEnergies = []Energy{
	ARAP, SymmetricDirichlet, LogARAP, Conformal, ExpConformal, ExpSymmetricDirichlet,
}

// squareMesh is a flat unit square split into two triangles, with its exact
// planar parameterization.
func squareMesh(t *testing.T) (*mesh.Mesh, *mat.Dense) {
	t.Helper()
	v := mat.NewDense(4, 3, []float64{
		0, 0, 0,
		1, 0, 0,
		1, 1, 0,
		0, 1, 0,
	})
	m, err := mesh.NewMesh(v, [][]int{{0, 1, 2}, {0, 2, 3}})
	require.NoError(t, err)
	pos := mat.NewDense(4, 2, []float64{0, 0, 1, 0, 1, 1, 0, 1})
	return m, pos
}

// stripMesh triangulates a cols x rows grid, optionally lifted out of plane
// by a sine wave along x.
func stripMesh(t *testing.T, cols, rows int, bump float64) *mesh.Mesh {
	t.Helper()
	nv := (cols + 1) * (rows + 1)
	verts := mat.NewDense(nv, 3, nil)
	for r := 0; r <= rows; r++ {
		for c := 0; c <= cols; c++ {
			i := r*(cols+1) + c
			x := float64(c) / float64(cols) * 3
			y := float64(r) / float64(rows)
			verts.Set(i, 0, x)
			verts.Set(i, 1, y)
			verts.Set(i, 2, bump*math.Sin(2*math.Pi*x/3))
		}
	}
	var elems [][]int
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*(cols+1) + c
			elems = append(elems,
				[]int{i, i + 1, i + cols + 2},
				[]int{i, i + cols + 2, i + cols + 1})
		}
	}
	m, err := mesh.NewMesh(verts, elems)
	require.NoError(t, err)
	return m
}

// dropZ projects rest positions to the plane, the usual flattening guess.
func dropZ(m *mesh.Mesh) *mat.Dense {
	nv := m.NumVertices()
	pos := mat.NewDense(nv, 2, nil)
	for i := 0; i < nv; i++ {
		pos.Set(i, 0, m.Vertices.At(i, 0))
		pos.Set(i, 1, m.Vertices.At(i, 1))
	}
	return pos
}

// cubeTetMesh is the unit cube split into five tetrahedra.
func cubeTetMesh(t *testing.T) *mesh.Mesh {
	t.Helper()
	v := mat.NewDense(8, 3, []float64{
		0, 0, 0,
		1, 0, 0,
		1, 1, 0,
		0, 1, 0,
		0, 0, 1,
		1, 0, 1,
		1, 1, 1,
		0, 1, 1,
	})
	elems := [][]int{
		{0, 1, 2, 5},
		{0, 2, 3, 7},
		{0, 5, 7, 4},
		{2, 5, 6, 7},
		{0, 2, 7, 5},
	}
	m, err := mesh.NewMesh(v, elems)
	require.NoError(t, err)
	return m
}

func newSolver(t *testing.T, m *mesh.Mesh, init *mat.Dense, e Energy) *Solver {
	t.Helper()
	s, err := New(m, init, e)
	require.NoError(t, err)
	require.NoError(t, s.Precompute())
	return s
}

func TestNewValidation(t *testing.T) {
	m, pos := squareMesh(t)

	_, err := New(nil, pos, ARAP)
	assert.Error(t, err)

	_, err = New(m, mat.NewDense(4, 3, nil), ARAP)
	assert.Error(t, err, "2-D problem must take #Vx2 positions")

	_, err = New(m, pos, Energy(99))
	assert.Error(t, err)
}

func TestSetConstraintsValidation(t *testing.T) {
	m, pos := squareMesh(t)
	s, err := New(m, pos, ARAP)
	require.NoError(t, err)

	err = s.SetConstraints([]int{0, 1}, mat.NewDense(1, 2, nil), 1)
	assert.Error(t, err)

	err = s.SetConstraints([]int{-1}, mat.NewDense(1, 2, nil), 1)
	assert.Error(t, err)

	err = s.SetConstraints([]int{0}, mat.NewDense(1, 2, nil), 1)
	assert.NoError(t, err)
}

func TestPrecomputeIdempotent(t *testing.T) {
	m := stripMesh(t, 6, 2, 0.3)
	s := newSolver(t, m, dropZ(m), SymmetricDirichlet)

	grads := s.grad
	e := s.Energy()
	require.NoError(t, s.Precompute())
	assert.Equal(t, e, s.Energy())
	for i := range grads {
		assert.Same(t, grads[i], s.grad[i], "operators must not be rebuilt")
	}
}

// At the undeformed configuration every singular value is 1, every energy
// sits at its analytic minimum, and the reweighting clamp fires so all proxy
// weight matrices collapse to the identity.
func TestUndeformedConfiguration(t *testing.T) {
	m, pos := squareMesh(t)
	wantMin := map[Energy]float64{
		ARAP:                  0,
		SymmetricDirichlet:    4,
		LogARAP:               0,
		Conformal:             1,
		ExpConformal:          math.E,
		ExpSymmetricDirichlet: math.Exp(4),
	}
	for _, e := range allEnergies {
		s := newSolver(t, m, pos, e)
		assert.InDeltaf(t, wantMin[e], s.Energy(), 1e-10, "energy %v at identity", e)

		require.NoError(t, s.updateWeightsAndRotations(s.positions))
		for el := 0; el < s.fN; el++ {
			w := s.wgt.RawRowView(el)
			assert.InDeltaSlicef(t, []float64{1, 0, 0, 1}, w, 1e-8,
				"energy %v element %d weight matrix", e, el)
		}
	}
}

func TestEnergyIsometryInvariance(t *testing.T) {
	m := stripMesh(t, 8, 2, 0.4)
	init := dropZ(m)
	theta := 0.83
	c, sn := math.Cos(theta), math.Sin(theta)

	for _, e := range allEnergies {
		s := newSolver(t, m, init, e)
		base := s.EnergyAt(init)

		moved := mat.NewDense(m.NumVertices(), 2, nil)
		for i := 0; i < m.NumVertices(); i++ {
			x, y := init.At(i, 0), init.At(i, 1)
			moved.Set(i, 0, c*x-sn*y+3.5)
			moved.Set(i, 1, sn*x+c*y-1.25)
		}
		assert.InDeltaf(t, base, s.EnergyAt(moved), 1e-9*math.Max(1, base),
			"energy %v must be rigid-motion invariant", e)
	}
}

func TestWeightMatricesSymmetric(t *testing.T) {
	m := stripMesh(t, 8, 2, 0.4)
	init := dropZ(m)
	for _, e := range allEnergies {
		s := newSolver(t, m, init, e)
		require.NoError(t, s.updateWeightsAndRotations(s.positions))
		for el := 0; el < s.fN; el++ {
			w := s.wgt.RawRowView(el)
			assert.Falsef(t, math.IsNaN(w[0]) || math.IsNaN(w[1]) || math.IsNaN(w[3]),
				"energy %v element %d weights must be finite", e, el)
			assert.InDeltaf(t, w[1], w[2], 1e-10, "energy %v element %d", e, el)
		}
	}
}

func TestWeightMatricesSymmetric3D(t *testing.T) {
	m := cubeTetMesh(t)
	init := mat.NewDense(8, 3, nil)
	init.Copy(m.Vertices)
	// A smooth orientation-preserving distortion.
	for i := 0; i < 8; i++ {
		init.Set(i, 0, init.At(i, 0)*1.4+0.2*init.At(i, 1))
		init.Set(i, 2, init.At(i, 2)*0.8)
	}
	for _, e := range []Energy{ARAP, SymmetricDirichlet, LogARAP, ExpSymmetricDirichlet} {
		s := newSolver(t, m, init, e)
		require.NoError(t, s.updateWeightsAndRotations(s.positions))
		for el := 0; el < s.fN; el++ {
			w := s.wgt.RawRowView(el)
			for i := 0; i < 3; i++ {
				for j := i + 1; j < 3; j++ {
					assert.InDeltaf(t, w[i*3+j], w[j*3+i], 1e-10,
						"energy %v element %d entry (%d,%d)", e, el, i, j)
				}
			}
		}
	}
}

// The proxy matrix applied to flattened positions must stack, per element and
// output component, the entries of W*J.
func TestProxyMatrixAppliesWeightsToJacobians(t *testing.T) {
	m := stripMesh(t, 4, 2, 0.3)
	init := dropZ(m)
	s := newSolver(t, m, init, SymmetricDirichlet)
	require.NoError(t, s.updateWeightsAndRotations(s.positions))

	a := s.ProxyMatrix()
	r, c := a.Dims()
	assert.Equal(t, s.dim*s.dim*s.fN, r)
	assert.Equal(t, s.dim*s.vN, c)

	y := make([]float64, r)
	linsolve.MulVec(a, s.flatten(s.positions), y)

	s.computeJacobians(s.positions)
	for e := 0; e < s.fN; e++ {
		w := s.wgt.RawRowView(e)
		j := s.jac.RawRowView(e)
		for i := 0; i < s.dim; i++ {
			for ax := 0; ax < s.dim; ax++ {
				var want float64
				for k := 0; k < s.dim; k++ {
					want += w[i*s.dim+k] * j[k*s.dim+ax]
				}
				got := y[(i*s.dim+ax)*s.fN+e]
				assert.InDeltaf(t, want, got, 1e-10, "element %d entry (%d,%d)", e, i, ax)
			}
		}
	}
}

// The assembled global matrix must be symmetric positive definite whenever
// the weights plus proximal and soft-constraint terms are positive; a direct
// Cholesky factorization certifies it.
func TestGlobalSystemPositiveDefinite(t *testing.T) {
	m, pos := squareMesh(t)
	s := newSolver(t, m, pos, ARAP)
	require.NoError(t, s.updateWeightsAndRotations(s.positions))
	l, rhs := s.buildLinearSystem(s.positions)
	_, err := linsolve.Cholesky(l, rhs)
	assert.NoError(t, err)

	tet := cubeTetMesh(t)
	init := mat.NewDense(8, 3, nil)
	init.Copy(tet.Vertices)
	s3 := newSolver(t, tet, init, SymmetricDirichlet)
	require.NoError(t, s3.updateWeightsAndRotations(s3.positions))
	l3, rhs3 := s3.buildLinearSystem(s3.positions)
	_, err = linsolve.Cholesky(l3, rhs3)
	assert.NoError(t, err)
}

func TestSolveMonotonicNonIncrease(t *testing.T) {
	m := stripMesh(t, 10, 3, 0.4)
	s := newSolver(t, m, dropZ(m), SymmetricDirichlet)

	prev := s.Energy()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Solve(1))
		e := s.Energy()
		assert.LessOrEqualf(t, e, prev+1e-12, "iteration %d", i)
		prev = e
	}
}

// A flat square pinned at three corners under ARAP must recover the identity
// mapping from a sheared start.
func TestSquareARAPConvergesToIdentity(t *testing.T) {
	m, rest := squareMesh(t)
	init := mat.NewDense(4, 2, nil)
	for i := 0; i < 4; i++ {
		x, y := rest.At(i, 0), rest.At(i, 1)
		init.Set(i, 0, 1.3*x+0.2*y)
		init.Set(i, 1, 1.1*y)
	}
	s, err := New(m, init, ARAP)
	require.NoError(t, err)
	pins := []int{0, 1, 3}
	targets := mat.NewDense(3, 2, nil)
	for i, v := range pins {
		targets.Set(i, 0, rest.At(v, 0))
		targets.Set(i, 1, rest.At(v, 1))
	}
	require.NoError(t, s.SetConstraints(pins, targets, 1e4))
	require.NoError(t, s.Precompute())
	require.NoError(t, s.Solve(50))

	assert.Less(t, s.Energy(), 1e-3)
	for i := 0; i < 4; i++ {
		assert.InDeltaf(t, rest.At(i, 0), s.Positions().At(i, 0), 2e-2, "vertex %d x", i)
		assert.InDeltaf(t, rest.At(i, 1), s.Positions().At(i, 1), 2e-2, "vertex %d y", i)
	}
}

// A curved, developable strip under Symmetric Dirichlet with no constraints
// must settle to a fixed point where successive energy deltas vanish.
func TestStripSymmetricDirichletReachesFixedPoint(t *testing.T) {
	m := stripMesh(t, 10, 2, 0.35)
	s := newSolver(t, m, dropZ(m), SymmetricDirichlet)

	prev := s.Energy()
	converged := false
	for i := 0; i < 300; i++ {
		require.NoError(t, s.Solve(1))
		e := s.Energy()
		if math.Abs(prev-e) < 1e-6 {
			converged = true
			break
		}
		prev = e
	}
	assert.True(t, converged, "energy deltas never fell below 1e-6")
}

// An initial guess with one inverted element: the line search may refuse to
// move, but no NaN may ever reach the weight/rotation buffers and no element
// may change orientation during solving.
func TestInvertedInitialGuessStaysGuarded(t *testing.T) {
	m, _ := squareMesh(t)
	init := mat.NewDense(4, 2, []float64{
		0, 0,
		1, 0,
		0.2, -0.2, // pushes the first triangle inside-out
		0, 1,
	})
	signsBefore := signs(mesh.SignedAreas(m.Elements, init))

	s := newSolver(t, m, init, ARAP)
	require.NoError(t, s.Solve(3))

	for el := 0; el < s.fN; el++ {
		w := s.wgt.RawRowView(el)
		r := s.rot.RawRowView(el)
		for k := range w {
			assert.Falsef(t, math.IsNaN(w[k]) || math.IsInf(w[k], 0), "element %d weight %d", el, k)
			assert.Falsef(t, math.IsNaN(r[k]) || math.IsInf(r[k], 0), "element %d rotation %d", el, k)
		}
	}
	assert.Equal(t, signsBefore, signs(mesh.SignedAreas(m.Elements, s.Positions())),
		"line search must never let an element cross zero")
}

func signs(vals []float64) []bool {
	out := make([]bool, len(vals))
	for i, v := range vals {
		out[i] = v > 0
	}
	return out
}

func TestCubeTetsARAPDecreases(t *testing.T) {
	m := cubeTetMesh(t)
	init := mat.NewDense(8, 3, nil)
	init.Copy(m.Vertices)
	for i := 0; i < 8; i++ {
		init.Set(i, 0, init.At(i, 0)*1.5)
	}
	s := newSolver(t, m, init, ARAP)
	e0 := s.Energy()
	assert.Greater(t, e0, 0.0)

	require.NoError(t, s.Solve(10))
	assert.Less(t, s.Energy(), e0)
}

// The volumetric exp-conformal branch targets the conformal projection but
// the singularity clamp only watches |s-1|, so a uniformly scaled element
// (all singular values equal, away from 1) hits an unguarded 0/0. The planar
// branch reweights toward rigidity and stays finite at the same input.
func TestExpConformalGuardAsymmetry3D(t *testing.T) {
	var target, weight [3]float64

	expConformalReweight([]float64{2, 2}, 1, target[:2], weight[:2])
	for k := 0; k < 2; k++ {
		assert.Equal(t, 1.0, target[k])
		assert.Falsef(t, math.IsNaN(weight[k]), "planar weight %d", k)
		assert.Greater(t, weight[k], 0.0)
	}

	expConformalReweight([]float64{2, 2, 2}, 1, target[:3], weight[:3])
	for k := 0; k < 3; k++ {
		assert.InDelta(t, 2.0, target[k], 1e-12)
		assert.Truef(t, math.IsNaN(weight[k]), "volumetric weight %d is the unguarded 0/0", k)
	}
}

func TestElementEnergies(t *testing.T) {
	m, pos := squareMesh(t)
	s := newSolver(t, m, pos, ARAP)
	es := s.ElementEnergies(pos)
	require.Len(t, es, 2)
	assert.InDelta(t, 0, es[0], 1e-12)
	assert.InDelta(t, 0, es[1], 1e-12)
}

func TestSoftConstraintEnergyIncluded(t *testing.T) {
	m, pos := squareMesh(t)
	s, err := New(m, pos, ARAP)
	require.NoError(t, err)
	targets := mat.NewDense(1, 2, []float64{2, 0})
	require.NoError(t, s.SetConstraints([]int{0}, targets, 10))
	require.NoError(t, s.Precompute())

	// Distortion is zero at rest; the energy is the pure pin penalty
	// 10 * |(2,0) - (0,0)|^2 = 40, normalized by unit area.
	assert.InDelta(t, 40, s.Energy(), 1e-10)
}

func TestEnergyString(t *testing.T) {
	assert.Equal(t, "ARAP", ARAP.String())
	assert.Equal(t, "ExpSymmetricDirichlet", ExpSymmetricDirichlet.String())
	assert.Contains(t, Energy(99).String(), "Energy(")
}
