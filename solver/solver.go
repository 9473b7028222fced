// Package solver implements a local/global solver for locally injective,
// low-distortion mesh mappings. Each outer iteration decomposes every
// element's Jacobian, reweights the chosen distortion energy into a
// weighted-ARAP proxy, solves the resulting sparse least-squares system for
// candidate positions, and accepts a flip-free, non-worsening fraction of the
// move through a safeguarded line search.
package solver

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/meshkit/slim/linesearch"
	"github.com/meshkit/slim/mesh"
)

// proximalPenalty anchors each global solve near the previous iterate,
// keeping the system positive definite even without constraints.
const proximalPenalty = 1e-4

// cgTolerance is the relative residual target of the iterative 3-D solve.
const cgTolerance = 1e-8

// Solver carries the full state of one solve session: topology, current
// target positions, precomputed operators and the per-element buffers the
// local and global steps exchange. It is created once per session and is not
// safe for concurrent use.
type Solver struct {
	msh    *mesh.Mesh
	energy Energy

	// positions is the current target embedding, #V x dim.
	positions *mat.Dense

	dim    int
	vN, fN int

	// measures holds the positive per-element area/volume weights; wgl
	// replicates them across the dim^2 proxy rows of each element.
	measures []float64
	wgl      []float64
	meshSize float64

	// grad holds the per-axis gradient operators, one #F x #V matrix per
	// spatial axis (2 for surfaces, 3 for volumes).
	grad []*sparse.CSR

	// Per-element buffers, one row per element, dim^2 row-major entries:
	// the Jacobians, the closest rotations/projections and the symmetric
	// proxy weight matrices.
	jac, rot, wgt *mat.Dense

	// Soft positional constraints.
	pinned      []int
	pinTargets  *mat.Dense
	pinPenalty  float64
	expFactor   float64
	totalEnergy float64 // normalized by meshSize

	precomputed bool
	warnings    []error
}

// New creates a solve session for the given mesh, initial target positions
// (#V x 2 for triangle meshes, #V x 3 for tets) and distortion energy.
func New(m *mesh.Mesh, initial *mat.Dense, energy Energy) (*Solver, error) {
	if m == nil {
		return nil, fmt.Errorf("solver: nil mesh")
	}
	if !energy.valid() {
		return nil, fmt.Errorf("solver: unknown energy %d", int(energy))
	}
	dim := m.TargetDim()
	r, c := initial.Dims()
	if r != m.NumVertices() || c != dim {
		return nil, fmt.Errorf("solver: initial positions are %dx%d, want %dx%d", r, c, m.NumVertices(), dim)
	}
	s := &Solver{
		msh:       m,
		energy:    energy,
		dim:       dim,
		vN:        m.NumVertices(),
		fN:        m.NumElements(),
		expFactor: 1.0,
	}
	s.positions = mat.NewDense(r, c, nil)
	s.positions.Copy(initial)
	return s, nil
}

// SetConstraints registers soft positional targets: vertex verts[i] is pulled
// toward row i of targets (#len(verts) x dim) with quadratic penalty
// strength. Must be called before Precompute takes the initial energy.
func (s *Solver) SetConstraints(verts []int, targets *mat.Dense, strength float64) error {
	r, c := targets.Dims()
	if r != len(verts) || c != s.dim {
		return fmt.Errorf("solver: constraint targets are %dx%d, want %dx%d", r, c, len(verts), s.dim)
	}
	for _, v := range verts {
		if v < 0 || v >= s.vN {
			return fmt.Errorf("solver: constrained vertex %d outside [0,%d)", v, s.vN)
		}
	}
	s.pinned = verts
	s.pinTargets = targets
	s.pinPenalty = strength
	return nil
}

// SetExpFactor sets the sharpness of the exponential energy variants.
func (s *Solver) SetExpFactor(f float64) { s.expFactor = f }

// Precompute performs the one-time setup: gradient operators, element
// measures, the flattened weight vector, the per-element buffers and the
// initial energy. It is idempotent; repeated calls are no-ops.
func (s *Solver) Precompute() error {
	if s.precomputed {
		return nil
	}
	var err error
	if s.dim == 2 {
		var d1, d2 *sparse.CSR
		d1, d2, err = s.msh.SurfaceGradients()
		s.grad = []*sparse.CSR{d1, d2}
	} else {
		var dx, dy, dz *sparse.CSR
		dx, dy, dz, err = s.msh.VolumeGradients()
		s.grad = []*sparse.CSR{dx, dy, dz}
	}
	if err != nil {
		return err
	}

	s.measures = s.msh.Measures()
	s.meshSize = 0
	for _, m := range s.measures {
		s.meshSize += m
	}

	d2 := s.dim * s.dim
	s.jac = mat.NewDense(s.fN, d2, nil)
	s.rot = mat.NewDense(s.fN, d2, nil)
	s.wgt = mat.NewDense(s.fN, d2, nil)

	// Element measures replicated across each element's dim^2 proxy rows.
	s.wgl = make([]float64, d2*s.fN)
	for i := 0; i < d2; i++ {
		for j := 0; j < s.fN; j++ {
			s.wgl[i*s.fN+j] = s.measures[j]
		}
	}

	s.totalEnergy = s.EnergyAt(s.positions) / s.meshSize
	s.precomputed = true
	return nil
}

// Solve advances the session by iterations outer iterations: local step,
// global solve, flip-avoiding line search, energy bookkeeping. The reported
// energy never increases across calls. Iterative-solver non-convergence is
// collected as warnings while the best available solution is still used.
func (s *Solver) Solve(iterations int) error {
	if err := s.Precompute(); err != nil {
		return err
	}
	s.warnings = s.warnings[:0]
	for i := 0; i < iterations; i++ {
		candidate := mat.NewDense(s.vN, s.dim, nil)
		candidate.Copy(s.positions)

		if err := s.updateWeightsAndRotations(candidate); err != nil {
			return err
		}
		if err := s.solveProxy(candidate); err != nil {
			return err
		}

		unnormalized := linesearch.FlipAvoiding(
			s.msh.Elements, s.positions, candidate,
			func(p *mat.Dense) float64 { return s.EnergyAt(p) },
			s.totalEnergy*s.meshSize,
		)
		s.totalEnergy = unnormalized / s.meshSize
	}
	return nil
}

// Positions returns the current target positions. The matrix is live solver
// state; callers must copy it before mutating.
func (s *Solver) Positions() *mat.Dense { return s.positions }

// Energy returns the current total energy normalized by the total mesh
// area/volume.
func (s *Solver) Energy() float64 { return s.totalEnergy }

// EnergyKind returns the distortion energy this session minimizes.
func (s *Solver) EnergyKind() Energy { return s.energy }

// Warnings returns warning-grade conditions from the most recent Solve call,
// currently iterative-solver non-convergence reports.
func (s *Solver) Warnings() []error { return s.warnings }
