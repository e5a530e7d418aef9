// Package halo evaluates a stencil on a block-distributed array: each rank
// adds the contributions it can compute from its own block and exchanges
// one-cell boundary slabs with its neighbors for the rest.
package halo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/halostencil/internal/comm"
	"github.com/danmuck/halostencil/internal/decomp"
	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/observability"
	"github.com/danmuck/halostencil/internal/remote"
	"github.com/danmuck/halostencil/internal/stencil"
	"github.com/rs/zerolog/log"
)

// Phase tracks one Apply call.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLocalAccumulated
	PhasePublished
	PhaseFetched
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLocalAccumulated:
		return "local_accumulated"
	case PhasePublished:
		return "published"
	case PhaseFetched:
		return "fetched"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithPhaseHook calls fn on every phase transition of Apply.
func WithPhaseHook(fn func(Phase)) Option {
	return func(e *Engine) { e.hook = fn }
}

// WithBranchOrder lets fn reorder the branch keys before each Apply
// accumulates them. The default order is ascending key order.
func WithBranchOrder(fn func([]stencil.Key)) Option {
	return func(e *Engine) { e.order = fn }
}

// snapshot pairs a table with the plans and exchange steps of every branch.
// It is never mutated after it is published.
type snapshot struct {
	table stencil.Table
	plans map[stencil.Key]Plan
	steps map[stencil.Key][]Step
}

// Engine applies a stencil to the local block of one rank.
type Engine struct {
	rank     int
	size     int
	ndims    int
	periodic []bool
	shape    grid.Shape
	zero     stencil.Key

	planner     Planner
	directory   *Directory
	coordinator *Coordinator

	hook  func(Phase)
	order func([]stencil.Key)

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// New builds an engine with an empty stencil. periodic may be nil, meaning
// no axis wraps.
func New(oracle decomp.Oracle, periodic []bool, c comm.Context, svc remote.Service, opts ...Option) (*Engine, error) {
	if oracle == nil {
		return nil, fmt.Errorf("%w: nil decomposition", ErrConfiguration)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: nil communicator", ErrConfiguration)
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: nil remote array service", ErrConfiguration)
	}
	ndims := oracle.NumDims()
	if ndims <= 0 || ndims > stencil.MaxDims {
		return nil, fmt.Errorf("%w: %d axes", ErrConfiguration, ndims)
	}
	if periodic == nil {
		periodic = make([]bool, ndims)
	}
	if len(periodic) != ndims {
		return nil, fmt.Errorf("%w: %d periodic flags for %d axes", ErrConfiguration, len(periodic), ndims)
	}
	rank, size := c.SelfRank(), c.GroupSize()
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d outside group of %d", ErrConfiguration, rank, size)
	}
	shape := oracle.LocalShape(rank)
	planner, err := NewPlanner(shape)
	if err != nil {
		return nil, err
	}
	if len(shape) != ndims {
		return nil, fmt.Errorf("%w: local shape %s for %d axes", ErrConfiguration, shape, ndims)
	}

	e := &Engine{
		rank:        rank,
		size:        size,
		ndims:       ndims,
		periodic:    append([]bool(nil), periodic...),
		shape:       shape,
		zero:        stencil.MustKey(stencil.Zero(ndims)),
		planner:     planner,
		directory:   NewDirectory(oracle, rank, periodic),
		coordinator: NewCoordinator(svc, rank),
		hook:        func(Phase) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hook == nil {
		e.hook = func(Phase) {}
	}

	// the zero step must land on ourselves; anything else is a broken oracle
	self, err := e.directory.Resolve(stencil.Zero(ndims))
	if err != nil {
		return nil, err
	}
	if int(self) != rank {
		return nil, fmt.Errorf("%w: decomposition maps rank %d onto %d", ErrConfiguration, rank, self)
	}

	e.snap.Store(&snapshot{
		table: stencil.NewTable(ndims),
		plans: map[stencil.Key]Plan{},
		steps: map[stencil.Key][]Step{},
	})
	log.Debug().
		Int("rank", rank).
		Int("size", size).
		Str("local_shape", shape.String()).
		Msg("halo.Engine.New")
	return e, nil
}

// NewLaplacian builds an engine preloaded with stencil.Laplacian.
func NewLaplacian(oracle decomp.Oracle, periodic []bool, c comm.Context, svc remote.Service, opts ...Option) (*Engine, error) {
	e, err := New(oracle, periodic, c, svc, opts...)
	if err != nil {
		return nil, err
	}
	if err := e.Load(stencil.Laplacian(oracle.NumDims())); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) Rank() int { return e.rank }
func (e *Engine) LocalShape() grid.Shape { return e.shape.Clone() }
func (e *Engine) Table() stencil.Table { return e.snap.Load().table }

// Plan returns a copy of the partition plan registered for d.
func (e *Engine) Plan(d stencil.Displacement) (Plan, bool) {
	k, err := stencil.KeyOf(d)
	if err != nil {
		return Plan{}, false
	}
	p, ok := e.snap.Load().plans[k]
	if !ok {
		return Plan{}, false
	}
	return p.Clone(), true
}

// AddBranch sets the weight for d and recomputes its plan. Both become
// visible together; an error leaves the engine unchanged.
func (e *Engine) AddBranch(d stencil.Displacement, w float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := e.withBranch(e.snap.Load(), d, w)
	if err != nil {
		return err
	}
	e.publish(next)
	log.Debug().Int("rank", e.rank).Str("disp", d.String()).Float64("weight", w).Msg("halo.Engine.AddBranch")
	return nil
}

// RemoveBranch drops the weight and the plan for d together.
func (e *Engine) RemoveBranch(d stencil.Displacement) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.snap.Load()
	if len(d) != e.ndims {
		return fmt.Errorf("%w: %d components for %d axes", stencil.ErrUnsupportedDisplacement, len(d), e.ndims)
	}
	k, err := stencil.KeyOf(d)
	if err != nil {
		return err
	}
	if _, ok := cur.table.WeightOf(k); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBranch, d)
	}
	table, err := cur.table.Without(d)
	if err != nil {
		return err
	}
	next := cur.derive(table)
	delete(next.plans, k)
	delete(next.steps, k)
	e.publish(next)
	log.Debug().Int("rank", e.rank).Str("disp", d.String()).Msg("halo.Engine.RemoveBranch")
	return nil
}

// Load replaces the whole stencil with t in one swap.
func (e *Engine) Load(t stencil.Table) error {
	if t.NumDims() != e.ndims {
		return fmt.Errorf("%w: %d-d table for %d axes", ErrConfiguration, t.NumDims(), e.ndims)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// clear the current table instead of starting over so versions keep
	// increasing across loads
	cleared := e.snap.Load().table
	for _, b := range cleared.Branches() {
		var err error
		if cleared, err = cleared.Without(b.Disp); err != nil {
			return err
		}
	}
	next := &snapshot{
		table: cleared,
		plans: map[stencil.Key]Plan{},
		steps: map[stencil.Key][]Step{},
	}
	for _, b := range t.Branches() {
		var err error
		if next, err = e.withBranch(next, b.Disp, b.Weight); err != nil {
			return err
		}
	}
	e.publish(next)
	return nil
}

func (e *Engine) withBranch(cur *snapshot, d stencil.Displacement, w float64) (*snapshot, error) {
	plan, err := e.planner.Plan(d)
	if err != nil {
		return nil, err
	}
	k := stencil.MustKey(d)
	steps := make([]Step, 0, len(plan.Halos))
	for _, part := range plan.Halos {
		from, err := e.directory.Resolve(part.Direction)
		if err != nil {
			return nil, err
		}
		to, err := e.directory.Resolve(part.Direction.Neg())
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{
			Handle: remote.Handle{Disp: k, Part: stencil.MustKey(part.Direction)},
			Weight: w,
			Source: part.Source,
			Dest:   part.Dest,
			From:   from,
			To:     to,
		})
	}
	table, err := cur.table.With(d, w)
	if err != nil {
		return nil, err
	}
	next := cur.derive(table)
	next.plans[k] = plan
	next.steps[k] = steps
	return next, nil
}

func (e *Engine) publish(next *snapshot) {
	e.snap.Store(next)
	observability.SetBranches(e.rank, next.table.Len())
}

func (s *snapshot) derive(table stencil.Table) *snapshot {
	next := &snapshot{
		table: table,
		plans: make(map[stencil.Key]Plan, len(s.plans)+1),
		steps: make(map[stencil.Key][]Step, len(s.steps)+1),
	}
	for k, p := range s.plans {
		next.plans[k] = p
	}
	for k, st := range s.steps {
		next.steps[k] = st
	}
	return next
}

// Apply evaluates the stencil on local and returns a new array of the same
// shape. Every rank of the group must call Apply the same number of times;
// the call blocks until every neighbor slab has been fetched.
func (e *Engine) Apply(ctx context.Context, local *grid.Array) (*grid.Array, error) {
	start := time.Now()
	e.hook(PhaseIdle)
	out, err := e.apply(ctx, local)
	if err != nil {
		e.hook(PhaseFailed)
		observability.RecordApply(e.rank, PhaseFailed.String(), time.Since(start))
		log.Error().Err(err).Int("rank", e.rank).Msg("halo.Engine.Apply failed")
		return nil, err
	}
	e.hook(PhaseDone)
	observability.RecordApply(e.rank, PhaseDone.String(), time.Since(start))
	return out, nil
}

func (e *Engine) apply(ctx context.Context, local *grid.Array) (*grid.Array, error) {
	if local == nil {
		return nil, fmt.Errorf("%w: nil array", ErrGeometryMismatch)
	}
	if !local.Shape().Equal(e.shape) {
		return nil, fmt.Errorf("%w: array %s, rank %d owns %s", ErrGeometryMismatch, local.Shape(), e.rank, e.shape)
	}
	snap := e.snap.Load()
	out := grid.NewArray(e.shape)

	if w, ok := snap.table.WeightOf(e.zero); ok {
		if err := out.AddScaledAll(w, local); err != nil {
			return nil, err
		}
	}

	keys := snap.table.Keys()
	if e.order != nil {
		e.order(keys)
	}
	var steps []Step
	for _, k := range keys {
		if k == e.zero {
			continue
		}
		w, _ := snap.table.WeightOf(k)
		plan, ok := snap.plans[k]
		if !ok {
			return nil, fmt.Errorf("%w: no plan for %s", ErrMissingStencilEntry, k)
		}
		if err := out.AddScaled(plan.DestLocal, w, local, plan.SourceLocal); err != nil {
			return nil, fmt.Errorf("local term %s: %w", k, err)
		}
		steps = append(steps, snap.steps[k]...)
	}
	e.hook(PhaseLocalAccumulated)

	if err := e.coordinator.Exchange(ctx, local, out, steps, e.hook); err != nil {
		return nil, err
	}
	return out, nil
}

// Status summarizes the engine for the admin server.
func (e *Engine) Status() observability.RankStatus {
	snap := e.snap.Load()
	branches := make([]observability.BranchInfo, 0, snap.table.Len())
	for _, b := range snap.table.Branches() {
		k := stencil.MustKey(b.Disp)
		branches = append(branches, observability.BranchInfo{
			Disp:   b.Disp,
			Weight: b.Weight,
			Halos:  len(snap.steps[k]),
		})
	}
	return observability.RankStatus{
		Rank:       e.rank,
		Size:       e.size,
		LocalShape: e.shape.Clone(),
		Version:    snap.table.Version(),
		Branches:   branches,
	}
}
