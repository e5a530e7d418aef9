package halo

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/halostencil/internal/decomp"
	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/remote"
	"github.com/danmuck/halostencil/internal/stencil"
	"github.com/danmuck/halostencil/internal/testutil/testlog"
)

// scriptedService hands out one window that records the order of calls and
// serves fetches from a fixed set of slabs.
type scriptedService struct {
	mu       sync.Mutex
	events   []string
	slabs    map[remote.Handle]*grid.Array
	fetchErr error
	released int
	aborted  int
}

func (s *scriptedService) Allocate(grid.Shape) (remote.Window, error) {
	return &scriptedWindow{svc: s}, nil
}

func (s *scriptedService) record(ev string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

type scriptedWindow struct {
	svc *scriptedService
}

func (w *scriptedWindow) Epoch() uint64 { return 1 }

func (w *scriptedWindow) Expose(_ context.Context, h remote.Handle, _ *grid.Array, _ grid.Region) error {
	w.svc.record("expose " + h.String())
	return nil
}

func (w *scriptedWindow) Fetch(_ context.Context, _ int, h remote.Handle) (*grid.Array, error) {
	w.svc.record("fetch " + h.String())
	if w.svc.fetchErr != nil {
		return nil, w.svc.fetchErr
	}
	return w.svc.slabs[h].Clone(), nil
}

func (w *scriptedWindow) Release() error {
	w.svc.mu.Lock()
	defer w.svc.mu.Unlock()
	w.svc.released++
	return nil
}

func (w *scriptedWindow) Abort() error {
	w.svc.mu.Lock()
	defer w.svc.mu.Unlock()
	w.svc.aborted++
	return nil
}

func oneDimSteps() []Step {
	plus := stencil.MustKey(stencil.Displacement{1})
	minus := stencil.MustKey(stencil.Displacement{-1})
	return []Step{
		{
			Handle: remote.Handle{Disp: plus, Part: plus},
			Weight: 1,
			Source: grid.Region{{Start: 0, Stop: 1}},
			Dest:   grid.Region{{Start: 3, Stop: 4}},
			From:   1,
			To:     1,
		},
		{
			Handle: remote.Handle{Disp: minus, Part: minus},
			Weight: 2,
			Source: grid.Region{{Start: 3, Stop: 4}},
			Dest:   grid.Region{{Start: 0, Stop: 1}},
			From:   1,
			To:     1,
		},
	}
}

func TestExchangePublishesBeforeFetching(t *testing.T) {
	testlog.Start(t)
	steps := oneDimSteps()
	svc := &scriptedService{slabs: map[remote.Handle]*grid.Array{}}
	for i, s := range steps {
		slab := grid.NewArray(grid.Shape{1})
		slab.Fill(float64(10 * (i + 1)))
		svc.slabs[s.Handle] = slab
	}
	local, _ := grid.FromSlice(grid.Shape{4}, []float64{1, 2, 3, 4})
	out := grid.NewArray(grid.Shape{4})

	var phases []Phase
	err := NewCoordinator(svc, 0).Exchange(context.Background(), local, out, steps, func(p Phase) {
		phases = append(phases, p)
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	fetching := false
	for _, ev := range svc.events {
		switch ev[:5] {
		case "fetch":
			fetching = true
		case "expos":
			if fetching {
				t.Fatalf("expose after a fetch: %v", svc.events)
			}
		}
	}
	if len(svc.events) != 4 || svc.released != 1 {
		t.Fatalf("unexpected calls: events=%v released=%d", svc.events, svc.released)
	}
	if got := out.Data(); got[0] != 40 || got[3] != 10 || got[1] != 0 {
		t.Fatalf("unexpected accumulation: %v", got)
	}
	if len(phases) != 2 || phases[0] != PhasePublished || phases[1] != PhaseFetched {
		t.Fatalf("unexpected phases: %v", phases)
	}
}

func TestExchangeSkipsMissingNeighbors(t *testing.T) {
	testlog.Start(t)
	steps := oneDimSteps()
	steps[0].From = decomp.NoNeighbor
	steps[1].To = decomp.NoNeighbor
	svc := &scriptedService{slabs: map[remote.Handle]*grid.Array{
		steps[1].Handle: grid.NewArray(grid.Shape{1}),
	}}
	svc.slabs[steps[1].Handle].Fill(5)
	local := grid.NewArray(grid.Shape{4})
	out := grid.NewArray(grid.Shape{4})
	out.Fill(1)

	if err := NewCoordinator(svc, 0).Exchange(context.Background(), local, out, steps, func(Phase) {}); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if len(svc.events) != 2 {
		t.Fatalf("expected one expose and one fetch, got %v", svc.events)
	}
	// the edge cell gets nothing, not a zero-valued guess
	if got := out.Data(); got[3] != 1 || got[0] != 11 {
		t.Fatalf("unexpected edge handling: %v", got)
	}
}

func TestExchangeAbortsOnFetchFailure(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("peer gone")
	svc := &scriptedService{fetchErr: boom}
	local := grid.NewArray(grid.Shape{4})
	out := grid.NewArray(grid.Shape{4})

	err := NewCoordinator(svc, 0).Exchange(context.Background(), local, out, oneDimSteps(), func(Phase) {})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if svc.aborted != 1 || svc.released != 0 {
		t.Fatalf("window not aborted on failure: aborted=%d released=%d", svc.aborted, svc.released)
	}
}

func TestExchangeRejectsMisshapenSlab(t *testing.T) {
	testlog.Start(t)
	steps := oneDimSteps()[:1]
	svc := &scriptedService{slabs: map[remote.Handle]*grid.Array{
		steps[0].Handle: grid.NewArray(grid.Shape{2}),
	}}
	err := NewCoordinator(svc, 0).Exchange(context.Background(), grid.NewArray(grid.Shape{4}), grid.NewArray(grid.Shape{4}), steps, func(Phase) {})
	if !errors.Is(err, ErrGeometryMismatch) {
		t.Fatalf("expected ErrGeometryMismatch, got %v", err)
	}
	if svc.aborted != 1 || svc.released != 0 {
		t.Fatalf("window not aborted on failure: aborted=%d released=%d", svc.aborted, svc.released)
	}
}
