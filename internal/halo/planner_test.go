package halo

import (
	"errors"
	"testing"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/stencil"
)

func TestPlanOneDimensional(t *testing.T) {
	p, err := NewPlanner(grid.Shape{4})
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}

	plan, err := p.Plan(stencil.Displacement{1})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.SourceLocal.String() != (grid.Region{{Start: 1, Stop: 4}}).String() || plan.DestLocal.String() != (grid.Region{{Start: 0, Stop: 3}}).String() {
		t.Fatalf("unexpected local regions: src=%s dst=%s", plan.SourceLocal, plan.DestLocal)
	}
	if len(plan.Halos) != 1 {
		t.Fatalf("expected one halo part, got %d", len(plan.Halos))
	}
	h := plan.Halos[0]
	if h.Direction[0] != 1 || h.Source[0] != (grid.Range{Start: 0, Stop: 1}) || h.Dest[0] != (grid.Range{Start: 3, Stop: 4}) {
		t.Fatalf("unexpected halo part: %+v", h)
	}

	plan, err = p.Plan(stencil.Displacement{-1})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	h = plan.Halos[0]
	if h.Source[0] != (grid.Range{Start: 3, Stop: 4}) || h.Dest[0] != (grid.Range{Start: 0, Stop: 1}) {
		t.Fatalf("unexpected -1 halo part: %+v", h)
	}
}

func TestPlanZeroHasNoHalos(t *testing.T) {
	p, _ := NewPlanner(grid.Shape{3, 2})
	plan, err := p.Plan(stencil.Zero(2))
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Halos) != 0 || plan.DestLocal.Shape().Len() != 6 {
		t.Fatalf("unexpected zero plan: %+v", plan)
	}
}

func TestPlanDiagonalSplitsPerSubset(t *testing.T) {
	p, _ := NewPlanner(grid.Shape{3, 3})
	plan, err := p.Plan(stencil.Displacement{1, -1})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := []stencil.Displacement{{1, 0}, {0, -1}, {1, -1}}
	if len(plan.Halos) != len(want) {
		t.Fatalf("expected %d parts, got %d", len(want), len(plan.Halos))
	}
	for i, h := range plan.Halos {
		if h.Direction.String() != want[i].String() {
			t.Fatalf("part %d direction=%s want %s", i, h.Direction, want[i])
		}
		if !h.Source.Shape().Equal(h.Dest.Shape()) {
			t.Fatalf("part %d source %s and dest %s differ in shape", i, h.Source, h.Dest)
		}
	}
	corner := plan.Halos[2]
	if corner.Source.String() != (grid.Region{{Start: 0, Stop: 1}, {Start: 2, Stop: 3}}).String() || corner.Dest.String() != (grid.Region{{Start: 2, Stop: 3}, {Start: 0, Stop: 1}}).String() {
		t.Fatalf("unexpected corner part: %+v", corner)
	}
}

func TestPlanDestinationsPartitionTheBlock(t *testing.T) {
	p, _ := NewPlanner(grid.Shape{3, 4, 2})
	for _, d := range []stencil.Displacement{{1, 0, 0}, {-1, 1, 0}, {1, 1, -1}, {0, -1, 1}} {
		plan, err := p.Plan(d)
		if err != nil {
			t.Fatalf("plan %s: %v", d, err)
		}
		dests := []grid.Region{plan.DestLocal}
		for _, h := range plan.Halos {
			dests = append(dests, h.Dest)
		}
		total := 0
		for i, a := range dests {
			total += a.Shape().Len()
			for _, b := range dests[i+1:] {
				if a.Overlaps(b) {
					t.Fatalf("%s: destinations %s and %s overlap", d, a, b)
				}
			}
		}
		if total != 24 {
			t.Fatalf("%s: destinations cover %d cells, want 24", d, total)
		}
	}
}

func TestPlanSkipsEmptyParts(t *testing.T) {
	// one cell per axis leaves no room for the in-block part
	p, _ := NewPlanner(grid.Shape{1})
	plan, err := p.Plan(stencil.Displacement{1})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.DestLocal.Empty() || len(plan.Halos) != 1 {
		t.Fatalf("unexpected plan on single cell: %+v", plan)
	}
}

func TestPlanRejectsUnsupportedDisplacement(t *testing.T) {
	p, _ := NewPlanner(grid.Shape{4, 4})
	if _, err := p.Plan(stencil.Displacement{2, 0}); !errors.Is(err, stencil.ErrUnsupportedDisplacement) {
		t.Fatalf("expected ErrUnsupportedDisplacement, got %v", err)
	}
	if _, err := p.Plan(stencil.Displacement{1}); !errors.Is(err, stencil.ErrUnsupportedDisplacement) {
		t.Fatalf("expected rank mismatch to be unsupported, got %v", err)
	}
}

func TestNewPlannerRejectsEmptyAxes(t *testing.T) {
	if _, err := NewPlanner(grid.Shape{4, 0}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
