package decomp

import (
	"errors"
	"testing"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/stencil"
)

func TestNewCubePrefersBalancedGrid(t *testing.T) {
	c, err := NewCube(4, grid.Shape{8, 8})
	if err != nil {
		t.Fatalf("new cube: %v", err)
	}
	procs := c.ProcGrid()
	if procs[0] != 2 || procs[1] != 2 {
		t.Fatalf("unexpected proc grid: %v", procs)
	}
	if !c.LocalShape(0).Equal(grid.Shape{4, 4}) {
		t.Fatalf("unexpected local shape: %s", c.LocalShape(0))
	}
}

func TestNewCubeRejectsUnevenSplit(t *testing.T) {
	_, err := NewCube(3, grid.Shape{4})
	if !errors.Is(err, ErrInvalidDecomposition) {
		t.Fatalf("expected ErrInvalidDecomposition, got %v", err)
	}
}

func TestNeighborOfPeriodicAndEdges(t *testing.T) {
	c, err := NewCube(4, grid.Shape{8})
	if err != nil {
		t.Fatalf("new cube: %v", err)
	}
	cases := []struct {
		rank     int
		d        stencil.Displacement
		periodic []bool
		want     NeighborID
	}{
		{0, stencil.Displacement{1}, []bool{true}, 1},
		{0, stencil.Displacement{-1}, []bool{true}, 3},
		{3, stencil.Displacement{1}, []bool{true}, 0},
		{0, stencil.Displacement{-1}, []bool{false}, NoNeighbor},
		{3, stencil.Displacement{1}, nil, NoNeighbor},
		{2, stencil.Displacement{0}, []bool{false}, 2},
	}
	for _, tc := range cases {
		got, err := c.NeighborOf(tc.rank, tc.d, tc.periodic)
		if err != nil {
			t.Fatalf("neighbor rank=%d d=%v: %v", tc.rank, tc.d, err)
		}
		if got != tc.want {
			t.Fatalf("neighbor rank=%d d=%v periodic=%v got=%d want=%d", tc.rank, tc.d, tc.periodic, got, tc.want)
		}
	}
}

func TestNeighborOfDiagonal2D(t *testing.T) {
	c, err := NewCubeWithProcs(grid.Shape{4, 4}, []int{2, 2})
	if err != nil {
		t.Fatalf("new cube: %v", err)
	}
	// rank layout: 0=(0,0) 1=(0,1) 2=(1,0) 3=(1,1)
	got, err := c.NeighborOf(0, stencil.Displacement{1, 1}, []bool{false, false})
	if err != nil || got != 3 {
		t.Fatalf("diagonal neighbor got=%d err=%v", got, err)
	}
	got, err = c.NeighborOf(0, stencil.Displacement{-1, 1}, []bool{true, false})
	if err != nil || got != 3 {
		t.Fatalf("wrapped diagonal neighbor got=%d err=%v", got, err)
	}
	got, err = c.NeighborOf(0, stencil.Displacement{-1, 1}, []bool{false, true})
	if err != nil || got != NoNeighbor {
		t.Fatalf("edge diagonal neighbor got=%d err=%v", got, err)
	}
}

func TestNeighborOfUnknownRank(t *testing.T) {
	c, _ := NewCube(2, grid.Shape{4})
	if _, err := c.NeighborOf(5, stencil.Displacement{1}, nil); !errors.Is(err, ErrUnknownRank) {
		t.Fatalf("expected ErrUnknownRank, got %v", err)
	}
}

func TestScatterGatherRoundTrip(t *testing.T) {
	c, err := NewCubeWithProcs(grid.Shape{4, 6}, []int{2, 3})
	if err != nil {
		t.Fatalf("new cube: %v", err)
	}
	global := grid.NewArray(grid.Shape{4, 6})
	for i := range global.Data() {
		global.Data()[i] = float64(i)
	}
	locals, err := c.Scatter(global)
	if err != nil {
		t.Fatalf("scatter: %v", err)
	}
	if len(locals) != 6 {
		t.Fatalf("expected 6 locals, got %d", len(locals))
	}
	// rank 4 = coords (1,1) -> origin (2,2)
	if locals[4].At(0, 0) != global.At(2, 2) {
		t.Fatalf("rank 4 origin value=%v want %v", locals[4].At(0, 0), global.At(2, 2))
	}
	back, err := c.Gather(locals)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !back.ApproxEqual(global, 0) {
		t.Fatalf("gather mismatch: %v", back.Data())
	}
}
