package halo

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/danmuck/halostencil/internal/decomp"
	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/stencil"
)

type countingOracle struct {
	decomp.Oracle
	calls atomic.Int32
	fail  error
}

func (o *countingOracle) NeighborOf(rank int, d stencil.Displacement, periodic []bool) (decomp.NeighborID, error) {
	o.calls.Add(1)
	if o.fail != nil {
		return decomp.NoNeighbor, o.fail
	}
	return o.Oracle.NeighborOf(rank, d, periodic)
}

func TestDirectoryCachesResolvedNeighbors(t *testing.T) {
	cube, err := decomp.NewCube(4, grid.Shape{8})
	if err != nil {
		t.Fatalf("new cube: %v", err)
	}
	oracle := &countingOracle{Oracle: cube}
	dir := NewDirectory(oracle, 0, []bool{true})

	for i := 0; i < 3; i++ {
		n, err := dir.Resolve(stencil.Displacement{-1})
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if n != 3 {
			t.Fatalf("expected wrap to rank 3, got %d", n)
		}
	}
	if oracle.calls.Load() != 1 || dir.Cached() != 1 {
		t.Fatalf("expected one oracle lookup, got calls=%d cached=%d", oracle.calls.Load(), dir.Cached())
	}
}

func TestDirectoryReportsEdgesAsNoNeighbor(t *testing.T) {
	cube, _ := decomp.NewCube(2, grid.Shape{4})
	dir := NewDirectory(cube, 1, []bool{false})
	n, err := dir.Resolve(stencil.Displacement{1})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if n.Exists() {
		t.Fatalf("expected no neighbor past the edge, got %d", n)
	}
}

func TestDirectoryWrapsOracleErrors(t *testing.T) {
	cube, _ := decomp.NewCube(2, grid.Shape{4})
	boom := errors.New("boom")
	dir := NewDirectory(&countingOracle{Oracle: cube, fail: boom}, 0, nil)
	_, err := dir.Resolve(stencil.Displacement{1})
	if !errors.Is(err, ErrConfiguration) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrConfiguration wrapping the oracle error, got %v", err)
	}
	if dir.Cached() != 0 {
		t.Fatalf("failed lookups must not be cached")
	}
}
