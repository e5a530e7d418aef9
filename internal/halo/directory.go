package halo

import (
	"fmt"
	"sync"

	"github.com/danmuck/halostencil/internal/decomp"
	"github.com/danmuck/halostencil/internal/stencil"
)

// Directory resolves displacements to neighbor ranks for one rank and caches
// the answers; the decomposition never changes after construction.
type Directory struct {
	oracle   decomp.Oracle
	rank     int
	periodic []bool

	mu    sync.RWMutex
	cache map[stencil.Key]decomp.NeighborID
}

func NewDirectory(oracle decomp.Oracle, rank int, periodic []bool) *Directory {
	return &Directory{
		oracle:   oracle,
		rank:     rank,
		periodic: append([]bool(nil), periodic...),
		cache:    make(map[stencil.Key]decomp.NeighborID),
	}
}

// Resolve returns the neighbor one step d away, or decomp.NoNeighbor at a
// non-periodic edge.
func (d *Directory) Resolve(disp stencil.Displacement) (decomp.NeighborID, error) {
	k, err := stencil.KeyOf(disp)
	if err != nil {
		return decomp.NoNeighbor, err
	}
	d.mu.RLock()
	n, ok := d.cache[k]
	d.mu.RUnlock()
	if ok {
		return n, nil
	}

	n, err = d.oracle.NeighborOf(d.rank, disp, d.periodic)
	if err != nil {
		return decomp.NoNeighbor, fmt.Errorf("%w: neighbor of rank %d along %s: %w", ErrConfiguration, d.rank, disp, err)
	}
	d.mu.Lock()
	d.cache[k] = n
	d.mu.Unlock()
	return n, nil
}

// Cached returns the number of resolved displacements.
func (d *Directory) Cached() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cache)
}
