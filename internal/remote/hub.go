package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/halostencil/internal/grid"
)

// Hub connects goroutine ranks of one process. Each rank's window epoch is
// the number of windows it has allocated, so ranks calling Allocate in
// lockstep agree on epochs without talking to each other.
type Hub struct {
	mu     sync.Mutex
	stores []*Store
	epochs []uint64
}

func NewHub(size int) *Hub {
	stores := make([]*Store, size)
	for i := range stores {
		stores[i] = NewStore()
	}
	return &Hub{stores: stores, epochs: make([]uint64, size)}
}

func (h *Hub) Size() int { return len(h.stores) }

// Endpoint returns the Service rank uses to take part in exchanges.
func (h *Hub) Endpoint(rank int) (*Endpoint, error) {
	if rank < 0 || rank >= len(h.stores) {
		return nil, fmt.Errorf("%w: %d of %d", ErrUnknownRank, rank, len(h.stores))
	}
	return &Endpoint{hub: h, rank: rank}, nil
}

// Pending returns the number of slabs held across every rank.
func (h *Hub) Pending() int {
	n := 0
	for _, s := range h.stores {
		n += s.Pending()
	}
	return n
}

func (h *Hub) nextEpoch(rank int) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.epochs[rank]++
	return h.epochs[rank]
}

func (h *Hub) fetch(ctx context.Context, rank int, epoch uint64, handle Handle) (*grid.Array, error) {
	if rank < 0 || rank >= len(h.stores) {
		return nil, fmt.Errorf("%w: %d of %d", ErrUnknownRank, rank, len(h.stores))
	}
	return h.stores[rank].Take(ctx, epoch, handle)
}

// Endpoint is one rank's view of a Hub.
type Endpoint struct {
	hub  *Hub
	rank int
}

var _ Service = (*Endpoint)(nil)

func (e *Endpoint) Rank() int { return e.rank }

func (e *Endpoint) Allocate(grid.Shape) (Window, error) {
	epoch := e.hub.nextEpoch(e.rank)
	return NewWindow(e.rank, epoch, e.hub.stores[e.rank], e.hub.fetch), nil
}
