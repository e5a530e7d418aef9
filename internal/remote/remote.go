// Package remote defines the one-sided publish/fetch service halo exchanges
// ride on, plus an in-process implementation for goroutine ranks.
//
// A Window lives for one exchange epoch. Its owner exposes slabs under
// handles; any rank may then fetch a slab by (owner, handle). Fetch blocks
// until the owner has exposed it. An exposed slab is dropped once it has been
// fetched and the owner has released the window.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/stencil"
)

var (
	ErrReleased          = errors.New("remote: window released")
	ErrDuplicateExposure = errors.New("remote: handle already exposed")
	ErrAlreadyFetched    = errors.New("remote: slab already fetched")
	ErrUnknownRank       = errors.New("remote: unknown rank")
	ErrWindowAborted     = errors.New("remote: window aborted")
)

// Handle isolates one exposed slab from every other slab of the same epoch.
type Handle struct {
	Disp stencil.Key
	Part stencil.Key
}

func (h Handle) String() string {
	return fmt.Sprintf("%s[%s]", h.Disp, h.Part)
}

// Service allocates exchange windows for the calling rank.
type Service interface {
	Allocate(shape grid.Shape) (Window, error)
}

// Window is one epoch of exposures owned by the calling rank.
type Window interface {
	Epoch() uint64
	// Expose publishes a copy of src[region] under h.
	Expose(ctx context.Context, h Handle, src *grid.Array, region grid.Region) error
	// Fetch returns the slab rank exposed under h in the same epoch,
	// blocking until it is available or ctx is done.
	Fetch(ctx context.Context, rank int, h Handle) (*grid.Array, error)
	// Release frees every exposure of the window. It is idempotent.
	Release() error
	// Abort drops every exposure of the window whether or not it was
	// fetched; consumers of the epoch get ErrWindowAborted. The epoch is
	// not reusable afterwards.
	Abort() error
}

// FetchFunc reads a slab exposed by rank during epoch.
type FetchFunc func(ctx context.Context, rank int, epoch uint64, h Handle) (*grid.Array, error)

type window struct {
	owner    int
	epoch    uint64
	store    *Store
	fetch    FetchFunc
	exposed  []Handle
	released bool
}

// NewWindow builds a window whose exposures land in store and whose fetches
// go through fetch.
func NewWindow(owner int, epoch uint64, store *Store, fetch FetchFunc) Window {
	return &window{owner: owner, epoch: epoch, store: store, fetch: fetch}
}

func (w *window) Epoch() uint64 { return w.epoch }

func (w *window) Expose(_ context.Context, h Handle, src *grid.Array, region grid.Region) error {
	if w.released {
		return ErrReleased
	}
	slab, err := src.Extract(region)
	if err != nil {
		return fmt.Errorf("expose %s: %w", h, err)
	}
	if err := w.store.Put(w.epoch, h, slab); err != nil {
		return fmt.Errorf("expose %s: %w", h, err)
	}
	w.exposed = append(w.exposed, h)
	return nil
}

func (w *window) Fetch(ctx context.Context, rank int, h Handle) (*grid.Array, error) {
	if w.released {
		return nil, ErrReleased
	}
	return w.fetch(ctx, rank, w.epoch, h)
}

func (w *window) Release() error {
	if w.released {
		return nil
	}
	w.released = true
	w.store.Release(w.epoch, w.exposed)
	w.exposed = nil
	return nil
}

func (w *window) Abort() error {
	w.released = true
	w.store.Abort(w.epoch)
	w.exposed = nil
	return nil
}
