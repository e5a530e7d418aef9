package remote

import (
	"context"
	"sync"

	"github.com/danmuck/halostencil/internal/grid"
)

type slotKey struct {
	epoch  uint64
	handle Handle
}

type slot struct {
	ready    chan struct{}
	data     *grid.Array
	exposed  bool
	fetched  bool
	released bool
	aborted  bool
	waiters  int
}

// Store is one rank's table of exposed slabs. Aborted epochs are remembered
// so late consumers fail instead of waiting on a window that is gone.
type Store struct {
	mu      sync.Mutex
	slots   map[slotKey]*slot
	aborted map[uint64]struct{}
}

func NewStore() *Store {
	return &Store{slots: make(map[slotKey]*slot), aborted: make(map[uint64]struct{})}
}

func (s *Store) slotLocked(k slotKey) *slot {
	sl, ok := s.slots[k]
	if !ok {
		sl = &slot{ready: make(chan struct{})}
		s.slots[k] = sl
	}
	return sl
}

// Put exposes data under (epoch, h) and wakes any waiting Take.
func (s *Store) Put(epoch uint64, h Handle, data *grid.Array) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.aborted[epoch]; ok {
		return ErrWindowAborted
	}
	sl := s.slotLocked(slotKey{epoch: epoch, handle: h})
	if sl.exposed {
		return ErrDuplicateExposure
	}
	sl.data = data
	sl.exposed = true
	close(sl.ready)
	return nil
}

// Take waits for (epoch, h) to be exposed and returns it. Each slab has a
// single consumer; a second Take fails with ErrAlreadyFetched.
func (s *Store) Take(ctx context.Context, epoch uint64, h Handle) (*grid.Array, error) {
	k := slotKey{epoch: epoch, handle: h}
	s.mu.Lock()
	if _, ok := s.aborted[epoch]; ok {
		s.mu.Unlock()
		return nil, ErrWindowAborted
	}
	sl := s.slotLocked(k)
	if sl.fetched {
		s.mu.Unlock()
		return nil, ErrAlreadyFetched
	}
	sl.waiters++
	s.mu.Unlock()

	select {
	case <-sl.ready:
	case <-ctx.Done():
		s.mu.Lock()
		sl.waiters--
		if !sl.exposed && !sl.aborted && sl.waiters == 0 {
			delete(s.slots, k)
		}
		s.mu.Unlock()
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sl.waiters--
	if sl.aborted {
		return nil, ErrWindowAborted
	}
	if sl.fetched {
		return nil, ErrAlreadyFetched
	}
	sl.fetched = true
	if sl.released {
		delete(s.slots, k)
	}
	return sl.data, nil
}

// Release marks the owner's exposures of epoch as released. Slabs already
// fetched are dropped now; the rest are dropped when their consumer takes them.
func (s *Store) Release(epoch uint64, handles []Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range handles {
		k := slotKey{epoch: epoch, handle: h}
		sl, ok := s.slots[k]
		if !ok {
			continue
		}
		sl.released = true
		if sl.fetched {
			delete(s.slots, k)
		}
	}
}

// Abort drops every slot of epoch, fetched or not, and fails current and
// future takes of that epoch with ErrWindowAborted.
func (s *Store) Abort(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted[epoch] = struct{}{}
	for k, sl := range s.slots {
		if k.epoch != epoch {
			continue
		}
		sl.aborted = true
		if !sl.exposed {
			close(sl.ready)
		}
		delete(s.slots, k)
	}
}

// Pending returns the number of slabs still held.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
