package halo

import (
	"context"
	"fmt"

	"github.com/danmuck/halostencil/internal/decomp"
	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/observability"
	"github.com/danmuck/halostencil/internal/remote"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Step is one halo part of one branch, ready to exchange. Source is exposed
// for the consumer rank To; Dest receives Weight times the slab fetched from
// rank From.
type Step struct {
	Handle remote.Handle
	Weight float64
	Source grid.Region
	Dest   grid.Region
	From   decomp.NeighborID
	To     decomp.NeighborID
}

// Coordinator runs the two-phase publish/fetch exchange for one rank.
type Coordinator struct {
	svc  remote.Service
	rank int
}

func NewCoordinator(svc remote.Service, rank int) *Coordinator {
	return &Coordinator{svc: svc, rank: rank}
}

// Exchange publishes every step's source slab, then fetches every step's
// remote slab and accumulates it into out. No fetch is issued before every
// publish has completed. The window is released on success and aborted on
// failure, so a failed exchange leaves nothing behind in the store.
func (c *Coordinator) Exchange(ctx context.Context, local, out *grid.Array, steps []Step, onPhase func(Phase)) (err error) {
	window, err := c.svc.Allocate(local.Shape())
	if err != nil {
		return fmt.Errorf("allocate window: %w", err)
	}
	defer func() {
		if err != nil {
			if aerr := window.Abort(); aerr != nil {
				log.Warn().Err(aerr).Int("rank", c.rank).Msg("halo.Coordinator.Exchange abort")
			}
			return
		}
		if rerr := window.Release(); rerr != nil {
			err = fmt.Errorf("release window: %w", rerr)
		}
	}()

	published, skipped := 0, 0
	for _, s := range steps {
		if !s.To.Exists() {
			skipped++
			continue
		}
		if err := window.Expose(ctx, s.Handle, local, s.Source); err != nil {
			return fmt.Errorf("publish %s: %w", s.Handle, err)
		}
		published++
	}
	observability.RecordSlabs(c.rank, observability.SlabPublished, published)
	log.Debug().
		Int("rank", c.rank).
		Uint64("epoch", window.Epoch()).
		Int("published", published).
		Msg("halo.Coordinator.Exchange published")
	onPhase(PhasePublished)

	slabs := make([]*grid.Array, len(steps))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range steps {
		if !s.From.Exists() {
			skipped++
			continue
		}
		g.Go(func() error {
			slab, err := window.Fetch(gctx, int(s.From), s.Handle)
			if err != nil {
				return fmt.Errorf("fetch %s from rank %d: %w", s.Handle, s.From, err)
			}
			slabs[i] = slab
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fetched := 0
	for i, s := range steps {
		slab := slabs[i]
		if slab == nil {
			continue
		}
		if !slab.Shape().Equal(s.Dest.Shape()) {
			return fmt.Errorf("%w: slab %s from rank %d is %s, destination needs %s",
				ErrGeometryMismatch, s.Handle, s.From, slab.Shape(), s.Dest.Shape())
		}
		if err := out.AddScaled(s.Dest, s.Weight, slab, grid.Full(slab.Shape())); err != nil {
			return fmt.Errorf("accumulate %s: %w", s.Handle, err)
		}
		fetched++
	}
	observability.RecordSlabs(c.rank, observability.SlabFetched, fetched)
	observability.RecordSlabs(c.rank, observability.SlabSkipped, skipped)
	onPhase(PhaseFetched)
	return nil
}
