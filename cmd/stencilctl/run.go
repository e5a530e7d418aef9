package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/danmuck/halostencil/internal/auth"
	"github.com/danmuck/halostencil/internal/comm"
	"github.com/danmuck/halostencil/internal/config"
	"github.com/danmuck/halostencil/internal/decomp"
	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/halo"
	"github.com/danmuck/halostencil/internal/observability"
	"github.com/danmuck/halostencil/internal/remote"
	"github.com/danmuck/halostencil/internal/stencil"
	"github.com/danmuck/halostencil/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// problem is everything a run needs besides the substrate.
type problem struct {
	dims       grid.Shape
	periodic   []bool
	table      stencil.Table
	iterations int
	seed       int64
}

func problemFromCluster(cfg config.ClusterConfig) (problem, error) {
	table, err := cfg.Table()
	if err != nil {
		return problem{}, err
	}
	return problem{
		dims:       cfg.Shape(),
		periodic:   cfg.Periodic,
		table:      table,
		iterations: cfg.Iterations,
		seed:       cfg.Seed,
	}, nil
}

type summary struct {
	Sum     float64
	MaxAbs  float64
	Elapsed time.Duration
}

func summarize(a *grid.Array, elapsed time.Duration) summary {
	s := summary{Sum: a.Sum(), Elapsed: elapsed}
	for _, v := range a.Data() {
		s.MaxAbs = math.Max(s.MaxAbs, math.Abs(v))
	}
	return s
}

// step advances a block one explicit diffusion step: in += dt*L(in).
func step(ctx context.Context, e *halo.Engine, in *grid.Array, dt float64) (*grid.Array, error) {
	lap, err := e.Apply(ctx, in)
	if err != nil {
		return nil, err
	}
	next := in.Clone()
	if err := next.AddScaledAll(dt, lap); err != nil {
		return nil, err
	}
	return next, nil
}

// runLocal runs every rank as a goroutine over an in-process hub and returns
// the gathered field.
func runLocal(ctx context.Context, p problem, procs int) (*grid.Array, summary, error) {
	cube, err := decomp.NewCube(procs, p.dims)
	if err != nil {
		return nil, summary{}, err
	}
	hub := remote.NewHub(procs)
	dt := diffusionStep(p.table)
	blocks := make([]*grid.Array, procs)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < procs; r++ {
		g.Go(func() error {
			ep, err := hub.Endpoint(r)
			if err != nil {
				return err
			}
			e, err := halo.New(cube, p.periodic, comm.Static{Rank: r, Size: procs}, ep)
			if err != nil {
				return err
			}
			if err := e.Load(p.table); err != nil {
				return err
			}
			origin, err := cube.Origin(r)
			if err != nil {
				return err
			}
			field := grid.NewArray(cube.LocalShape(r))
			fillField(field, origin, p.dims, p.seed)
			for i := 0; i < p.iterations; i++ {
				if field, err = step(gctx, e, field, dt); err != nil {
					return fmt.Errorf("rank %d iteration %d: %w", r, i, err)
				}
			}
			blocks[r] = field
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, summary{}, err
	}
	out, err := cube.Gather(blocks)
	if err != nil {
		return nil, summary{}, err
	}
	return out, summarize(out, time.Since(start)), nil
}

// runSerial computes the same steps on one undistributed array.
func runSerial(p problem) (*grid.Array, error) {
	field := grid.NewArray(p.dims)
	fillField(field, make([]int, len(p.dims)), p.dims, p.seed)
	dt := diffusionStep(p.table)
	for i := 0; i < p.iterations; i++ {
		lap, err := stencil.Evaluate(p.table, field, p.periodic)
		if err != nil {
			return nil, err
		}
		if err := field.AddScaledAll(dt, lap); err != nil {
			return nil, err
		}
	}
	return field, nil
}

// rankOptions is the resolved setup of one TCP rank.
type rankOptions struct {
	rank       int
	size       int
	listen     string
	adminAddr  string
	adminToken string
	drain      time.Duration
}

// runRank takes part in a TCP cluster as one rank. It keeps serving after
// its own iterations until every slab it exposed has been fetched.
func runRank(ctx context.Context, cluster config.ClusterConfig, opts rankOptions, out io.Writer) error {
	p, err := problemFromCluster(cluster)
	if err != nil {
		return err
	}
	cube, err := decomp.NewCube(opts.size, p.dims)
	if err != nil {
		return err
	}
	tcfg, err := cluster.TransportFor(opts.rank, opts.listen)
	if err != nil {
		return err
	}
	node, err := transport.NewNode(opts.rank, tcfg)
	if err != nil {
		return err
	}
	ln, err := node.Listen()
	if err != nil {
		return err
	}
	engine, err := halo.New(cube, p.periodic, comm.Static{Rank: opts.rank, Size: opts.size}, node)
	if err != nil {
		_ = ln.Close()
		return err
	}
	if err := engine.Load(p.table); err != nil {
		_ = ln.Close()
		return err
	}

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error { return node.Serve(gctx, ln) })
	if opts.adminAddr != "" {
		adminLn, err := net.Listen("tcp", opts.adminAddr)
		if err != nil {
			stopServing()
			_ = g.Wait()
			return err
		}
		var adminOpts []observability.AdminOption
		if opts.adminToken != "" {
			adminOpts = append(adminOpts, observability.WithTokenGuard(auth.SharedToken(opts.adminToken)))
		}
		admin := observability.NewAdminServer(opts.rank, engine.Status, adminOpts...)
		g.Go(func() error { return admin.Serve(gctx, adminLn) })
	}

	g.Go(func() error {
		defer stopServing()
		origin, err := cube.Origin(opts.rank)
		if err != nil {
			return err
		}
		field := grid.NewArray(cube.LocalShape(opts.rank))
		fillField(field, origin, p.dims, p.seed)
		dt := diffusionStep(p.table)
		start := time.Now()
		for i := 0; i < p.iterations; i++ {
			if field, err = step(gctx, engine, field, dt); err != nil {
				return fmt.Errorf("iteration %d: %w", i, err)
			}
		}
		s := summarize(field, time.Since(start))
		log.Info().
			Int("rank", opts.rank).
			Int("iterations", p.iterations).
			Float64("sum", s.Sum).
			Float64("max_abs", s.MaxAbs).
			Dur("elapsed", s.Elapsed).
			Msg("stencilctl.rank done")
		fmt.Fprintf(out, "rank=%d sum=%.12g max_abs=%.12g elapsed=%s\n", opts.rank, s.Sum, s.MaxAbs, s.Elapsed)
		return drain(gctx, node, opts.drain)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// drain waits until peers have fetched every slab this rank still holds.
func drain(ctx context.Context, node *transport.Node, limit time.Duration) error {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for node.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("rank %d: %d slabs unfetched after %s", node.Rank(), node.Pending(), limit)
		case <-tick.C:
		}
	}
	return nil
}
