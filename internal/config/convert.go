package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/halostencil/internal/grid"
	"github.com/danmuck/halostencil/internal/stencil"
	"github.com/danmuck/halostencil/internal/transport"
)

func (c ClusterConfig) Shape() grid.Shape {
	return append(grid.Shape(nil), c.Dims...)
}

// Table builds the stencil the file describes: the Laplacian or an empty
// table, with every [[branch]] applied on top.
func (c ClusterConfig) Table() (stencil.Table, error) {
	t := stencil.NewTable(len(c.Dims))
	if c.Stencil == StencilLaplacian {
		t = stencil.Laplacian(len(c.Dims))
	}
	for i, b := range c.Branches {
		next, err := t.With(stencil.Displacement(b.Disp), b.Weight)
		if err != nil {
			return stencil.Table{}, fmt.Errorf("branch[%d]: %w", i, err)
		}
		t = next
	}
	return t, nil
}

// TransportFor returns the TCP settings for rank, listening on listen or, when
// listen is empty, on the rank's peer address.
func (c ClusterConfig) TransportFor(rank int, listen string) (transport.Config, error) {
	cfg := transport.DefaultConfig()
	for _, p := range c.Peers {
		cfg.Peers[p.Rank] = strings.TrimSpace(p.Addr)
	}
	cfg.ListenAddr = strings.TrimSpace(listen)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = cfg.Peers[rank]
	}
	var err error
	if cfg.ConnectTimeout, err = time.ParseDuration(strings.TrimSpace(c.Transport.ConnectTimeout)); err != nil {
		return transport.Config{}, err
	}
	if cfg.ReadTimeout, err = time.ParseDuration(strings.TrimSpace(c.Transport.ReadTimeout)); err != nil {
		return transport.Config{}, err
	}
	if cfg.WriteTimeout, err = time.ParseDuration(strings.TrimSpace(c.Transport.WriteTimeout)); err != nil {
		return transport.Config{}, err
	}
	if c.Transport.MaxPayloadBytes > 0 {
		cfg.Limits.MaxPayloadBytes = c.Transport.MaxPayloadBytes
	}
	if err := cfg.Validate(rank); err != nil {
		return transport.Config{}, err
	}
	return cfg, nil
}

// AdminAddr returns the admin listen address configured for rank, if any.
func (c ClusterConfig) AdminAddr(rank int) string {
	for _, p := range c.Peers {
		if p.Rank == rank {
			return strings.TrimSpace(p.Admin)
		}
	}
	return ""
}
