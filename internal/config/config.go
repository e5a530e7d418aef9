package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	StencilLaplacian = "laplacian"
	StencilCustom    = "custom"
)

// ClusterConfig is the file every rank of a cluster shares.
type ClusterConfig struct {
	Name       string          `toml:"name"`
	Dims       []int           `toml:"dims"`
	Periodic   []bool          `toml:"periodic"`
	Stencil    string          `toml:"stencil"`
	Branches   []BranchConfig  `toml:"branch"`
	Iterations int             `toml:"iterations"`
	Seed       int64           `toml:"seed"`
	Peers      []PeerConfig    `toml:"peer"`
	Transport  TransportConfig `toml:"transport"`
}

// BranchConfig adds or overrides one stencil weight.
type BranchConfig struct {
	Disp   []int   `toml:"disp"`
	Weight float64 `toml:"weight"`
}

type PeerConfig struct {
	Rank  int    `toml:"rank"`
	Addr  string `toml:"addr"`
	Admin string `toml:"admin"`
}

// TransportConfig holds durations as strings ("5s", "250ms").
type TransportConfig struct {
	ConnectTimeout  string `toml:"connect_timeout"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	MaxPayloadBytes uint64 `toml:"max_payload_bytes"`
}

// defaultClusterConfig holds the values of keys a file may omit. Decoding
// only overwrites keys that are present, so an explicit zero survives.
func defaultClusterConfig() ClusterConfig {
	return ClusterConfig{Iterations: 1}
}

func LoadClusterConfig(path string) (ClusterConfig, error) {
	cfg := defaultClusterConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ClusterConfig{}, err
	}
	cfg.applyDefaults()
	if err := ValidateClusterConfig(cfg); err != nil {
		return ClusterConfig{}, err
	}
	return cfg, nil
}

// ParseClusterConfig decodes, defaults and validates raw TOML.
func ParseClusterConfig(data []byte) (ClusterConfig, error) {
	cfg := defaultClusterConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return ClusterConfig{}, fmt.Errorf("config parse failed: %w", err)
	}
	cfg.applyDefaults()
	if err := ValidateClusterConfig(cfg); err != nil {
		return ClusterConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func (c *ClusterConfig) applyDefaults() {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = "halostencil"
	}
	c.Stencil = strings.ToLower(strings.TrimSpace(c.Stencil))
	if c.Stencil == "" {
		c.Stencil = StencilLaplacian
	}
	if c.Periodic == nil {
		c.Periodic = make([]bool, len(c.Dims))
	}
	if c.Transport.ConnectTimeout == "" {
		c.Transport.ConnectTimeout = "10s"
	}
	if c.Transport.ReadTimeout == "" {
		c.Transport.ReadTimeout = "0s"
	}
	if c.Transport.WriteTimeout == "" {
		c.Transport.WriteTimeout = "5s"
	}
}

func ValidateClusterConfig(cfg ClusterConfig) error {
	if len(cfg.Dims) == 0 {
		return fmt.Errorf("cluster config missing dims")
	}
	for i, n := range cfg.Dims {
		if n <= 0 {
			return fmt.Errorf("dims[%d] must be positive, got %d", i, n)
		}
	}
	if len(cfg.Periodic) != len(cfg.Dims) {
		return fmt.Errorf("periodic has %d entries for %d dims", len(cfg.Periodic), len(cfg.Dims))
	}
	switch cfg.Stencil {
	case StencilLaplacian:
	case StencilCustom:
		if len(cfg.Branches) == 0 {
			return fmt.Errorf("custom stencil needs at least one [[branch]]")
		}
	default:
		return fmt.Errorf("unknown stencil %q", cfg.Stencil)
	}
	for i, b := range cfg.Branches {
		if len(b.Disp) != len(cfg.Dims) {
			return fmt.Errorf("branch[%d] has %d components for %d dims", i, len(b.Disp), len(cfg.Dims))
		}
	}
	if cfg.Iterations < 0 {
		return fmt.Errorf("iterations must not be negative")
	}
	seen := make(map[int]bool, len(cfg.Peers))
	for i, p := range cfg.Peers {
		if p.Rank < 0 {
			return fmt.Errorf("peer[%d] has negative rank", i)
		}
		if seen[p.Rank] {
			return fmt.Errorf("peer[%d] repeats rank %d", i, p.Rank)
		}
		seen[p.Rank] = true
		if strings.TrimSpace(p.Addr) == "" {
			return fmt.Errorf("peer[%d] missing addr", i)
		}
	}
	for r := range cfg.Peers {
		if !seen[r] {
			return fmt.Errorf("peers must cover ranks 0..%d, missing %d", len(cfg.Peers)-1, r)
		}
	}
	for name, raw := range map[string]string{
		"connect_timeout": cfg.Transport.ConnectTimeout,
		"read_timeout":    cfg.Transport.ReadTimeout,
		"write_timeout":   cfg.Transport.WriteTimeout,
	} {
		if _, err := time.ParseDuration(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("parse transport.%s: %w", name, err)
		}
	}
	return nil
}
