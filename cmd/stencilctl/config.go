package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// rank overlay keys; anything unset keeps the cluster file's answer.
type rankFileConfig struct {
	Rank       int    `toml:"rank"`
	Listen     string `toml:"listen"`
	AdminAddr  string `toml:"admin_addr"`
	LogLevel   string `toml:"log_level"`
	AdminToken string `toml:"admin_token"`
}

type rankConfig struct {
	Rank       int
	Listen     string
	AdminAddr  string
	LogLevel   string
	AdminToken string
}

func defaultRankConfig() rankConfig {
	return rankConfig{Rank: -1}
}

func loadRankConfig(path string) (rankConfig, error) {
	cfg := defaultRankConfig()

	var raw rankFileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return rankConfig{}, fmt.Errorf("load rank config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return rankConfig{}, fmt.Errorf("rank config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("rank") {
		if raw.Rank < 0 {
			return rankConfig{}, fmt.Errorf("rank config: rank must not be negative")
		}
		cfg.Rank = raw.Rank
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	return cfg, nil
}
