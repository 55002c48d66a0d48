package main

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/DuckSquadDev/ducknet"
	"github.com/pkg/errors"
)

// DefaultPort is used when an address is given without a port.
const DefaultPort = 20020

type config struct {
	Listen      string
	Connect     []string
	MTU         int
	Timeout     time.Duration
	Tick        time.Duration
	MetricsAddr string
}

type fileConfig struct {
	Listen      string   `toml:"listen"`
	Connect     []string `toml:"connect"`
	MTU         int      `toml:"mtu"`
	Timeout     string   `toml:"timeout"`
	Tick        string   `toml:"tick"`
	MetricsAddr string   `toml:"metrics_addr"`
}

func defaultConfig() config {
	return config{
		MTU:     ducknet.DefaultMTU,
		Timeout: 10 * time.Second,
		Tick:    16 * time.Millisecond,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, errors.Wrap(err, "load peer config")
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("connect") {
		for _, addr := range raw.Connect {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.Connect = append(cfg.Connect, addr)
			}
		}
	}
	if meta.IsDefined("mtu") {
		cfg.MTU = raw.MTU
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return config{}, errors.Wrap(err, "parse timeout")
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("tick") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Tick))
		if err != nil {
			return config{}, errors.Wrap(err, "parse tick")
		}
		if d <= 0 {
			return config{}, errors.Errorf("tick must be positive, got %v", d)
		}
		cfg.Tick = d
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	return cfg, nil
}

func (c config) options(metrics *ducknet.Metrics) []ducknet.Option {
	return []ducknet.Option{
		ducknet.MTUOption(c.MTU),
		ducknet.TimeoutOption(c.Timeout),
		ducknet.MetricsOption(metrics),
	}
}
