// Package config loads the transport configuration from the environment.
//
// Every variable is prefixed with RRPC_. A .env file in the working directory
// is read first when present; real environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"lb-rpc/loadbalance"
	"lb-rpc/registry"
	"lb-rpc/rpcerr"
	"lb-rpc/transport"
)

const Prefix = "RRPC_"

type Config struct {
	Endpoints []string             `env:"ENDPOINTS" envSeparator:","`
	Weights   []int                `env:"WEIGHTS" envSeparator:","`
	Strategy  loadbalance.Strategy `env:"STRATEGY" envDefault:"round_robin"`
	Seed      *uint64              `env:"SEED"`

	Timeout          time.Duration `env:"TIMEOUT" envDefault:"0s"`
	WireTimeout      time.Duration `env:"WIRE_TIMEOUT" envDefault:"30s"`
	AllowedLag       uint64        `env:"ALLOWED_LAG" envDefault:"0"`
	CheckInterval    time.Duration `env:"CHECK_INTERVAL" envDefault:"60s"`
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT" envDefault:"5s"`
	ProbeConcurrency int           `env:"PROBE_CONCURRENCY" envDefault:"8"`

	RateLimit float64 `env:"RATE_LIMIT" envDefault:"0"`
	RateBurst int     `env:"RATE_BURST" envDefault:"1"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	EtcdEndpoints []string `env:"ETCD_ENDPOINTS" envSeparator:","`
	RegistryPool  string   `env:"REGISTRY_POOL" envDefault:"default"`
	MetricsAddr   string   `env:"METRICS_ADDR"`
}

// Load reads .env (optional) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse(nil)
}

// Parse reads the configuration from environ, or from the process environment
// when environ is nil.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	opts := env.Options{Prefix: Prefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, rpcerr.Configuration("parse environment: %v", err)
	}
	return cfg, nil
}

// Validate checks what the transport cannot check itself. An empty endpoint
// list is allowed when a registry provides the nodes.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 && len(c.EtcdEndpoints) == 0 {
		return rpcerr.Configuration("pool length must be greater than zero")
	}
	if len(c.Weights) > 0 && len(c.Weights) != len(c.Endpoints) {
		return rpcerr.Configuration("got %d weights for %d endpoints", len(c.Weights), len(c.Endpoints))
	}
	for _, w := range c.Weights {
		if w <= 0 {
			return rpcerr.Configuration("weights must be positive, got %d", w)
		}
	}
	switch c.Strategy {
	case loadbalance.StrategyRoundRobin, loadbalance.StrategyRandom:
	default:
		return rpcerr.Configuration("unknown strategy %q", c.Strategy)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return rpcerr.Configuration("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Nodes pairs endpoints with their weights.
func (c *Config) Nodes() []registry.Node {
	nodes := registry.Nodes(c.Endpoints...)
	if len(c.Weights) == len(nodes) {
		for i := range nodes {
			nodes[i].Weight = c.Weights[i]
		}
	}
	return nodes
}

// Transport converts to a transport.Config. nodes overrides the configured
// endpoints when non-nil, e.g. with a registry's list.
func (c *Config) Transport(nodes []registry.Node) transport.Config {
	if nodes == nil {
		nodes = c.Nodes()
	}
	return transport.Config{
		Nodes:            nodes,
		Timeout:          c.Timeout,
		AllowedLag:       c.AllowedLag,
		CheckInterval:    c.CheckInterval,
		ProbeTimeout:     c.ProbeTimeout,
		WireTimeout:      c.WireTimeout,
		ProbeConcurrency: c.ProbeConcurrency,
		Strategy:         c.Strategy,
		Seed:             c.Seed,
		RateLimit:        c.RateLimit,
		RateBurst:        c.RateBurst,
	}
}
