package transport

import (
	"time"

	"lb-rpc/loadbalance"
	"lb-rpc/registry"
	"lb-rpc/rpcerr"
)

const (
	DefaultCheckInterval    = 60 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultProbeConcurrency = 8
	DefaultListeningMethod  = "net_listening"
	DefaultHeightMethod     = "eth_blockNumber"
	DefaultWireTimeout      = 30 * time.Second

	// probeID is the request id of health probes.
	probeID uint64 = 9999999999
)

// Config configures a Provider and its HealthMonitor.
type Config struct {
	Nodes []registry.Node

	Timeout    time.Duration // Per attempt, 0 disables
	AllowedLag uint64        // Blocks a node may trail the highest node

	// WireTimeout caps every HTTP round trip whose context has no earlier
	// deadline, so a cancelled call never holds a connection past it.
	WireTimeout time.Duration

	CheckInterval    time.Duration
	ProbeTimeout     time.Duration
	ProbeConcurrency int
	ListeningMethod  string
	HeightMethod     string

	Strategy loadbalance.Strategy
	Seed     *uint64 // Fixed seed for the random strategies

	RateLimit float64 // Attempts per second across all endpoints, 0 disables
	RateBurst int
}

func (c Config) withDefaults() Config {
	if c.WireTimeout <= 0 {
		c.WireTimeout = DefaultWireTimeout
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = DefaultProbeConcurrency
	}
	if c.ListeningMethod == "" {
		c.ListeningMethod = DefaultListeningMethod
	}
	if c.HeightMethod == "" {
		c.HeightMethod = DefaultHeightMethod
	}
	if c.Strategy == "" {
		c.Strategy = loadbalance.StrategyRoundRobin
	}
	return c
}

func (c Config) seed() []uint64 {
	if c.Seed == nil {
		return nil
	}
	return []uint64{*c.Seed}
}

// validate builds a throwaway engine over the configured nodes, which catches
// an empty pool, mixed weights and unknown strategies in one place.
func (c Config) validate() error {
	if c.Timeout < 0 {
		return rpcerr.Configuration("timeout must not be negative")
	}
	if c.RateLimit < 0 {
		return rpcerr.Configuration("rate limit must not be negative")
	}
	for _, n := range c.Nodes {
		if n.URL == "" {
			return rpcerr.Configuration("endpoint url must not be empty")
		}
	}
	_, err := loadbalance.New(c.Strategy, c.Nodes, c.seed()...)
	return err
}
