// Package loadbalance provides the selection engines that choose the next
// endpoint from a pool.
//
// Four engines are implemented:
//   - RoundRobin:         equal-capacity nodes, strict insertion order
//   - WeightedRoundRobin: heterogeneous nodes, deterministic interleaving
//   - Random:             uniform choice, optionally seeded
//   - WeightedRandom:     weight-proportional choice, optionally seeded
//
// An engine owns a snapshot of its pool. It is never updated in place: when the
// pool changes, build a new engine and drop the old one.
package loadbalance

import (
	"lb-rpc/registry"
	"lb-rpc/rpcerr"
)

// Engine picks the next node from its pool.
// Pick is called on every RPC attempt and must be goroutine-safe.
type Engine interface {
	// Pick returns the next node. It never blocks and never fails.
	Pick() registry.Node

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// ErrEmptyPool is returned when an engine is built over no nodes.
var ErrEmptyPool = rpcerr.Configuration("pool length must be greater than zero")

// IsEngine reports whether v can serve as a selection engine.
func IsEngine(v any) bool {
	_, ok := v.(Engine)
	return ok
}
