package loadbalance

import (
	"sync/atomic"

	"lb-rpc/registry"
)

// RoundRobinEngine cycles through its pool in insertion order, wrapping after
// the last node. Uses an atomic counter for lock-free, goroutine-safe picks.
type RoundRobinEngine struct {
	pool    []registry.Node
	counter atomic.Uint64 // picks served so far
}

func NewRoundRobinEngine(pool []registry.Node) *RoundRobinEngine {
	return &RoundRobinEngine{pool: append([]registry.Node(nil), pool...)}
}

// Pick returns pool[0], pool[1], ... pool[n-1], pool[0], ...
func (e *RoundRobinEngine) Pick() registry.Node {
	index := (e.counter.Add(1) - 1) % uint64(len(e.pool))
	return e.pool[index]
}

func (e *RoundRobinEngine) Name() string {
	return "RoundRobin"
}
