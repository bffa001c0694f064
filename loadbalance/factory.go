package loadbalance

import (
	"lb-rpc/registry"
	"lb-rpc/rpcerr"
)

// Strategy names an engine family. The weighted or unweighted member of the
// family is chosen from the pool itself.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
)

// RoundRobin builds a round-robin engine over pool. If the first node carries a
// weight the weighted variant is used.
//
// Pools must be homogeneous: either every node has a positive weight or none
// has. Mixed pools fail with a configuration error.
func RoundRobin(pool []registry.Node) (Engine, error) {
	weighted, err := inspect(pool)
	if err != nil {
		return nil, err
	}
	if weighted {
		return NewWeightedRoundRobinEngine(pool), nil
	}
	return NewRoundRobinEngine(pool), nil
}

// Random builds a random engine over pool, weighted when the first node carries
// a weight. At most one seed may be given; with a seed the pick sequence is
// reproducible, without one it is not.
func Random(pool []registry.Node, seed ...uint64) (Engine, error) {
	weighted, err := inspect(pool)
	if err != nil {
		return nil, err
	}
	if len(seed) > 1 {
		return nil, rpcerr.Configuration("at most one seed may be given, got %d", len(seed))
	}
	if weighted {
		return NewWeightedRandomEngine(pool, seed...), nil
	}
	return NewRandomEngine(pool, seed...), nil
}

// New builds the engine named by strategy. An empty strategy means round robin.
func New(strategy Strategy, pool []registry.Node, seed ...uint64) (Engine, error) {
	switch strategy {
	case StrategyRoundRobin, "":
		return RoundRobin(pool)
	case StrategyRandom:
		return Random(pool, seed...)
	default:
		return nil, rpcerr.Configuration("unknown selection strategy %q", strategy)
	}
}

// inspect validates pool and reports whether it is weighted. The decision is
// taken from the first node; the rest must agree with it.
func inspect(pool []registry.Node) (bool, error) {
	if len(pool) == 0 {
		return false, ErrEmptyPool
	}
	weighted := pool[0].Weight > 0
	for _, n := range pool {
		if n.Weight < 0 {
			return false, rpcerr.Configuration("node %s has negative weight %d", n.URL, n.Weight)
		}
		if (n.Weight > 0) != weighted {
			return false, rpcerr.Configuration("pool mixes weighted and unweighted nodes (at %s)", n.URL)
		}
	}
	return weighted, nil
}
