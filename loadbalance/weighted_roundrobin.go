package loadbalance

import (
	"sync"

	"lb-rpc/registry"
)

// WeightedRoundRobinEngine interleaves nodes in proportion to their weights
// using smooth weighted round robin:
//
//	each pick:  credit[i] += weight[i]  for every node
//	            chosen    = first node with the highest credit
//	            credit[chosen] -= totalWeight
//
// Over any window of totalWeight picks every node is chosen exactly weight
// times, and heavy nodes are spread out rather than picked in bursts.
//
//	weights a=5 b=1 c=1  →  a a b a c a a | a a b a c a a | ...
type WeightedRoundRobinEngine struct {
	mu     sync.Mutex
	pool   []registry.Node
	credit []int
	total  int
}

func NewWeightedRoundRobinEngine(pool []registry.Node) *WeightedRoundRobinEngine {
	e := &WeightedRoundRobinEngine{
		pool:   append([]registry.Node(nil), pool...),
		credit: make([]int, len(pool)),
	}
	for _, n := range pool {
		e.total += n.Weight
	}
	return e
}

func (e *WeightedRoundRobinEngine) Pick() registry.Node {
	e.mu.Lock()
	defer e.mu.Unlock()

	best := 0
	for i, n := range e.pool {
		e.credit[i] += n.Weight
		// strict > keeps the earliest node on ties
		if e.credit[i] > e.credit[best] {
			best = i
		}
	}
	e.credit[best] -= e.total
	return e.pool[best]
}

func (e *WeightedRoundRobinEngine) Name() string {
	return "WeightedRoundRobin"
}
