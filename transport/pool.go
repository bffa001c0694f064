package transport

import (
	"slices"
	"sync/atomic"

	"lb-rpc/loadbalance"
	"lb-rpc/registry"
	"lb-rpc/rpcerr"
)

// snapshot pairs the valid set with the engine built from it. It is never
// mutated after being stored; every change swaps in a new one.
type snapshot struct {
	valid  []registry.Node
	engine loadbalance.Engine // nil when valid is empty
}

// Pool holds the valid-endpoint set and its selection engine behind a single
// atomic pointer, so readers always see a matching pair.
//
// Writers:
//   - the health monitor stores unconditionally (Replace), last writer wins;
//   - failover removes with compare-and-swap (Remove) and never clobbers a
//     snapshot stored after the one it read.
type Pool struct {
	state    atomic.Pointer[snapshot]
	strategy loadbalance.Strategy
	seed     []uint64
}

func NewPool(strategy loadbalance.Strategy, seed ...uint64) *Pool {
	p := &Pool{strategy: strategy, seed: seed}
	p.state.Store(&snapshot{})
	return p
}

func (p *Pool) build(nodes []registry.Node) (*snapshot, error) {
	if len(nodes) == 0 {
		return &snapshot{}, nil
	}
	engine, err := loadbalance.New(p.strategy, nodes, p.seed...)
	if err != nil {
		return nil, err
	}
	return &snapshot{valid: slices.Clone(nodes), engine: engine}, nil
}

// Valid returns a copy of the current valid set.
func (p *Pool) Valid() []registry.Node {
	return slices.Clone(p.state.Load().valid)
}

// Len is the size of the current valid set.
func (p *Pool) Len() int {
	return len(p.state.Load().valid)
}

// Pick selects the next endpoint from the active engine.
func (p *Pool) Pick() (registry.Node, error) {
	s := p.state.Load()
	if s.engine == nil {
		return registry.Node{}, rpcerr.NoValidEndpoints()
	}
	return s.engine.Pick(), nil
}

// Replace stores nodes as the new valid set and rebuilds the engine.
func (p *Pool) Replace(nodes []registry.Node) error {
	s, err := p.build(nodes)
	if err != nil {
		return err
	}
	p.state.Store(s)
	return nil
}

// Remove drops url from the valid set. It reports false when url is the last
// endpoint left, which is kept. A url that is already gone counts as removed.
func (p *Pool) Remove(url string) bool {
	for {
		cur := p.state.Load()
		if len(cur.valid) <= 1 {
			return false
		}
		i := slices.IndexFunc(cur.valid, func(n registry.Node) bool { return n.URL == url })
		if i < 0 {
			return true
		}
		next, err := p.build(slices.Delete(slices.Clone(cur.valid), i, i+1))
		if err != nil {
			// a subset of a buildable pool is buildable
			return false
		}
		if p.state.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Engine returns the active engine, nil when the valid set is empty.
func (p *Pool) Engine() loadbalance.Engine {
	return p.state.Load().engine
}
