package loadbalance

import (
	"math/rand/v2"
	"sync"

	"lb-rpc/registry"
)

// RandomEngine picks uniformly among its pool.
type RandomEngine struct {
	mu   sync.Mutex // *rand.Rand is not goroutine-safe
	pool []registry.Node
	rng  *rand.Rand
}

// NewRandomEngine builds a uniform engine. With a seed the pick sequence is
// reproducible across runs.
func NewRandomEngine(pool []registry.Node, seed ...uint64) *RandomEngine {
	return &RandomEngine{
		pool: append([]registry.Node(nil), pool...),
		rng:  rand.New(newSource(seed...)),
	}
}

func (e *RandomEngine) Pick() registry.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool[e.rng.IntN(len(e.pool))]
}

func (e *RandomEngine) Name() string {
	return "Random"
}

// newSource returns a PCG source seeded from seed, or from the runtime's
// random generator when no seed is given.
func newSource(seed ...uint64) rand.Source {
	if len(seed) > 0 {
		return rand.NewPCG(seed[0], seed[0])
	}
	// #nosec G404 - endpoint selection, not security sensitive
	return rand.NewPCG(rand.Uint64(), rand.Uint64())
}
