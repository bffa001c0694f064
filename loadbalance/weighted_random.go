package loadbalance

import (
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"lb-rpc/registry"
)

// WeightedRandomEngine picks node i with probability weight[i] / totalWeight.
// Sampling is delegated to a gonum categorical distribution over the weights.
type WeightedRandomEngine struct {
	mu   sync.Mutex // the distribution's source is not goroutine-safe
	pool []registry.Node
	dist distuv.Categorical
}

// NewWeightedRandomEngine builds a weighted engine; seeding works as for
// NewRandomEngine.
func NewWeightedRandomEngine(pool []registry.Node, seed ...uint64) *WeightedRandomEngine {
	weights := make([]float64, len(pool))
	for i, n := range pool {
		weights[i] = float64(n.Weight)
	}
	return &WeightedRandomEngine{
		pool: append([]registry.Node(nil), pool...),
		dist: distuv.NewCategorical(weights, newSource(seed...)),
	}
}

func (e *WeightedRandomEngine) Pick() registry.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool[int(e.dist.Rand())]
}

func (e *WeightedRandomEngine) Name() string {
	return "WeightedRandom"
}
