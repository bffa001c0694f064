package registry

import (
	"context"
	"sync"
)

// MemoryRegistry is an in-process Registry. Nodes keep registration order and
// ttl is ignored. Useful for static deployments and tests.
type MemoryRegistry struct {
	mu       sync.Mutex
	pools    map[string][]Node
	watchers map[string][]chan []Node
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		pools:    make(map[string][]Node),
		watchers: make(map[string][]chan []Node),
	}
}

// Register adds node to pool, replacing an existing entry with the same URL in place.
func (m *MemoryRegistry) Register(_ context.Context, pool string, node Node, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := m.pools[pool]
	for i := range nodes {
		if nodes[i].URL == node.URL {
			nodes[i] = node
			m.notifyLocked(pool)
			return nil
		}
	}
	m.pools[pool] = append(nodes, node)
	m.notifyLocked(pool)
	return nil
}

func (m *MemoryRegistry) Deregister(_ context.Context, pool string, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := m.pools[pool]
	for i, n := range nodes {
		if n.URL == url {
			m.pools[pool] = append(nodes[:i:i], nodes[i+1:]...)
			m.notifyLocked(pool)
			break
		}
	}
	return nil
}

func (m *MemoryRegistry) Discover(_ context.Context, pool string) ([]Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Node(nil), m.pools[pool]...), nil
}

// Watch emits the current list, then the full list after every change. Slow
// readers only ever see the latest list.
func (m *MemoryRegistry) Watch(ctx context.Context, pool string) <-chan []Node {
	ch := make(chan []Node, 1)

	m.mu.Lock()
	ch <- append([]Node(nil), m.pools[pool]...)
	m.watchers[pool] = append(m.watchers[pool], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[pool]
		for i, w := range ws {
			if w == ch {
				m.watchers[pool] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}

func (m *MemoryRegistry) notifyLocked(pool string) {
	snapshot := append([]Node(nil), m.pools[pool]...)
	for _, w := range m.watchers[pool] {
		// drop a stale pending list so the watcher sees the newest one
		select {
		case <-w:
		default:
		}
		w <- snapshot
	}
}
