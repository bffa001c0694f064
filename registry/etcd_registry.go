// Package registry also provides an etcd-backed Registry.
//
// Nodes are stored one key per endpoint:
//
//	Key:   /lb-rpc/{pool}/{escaped url}
//	Value: JSON-encoded Node
//
// Registration uses TTL leases so a node registered by a sidecar disappears
// from the pool when the sidecar dies. A ttl <= 0 stores the key without a lease.
package registry

import (
	"context"
	"encoding/json"
	"net/url"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const keyRoot = "/lb-rpc/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	logger *zap.Logger
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdRegistry{client: c, logger: logger}, nil
}

func poolPrefix(pool string) string {
	return keyRoot + pool + "/"
}

func nodeKey(pool, nodeURL string) string {
	return poolPrefix(pool) + url.PathEscape(nodeURL)
}

// Register stores node under pool. With ttl > 0 the key is bound to a lease that
// is kept alive in the background until ctx is cancelled.
func (r *EtcdRegistry) Register(ctx context.Context, pool string, node Node, ttl int64) error {
	val, err := json.Marshal(node)
	if err != nil {
		return err
	}

	if ttl <= 0 {
		_, err = r.client.Put(ctx, nodeKey(pool, node.URL), string(val))
		return err
	}

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}
	if _, err = r.client.Put(ctx, nodeKey(pool, node.URL), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// leaseID stays local so one registry can register many nodes without racing
	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("pool", pool), zap.String("url", node.URL))
	}()
	return nil
}

func (r *EtcdRegistry) Deregister(ctx context.Context, pool string, nodeURL string) error {
	_, err := r.client.Delete(ctx, nodeKey(pool, nodeURL))
	return err
}

// Discover returns the nodes of pool in key order.
func (r *EtcdRegistry) Discover(ctx context.Context, pool string) ([]Node, error) {
	resp, err := r.client.Get(ctx, poolPrefix(pool), clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var node Node
		if err := json.Unmarshal(kv.Value, &node); err != nil {
			r.logger.Warn("skipping malformed node entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Watch re-reads the whole pool on every change under its prefix. The current
// list is emitted once up front.
func (r *EtcdRegistry) Watch(ctx context.Context, pool string) <-chan []Node {
	ch := make(chan []Node, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, poolPrefix(pool), clientv3.WithPrefix())

		emit := func() bool {
			nodes, err := r.Discover(ctx, pool)
			if err != nil {
				r.logger.Warn("discover failed", zap.String("pool", pool), zap.Error(err))
				return true
			}
			select {
			case ch <- nodes:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for range watchChan {
			if !emit() {
				return
			}
		}
	}()

	return ch
}

// Close releases the etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
