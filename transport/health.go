package transport

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lb-rpc/codec"
	"lb-rpc/message"
	"lb-rpc/metrics"
	"lb-rpc/registry"
	"lb-rpc/rpcerr"
)

// HealthMonitor probes every configured node and keeps the Pool's valid set
// in line with the results.
//
// One check cycle:
//
//	liveness  ──ListeningMethod──▶ alive?   (decodes, no error member)
//	freshness ──HeightMethod─────▶ height   (alive nodes only, 0 on any failure)
//	baseline = max(height)
//	valid    = alive ∧ baseline - height <= AllowedLag
//
// The pool is only touched when the valid set changed membership.
type HealthMonitor struct {
	cfg     Config
	pool    *Pool
	doer    Doer
	codec   codec.Codec
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	nodes []registry.Node // Full configured list, in order

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func newHealthMonitor(cfg Config, pool *Pool, doer Doer, cdc codec.Codec, logger *zap.Logger, m *metrics.Metrics) *HealthMonitor {
	return &HealthMonitor{
		cfg:     cfg,
		pool:    pool,
		doer:    doer,
		codec:   cdc,
		logger:  logger,
		metrics: m,
		nodes:   append([]registry.Node(nil), cfg.Nodes...),
	}
}

// Nodes returns the configured list.
func (h *HealthMonitor) Nodes() []registry.Node {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]registry.Node(nil), h.nodes...)
}

// SetNodes replaces the configured list. It takes effect on the next check.
func (h *HealthMonitor) SetNodes(nodes []registry.Node) {
	h.mu.Lock()
	h.nodes = append([]registry.Node(nil), nodes...)
	h.mu.Unlock()
}

// probe sends a parameterless request to one node, bypassing selection.
func (h *HealthMonitor) probe(ctx context.Context, url, method string) (*message.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	defer cancel()

	body, err := h.codec.Encode(message.NewRequest(probeID, method))
	if err != nil {
		return nil, err
	}
	raw, err := h.doer.Do(ctx, url, body)
	if err != nil {
		return nil, err
	}

	var resp message.Response
	if err := h.codec.Decode(raw, &resp); err != nil {
		return nil, rpcerr.InvalidResponse(url, raw, err)
	}
	if resp.Error != nil {
		return &resp, resp.Error
	}
	return &resp, nil
}

// IsConnectedNode reports whether url answers the liveness probe without an error.
func (h *HealthMonitor) IsConnectedNode(ctx context.Context, url string) bool {
	_, err := h.probe(ctx, url, h.cfg.ListeningMethod)
	if err != nil {
		h.logger.Debug("liveness probe failed", zap.String("endpoint", url), zap.Error(err))
		return false
	}
	return true
}

// NodeBlockNumber returns the block height reported by url, or 0 when the
// probe fails or the result is not a number.
func (h *HealthMonitor) NodeBlockNumber(ctx context.Context, url string) uint64 {
	resp, err := h.probe(ctx, url, h.cfg.HeightMethod)
	if err != nil {
		h.logger.Debug("height probe failed", zap.String("endpoint", url), zap.Error(err))
		return 0
	}

	height, ok := h.parseHeight(resp.Result)
	if !ok {
		h.logger.Debug("height is not a number", zap.String("endpoint", url), zap.ByteString("result", resp.Result))
		return 0
	}
	return height
}

// parseHeight accepts a canonical hex quantity, and falls back to the lenient
// forms some nodes answer with: leading zeros ("0x0a"), decimal strings ("10")
// and bare JSON numbers (10).
func (h *HealthMonitor) parseHeight(result json.RawMessage) (uint64, bool) {
	var quantity string
	if err := h.codec.Decode(result, &quantity); err != nil {
		var n uint64
		if err := h.codec.Decode(result, &n); err != nil {
			return 0, false
		}
		return n, true
	}
	if height, err := hexutil.DecodeUint64(quantity); err == nil {
		return height, true
	}

	base, digits := 10, quantity
	if len(quantity) > 2 && (quantity[:2] == "0x" || quantity[:2] == "0X") {
		base, digits = 16, quantity[2:]
	}
	height, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return 0, false
	}
	return height, true
}

// CheckValidEndpoints runs one check cycle and returns the resulting valid set.
// Probe failures only exclude the node. A cycle interrupted by ctx leaves the
// pool as it was.
func (h *HealthMonitor) CheckValidEndpoints(ctx context.Context) []registry.Node {
	nodes := h.Nodes()
	alive := make([]bool, len(nodes))
	heights := make([]uint64, len(nodes))

	var g errgroup.Group
	g.SetLimit(h.cfg.ProbeConcurrency)
	for i, n := range nodes {
		g.Go(func() error {
			if !h.IsConnectedNode(ctx, n.URL) {
				return nil
			}
			alive[i] = true
			heights[i] = h.NodeBlockNumber(ctx, n.URL)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return h.pool.Valid()
	}
	h.metrics.IncHealthChecks()

	var baseline uint64
	for i := range nodes {
		if alive[i] {
			baseline = max(baseline, heights[i])
			h.metrics.SetHeight(nodes[i].URL, heights[i])
		}
	}

	valid := make([]registry.Node, 0, len(nodes))
	for i, n := range nodes {
		if alive[i] && baseline-heights[i] <= h.cfg.AllowedLag {
			valid = append(valid, n)
		} else if alive[i] {
			h.logger.Info("endpoint lagging",
				zap.String("endpoint", n.URL),
				zap.Uint64("height", heights[i]),
				zap.Uint64("baseline", baseline))
		}
	}

	current := h.pool.Valid()
	if sameMembers(current, valid) {
		return current
	}

	if err := h.pool.Replace(valid); err != nil {
		// only reachable if SetNodes installed a mixed-weight list
		h.logger.Error("rebuild engine", zap.Error(err))
		return current
	}
	h.metrics.IncRebuild(metrics.ReasonHealthCheck)
	h.metrics.SetValidEndpoints(len(valid))

	if len(valid) == 0 {
		h.logger.Error("no valid endpoints", zap.Int("configured", len(nodes)))
	} else {
		h.logger.Info("valid endpoints changed",
			zap.Strings("valid", registry.URLs(valid)),
			zap.Uint64("baseline", baseline))
	}
	return valid
}

// sameMembers compares two sets ignoring order (symmetric difference is empty).
func sameMembers(a, b []registry.Node) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[registry.Node]int, len(a))
	for _, n := range a {
		seen[n]++
	}
	for _, n := range b {
		if seen[n] == 0 {
			return false
		}
		seen[n]--
	}
	return true
}

// Start runs one check synchronously, then one every CheckInterval until ctx
// is done or Stop is called. A monitor whose context ended can be started again.
func (h *HealthMonitor) Start(ctx context.Context) error {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	if h.cancel != nil {
		select {
		case <-h.done:
			// the previous run ended with its context
			h.cancel()
			h.cancel, h.done = nil, nil
		default:
			return errors.New("health monitor already started")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h.CheckValidEndpoints(ctx)

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.loop(ctx, h.done)
	return nil
}

func (h *HealthMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckValidEndpoints(ctx)
		}
	}
}

// Stop cancels the periodic checks and waits for a running cycle to finish.
func (h *HealthMonitor) Stop() {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel, h.done = nil, nil
}
