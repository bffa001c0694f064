// Package transport is the resilient, load-balanced JSON-RPC transport.
//
// A Provider owns a Pool (valid endpoints + selection engine), a HealthMonitor
// that keeps the pool fresh, and a middleware chain ending in a Doer:
//
//	Send ──▶ Pool.Pick ──▶ Logging ─▶ Metrics ─▶ Timeout ─▶ RateLimit ─▶ Doer
//	  ▲                                                                  │
//	  └──── failover: Pool.Remove(endpoint), pick again ◀── conn/decode error
//
// Connection and decode failures fail over to another endpoint, removing the
// failing one from the valid set, until one endpoint is left. Timeouts are
// returned as they are.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lb-rpc/codec"
	"lb-rpc/loadbalance"
	"lb-rpc/message"
	"lb-rpc/metrics"
	"lb-rpc/middleware"
	"lb-rpc/registry"
	"lb-rpc/rpcerr"
)

type Provider struct {
	cfg     Config
	pool    *Pool
	monitor *HealthMonitor
	doer    Doer
	codec   codec.Codec
	logger  *zap.Logger
	metrics *metrics.Metrics
	extra   []middleware.Middleware
	handler middleware.HandlerFunc
}

type Option func(*Provider)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// WithDoer replaces the fasthttp wire client.
func WithDoer(d Doer) Option {
	return func(p *Provider) { p.doer = d }
}

func WithCodec(c codec.Codec) Option {
	return func(p *Provider) { p.codec = c }
}

// WithMiddleware appends middlewares inside the built-in chain, right before the wire.
func WithMiddleware(mw ...middleware.Middleware) Option {
	return func(p *Provider) { p.extra = append(p.extra, mw...) }
}

// NewProvider validates cfg and wires the transport. The valid set starts
// empty; call Start (or CheckValidEndpoints) before sending.
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Provider{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.doer == nil {
		p.doer = NewFastHTTPDoer(cfg.WireTimeout)
	}
	if p.codec == nil {
		p.codec = codec.Default
	}

	p.pool = NewPool(cfg.Strategy, cfg.seed()...)
	p.monitor = newHealthMonitor(cfg, p.pool, p.doer, p.codec, p.logger.Named("health"), p.metrics)

	chain := append([]middleware.Middleware{
		middleware.Logging(p.logger),
		middleware.Metrics(p.metrics),
		middleware.Timeout(cfg.Timeout),
		middleware.RateLimit(cfg.RateLimit, cfg.RateBurst),
	}, p.extra...)
	p.handler = middleware.Chain(chain...)(p.roundTrip)

	return p, nil
}

// roundTrip is the innermost handler: one POST, and the body must be JSON.
func (p *Provider) roundTrip(ctx context.Context, call *message.Call) ([]byte, error) {
	body, err := p.doer.Do(ctx, call.Endpoint, call.Body)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := p.codec.Decode(body, &raw); err != nil {
		return nil, rpcerr.InvalidResponse(call.Endpoint, body, err)
	}
	return raw, nil
}

// Send delivers payload to one valid endpoint and returns the decoded response
// body. JSON-RPC error objects are part of a successful response.
func (p *Provider) Send(ctx context.Context, payload any) (json.RawMessage, error) {
	body, err := p.codec.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	attempts := p.pool.Len()
	if attempts == 0 {
		return nil, rpcerr.NoValidEndpoints()
	}

	callID := uuid.NewString()
	method := methodOf(payload)
	attempt := 0

	return retry.DoWithData(func() (json.RawMessage, error) {
		node, err := p.pool.Pick()
		if err != nil {
			return nil, retry.Unrecoverable(err)
		}
		attempt++
		call := &message.Call{ID: callID, Endpoint: node.URL, Method: method, Body: body, Attempt: attempt}

		raw, err := p.handler(ctx, call)
		if err == nil {
			return raw, nil
		}
		if !retryable(ctx, err) {
			return nil, retry.Unrecoverable(err)
		}
		if !p.pool.Remove(node.URL) {
			return nil, retry.Unrecoverable(err)
		}

		p.metrics.IncFailover(node.URL)
		p.metrics.IncRebuild(metrics.ReasonFailover)
		p.metrics.SetValidEndpoints(p.pool.Len())
		p.logger.Warn("endpoint removed after failed call",
			zap.String("call_id", callID),
			zap.String("endpoint", node.URL),
			zap.Int("remaining", p.pool.Len()),
			zap.Error(err))
		return nil, err
	},
		retry.Attempts(uint(attempts)),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

// SendAsync runs Send on its own goroutine. cb is called exactly once.
func (p *Provider) SendAsync(ctx context.Context, payload any, cb func(json.RawMessage, error)) {
	go func() {
		cb(p.Send(ctx, payload))
	}()
}

// retryable: connection and decode failures fail over, everything else
// (timeouts, caller cancellation) is final.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, rpcerr.ErrConnection) || errors.Is(err, rpcerr.ErrInvalidResponse)
}

func methodOf(payload any) string {
	switch p := payload.(type) {
	case *message.Request:
		return p.Method
	case message.Request:
		return p.Method
	case []*message.Request:
		return "batch"
	case []byte, json.RawMessage:
		return "raw"
	default:
		return ""
	}
}

// IsConnected sends the liveness probe through normal selection.
func (p *Provider) IsConnected(ctx context.Context) bool {
	raw, err := p.Send(ctx, message.NewRequest(probeID, p.cfg.ListeningMethod))
	if err != nil {
		return false
	}
	var resp message.Response
	if err := p.codec.Decode(raw, &resp); err != nil {
		return false
	}
	return resp.Error == nil
}

// IsConnectedNode probes one endpoint directly.
func (p *Provider) IsConnectedNode(ctx context.Context, url string) bool {
	return p.monitor.IsConnectedNode(ctx, url)
}

// NodeBlockNumber asks one endpoint directly for its height, 0 on failure.
func (p *Provider) NodeBlockNumber(ctx context.Context, url string) uint64 {
	return p.monitor.NodeBlockNumber(ctx, url)
}

func (p *Provider) CheckValidEndpoints(ctx context.Context) []registry.Node {
	return p.monitor.CheckValidEndpoints(ctx)
}

// Start runs the first health check and schedules the rest.
func (p *Provider) Start(ctx context.Context) error {
	return p.monitor.Start(ctx)
}

func (p *Provider) Stop() {
	p.monitor.Stop()
}

// Valid returns the current valid-endpoint set.
func (p *Provider) Valid() []registry.Node {
	return p.pool.Valid()
}

// Nodes returns the configured endpoint list.
func (p *Provider) Nodes() []registry.Node {
	return p.monitor.Nodes()
}

// Follow replaces the configured list with every update and re-checks at once.
// Empty updates are ignored. It returns when updates is closed or ctx is done.
func (p *Provider) Follow(ctx context.Context, updates <-chan []registry.Node) {
	for {
		select {
		case <-ctx.Done():
			return
		case nodes, ok := <-updates:
			if !ok {
				return
			}
			if len(nodes) == 0 {
				p.logger.Warn("ignoring empty endpoint list")
				continue
			}
			if _, err := loadbalance.New(p.cfg.Strategy, nodes, p.cfg.seed()...); err != nil {
				p.logger.Warn("ignoring endpoint list", zap.Error(err))
				continue
			}
			p.logger.Info("endpoint list updated", zap.Strings("nodes", registry.URLs(nodes)))
			p.monitor.SetNodes(nodes)
			p.monitor.CheckValidEndpoints(ctx)
		}
	}
}
