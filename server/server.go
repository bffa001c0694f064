// Package server is a small JSON-RPC 2.0 node for local development and tests.
//
// Services are plain structs registered under a namespace; their exported
// methods of the form (*Args, *Reply) error become namespace_method calls.
// Faults can be switched on at runtime to exercise client failover.
//
// Request pipeline:
//
//	fasthttp handler → fault injection → middleware chain → businessHandler
//	  → single request or batch → reflect.Call → JSON response
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"lb-rpc/codec"
	"lb-rpc/message"
	"lb-rpc/middleware"
	"lb-rpc/registry"
)

// Fault selects how the node misbehaves.
type Fault int32

const (
	FaultNone     Fault = iota
	FaultGarbage        // 502 with an HTML body
	FaultHang           // hold the request until shutdown or HangLimit
	FaultRPCError       // every call answers with a JSON-RPC error
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultGarbage:
		return "garbage"
	case FaultHang:
		return "hang"
	case FaultRPCError:
		return "rpc_error"
	default:
		return fmt.Sprintf("fault(%d)", int32(f))
	}
}

// ParseFault is the inverse of Fault.String.
func ParseFault(s string) (Fault, error) {
	for f := FaultNone; f <= FaultRPCError; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return FaultNone, fmt.Errorf("unknown fault %q", s)
}

// HangLimit bounds FaultHang so a stuck test cannot hold a connection forever.
const HangLimit = 30 * time.Second

// Server is the dev node.
type Server struct {
	serviceMap  map[string]*service // "eth" → *service
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	codec       codec.Codec
	logger      *zap.Logger
	fault       atomic.Int32
	http        *fasthttp.Server

	ctx    context.Context // cancelled on Shutdown
	cancel context.CancelFunc

	// optional self-registration
	registry  registry.Registry
	pool      string
	advertise registry.Node
}

func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		serviceMap: make(map[string]*service),
		codec:      codec.Default,
		logger:     logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.http = &fasthttp.Server{
		Handler:     s.handle,
		Name:        "lb-rpc-devnode",
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 10 * time.Second,
	}
	return s
}

// NewDevNode returns a server answering net_, eth_ and web3_ calls from chain.
func NewDevNode(chain *Chain, logger *zap.Logger) *Server {
	s := NewServer(logger)
	// the receivers below all have valid methods
	_ = s.Register("net", &Net{chain: chain})
	_ = s.Register("eth", &Eth{chain: chain})
	_ = s.Register("web3", &Web3{})
	return s
}

// Register exposes rcvr's methods under namespace.
func (s *Server) Register(namespace string, rcvr any) error {
	svc, err := NewService(namespace, rcvr)
	if err != nil {
		return err
	}
	s.serviceMap[svc.name] = svc
	return nil
}

// Use adds a middleware around request handling. Call before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

func (s *Server) SetFault(f Fault) {
	s.fault.Store(int32(f))
}

func (s *Server) Fault() Fault {
	return Fault(s.fault.Load())
}

// Advertise registers node in pool of reg when Serve starts, and removes it on Shutdown.
func (s *Server) Advertise(reg registry.Registry, pool string, node registry.Node) {
	s.registry, s.pool, s.advertise = reg, pool, node
}

// Serve handles requests on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.handler = middleware.Chain(s.middlewares...)(s.businessHandler)

	if s.registry != nil {
		// TTL = 10 seconds, the lease is kept alive until Shutdown
		if err := s.registry.Register(s.ctx, s.pool, s.advertise, 10); err != nil {
			return fmt.Errorf("register %s: %w", s.advertise.URL, err)
		}
	}

	s.logger.Info("dev node listening", zap.String("addr", ln.Addr().String()))
	return s.http.Serve(ln)
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown deregisters first so clients stop routing here, then releases hung
// requests and waits for in-flight ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.registry != nil {
		if err := s.registry.Deregister(ctx, s.pool, s.advertise.URL); err != nil {
			s.logger.Warn("deregister failed", zap.Error(err))
		}
	}
	s.cancel()
	return s.http.ShutdownWithContext(ctx)
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	switch s.Fault() {
	case FaultGarbage:
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
		ctx.SetContentType("text/html")
		ctx.SetBodyString("<html>502 Bad Gateway</html>")
		return
	case FaultHang:
		select {
		case <-s.ctx.Done():
		case <-time.After(HangLimit):
		}
		return
	}

	// The handler may outlive the RequestCtx (timeout middleware), so it gets
	// its own copy of the body and the server context.
	call := &message.Call{
		Endpoint: ctx.RemoteAddr().String(),
		Body:     append([]byte(nil), ctx.PostBody()...),
	}
	out, err := s.handler(s.ctx, call)
	ctx.SetContentType(s.codec.ContentType())
	if err != nil {
		s.logger.Warn("request rejected", zap.String("remote", call.Endpoint), zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		out, _ = s.codec.Encode(errorResponse(nil, message.CodeInternalError, err.Error()))
	}
	ctx.SetBody(out)
}

// rawRequest keeps id and params undecoded until the method is known.
type rawRequest struct {
	ID      json.RawMessage `json:"id"`
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// businessHandler answers a single request or a batch.
func (s *Server) businessHandler(ctx context.Context, call *message.Call) ([]byte, error) {
	body := bytes.TrimSpace(call.Body)
	if len(body) > 0 && body[0] == '[' {
		var batch []json.RawMessage
		if err := s.codec.Decode(body, &batch); err != nil || len(batch) == 0 {
			return s.codec.Encode(errorResponse(nil, message.CodeInvalidRequest, "invalid batch"))
		}
		out := make([]*message.Response, 0, len(batch))
		for _, raw := range batch {
			out = append(out, s.dispatch(raw))
		}
		return s.codec.Encode(out)
	}
	return s.codec.Encode(s.dispatch(body))
}

func (s *Server) dispatch(raw []byte) *message.Response {
	var req rawRequest
	if err := s.codec.Decode(raw, &req); err != nil {
		return errorResponse(nil, message.CodeParseError, "parse error")
	}
	if req.JSONRPC != message.Version || req.Method == "" {
		return errorResponse(req.ID, message.CodeInvalidRequest, "invalid request")
	}
	if s.Fault() == FaultRPCError {
		return errorResponse(req.ID, -32000, "injected fault")
	}

	// "eth_blockNumber" → service "eth", method "blockNumber"
	namespace, name, ok := strings.Cut(req.Method, "_")
	svc := s.serviceMap[namespace]
	if !ok || svc == nil || svc.method[name] == nil {
		return errorResponse(req.ID, message.CodeMethodNotFound, "the method "+req.Method+" does not exist/is not available")
	}
	mtype := svc.method[name]

	argv := reflect.New(mtype.ArgType)
	replyv := reflect.New(mtype.ReplyType)
	params := req.Params
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("[]")
	}
	if err := s.codec.Decode(params, argv.Interface()); err != nil {
		return errorResponse(req.ID, message.CodeInvalidParams, err.Error())
	}

	if err := svc.call(mtype, argv, replyv); err != nil {
		var rpcErr *message.RPCError
		if errors.As(err, &rpcErr) {
			return &message.Response{ID: req.ID, JSONRPC: message.Version, Error: rpcErr}
		}
		return errorResponse(req.ID, message.CodeInternalError, err.Error())
	}

	result, err := s.codec.Encode(replyv.Interface())
	if err != nil {
		return errorResponse(req.ID, message.CodeInternalError, err.Error())
	}
	return &message.Response{ID: req.ID, JSONRPC: message.Version, Result: result}
}

func errorResponse(id json.RawMessage, code int, msg string) *message.Response {
	if id == nil {
		id = json.RawMessage("null")
	}
	return &message.Response{ID: id, JSONRPC: message.Version, Error: &message.RPCError{Code: code, Message: msg}}
}
