package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"lb-rpc/message"
	"lb-rpc/middleware"
	"lb-rpc/registry"
)

type Args []int

type Arith struct{}

func (a *Arith) Add(args *Args, reply *int) error {
	for _, v := range *args {
		*reply += v
	}
	return nil
}

func (a *Arith) Fail(_ *NoArgs, _ *int) error {
	return &message.RPCError{Code: -32010, Message: "always fails"}
}

func (a *Arith) Panicky(_ *NoArgs, _ *int) error {
	return errors.New("plain error")
}

// not exported as an RPC method: wrong signature
func (a *Arith) Helper() int { return 0 }

func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String()
}

func post(t *testing.T, url, body string) (int, []byte) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBodyString(body)
	require.NoError(t, fasthttp.DoTimeout(req, resp, 2*time.Second))
	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func decode(t *testing.T, body []byte) *message.Response {
	t.Helper()
	var resp message.Response
	require.NoError(t, json.Unmarshal(body, &resp), string(body))
	return &resp
}

func TestRegister(t *testing.T) {
	s := NewServer(nil)
	require.NoError(t, s.Register("arith", &Arith{}))

	svc := s.serviceMap["arith"]
	require.NotNil(t, svc)
	assert.Contains(t, svc.method, "add")
	assert.Contains(t, svc.method, "fail")
	assert.NotContains(t, svc.method, "helper")

	assert.Error(t, s.Register("arith", Arith{}))
	assert.Error(t, s.Register("", &Arith{}))
	assert.Error(t, s.Register("empty", &struct{}{}))
}

func TestDevNodeProbes(t *testing.T) {
	chain := NewChain(1, 0x1b4)
	url := startServer(t, NewDevNode(chain, nil))

	status, body := post(t, url, `{"jsonrpc":"2.0","id":9999999999,"method":"net_listening","params":[]}`)
	assert.Equal(t, fasthttp.StatusOK, status)
	resp := decode(t, body)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `true`, string(resp.Result))
	assert.Equal(t, "9999999999", string(resp.ID))

	_, body = post(t, url, `{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber","params":[]}`)
	assert.JSONEq(t, `"0x1b4"`, string(decode(t, body).Result))

	chain.Advance(2)
	_, body = post(t, url, `{"jsonrpc":"2.0","id":2,"method":"eth_blockNumber"}`)
	assert.JSONEq(t, `"0x1b6"`, string(decode(t, body).Result))

	_, body = post(t, url, `{"jsonrpc":"2.0","id":3,"method":"net_version","params":[]}`)
	assert.JSONEq(t, `"1"`, string(decode(t, body).Result))

	chain.SetListening(false)
	_, body = post(t, url, `{"jsonrpc":"2.0","id":4,"method":"net_listening","params":[]}`)
	assert.JSONEq(t, `false`, string(decode(t, body).Result))
}

func TestDispatchErrors(t *testing.T) {
	s := NewServer(nil)
	require.NoError(t, s.Register("arith", &Arith{}))
	url := startServer(t, s)

	cases := []struct {
		body string
		code int
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"arith_nope","params":[]}`, message.CodeMethodNotFound},
		{`{"jsonrpc":"2.0","id":1,"method":"nonamespace","params":[]}`, message.CodeMethodNotFound},
		{`{"jsonrpc":"2.0","id":1,"method":"arith_add","params":{"a":1}}`, message.CodeInvalidParams},
		{`{"jsonrpc":"1.0","id":1,"method":"arith_add","params":[]}`, message.CodeInvalidRequest},
		{`{not json`, message.CodeParseError},
		{`{"jsonrpc":"2.0","id":1,"method":"arith_fail","params":[]}`, -32010},
		{`{"jsonrpc":"2.0","id":1,"method":"arith_panicky","params":[]}`, message.CodeInternalError},
	}
	for _, tc := range cases {
		_, body := post(t, url, tc.body)
		resp := decode(t, body)
		require.NotNil(t, resp.Error, tc.body)
		assert.Equal(t, tc.code, resp.Error.Code, tc.body)
	}

	_, body := post(t, url, `{"jsonrpc":"2.0","id":"x","method":"arith_add","params":[1,2,3]}`)
	resp := decode(t, body)
	assert.JSONEq(t, `6`, string(resp.Result))
	assert.Equal(t, `"x"`, string(resp.ID))
}

func TestBatch(t *testing.T) {
	url := startServer(t, NewDevNode(NewChain(1, 16), nil))

	_, body := post(t, url, `[
		{"jsonrpc":"2.0","id":1,"method":"eth_blockNumber","params":[]},
		{"jsonrpc":"2.0","id":2,"method":"eth_chainId","params":[]},
		{"jsonrpc":"2.0","id":3,"method":"eth_unknown","params":[]}
	]`)

	var batch []message.Response
	require.NoError(t, json.Unmarshal(body, &batch))
	require.Len(t, batch, 3)
	assert.JSONEq(t, `"0x10"`, string(batch[0].Result))
	assert.JSONEq(t, `"0x1"`, string(batch[1].Result))
	require.NotNil(t, batch[2].Error)
	assert.Equal(t, message.CodeMethodNotFound, batch[2].Error.Code)

	_, body = post(t, url, `[]`)
	assert.Equal(t, message.CodeInvalidRequest, decode(t, body).Error.Code)
}

func TestFaults(t *testing.T) {
	s := NewDevNode(NewChain(1, 1), nil)
	url := startServer(t, s)
	probe := `{"jsonrpc":"2.0","id":1,"method":"net_listening","params":[]}`

	s.SetFault(FaultGarbage)
	status, body := post(t, url, probe)
	assert.Equal(t, fasthttp.StatusBadGateway, status)
	assert.False(t, json.Valid(body))

	s.SetFault(FaultRPCError)
	_, body = post(t, url, probe)
	assert.NotNil(t, decode(t, body).Error)

	s.SetFault(FaultHang)
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetBodyString(probe)
	err := fasthttp.DoTimeout(req, resp, 100*time.Millisecond)
	assert.ErrorIs(t, err, fasthttp.ErrTimeout)

	s.SetFault(FaultNone)
	_, body = post(t, url, probe)
	assert.Nil(t, decode(t, body).Error)
}

func TestParseFault(t *testing.T) {
	for _, f := range []Fault{FaultNone, FaultGarbage, FaultHang, FaultRPCError} {
		got, err := ParseFault(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFault("explode")
	assert.Error(t, err)
}

func TestMiddlewareRejects(t *testing.T) {
	s := NewDevNode(NewChain(1, 1), nil)
	s.Use(middleware.Timeout(20 * time.Millisecond))
	s.Use(middleware.RateLimit(0.001, 1))
	url := startServer(t, s)

	probe := `{"jsonrpc":"2.0","id":1,"method":"net_listening","params":[]}`
	status, _ := post(t, url, probe)
	assert.Equal(t, fasthttp.StatusOK, status)

	// bucket is empty and the timeout is shorter than the refill
	status, body := post(t, url, probe)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, status)
	assert.NotNil(t, decode(t, body).Error)
}

func TestAdvertise(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	s := NewDevNode(NewChain(1, 1), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	node := registry.Node{URL: "http://" + ln.Addr().String()}
	s.Advertise(reg, "dev", node)
	go func() { _ = s.Serve(ln) }()

	assert.Eventually(t, func() bool {
		nodes, _ := reg.Discover(context.Background(), "dev")
		return len(nodes) == 1 && nodes[0] == node
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	nodes, _ := reg.Discover(context.Background(), "dev")
	assert.Empty(t, nodes)
}
