package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lb-rpc/message"
	"lb-rpc/rpcerr"
)

// stubSender answers every Send with a fixed body and remembers the payload.
type stubSender struct {
	body    string
	err     error
	payload any
}

func (s *stubSender) Send(_ context.Context, payload any) (json.RawMessage, error) {
	s.payload = payload
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.body), nil
}

func TestCall(t *testing.T) {
	s := &stubSender{body: `{"jsonrpc":"2.0","id":1,"result":"0x2a"}`}
	c := NewClient(s)

	height, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), height)

	req, ok := s.payload.(*message.Request)
	require.True(t, ok)
	assert.Equal(t, "eth_blockNumber", req.Method)
	assert.Equal(t, []any{}, req.Params)
}

func TestCallIDsIncrease(t *testing.T) {
	s := &stubSender{body: `{"jsonrpc":"2.0","id":1,"result":true}`}
	c := NewClient(s)

	_, _ = c.Listening(context.Background())
	first := s.payload.(*message.Request).ID
	_, _ = c.Listening(context.Background())
	assert.Greater(t, s.payload.(*message.Request).ID, first)
}

func TestCallRPCError(t *testing.T) {
	c := NewClient(&stubSender{body: `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"header not found"}}`})

	err := c.Call(context.Background(), nil, "eth_getBlockByNumber", "0x1", false)
	var rpcErr *message.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32000, rpcErr.Code)
}

func TestCallTransportError(t *testing.T) {
	c := NewClient(&stubSender{err: rpcerr.NoValidEndpoints()})

	_, err := c.BlockNumber(context.Background())
	assert.ErrorIs(t, err, rpcerr.ErrConnection)
}

func TestCallBadResult(t *testing.T) {
	c := NewClient(&stubSender{body: `{"jsonrpc":"2.0","id":1,"result":"not-hex"}`})
	_, err := c.BlockNumber(context.Background())
	assert.Error(t, err)

	c = NewClient(&stubSender{body: `{"jsonrpc":"2.0","id":1}`})
	_, err = c.BlockNumber(context.Background())
	assert.ErrorIs(t, err, rpcerr.ErrInvalidResponse)

	c = NewClient(&stubSender{body: `[1,2]`})
	_, err = c.BlockNumber(context.Background())
	assert.ErrorIs(t, err, rpcerr.ErrInvalidResponse)
}

func TestBatchCallStub(t *testing.T) {
	// ids start at 1 and responses come back out of order
	s := &stubSender{body: `[
		{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"nope"}},
		{"jsonrpc":"2.0","id":1,"result":"0x10"}
	]`}
	c := NewClient(s)

	var height string
	batch := []BatchElem{
		{Method: "eth_blockNumber", Result: &height},
		{Method: "eth_nope"},
		{Method: "eth_missing"},
	}
	require.NoError(t, c.BatchCall(context.Background(), batch))
	assert.NoError(t, batch[0].Error)
	assert.Equal(t, "0x10", height)
	assert.Error(t, batch[1].Error)
	assert.Error(t, batch[2].Error)

	assert.NoError(t, c.BatchCall(context.Background(), nil))

	s.err = errors.New("boom")
	assert.Error(t, c.BatchCall(context.Background(), batch))
}
