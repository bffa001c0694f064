// Package client is a thin JSON-RPC façade over a load-balanced transport.
//
// It builds requests, interprets responses and decodes results; selection,
// health and failover all stay in the transport.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"lb-rpc/codec"
	"lb-rpc/message"
	"lb-rpc/rpcerr"
)

// Sender is satisfied by *transport.Provider.
type Sender interface {
	Send(ctx context.Context, payload any) (json.RawMessage, error)
}

type Client struct {
	sender Sender
	codec  codec.Codec
	ids    atomic.Uint64
}

func NewClient(sender Sender) *Client {
	return &Client{sender: sender, codec: codec.Default}
}

// Call invokes method and decodes its result into result, which may be nil.
// A JSON-RPC error object is returned as *message.RPCError.
func (c *Client) Call(ctx context.Context, result any, method string, params ...any) error {
	raw, err := c.sender.Send(ctx, message.NewRequest(c.ids.Add(1), method, params...))
	if err != nil {
		return err
	}

	var resp message.Response
	if err := c.codec.Decode(raw, &resp); err != nil {
		return rpcerr.InvalidResponse("", raw, err)
	}
	return c.decodeResult(&resp, raw, result)
}

func (c *Client) decodeResult(resp *message.Response, raw []byte, result any) error {
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		return rpcerr.InvalidResponse("", raw, errors.New("missing result"))
	}
	if err := c.codec.Decode(resp.Result, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

// BatchElem is one call of a batch. Error is set per element.
type BatchElem struct {
	Method string
	Args   []any
	Result any
	Error  error
}

// BatchCall sends all elements in one request. The returned error only covers
// the transport; per-call failures land in each element's Error.
func (c *Client) BatchCall(ctx context.Context, batch []BatchElem) error {
	if len(batch) == 0 {
		return nil
	}
	reqs := make([]*message.Request, len(batch))
	index := make(map[uint64]int, len(batch))
	for i := range batch {
		id := c.ids.Add(1)
		reqs[i] = message.NewRequest(id, batch[i].Method, batch[i].Args...)
		index[id] = i
	}

	raw, err := c.sender.Send(ctx, reqs)
	if err != nil {
		return err
	}
	var resps []message.Response
	if err := c.codec.Decode(raw, &resps); err != nil {
		return rpcerr.InvalidResponse("", raw, err)
	}

	seen := make([]bool, len(batch))
	for i := range resps {
		var id uint64
		if err := c.codec.Decode(resps[i].ID, &id); err != nil {
			continue
		}
		at, ok := index[id]
		if !ok {
			continue
		}
		seen[at] = true
		batch[at].Error = c.decodeResult(&resps[i], resps[i].Result, batch[at].Result)
	}
	for i := range batch {
		if !seen[i] {
			batch[i].Error = errors.New("missing response in batch")
		}
	}
	return nil
}

// BlockNumber returns the height of whichever node served the call.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var height hexutil.Uint64
	if err := c.Call(ctx, &height, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(height), nil
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := c.Call(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (c *Client) Listening(ctx context.Context) (bool, error) {
	var ok bool
	err := c.Call(ctx, &ok, "net_listening")
	return ok, err
}
