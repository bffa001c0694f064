package server

import (
	"strconv"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Chain is the fake chain state a dev node reports.
type Chain struct {
	height    atomic.Uint64
	chainID   uint64
	listening atomic.Bool
}

func NewChain(chainID, height uint64) *Chain {
	c := &Chain{chainID: chainID}
	c.height.Store(height)
	c.listening.Store(true)
	return c
}

func (c *Chain) Height() uint64          { return c.height.Load() }
func (c *Chain) SetHeight(h uint64)      { c.height.Store(h) }
func (c *Chain) Advance(n uint64) uint64 { return c.height.Add(n) }

// SetListening controls the net_listening answer.
func (c *Chain) SetListening(v bool) { c.listening.Store(v) }

// NoArgs accepts an empty (or ignored) params array.
type NoArgs []any

// Net serves the net_ namespace.
type Net struct{ chain *Chain }

func (n *Net) Listening(_ *NoArgs, reply *bool) error {
	*reply = n.chain.listening.Load()
	return nil
}

func (n *Net) Version(_ *NoArgs, reply *string) error {
	*reply = strconv.FormatUint(n.chain.chainID, 10)
	return nil
}

// Eth serves the parts of the eth_ namespace a health check needs.
type Eth struct{ chain *Chain }

func (e *Eth) BlockNumber(_ *NoArgs, reply *hexutil.Uint64) error {
	*reply = hexutil.Uint64(e.chain.Height())
	return nil
}

func (e *Eth) ChainId(_ *NoArgs, reply *hexutil.Uint64) error {
	*reply = hexutil.Uint64(e.chain.chainID)
	return nil
}

// Web3 serves web3_clientVersion.
type Web3 struct{}

func (w *Web3) ClientVersion(_ *NoArgs, reply *string) error {
	*reply = "lb-rpc/devnode"
	return nil
}
