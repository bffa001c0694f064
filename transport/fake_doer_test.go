package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"lb-rpc/message"
	"lb-rpc/rpcerr"
)

// fakeNode scripts how one endpoint behaves.
type fakeNode struct {
	height    uint64
	dead      bool // every request fails to connect
	failCalls bool // probes work, other calls fail to connect
	garbage   bool // other calls answer with a non-JSON body
	hang      bool // other calls block until the context ends
	rpcError  bool // liveness probe answers with an error member

	heightResult string // raw JSON result of the height probe, overrides height
}

// fakeDoer answers in place of real nodes and counts non-probe calls.
type fakeDoer struct {
	mu    sync.Mutex
	nodes map[string]*fakeNode
	calls map[string]int
}

func newFakeDoer(nodes map[string]*fakeNode) *fakeDoer {
	return &fakeDoer{nodes: nodes, calls: make(map[string]int)}
}

func (f *fakeDoer) set(url string, n *fakeNode) {
	f.mu.Lock()
	f.nodes[url] = n
	f.mu.Unlock()
}

func (f *fakeDoer) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeDoer) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, c := range f.calls {
		total += c
	}
	return total
}

func isProbe(method string) bool {
	return method == DefaultListeningMethod || method == DefaultHeightMethod
}

func (f *fakeDoer) Do(ctx context.Context, url string, body []byte) ([]byte, error) {
	var req message.Request
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	var n fakeNode
	known := f.nodes[url] != nil
	if known {
		n = *f.nodes[url]
	}
	if !isProbe(req.Method) {
		f.calls[url]++
	}
	f.mu.Unlock()

	if !known || n.dead {
		return nil, rpcerr.InvalidConnection(url, errors.New("connection refused"))
	}

	switch req.Method {
	case DefaultListeningMethod:
		if n.rpcError {
			return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32000,"message":"syncing"}}`, req.ID)), nil
		}
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":true}`, req.ID)), nil
	case DefaultHeightMethod:
		if n.heightResult != "" {
			return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, n.heightResult)), nil
		}
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%q}`, req.ID, hexutil.EncodeUint64(n.height))), nil
	}

	switch {
	case n.hang:
		<-ctx.Done()
		return nil, rpcerr.ConnectionTimeout(url, 0, ctx.Err())
	case n.failCalls:
		return nil, rpcerr.InvalidConnection(url, errors.New("connection reset by peer"))
	case n.garbage:
		return []byte("<html>502 Bad Gateway</html>"), nil
	}
	// echo the endpoint so tests can tell who answered
	return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%q}`, req.ID, url)), nil
}
