// Package message defines the JSON-RPC 2.0 envelopes exchanged with backend nodes.
//
// Request is what the client sends, Response is what a node answers. Call is the
// unit handed through the middleware chain: an encoded body bound to one endpoint.
package message

import (
	"encoding/json"
	"strconv"
)

const Version = "2.0"

// Request is a JSON-RPC 2.0 request. Params is always a positional array.
type Request struct {
	ID      uint64 `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// NewRequest builds a request. Missing params encode as [] rather than null.
func NewRequest(id uint64, method string, params ...any) *Request {
	if params == nil {
		params = []any{}
	}
	return &Request{ID: id, JSONRPC: Version, Method: method, Params: params}
}

// Response is a JSON-RPC 2.0 response. ID is kept raw since nodes echo it back
// as number or string.
type Response struct {
	ID      json.RawMessage `json:"id,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return "json-rpc error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// Standard JSON-RPC error codes used by the dev node.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Call is one attempt of sending Body to Endpoint.
//
//   - Method is informational (logging, metrics); Body is already encoded.
//   - Attempt starts at 1 and grows with each failover.
type Call struct {
	ID       string // Correlates all attempts of one Send
	Endpoint string
	Method   string
	Body     []byte
	Attempt  int
}
