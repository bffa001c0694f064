// Package rpcerr defines the error kinds surfaced by the load-balanced transport.
//
// Every error carries a Kind so callers can branch with errors.Is against the
// sentinels below, regardless of which endpoint produced it:
//
//	if errors.Is(err, rpcerr.ErrTimeout) { ... }
package rpcerr

import (
	"fmt"
	"time"
)

// Kind classifies a transport failure.
type Kind uint8

const (
	KindConfiguration   Kind = iota + 1 // Empty pool, bad strategy, mixed weights
	KindConnection                      // Request could not be issued / endpoints exhausted
	KindInvalidResponse                 // Response body is not valid JSON
	KindTimeout                         // Call exceeded its deadline
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindInvalidResponse:
		return "invalid response"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrConfiguration   = &Error{Kind: KindConfiguration}
	ErrConnection      = &Error{Kind: KindConnection}
	ErrInvalidResponse = &Error{Kind: KindInvalidResponse}
	ErrTimeout         = &Error{Kind: KindTimeout}
)

// Error is a classified transport error.
type Error struct {
	Kind     Kind
	Endpoint string // Node URL involved, empty when not endpoint specific
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindConnection:
		if e.Endpoint == "" {
			return "CONNECTION ERROR: " + e.detailOr("no valid endpoints")
		}
		if e.Err != nil {
			return fmt.Sprintf("CONNECTION ERROR: couldn't connect to node %s: %v", e.Endpoint, e.Err)
		}
		return "CONNECTION ERROR: couldn't connect to node " + e.Endpoint
	case KindInvalidResponse:
		return "invalid JSON RPC response: " + e.detailOr("<empty>")
	case KindTimeout:
		return "CONNECTION TIMEOUT: " + e.detailOr("deadline exceeded")
	case KindConfiguration:
		return e.detailOr("invalid configuration")
	default:
		return e.detailOr("unknown error")
	}
}

func (e *Error) detailOr(fallback string) string {
	if e.Detail != "" {
		return e.Detail
	}
	return fallback
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Configuration builds a configuration error with the given message.
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Detail: fmt.Sprintf(format, args...)}
}

// InvalidConnection reports that a request to endpoint could not be issued.
func InvalidConnection(endpoint string, err error) *Error {
	return &Error{Kind: KindConnection, Endpoint: endpoint, Err: err}
}

// NoValidEndpoints reports that the valid-endpoint set is empty.
func NoValidEndpoints() *Error {
	return &Error{Kind: KindConnection, Detail: "no valid endpoints"}
}

// InvalidResponse reports a body that could not be decoded. Long bodies are truncated.
func InvalidResponse(endpoint string, body []byte, err error) *Error {
	const max = 256
	detail := string(body)
	if len(detail) > max {
		detail = detail[:max] + "..."
	}
	return &Error{Kind: KindInvalidResponse, Endpoint: endpoint, Detail: detail, Err: err}
}

// ConnectionTimeout reports that a call to endpoint exceeded timeout.
// A zero timeout means the deadline came from the caller's context.
func ConnectionTimeout(endpoint string, timeout time.Duration, err error) *Error {
	detail := "deadline exceeded on " + endpoint
	if timeout > 0 {
		detail = fmt.Sprintf("timeout of %s achieved on %s", timeout, endpoint)
	}
	return &Error{Kind: KindTimeout, Endpoint: endpoint, Detail: detail, Err: err}
}
