// Package middleware wraps a single call attempt against one endpoint.
//
// The transport builds the innermost HandlerFunc (wire round trip plus response
// check) and wraps it with the configured chain. Every attempt of a failover
// loop passes through the full chain again.
package middleware

import (
	"context"

	"lb-rpc/message"
)

// HandlerFunc performs one attempt and returns the raw response body.
type HandlerFunc func(ctx context.Context, call *message.Call) ([]byte, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
