package middleware

import (
	"context"
	"errors"
	"time"

	"lb-rpc/message"
	"lb-rpc/rpcerr"
)

// Timeout bounds one attempt. A non-positive timeout disables it.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, call *message.Call) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				body []byte
				err  error
			}
			done := make(chan result, 1)
			go func() {
				body, err := next(ctx, call)
				done <- result{body, err}
			}()

			select {
			case r := <-done:
				return r.body, r.err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, rpcerr.ConnectionTimeout(call.Endpoint, timeout, ctx.Err())
				}
				return nil, ctx.Err()
			}
		}
	}
}
