package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"lb-rpc/message"
	"lb-rpc/rpcerr"
)

// RateLimit throttles outgoing attempts with a token bucket shared by all
// endpoints. Calls wait for a token; a wait that cannot finish before the
// context deadline fails as a timeout. r <= 0 disables the limit.
func RateLimit(r float64, burst int) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if r <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(r), burst)
		return func(ctx context.Context, call *message.Call) ([]byte, error) {
			if err := limiter.Wait(ctx); err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil, ctx.Err()
				}
				return nil, rpcerr.ConnectionTimeout(call.Endpoint, 0, err)
			}
			return next(ctx, call)
		}
	}
}
