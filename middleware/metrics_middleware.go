package middleware

import (
	"context"
	"errors"
	"time"

	"lb-rpc/message"
	"lb-rpc/metrics"
	"lb-rpc/rpcerr"
)

// Metrics records the outcome and latency of every attempt.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if m == nil {
			return next
		}
		return func(ctx context.Context, call *message.Call) ([]byte, error) {
			start := time.Now()
			body, err := next(ctx, call)
			m.ObserveRequest(call.Endpoint, Outcome(err), time.Since(start))
			return body, err
		}
	}
}

// Outcome maps an attempt error to a metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, rpcerr.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	case errors.Is(err, rpcerr.ErrInvalidResponse):
		return metrics.OutcomeInvalidResponse
	default:
		return metrics.OutcomeConnection
	}
}
