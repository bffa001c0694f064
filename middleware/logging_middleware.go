package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lb-rpc/message"
)

func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) ([]byte, error) {
			start := time.Now()
			body, err := next(ctx, call)

			fields := []zap.Field{
				zap.String("call_id", call.ID),
				zap.String("endpoint", call.Endpoint),
				zap.String("method", call.Method),
				zap.Int("attempt", call.Attempt),
				zap.Duration("took", time.Since(start)),
			}
			if err != nil {
				logger.Warn("call attempt failed", append(fields, zap.Error(err))...)
				return body, err
			}
			logger.Debug("call attempt", fields...)
			return body, nil
		}
	}
}
