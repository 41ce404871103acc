package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"envelope-rpc/message"
)

// RetryMiddleware re-runs next on transient failures (timeouts, refused
// connections to downstream calls) with exponential backoff.
func RetryMiddleware(l zerolog.Logger, maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if resp.Error == "" || !retryable(resp.Error) {
					return resp
				}
				l.Warn().
					Int("attempt", i+1).
					Str("service_method", req.ServiceMethod()).
					Str("error", resp.Error).
					Msg("retrying request")

				select {
				case <-time.After(baseDelay * time.Duration(1<<i)):
				case <-ctx.Done():
					return resp
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}

func retryable(msg string) bool {
	return strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused")
}
