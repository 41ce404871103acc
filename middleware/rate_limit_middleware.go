package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"envelope-rpc/message"
)

const ErrMsgRateLimited = "rate limit exceeded"

// RateLimitMiddleware rejects calls beyond r per second with a token bucket of size burst.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			if !limiter.Allow() {
				return &message.Response{Error: ErrMsgRateLimited}
			}
			return next(ctx, req)
		}
	}
}
