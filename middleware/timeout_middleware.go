package middleware

import (
	"context"
	"time"

	"envelope-rpc/message"
)

const ErrMsgTimeout = "request timed out"

// TimeOutMiddleware bounds the handler by timeout. The envelope's own timeout
// is a caller-side setting and never reaches the server, so it plays no part.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return &message.Response{Error: ErrMsgTimeout}
			}
		}
	}
}
