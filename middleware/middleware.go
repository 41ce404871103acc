// Package middleware wraps the server's business handler. Middlewares compose
// like an onion: Chain(A, B)(h) runs A, then B, then h, and unwinds in reverse.
package middleware

import (
	"context"

	"envelope-rpc/message"
)

// HandlerFunc serves one resolved envelope.
type HandlerFunc func(ctx context.Context, req *message.Request) *message.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one given runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
