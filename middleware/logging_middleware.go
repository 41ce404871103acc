package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"envelope-rpc/message"
)

// LoggingMiddleware logs each call with its duration, target app and outcome.
func LoggingMiddleware(l zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)

			var ev *zerolog.Event
			if resp.Error != "" {
				ev = l.Warn().Str("error", resp.Error)
			} else {
				ev = l.Debug()
			}
			if app, ok := req.TargetAppName(); ok {
				ev = ev.Str("target_app", app)
			}
			ev.Str("service_method", req.ServiceMethod()).
				Int("props", len(req.RequestProps())).
				Dur("duration", time.Since(start)).
				Msg("request handled")
			return resp
		}
	}
}
