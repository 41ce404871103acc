package middleware

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"envelope-rpc/message"
)

func echoHandler(ctx context.Context, req *message.Request) *message.Response {
	return &message.Response{Payload: []byte("ok")}
}

func slowHandler(ctx context.Context, req *message.Request) *message.Response {
	time.Sleep(200 * time.Millisecond)
	return &message.Response{Payload: []byte("ok")}
}

func newReq() *message.Request {
	return message.NewRequest("Arith", "Add")
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(zerolog.Nop())(echoHandler)

	req := newReq()
	req.SetTargetAppName("calc")
	resp := handler(context.Background(), req)

	if resp == nil || string(resp.Payload) != "ok" {
		t.Fatalf("expect payload 'ok', got %+v", resp)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), newReq())
	if resp.Error != "" {
		t.Fatalf("expect no error, got '%s'", resp.Error)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), newReq())
	if resp.Error != ErrMsgTimeout {
		t.Fatalf("expect timeout error, got '%s'", resp.Error)
	}
}

func TestTimeoutIgnoresCallerTimeout(t *testing.T) {
	// A caller-side timeout left on an in-process envelope does not extend the server bound.
	handler := TimeOutMiddleware(10 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), newReq().SetTimeout(1000))
	if resp.Error != ErrMsgTimeout {
		t.Fatalf("expect server timeout, got '%s'", resp.Error)
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	req := newReq()

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), req)
		if resp.Error != "" {
			t.Fatalf("request %d should pass, got error: %s", i, resp.Error)
		}
	}

	resp := handler(context.Background(), req)
	if resp.Error != ErrMsgRateLimited {
		t.Fatalf("request 3 should be rate limited, got: '%s'", resp.Error)
	}
}

func TestRetry(t *testing.T) {
	var calls atomic.Int32
	flaky := func(ctx context.Context, req *message.Request) *message.Response {
		if calls.Add(1) < 3 {
			return &message.Response{Error: ErrMsgTimeout}
		}
		return &message.Response{Payload: []byte("ok")}
	}

	resp := RetryMiddleware(zerolog.Nop(), 3, time.Millisecond)(flaky)(context.Background(), newReq())
	if resp.Error != "" {
		t.Fatalf("expect success after retries, got '%s'", resp.Error)
	}
	if calls.Load() != 3 {
		t.Fatalf("expect 3 calls, got %d", calls.Load())
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	broken := func(ctx context.Context, req *message.Request) *message.Response {
		calls.Add(1)
		return &message.Response{Error: "unknown method"}
	}

	resp := RetryMiddleware(zerolog.Nop(), 3, time.Millisecond)(broken)(context.Background(), newReq())
	if resp.Error != "unknown method" || calls.Load() != 1 {
		t.Fatalf("expect one call with permanent error, got %d calls, '%s'", calls.Load(), resp.Error)
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *message.Request) *message.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	handler := Chain(mark("a"), LoggingMiddleware(zerolog.Nop()), mark("b"), TimeOutMiddleware(500*time.Millisecond))(echoHandler)
	resp := handler(context.Background(), newReq())

	if resp.Error != "" {
		t.Fatalf("expect no error, got '%s'", resp.Error)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expect [a b], got %v", order)
	}
}
