package client

import (
	"context"

	"envelope-rpc/message"
)

// Future is the pending result of a future-style call. The reply passed to
// Invoke is filled before Done is closed.
type Future struct {
	done chan struct{}
	resp *message.Response
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(resp *message.Response, err error) {
	f.resp, f.err = resp, err
	close(f.done)
}

// Done is closed once the call has completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get waits for the call or for ctx, whichever ends first.
func (f *Future) Get(ctx context.Context) (*message.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
