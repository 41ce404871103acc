package message

import "context"

// Response carries the result of one call back to the caller.
// Error is non-empty when the server-side handler or dispatch failed.
type Response struct {
	Error   string
	Payload []byte // Encoded reply
	Props   Props  // Optional response metadata
}

// ResponseCallback receives the outcome of a callback-style call.
// Exactly one of its methods is invoked per call.
type ResponseCallback interface {
	OnResponse(resp *Response, req *Request)
	OnError(err error, req *Request)
}

// CallbackFuncs adapts a pair of functions to ResponseCallback. Nil fields are skipped.
type CallbackFuncs struct {
	Response func(resp *Response, req *Request)
	Error    func(err error, req *Request)
}

func (c CallbackFuncs) OnResponse(resp *Response, req *Request) {
	if c.Response != nil {
		c.Response(resp, req)
	}
}

func (c CallbackFuncs) OnError(err error, req *Request) {
	if c.Error != nil {
		c.Error(err, req)
	}
}

// NewInbound builds an envelope from decoded transmitted fields. Every
// local-only slot is left at its zero value.
func NewInbound(base RequestBase, targetAppName string, hasTargetAppName bool, props Props) *Request {
	r := &Request{RequestBase: base}
	if hasTargetAppName {
		r.SetTargetAppName(targetAppName)
	}
	r.setRequestProps(props)
	return r
}

type requestKey struct{}

// NewContext returns a context carrying req, for handlers that need the
// inbound request props or headers.
func NewContext(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// FromContext returns the envelope stored by NewContext, if any.
func FromContext(ctx context.Context) (*Request, bool) {
	req, ok := ctx.Value(requestKey{}).(*Request)
	return req, ok
}
