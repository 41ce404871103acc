// Package message defines the call envelope exchanged between client and server.
//
// A Request carries two kinds of state. Transmitted state (the RequestBase, the
// target application and the request props) is what the codec layer serializes
// and what a receiver can rebuild from wire bytes alone. Local-only state (the
// resolved method handle, interface name, serializer selectors, invoke type,
// response callback and timeout override) exists for call-site bookkeeping and
// is never written to the wire.
//
// One Request is created per call. It is not synchronized: the calling goroutine
// owns it until it is handed to the transport, after which it is read-only until
// the call completes.
package message

// Invoke types understood by the dispatcher.
const (
	InvokeTypeSync     = "sync"
	InvokeTypeOneway   = "oneway"
	InvokeTypeCallback = "callback"
	InvokeTypeFuture   = "future"
)

// RequestBase is the transmitted identity of a call.
type RequestBase struct {
	ServiceName string            // e.g. "Arith"
	MethodName  string            // e.g. "Add"
	Args        [][]byte          // Argument values, each encoded by the caller
	ArgSigs     []string          // Optional argument type signatures
	Headers     map[string]string // Generic header bag
}

// ServiceMethod returns the "Service.Method" form used for routing and logs.
func (b *RequestBase) ServiceMethod() string {
	return b.ServiceName + "." + b.MethodName
}

// Header returns the header value for key, or "" when unset.
func (b *RequestBase) Header(key string) string {
	return b.Headers[key]
}

// SetHeader sets a header, allocating the bag on first use.
func (b *RequestBase) SetHeader(key, value string) {
	if b.Headers == nil {
		b.Headers = make(map[string]string)
	}
	b.Headers[key] = value
}

// Request is the call envelope.
type Request struct {
	RequestBase

	// Transmitted extension data.
	targetAppName    string
	hasTargetAppName bool
	requestProps     Props

	// Local-only state. None of it is serialized.
	method               any
	interfaceName        string
	serializeFactoryType int
	serializeType        byte
	invokeType           string
	responseCallback     ResponseCallback
	timeout              int
	hasTimeout           bool
}

// NewRequest creates an envelope for service.method with the given encoded args.
func NewRequest(serviceName, methodName string, args ...[]byte) *Request {
	return &Request{
		RequestBase: RequestBase{
			ServiceName: serviceName,
			MethodName:  methodName,
			Args:        args,
		},
	}
}

// TargetAppName returns the target application and whether it was set.
func (r *Request) TargetAppName() (string, bool) {
	return r.targetAppName, r.hasTargetAppName
}

// SetTargetAppName sets the target application. An empty name is a valid,
// present value; use ClearTargetAppName to mark it unspecified.
func (r *Request) SetTargetAppName(name string) {
	r.targetAppName = name
	r.hasTargetAppName = true
}

// ClearTargetAppName marks the target application as unspecified.
func (r *Request) ClearTargetAppName() {
	r.targetAppName = ""
	r.hasTargetAppName = false
}

// Method returns the resolved method handle cached for this call.
func (r *Request) Method() any {
	return r.method
}

// SetMethod stores the resolved method handle.
func (r *Request) SetMethod(m any) *Request {
	r.method = m
	return r
}

// InterfaceName returns the resolved interface, which may differ from ServiceName.
func (r *Request) InterfaceName() string {
	return r.interfaceName
}

func (r *Request) SetInterfaceName(name string) *Request {
	r.interfaceName = name
	return r
}

func (r *Request) SerializeFactoryType() int {
	return r.serializeFactoryType
}

func (r *Request) SetSerializeFactoryType(t int) *Request {
	r.serializeFactoryType = t
	return r
}

func (r *Request) SerializeType() byte {
	return r.serializeType
}

func (r *Request) SetSerializeType(t byte) *Request {
	r.serializeType = t
	return r
}

// InvokeType returns the invoke tag, "" when unset.
func (r *Request) InvokeType() string {
	return r.invokeType
}

// SetInvokeType stores the invoke tag as given. Unknown tags are accepted here
// and rejected by the dispatcher.
func (r *Request) SetInvokeType(t string) *Request {
	r.invokeType = t
	return r
}

func (r *Request) ResponseCallback() ResponseCallback {
	return r.responseCallback
}

// SetResponseCallback stores the callback without checking it against the
// invoke type.
func (r *Request) SetResponseCallback(cb ResponseCallback) *Request {
	r.responseCallback = cb
	return r
}

// Timeout returns the per-call timeout in milliseconds and whether it was set.
func (r *Request) Timeout() (int, bool) {
	return r.timeout, r.hasTimeout
}

// SetTimeout overrides the configured timeout for this call only.
func (r *Request) SetTimeout(ms int) *Request {
	r.timeout = ms
	r.hasTimeout = true
	return r
}

func (r *Request) ClearTimeout() *Request {
	r.timeout = 0
	r.hasTimeout = false
	return r
}

// IsAsync reports whether the call completes through a callback or a future.
// It is evaluated on every call because the invoke type may change before dispatch.
func (r *Request) IsAsync() bool {
	return r.invokeType == InvokeTypeCallback || r.invokeType == InvokeTypeFuture
}
