package server

import (
	"errors"
	"fmt"

	"envelope-rpc/message"
)

var (
	ErrInvalidRequest  = errors.New("rpc: service and method are required")
	ErrServiceNotFound = errors.New("rpc: service not found")
	ErrMethodNotFound  = errors.New("rpc: method not found")
)

// Resolver fills the envelope's method handle and interface name from the
// registered services. The service map must not change once serving starts.
type Resolver struct {
	services map[string]*service
}

func newResolver() *Resolver {
	return &Resolver{services: make(map[string]*service)}
}

// Resolve returns the method for req, caching it on the envelope so a second
// call does no lookup.
func (r *Resolver) Resolve(req *message.Request) (*methodType, error) {
	if m, ok := req.Method().(*methodType); ok {
		return m, nil
	}
	if req.ServiceName == "" || req.MethodName == "" {
		return nil, ErrInvalidRequest
	}
	svc, ok := r.services[req.ServiceName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, req.ServiceName)
	}
	m, ok := svc.method[req.MethodName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMethodNotFound, req.ServiceMethod())
	}
	req.SetMethod(m).SetInterfaceName(svc.interfaceName)
	return m, nil
}
