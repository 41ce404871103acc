package server

import (
	"context"
	"fmt"
	"reflect"
)

// methodType is the resolved handle the server caches on each envelope.
type methodType struct {
	method      reflect.Method
	ArgType     reflect.Type
	ReplyType   reflect.Type
	withContext bool // method takes a leading context.Context
}

type service struct {
	name          string
	interfaceName string // Fully qualified receiver type, e.g. "example.com/calc.Arith"
	rcvr          reflect.Value
	typ           reflect.Type
	method        map[string]*methodType
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// newService scans rcvr for exported methods of the form
//
//	func (r *T) Name(args *A, reply *R) error
//	func (r *T) Name(ctx context.Context, args *A, reply *R) error
func newService(name string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	if name == "" {
		name = typ.Elem().Name()
	}
	srv := &service{
		name:          name,
		interfaceName: typ.Elem().PkgPath() + "." + typ.Elem().Name(),
		rcvr:          reflect.ValueOf(rcvr),
		typ:           typ,
		method:        make(map[string]*methodType),
	}
	srv.registerMethods()
	if len(srv.method) == 0 {
		return nil, fmt.Errorf("rpc: type %s has no exported methods of suitable type", srv.interfaceName)
	}
	return srv, nil
}

func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumOut() != 1 || mt.Out(0) != errorType {
			continue
		}

		first := 1
		withContext := false
		switch mt.NumIn() {
		case 3:
		case 4:
			if mt.In(1) != contextType {
				continue
			}
			first, withContext = 2, true
		default:
			continue
		}
		if mt.In(first).Kind() != reflect.Ptr || mt.In(first+1).Kind() != reflect.Ptr {
			continue
		}

		s.method[method.Name] = &methodType{
			method:      method,
			ArgType:     mt.In(first).Elem(),
			ReplyType:   mt.In(first + 1).Elem(),
			withContext: withContext,
		}
	}
}

func (s *service) call(ctx context.Context, mType *methodType, argv, replyv reflect.Value) error {
	var results []reflect.Value
	if mType.withContext {
		results = mType.method.Func.Call([]reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, replyv})
	} else {
		results = mType.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	}
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}
