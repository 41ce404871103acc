// Package server implements the RPC server: service registration, method
// resolution onto the call envelope, a middleware chain, pooled request
// execution and graceful shutdown.
//
// Request pipeline:
//
//	Accept conn → handleConn (one reader goroutine per conn)
//	  → worker pool: codec.DecodeRequest → Resolver.Resolve → middleware chain
//	    → businessHandler (reflect.Call) → codec.EncodeResponse → write frame
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"envelope-rpc/codec"
	"envelope-rpc/logger"
	"envelope-rpc/message"
	"envelope-rpc/middleware"
	"envelope-rpc/protocol"
	"envelope-rpc/registry"
)

type Server struct {
	resolver      *Resolver
	mu            sync.Mutex // Guards listener, conns and the shutdown/wg.Add ordering
	listener      net.Listener
	conns         map[net.Conn]struct{}
	wg            sync.WaitGroup // In-flight requests
	shutdown      atomic.Bool
	middlewares   []middleware.Middleware
	handler       middleware.HandlerFunc // Built once in Serve
	pool          *ants.Pool
	registry      registry.Registry
	advertiseAddr string // Routable address published to the registry
	appName       string
	version       string
	weight        int
	registerTTL   int64
	log           zerolog.Logger
}

type Option func(*Server)

// WithWorkers bounds the number of requests executed concurrently.
func WithWorkers(n int) Option {
	return func(s *Server) {
		if n > 0 {
			pool, err := ants.NewPool(n)
			if err == nil {
				s.pool.Release()
				s.pool = pool
			}
		}
	}
}

// WithInstance sets what the server publishes about itself to the registry.
func WithInstance(appName, version string, weight int) Option {
	return func(s *Server) {
		s.appName, s.version, s.weight = appName, version, weight
	}
}

func WithRegisterTTL(seconds int64) Option {
	return func(s *Server) { s.registerTTL = seconds }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

const defaultWorkers = 256

func NewServer(opts ...Option) *Server {
	// NewPool only fails on a non-positive size.
	pool, _ := ants.NewPool(defaultWorkers)
	s := &Server{
		resolver:    newResolver(),
		conns:       make(map[net.Conn]struct{}),
		pool:        pool,
		weight:      10,
		registerTTL: 10,
		log:         logger.WithComponent("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register exposes rcvr under its type name, e.g. &Arith{} as "Arith".
func (svr *Server) Register(rcvr any) error {
	return svr.RegisterName("", rcvr)
}

// RegisterName exposes rcvr under name. It must be called before Serve.
func (svr *Server) RegisterName(name string, rcvr any) error {
	svc, err := newService(name, rcvr)
	if err != nil {
		return err
	}
	svr.resolver.services[svc.name] = svc
	return nil
}

// Use adds a middleware; the first one added runs outermost.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and blocks in the accept loop. When reg is non-nil
// every registered service is published under advertiseAddr.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	svr.mu.Lock()
	svr.listener = listener
	svr.mu.Unlock()

	svr.advertiseAddr = advertiseAddr
	if reg != nil {
		svr.registry = reg
		for serviceName := range svr.resolver.services {
			err := svr.registry.Register(serviceName, registry.ServiceInstance{
				Addr:    advertiseAddr,
				Weight:  svr.weight,
				Version: svr.version,
				AppName: svr.appName,
			}, svr.registerTTL)
			if err != nil {
				listener.Close()
				return fmt.Errorf("register %s: %w", serviceName, err)
			}
		}
	}
	svr.log.Info().Str("addr", listener.Addr().String()).Msg("serving")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// Addr returns the listener address once Serve is listening.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// handleConn reads frames sequentially and hands each request to the pool.
// Responses share writeMu so frames from concurrent requests never interleave.
func (svr *Server) handleConn(conn net.Conn) {
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		conn.Close()
		return
	}
	svr.conns[conn] = struct{}{}
	svr.mu.Unlock()
	defer func() {
		svr.mu.Lock()
		delete(svr.conns, conn)
		svr.mu.Unlock()
		conn.Close()
	}()

	writeMu := &sync.Mutex{}
	for {
		header, body, err := protocol.Decode(conn)
		if err != nil {
			svr.log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("connection closed")
			return
		}

		switch header.MsgType {
		case protocol.MsgTypeHeartbeat:
			continue
		case protocol.MsgTypeRequest, protocol.MsgTypeOneway:
		default:
			svr.log.Warn().Uint8("msg_type", uint8(header.MsgType)).Msg("unexpected frame from client")
			continue
		}

		// Add only while Shutdown has not started waiting. Later frames are
		// dropped; the conn stays open for replies still being written.
		svr.mu.Lock()
		if svr.shutdown.Load() {
			svr.mu.Unlock()
			continue
		}
		svr.wg.Add(1)
		svr.mu.Unlock()
		if err := svr.pool.Submit(func() {
			defer svr.wg.Done()
			svr.handleRequest(header, body, conn, writeMu)
		}); err != nil {
			svr.wg.Done()
			svr.log.Error().Err(err).Msg("worker pool rejected request")
			if header.MsgType == protocol.MsgTypeRequest {
				svr.writeResponse(header, &message.Response{Error: "server busy"}, conn, writeMu)
			}
		}
	}
}

// handleRequest decodes one envelope, resolves it, runs the chain and
// answers unless the frame was oneway.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	var resp *message.Response
	c, err := codec.Select(int(header.FactoryType), header.CodecType)
	if err != nil {
		resp = &message.Response{Error: err.Error()}
	} else if req, err := c.DecodeRequest(body); err != nil {
		resp = &message.Response{Error: "decode request: " + err.Error()}
	} else if _, err := svr.resolver.Resolve(req); err != nil {
		svr.log.Warn().Err(err).Str("service_method", req.ServiceMethod()).Msg("unresolvable request")
		resp = &message.Response{Error: err.Error()}
	} else {
		resp = svr.handler(message.NewContext(context.Background(), req), req)
	}

	if header.MsgType == protocol.MsgTypeOneway {
		return
	}
	svr.writeResponse(header, resp, conn, writeMu)
}

func (svr *Server) writeResponse(header *protocol.Header, resp *message.Response, conn net.Conn, writeMu *sync.Mutex) {
	c, err := codec.Select(int(header.FactoryType), header.CodecType)
	if err != nil {
		c = &codec.JSONCodec{}
		header = &protocol.Header{CodecType: protocol.CodecTypeJSON, Seq: header.Seq}
	}
	result, err := c.EncodeResponse(resp)
	if err != nil {
		svr.log.Error().Err(err).Msg("failed to encode response")
		return
	}

	replyHeader := protocol.Header{
		CodecType:   header.CodecType,
		FactoryType: header.FactoryType,
		MsgType:     protocol.MsgTypeResponse,
		Seq:         header.Seq,
		BodyLen:     uint32(len(result)),
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if err := protocol.Encode(conn, &replyHeader, result); err != nil {
		svr.log.Warn().Err(err).Msg("failed to write response")
	}
}

// Shutdown deregisters from the registry first so clients stop routing here,
// closes the listener, then waits up to timeout for in-flight requests.
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil {
		for serviceName := range svr.resolver.services {
			if err := svr.registry.Deregister(serviceName, svr.advertiseAddr); err != nil {
				svr.log.Warn().Err(err).Str("service", serviceName).Msg("deregister failed")
			}
		}
	}

	// The flag must be set before Close so Serve treats the Accept error as
	// intentional, and under mu so no reader can wg.Add once Wait starts.
	svr.mu.Lock()
	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}
	svr.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		svr.pool.Release()
	case <-time.After(timeout):
		err = errors.New("timeout waiting for ongoing requests to finish")
	}
	svr.closeConns()
	return err
}

// closeConns ends every reader goroutine still blocked on a client.
func (svr *Server) closeConns() {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	for conn := range svr.conns {
		conn.Close()
	}
}

// businessHandler decodes the first argument into the method's arg type,
// invokes it and encodes the reply as JSON.
func (svr *Server) businessHandler(ctx context.Context, req *message.Request) *message.Response {
	method, err := svr.resolver.Resolve(req)
	if err != nil {
		return &message.Response{Error: err.Error()}
	}
	svc := svr.resolver.services[req.ServiceName]

	argv := reflect.New(method.ArgType)
	replyv := reflect.New(method.ReplyType)

	if len(req.Args) > 0 {
		if err := json.Unmarshal(req.Args[0], argv.Interface()); err != nil {
			return &message.Response{Error: "decode args: " + err.Error()}
		}
	}

	methodErr := svc.call(ctx, method, argv, replyv)

	payload, err := json.Marshal(replyv.Interface())
	if err != nil {
		return &message.Response{Error: "encode reply: " + err.Error()}
	}

	resp := &message.Response{Payload: payload}
	if methodErr != nil {
		resp.Error = methodErr.Error()
	}
	return resp
}
