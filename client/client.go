// Package client is the dispatcher side of the framework. It validates a call
// envelope, routes it to an instance and completes it in the style named by
// its invoke type: sync blocks, oneway returns at once, future hands back a
// *Future and callback notifies the envelope's ResponseCallback.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"envelope-rpc/config"
	"envelope-rpc/loadbalance"
	"envelope-rpc/logger"
	"envelope-rpc/message"
	"envelope-rpc/registry"
	"envelope-rpc/transport"
)

// HeaderVersion names the request header holding a semver range that
// candidate instances must satisfy.
const HeaderVersion = "version"

var (
	ErrInvalidRequest        = errors.New("client: service and method are required")
	ErrUnsupportedInvokeType = errors.New("client: unsupported invoke type")
	ErrCallbackMismatch      = errors.New("client: response callback must be set for callback calls and only for them")
	ErrTimeout               = errors.New("client: call timed out")
)

// ServerError is an error reported by the remote side.
type ServerError struct {
	ServiceMethod string
	Message       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error from %s: %s", e.ServiceMethod, e.Message)
}

type Client struct {
	registry registry.Registry
	balancer loadbalance.Balancer
	cfg      config.ClientConfig
	dial     func(addr string) (net.Conn, error)
	mu       sync.Mutex
	pools    map[string]*transport.Pool // One pool per instance address
	log      zerolog.Logger

	watchMu  sync.Mutex
	watching map[string]bool                       // Services with a Watch started
	cached   map[string][]registry.ServiceInstance // Instance lists kept fresh by Watch
}

// NewClient builds a dispatcher. A non-positive cfg.Timeout falls back to the
// built-in default so calls without their own timeout can still complete.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, cfg config.ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.Default().Client.Timeout
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	return &Client{
		registry: reg,
		balancer: bal,
		cfg:      cfg,
		dial:     func(addr string) (net.Conn, error) { return dialer.Dial("tcp", addr) },
		pools:    make(map[string]*transport.Pool),
		log:      logger.WithComponent("client"),
		watching: make(map[string]bool),
		cached:   make(map[string][]registry.ServiceInstance),
	}
}

// NewRequest builds an envelope for "Service.Method" with args JSON-encoded and
// the serializer selectors taken from the client configuration.
func (c *Client) NewRequest(serviceMethod string, args any) (*message.Request, error) {
	serviceName, methodName, ok := strings.Cut(serviceMethod, ".")
	if !ok || serviceName == "" || methodName == "" || strings.Contains(methodName, ".") {
		return nil, fmt.Errorf("invalid serviceMethod format: %v", serviceMethod)
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	req := message.NewRequest(serviceName, methodName, payload).
		SetSerializeType(byte(c.cfg.SerializeType)).
		SetSerializeFactoryType(c.cfg.SerializeFactoryType)
	return req, nil
}

// Call is a synchronous call of serviceMethod with args, decoding into reply.
func (c *Client) Call(serviceMethod string, args any, reply any) error {
	req, err := c.NewRequest(serviceMethod, args)
	if err != nil {
		return err
	}
	_, err = c.Invoke(context.Background(), req, reply)
	return err
}

// Invoke dispatches req. The envelope belongs to the client from here until
// the call completes; callers must not modify it in the meantime.
//
// The returned *Future is non-nil only for future calls. For callback calls
// dispatch errors are returned directly and every later outcome goes to the
// callback.
func (c *Client) Invoke(ctx context.Context, req *message.Request, reply any) (*Future, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	inst, err := c.pick(req)
	if err != nil {
		return nil, err
	}
	t, err := c.transport(inst.Addr)
	if err != nil {
		return nil, err
	}

	seq, ch, err := t.Send(req)
	if err != nil {
		return nil, err
	}

	timeout := c.timeoutFor(req)
	switch req.InvokeType() {
	case message.InvokeTypeOneway:
		return nil, nil
	case message.InvokeTypeFuture:
		f := newFuture()
		go func() {
			f.complete(c.await(ctx, req, t, seq, ch, timeout, reply))
		}()
		return f, nil
	case message.InvokeTypeCallback:
		cb := req.ResponseCallback()
		go func() {
			resp, err := c.await(ctx, req, t, seq, ch, timeout, reply)
			if err != nil {
				cb.OnError(err, req)
				return
			}
			cb.OnResponse(resp, req)
		}()
		return nil, nil
	default:
		_, err := c.await(ctx, req, t, seq, ch, timeout, reply)
		return nil, err
	}
}

// validate enforces what the envelope itself does not: a routable identity, a
// known invoke type and a callback exactly when the style needs one.
func validate(req *message.Request) error {
	if req.ServiceName == "" || req.MethodName == "" {
		return ErrInvalidRequest
	}
	switch req.InvokeType() {
	case "":
		req.SetInvokeType(message.InvokeTypeSync)
	case message.InvokeTypeSync, message.InvokeTypeOneway, message.InvokeTypeFuture, message.InvokeTypeCallback:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedInvokeType, req.InvokeType())
	}
	if (req.ResponseCallback() != nil) != (req.InvokeType() == message.InvokeTypeCallback) {
		return ErrCallbackMismatch
	}
	return nil
}

func (c *Client) timeoutFor(req *message.Request) time.Duration {
	if ms, ok := req.Timeout(); ok && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return c.cfg.Timeout
}

func (c *Client) pick(req *message.Request) (*registry.ServiceInstance, error) {
	instances, err := c.discover(req.ServiceName)
	if err != nil {
		return nil, err
	}
	app, hasApp := req.TargetAppName()
	candidates, err := registry.Filter(instances, app, hasApp, req.Header(HeaderVersion))
	if err != nil {
		return nil, err
	}
	inst, err := c.balancer.Pick(req, candidates)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.ServiceMethod(), err)
	}
	return inst, nil
}

// discover returns the instances of serviceName. The first lookup starts a
// registry Watch; while it runs, its updates are served from memory. A
// registry whose Watch returns nil is asked on every call.
func (c *Client) discover(serviceName string) ([]registry.ServiceInstance, error) {
	c.watchMu.Lock()
	if instances, ok := c.cached[serviceName]; ok {
		c.watchMu.Unlock()
		return instances, nil
	}
	start := !c.watching[serviceName]
	c.watching[serviceName] = true
	c.watchMu.Unlock()

	var updates <-chan []registry.ServiceInstance
	if start {
		// Watch before Discover so no change between the two is missed.
		updates = c.registry.Watch(serviceName)
	}
	instances, err := c.registry.Discover(serviceName)
	if updates != nil {
		if err == nil {
			c.watchMu.Lock()
			if _, ok := c.cached[serviceName]; !ok {
				c.cached[serviceName] = instances
			}
			c.watchMu.Unlock()
		}
		go c.follow(serviceName, updates)
	}
	if err != nil {
		return nil, err
	}
	return instances, nil
}

// follow applies Watch updates until the channel closes, then drops the cache
// so the next call looks the service up again.
func (c *Client) follow(serviceName string, updates <-chan []registry.ServiceInstance) {
	for instances := range updates {
		c.watchMu.Lock()
		c.cached[serviceName] = instances
		c.watchMu.Unlock()
	}
	c.watchMu.Lock()
	delete(c.cached, serviceName)
	delete(c.watching, serviceName)
	c.watchMu.Unlock()
	c.log.Debug().Str("service", serviceName).Msg("registry watch ended")
}

func (c *Client) transport(addr string) (*transport.ClientTransport, error) {
	c.mu.Lock()
	pool, ok := c.pools[addr]
	if !ok {
		pool = transport.NewPool(addr, c.cfg.PoolSize, c.dial)
		c.pools[addr] = pool
	}
	c.mu.Unlock()
	return pool.Get()
}

// await waits for the response to seq, bounded by timeout and ctx, and decodes
// the payload into reply.
func (c *Client) await(ctx context.Context, req *message.Request, t *transport.ClientTransport, seq uint32, ch <-chan transport.Result, timeout time.Duration, reply any) (*message.Response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res transport.Result
	select {
	case res = <-ch:
	case <-timer.C:
		t.Forget(seq)
		c.log.Warn().Str("service_method", req.ServiceMethod()).Dur("timeout", timeout).Msg("call timed out")
		return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, req.ServiceMethod())
	case <-ctx.Done():
		t.Forget(seq)
		return nil, ctx.Err()
	}

	if res.Err != nil {
		return nil, res.Err
	}
	resp := res.Response
	if resp.Error != "" {
		return resp, &ServerError{ServiceMethod: req.ServiceMethod(), Message: resp.Error}
	}
	if reply != nil {
		if err := json.Unmarshal(resp.Payload, reply); err != nil {
			return resp, fmt.Errorf("decode reply: %w", err)
		}
	}
	return resp, nil
}

// Close drops every pooled connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, pool := range c.pools {
		pool.Close()
		delete(c.pools, addr)
	}
	return nil
}
