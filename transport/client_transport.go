// Package transport carries call envelopes over multiplexed client connections.
//
// Each request gets a sequence number; a single recvLoop per connection reads
// responses and hands each one to the caller waiting on that sequence:
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ one TCP conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop: ←── response(seq=2) → pending[2] → goroutine-2
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"envelope-rpc/codec"
	"envelope-rpc/logger"
	"envelope-rpc/message"
	"envelope-rpc/protocol"
)

var ErrClosed = errors.New("transport: connection closed")

// Result is what a pending caller receives: a decoded response or the error
// that prevented one.
type Result struct {
	Response *message.Response
	Err      error
}

type ClientTransport struct {
	conn    net.Conn
	seq     uint32     // Guarded by sending
	sending sync.Mutex // One frame at a time on conn
	pending sync.Map   // map[uint32]chan Result
	closed  atomic.Bool
	done    chan struct{}
	log     zerolog.Logger
}

const heartbeatInterval = 30 * time.Second

// NewClientTransport starts the receive and heartbeat loops for conn.
func NewClientTransport(conn net.Conn) *ClientTransport {
	t := &ClientTransport{
		conn: conn,
		done: make(chan struct{}),
		log:  logger.WithComponent("transport").With().Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	go t.recvLoop()
	go t.heartbeatLoop(heartbeatInterval)
	return t
}

// Send encodes req with the codec named by its serializer selectors and writes
// it. Oneway requests get seq 0 and a nil channel since no answer comes back.
// The transport only reads req; the caller must not mutate it during Send.
func (t *ClientTransport) Send(req *message.Request) (uint32, <-chan Result, error) {
	if t.closed.Load() {
		return 0, nil, ErrClosed
	}
	cdc, err := codec.ForRequest(req)
	if err != nil {
		return 0, nil, err
	}
	body, err := cdc.EncodeRequest(req)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}

	header := protocol.Header{
		CodecType:   req.SerializeType(),
		FactoryType: byte(req.SerializeFactoryType()),
		MsgType:     protocol.MsgTypeRequest,
		BodyLen:     uint32(len(body)),
	}
	oneway := req.InvokeType() == message.InvokeTypeOneway
	if oneway {
		header.MsgType = protocol.MsgTypeOneway
	}

	t.sending.Lock()
	defer t.sending.Unlock()

	if oneway {
		return 0, nil, t.write(&header, body)
	}

	t.seq++
	if t.seq == 0 {
		t.seq++
	}
	header.Seq = t.seq

	// Register before writing so recvLoop cannot see the response first.
	respChan := make(chan Result, 1)
	t.pending.Store(header.Seq, respChan)

	if err := t.write(&header, body); err != nil {
		t.pending.Delete(header.Seq)
		return 0, nil, err
	}
	return header.Seq, respChan, nil
}

func (t *ClientTransport) write(h *protocol.Header, body []byte) error {
	if err := protocol.Encode(t.conn, h, body); err != nil {
		t.Close()
		return err
	}
	return nil
}

// Forget drops the pending entry for seq, e.g. after the caller timed out.
// A late response for it is discarded.
func (t *ClientTransport) Forget(seq uint32) {
	t.pending.Delete(seq)
}

func (t *ClientTransport) recvLoop() {
	for {
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			t.Close()
			t.closeAllPending(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}

		value, ok := t.pending.LoadAndDelete(header.Seq)
		if !ok {
			t.log.Debug().Uint32("seq", header.Seq).Msg("dropping response with no caller")
			continue
		}

		var res Result
		cdc, err := codec.Select(int(header.FactoryType), header.CodecType)
		if err == nil {
			res.Response, err = cdc.DecodeResponse(body)
		}
		if err != nil {
			res.Err = fmt.Errorf("decode response: %w", err)
		}
		value.(chan Result) <- res
	}
}

// closeAllPending fails every waiting caller so none blocks forever.
func (t *ClientTransport) closeAllPending(err error) {
	t.pending.Range(func(key, value any) bool {
		if _, ok := t.pending.LoadAndDelete(key); ok {
			value.(chan Result) <- Result{Err: err}
		}
		return true
	})
}

// Close shuts the connection; pending callers receive ErrClosed.
func (t *ClientTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.done)
	return t.conn.Close()
}

func (t *ClientTransport) Closed() bool {
	return t.closed.Load()
}

func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

// heartbeatLoop keeps idle connections from being reaped by middleboxes.
func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		t.sending.Lock()
		err := protocol.Encode(t.conn, &protocol.Header{MsgType: protocol.MsgTypeHeartbeat}, nil)
		t.sending.Unlock()
		if err != nil {
			t.log.Debug().Err(err).Msg("heartbeat failed")
			t.Close()
			return
		}
	}
}
