package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"envelope-rpc/message"
)

// BinaryCodec writes envelopes in a compact length-prefixed layout, all
// integers big-endian.
//
// Request:
//
//	service  u16 len | bytes
//	method   u16 len | bytes
//	args     u16 count | (u32 len | bytes)*
//	argSigs  u16 count | (u16 len | bytes)*
//	headers  u8 present | u16 count | (u16 len | key, u16 len | value)*
//	target   u8 present | u16 len | bytes
//	props    u8 present | props
//
// Response:
//
//	payload  u32 len | bytes
//	error    u16 len | bytes
//	props    u8 present | props
//
// props is u16 count | (u16 len | key, value)* and each value is a kind byte
// followed by its payload; nested maps recurse.
type BinaryCodec struct{}

const maxPropDepth = 16

var errTruncated = errors.New("BinaryCodec: truncated data")

func (c *BinaryCodec) EncodeRequest(req *message.Request) ([]byte, error) {
	w := &writer{}
	w.str16(req.ServiceName)
	w.str16(req.MethodName)

	w.count(len(req.Args))
	for _, arg := range req.Args {
		w.bytes32(arg)
	}
	w.count(len(req.ArgSigs))
	for _, sig := range req.ArgSigs {
		w.str16(sig)
	}

	w.present(req.Headers != nil)
	if req.Headers != nil {
		w.count(len(req.Headers))
		for k, v := range req.Headers {
			w.str16(k)
			w.str16(v)
		}
	}

	name, ok := req.TargetAppName()
	w.present(ok)
	if ok {
		w.str16(name)
	}

	props := req.RequestProps()
	w.present(props != nil)
	if props != nil {
		w.props(props, 0)
	}
	return w.buf, w.err
}

func (c *BinaryCodec) DecodeRequest(data []byte) (*message.Request, error) {
	r := &reader{data: data}
	var base message.RequestBase
	base.ServiceName = r.str16()
	base.MethodName = r.str16()

	if n := r.u16(); n > 0 {
		base.Args = make([][]byte, 0, n)
		for i := 0; i < int(n) && r.err == nil; i++ {
			base.Args = append(base.Args, r.bytes32())
		}
	}
	if n := r.u16(); n > 0 {
		base.ArgSigs = make([]string, 0, n)
		for i := 0; i < int(n) && r.err == nil; i++ {
			base.ArgSigs = append(base.ArgSigs, r.str16())
		}
	}

	if r.present() {
		n := r.u16()
		base.Headers = make(map[string]string, n)
		for i := 0; i < int(n) && r.err == nil; i++ {
			k := r.str16()
			base.Headers[k] = r.str16()
		}
	}

	var name string
	hasName := r.present()
	if hasName {
		name = r.str16()
	}

	var props message.Props
	if r.present() {
		props = r.props(0)
	}
	if r.err != nil {
		return nil, r.err
	}
	return message.NewInbound(base, name, hasName, props), nil
}

func (c *BinaryCodec) EncodeResponse(resp *message.Response) ([]byte, error) {
	w := &writer{}
	w.bytes32(resp.Payload)
	w.str16(resp.Error)
	w.present(resp.Props != nil)
	if resp.Props != nil {
		w.props(resp.Props, 0)
	}
	return w.buf, w.err
}

func (c *BinaryCodec) DecodeResponse(data []byte) (*message.Response, error) {
	r := &reader{data: data}
	resp := &message.Response{}
	resp.Payload = r.bytes32()
	resp.Error = r.str16()
	if r.present() {
		resp.Props = r.props(0)
	}
	if r.err != nil {
		return nil, r.err
	}
	return resp, nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// writer accumulates the first error and ignores writes after it.
type writer struct {
	buf []byte
	err error
}

func (w *writer) fail(format string, args ...any) {
	if w.err == nil {
		w.err = fmt.Errorf("BinaryCodec: "+format, args...)
	}
}

func (w *writer) count(n int) {
	if n > math.MaxUint16 {
		w.fail("too many entries: %d", n)
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(n))
}

func (w *writer) present(ok bool) {
	if ok {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) str16(s string) {
	if len(s) > math.MaxUint16 {
		w.fail("string too long: %d bytes", len(s))
		return
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) bytes32(b []byte) {
	if uint64(len(b)) > math.MaxUint32 {
		w.fail("payload too long: %d bytes", len(b))
		return
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) props(p message.Props, depth int) {
	if depth > maxPropDepth {
		w.fail("props nested deeper than %d", maxPropDepth)
		return
	}
	w.count(len(p))
	for k, v := range p {
		w.str16(k)
		w.value(v, depth)
	}
}

func (w *writer) value(v message.Value, depth int) {
	w.buf = append(w.buf, byte(v.Kind()))
	switch v.Kind() {
	case message.KindString:
		s, _ := v.AsString()
		w.bytes32([]byte(s))
	case message.KindInt:
		n, _ := v.AsInt()
		w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(n))
	case message.KindBool:
		b, _ := v.AsBool()
		w.present(b)
	case message.KindBytes:
		b, _ := v.AsBytes()
		w.bytes32(b)
	case message.KindMap:
		m, _ := v.AsMap()
		w.props(m, depth+1)
	default:
		w.fail("invalid prop value")
	}
}

// reader records the first error; reads after it return zero values.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) present() bool {
	return r.u8() == 1
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) str16() string {
	return string(r.take(int(r.u16())))
}

// bytes32 copies so the result does not alias the frame buffer.
func (r *reader) bytes32() []byte {
	b := r.take(int(r.u32()))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) props(depth int) message.Props {
	if depth > maxPropDepth {
		r.err = fmt.Errorf("BinaryCodec: props nested deeper than %d", maxPropDepth)
		return nil
	}
	n := r.u16()
	p := make(message.Props, n)
	for i := 0; i < int(n) && r.err == nil; i++ {
		k := r.str16()
		p[k] = r.value(depth)
	}
	return p
}

func (r *reader) value(depth int) message.Value {
	switch kind := message.Kind(r.u8()); kind {
	case message.KindString:
		return message.StringValue(string(r.bytes32()))
	case message.KindInt:
		b := r.take(8)
		if b == nil {
			return message.Value{}
		}
		return message.IntValue(int64(binary.BigEndian.Uint64(b)))
	case message.KindBool:
		return message.BoolValue(r.present())
	case message.KindBytes:
		return message.BytesValue(r.bytes32())
	case message.KindMap:
		return message.MapValue(r.props(depth + 1))
	default:
		if r.err == nil {
			r.err = fmt.Errorf("BinaryCodec: unknown prop kind %d", kind)
		}
		return message.Value{}
	}
}
