package message

import (
	"bytes"
	"fmt"
)

// Kind tags the payload held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota // zero Value, treated as absent
	KindString
	KindInt
	KindBool
	KindBytes
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is one request prop value: a string, int64, bool, byte slice or a
// nested Props map. The zero Value is invalid and stands for "absent".
type Value struct {
	kind Kind
	str  string
	num  int64 // int payload, or 0/1 for bool
	raw  []byte
	m    Props
}

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func IntValue(i int64) Value { return Value{kind: KindInt, num: i} }

func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// BytesValue wraps b without copying it.
func BytesValue(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBytes, raw: b}
}

// MapValue copies m, dropping entries with an empty key or an invalid value
// at every depth.
func MapValue(m Props) Value {
	return Value{kind: KindMap, m: cleanProps(m, Props{})}
}

// cleanProps returns a copy of p without empty keys or invalid values, nested
// maps included. A nil p yields ifNil.
func cleanProps(p Props, ifNil Props) Props {
	if p == nil {
		return ifNil
	}
	out := make(Props, len(p))
	for k, v := range p {
		if k == "" || !v.IsValid() {
			continue
		}
		if v.kind == KindMap {
			v = MapValue(v.m)
		}
		out[k] = v
	}
	return out
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsInt() (int64, bool) { return v.num, v.kind == KindInt }

func (v Value) AsBool() (bool, bool) { return v.num == 1, v.kind == KindBool }

func (v Value) AsBytes() ([]byte, bool) { return v.raw, v.kind == KindBytes }

func (v Value) AsMap() (Props, bool) { return v.m, v.kind == KindMap }

// Equal reports whether v and o hold the same kind and payload, comparing
// nested maps deeply.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindInt, KindBool:
		return v.num == o.num
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindMap:
		return v.m.Equal(o.m)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return fmt.Sprintf("%d", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.num == 1)
	case KindBytes:
		return fmt.Sprintf("%x", v.raw)
	case KindMap:
		return fmt.Sprintf("%v", map[string]Value(v.m))
	default:
		return "<invalid>"
	}
}

// Props is an open-ended bag of transmitted call metadata.
type Props map[string]Value

// Equal compares two bags entry by entry. A nil bag only equals another nil bag.
func (p Props) Equal(o Props) bool {
	if (p == nil) != (o == nil) || len(p) != len(o) {
		return false
	}
	for k, v := range p {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// The request-prop mutators below never fail. Empty keys and invalid values are
// dropped without notice, matching the best-effort contract of the bag: callers
// relying on a silent no-op must keep getting one.

// RequestProp returns the prop stored under key.
func (r *Request) RequestProp(key string) (Value, bool) {
	if r.requestProps == nil {
		return Value{}, false
	}
	v, ok := r.requestProps[key]
	return v, ok
}

// AddRequestProp stores value under key. No-op for an empty key or invalid value.
func (r *Request) AddRequestProp(key string, value Value) {
	if key == "" || !value.IsValid() {
		return
	}
	// The map behind a Value is reachable through AsMap, so re-clean it.
	if value.kind == KindMap {
		value = MapValue(value.m)
	}
	if r.requestProps == nil {
		r.requestProps = make(Props)
	}
	r.requestProps[key] = value
}

// RemoveRequestProp deletes key. No-op when the bag was never allocated.
func (r *Request) RemoveRequestProp(key string) {
	if key == "" || r.requestProps == nil {
		return
	}
	delete(r.requestProps, key)
}

// AddRequestProps merges props into the bag, overwriting on collision.
// Entries with an empty key or invalid value are skipped.
func (r *Request) AddRequestProps(props Props) {
	if len(props) == 0 {
		return
	}
	for k, v := range props {
		r.AddRequestProp(k, v)
	}
}

// RequestProps returns the bag itself, nil until the first successful put.
func (r *Request) RequestProps() Props {
	return r.requestProps
}

// setRequestProps installs a decoded bag, preserving nil vs empty and dropping
// entries the bag would never have accepted.
func (r *Request) setRequestProps(p Props) {
	r.requestProps = cleanProps(p, nil)
}
