package message

import (
	"encoding/json"
	"fmt"
)

// requestWire is the JSON shape of a Request. It lists only transmitted fields.
type requestWire struct {
	ServiceName   string            `json:"service"`
	MethodName    string            `json:"method"`
	Args          [][]byte          `json:"args"`
	ArgSigs       []string          `json:"argSigs,omitempty"`
	Headers       map[string]string `json:"headers"`
	TargetAppName *string           `json:"targetApp,omitempty"`
	Props         Props             `json:"props"`
}

// MarshalJSON encodes the transmitted subset of r.
func (r *Request) MarshalJSON() ([]byte, error) {
	w := requestWire{
		ServiceName: r.ServiceName,
		MethodName:  r.MethodName,
		Args:        r.Args,
		ArgSigs:     r.ArgSigs,
		Headers:     r.Headers,
		Props:       r.requestProps,
	}
	if r.hasTargetAppName {
		name := r.targetAppName
		w.TargetAppName = &name
	}
	return json.Marshal(&w)
}

// UnmarshalJSON replaces r with the decoded transmitted fields. Local-only
// slots are reset.
func (r *Request) UnmarshalJSON(data []byte) error {
	var w requestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	base := RequestBase{
		ServiceName: w.ServiceName,
		MethodName:  w.MethodName,
		Args:        w.Args,
		ArgSigs:     w.ArgSigs,
		Headers:     w.Headers,
	}
	name, has := "", false
	if w.TargetAppName != nil {
		name, has = *w.TargetAppName, true
	}
	*r = *NewInbound(base, name, has, w.Props)
	return nil
}

type valueWire struct {
	Kind  string          `json:"t"`
	Value json.RawMessage `json:"v"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindString:
		payload = v.str
	case KindInt:
		payload = v.num
	case KindBool:
		payload = v.num == 1
	case KindBytes:
		payload = v.raw
	case KindMap:
		payload = v.m
	default:
		return []byte("null"), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueWire{Kind: v.kind.String(), Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var w valueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "string":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case "int":
		var i int64
		if err := json.Unmarshal(w.Value, &i); err != nil {
			return err
		}
		*v = IntValue(i)
	case "bool":
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case "bytes":
		var b []byte
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return err
		}
		*v = BytesValue(b)
	case "map":
		var m Props
		if err := json.Unmarshal(w.Value, &m); err != nil {
			return err
		}
		*v = MapValue(m)
	default:
		return fmt.Errorf("message: unknown prop kind %q", w.Kind)
	}
	return nil
}
