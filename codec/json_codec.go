package codec

import (
	"encoding/json"

	"envelope-rpc/message"
)

// JSONCodec relies on message.Request's own JSON form, which emits
// transmitted fields only.
type JSONCodec struct{}

type responseWire struct {
	Error   string        `json:"error,omitempty"`
	Payload []byte        `json:"payload"`
	Props   message.Props `json:"props,omitempty"`
}

func (c *JSONCodec) EncodeRequest(req *message.Request) ([]byte, error) {
	return json.Marshal(req)
}

func (c *JSONCodec) DecodeRequest(data []byte) (*message.Request, error) {
	req := &message.Request{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *JSONCodec) EncodeResponse(resp *message.Response) ([]byte, error) {
	return json.Marshal(responseWire{Error: resp.Error, Payload: resp.Payload, Props: resp.Props})
}

func (c *JSONCodec) DecodeResponse(data []byte) (*message.Response, error) {
	var w responseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return &message.Response{Error: w.Error, Payload: w.Payload, Props: w.Props}, nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
