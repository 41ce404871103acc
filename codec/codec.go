// Package codec turns call envelopes into bytes and back.
//
// Codecs only ever see the transmitted subset of a message.Request: the
// request base, the target application and the request props. An envelope
// produced by DecodeRequest has every local-only slot at its zero value.
package codec

import (
	"errors"
	"fmt"

	"envelope-rpc/message"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

// Serializer factory types, carried locally in Request.SerializeFactoryType.
const (
	FactoryPlain = 0 // body written as produced by the codec
	FactoryZstd  = 1 // body zstd-compressed after encoding
)

var (
	ErrUnknownCodec   = errors.New("codec: unknown codec type")
	ErrUnknownFactory = errors.New("codec: unknown serialize factory type")
)

type Codec interface {
	EncodeRequest(req *message.Request) ([]byte, error)
	DecodeRequest(data []byte) (*message.Request, error)
	EncodeResponse(resp *message.Response) ([]byte, error)
	DecodeResponse(data []byte) (*message.Response, error)
	Type() CodecType // 0=JSON, 1=Binary
}

// GetCodec returns the plain codec for codecType.
func GetCodec(codecType CodecType) (Codec, error) {
	switch codecType {
	case CodecTypeJSON:
		return &JSONCodec{}, nil
	case CodecTypeBinary:
		return &BinaryCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, codecType)
}

// Select maps the serializer selectors to a codec.
func Select(factoryType int, serializeType byte) (Codec, error) {
	inner, err := GetCodec(CodecType(serializeType))
	if err != nil {
		return nil, err
	}
	switch factoryType {
	case FactoryPlain:
		return inner, nil
	case FactoryZstd:
		return &ZstdCodec{inner: inner}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownFactory, factoryType)
}

// ForRequest selects the codec named by the envelope's local selectors.
func ForRequest(req *message.Request) (Codec, error) {
	return Select(req.SerializeFactoryType(), req.SerializeType())
}
