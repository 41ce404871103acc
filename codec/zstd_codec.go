package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"envelope-rpc/message"
)

// ZstdCodec compresses the output of another codec. It is selected with
// FactoryZstd and pays off for calls with large args or props.
type ZstdCodec struct {
	inner Codec
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// EncodeAll and DecodeAll are safe for concurrent use, so one shared pair
// serves every transport.
func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

func (c *ZstdCodec) compress(data []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	enc, _, err := zstdCoders()
	if err != nil {
		return nil, fmt.Errorf("ZstdCodec: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func (c *ZstdCodec) decompress(data []byte) ([]byte, error) {
	_, dec, err := zstdCoders()
	if err != nil {
		return nil, fmt.Errorf("ZstdCodec: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("ZstdCodec: %w", err)
	}
	return out, nil
}

func (c *ZstdCodec) EncodeRequest(req *message.Request) ([]byte, error) {
	return c.compress(c.inner.EncodeRequest(req))
}

func (c *ZstdCodec) DecodeRequest(data []byte) (*message.Request, error) {
	raw, err := c.decompress(data)
	if err != nil {
		return nil, err
	}
	return c.inner.DecodeRequest(raw)
}

func (c *ZstdCodec) EncodeResponse(resp *message.Response) ([]byte, error) {
	return c.compress(c.inner.EncodeResponse(resp))
}

func (c *ZstdCodec) DecodeResponse(data []byte) (*message.Response, error) {
	raw, err := c.decompress(data)
	if err != nil {
		return nil, err
	}
	return c.inner.DecodeResponse(raw)
}

// Type reports the wrapped codec's type.
func (c *ZstdCodec) Type() CodecType {
	return c.inner.Type()
}
