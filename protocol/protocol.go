// Package protocol frames encoded envelopes on a byte stream.
//
// Every frame is a fixed 15-byte header followed by bodyLen bytes of body:
//
//	0      3  4  5  6  7         11        15
//	┌──────┬──┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│sf│mt│   seq   │ bodyLen │    body ...    │
//	│ mrp  │02│  │  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴──┴─────────┴─────────┴───────────────┘
//
// ct is the serialize type and sf the serialize factory type the sender chose
// for the body; the receiver selects the same codec from them.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	MagicNumber byte   = 0x6d // 'm'
	MagicByte2  byte   = 0x72 // 'r'
	MagicByte3  byte   = 0x70 // 'p'
	Version     byte   = 0x02
	HeaderSize  int    = 15
	MaxBodyLen  uint32 = 16 << 20
)

// MsgType distinguishes the kinds of frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0 // Client → Server, answered with a response
	MsgTypeResponse  MsgType = 1 // Server → Client
	MsgTypeHeartbeat MsgType = 2 // KeepAlive probe, no body
	MsgTypeOneway    MsgType = 3 // Client → Server, never answered
)

// Codec and factory selectors accepted on the wire, mirrored from the codec
// package to avoid an import cycle.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1

	FactoryPlain byte = 0
	FactoryZstd  byte = 1
)

type Header struct {
	CodecType   byte
	FactoryType byte
	MsgType     MsgType
	Seq         uint32 // Matches a response to its request
	BodyLen     uint32
}

// Encode writes header and body as one frame. Callers sharing w across
// goroutines must serialize calls to Encode.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint64(len(body)) > uint64(MaxBodyLen) {
		return fmt.Errorf("body too large: %d bytes", len(body))
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = h.FactoryType
	buf[6] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[7:11], h.Seq)
	binary.BigEndian.PutUint32(buf[11:15], uint32(len(body)))

	// One write per frame keeps the header and body together on the conn.
	buf = append(buf, body...)
	_, err := w.Write(buf)
	return err
}

// Decode reads one frame from r and validates its header.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}
	if headerBuf[5] != FactoryPlain && headerBuf[5] != FactoryZstd {
		return nil, nil, fmt.Errorf("unsupported factory type: %d", headerBuf[5])
	}
	msgType := MsgType(headerBuf[6])
	if msgType > MsgTypeOneway {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	seq := binary.BigEndian.Uint32(headerBuf[7:11])
	bodyLen := binary.BigEndian.Uint32(headerBuf[11:15])
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("body too large: %d bytes", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType:   headerBuf[4],
		FactoryType: headerBuf[5],
		MsgType:     msgType,
		Seq:         seq,
		BodyLen:     bodyLen,
	}, body, nil
}
