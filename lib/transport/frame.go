package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame types on the wire.
const (
	frameAuth    = uint8(0x01) // client -> server credentials
	frameAuthAck = uint8(0x02) // server -> client auth outcome
	frameEvent   = uint8(0x03) // server -> client inbound event
	frameAction  = uint8(0x04) // client -> server outbound action
	frameResult  = uint8(0x05) // server -> client action outcome
)

const (
	// 1 byte frame type, 4 bytes sequence, 4 bytes payload length.
	frameHeaderSize = 9

	// maxFramePayload bounds a single frame to keep a corrupt length
	// prefix from allocating unbounded memory.
	maxFramePayload = 10 * 1024 * 1024
)

// frame is one length-prefixed unit on the stream. The sequence number ties
// an action to its result; events and auth frames use sequence 0.
type frame struct {
	Type    uint8
	Seq     uint32
	Payload []byte
}

func writeFrame(w io.Writer, f frame) error {
	if len(f.Payload) > maxFramePayload {
		return fmt.Errorf("transport: payload length %d exceeds maximum %d", len(f.Payload), maxFramePayload)
	}

	header := make([]byte, frameHeaderSize)
	header[0] = f.Type
	binary.BigEndian.PutUint32(header[1:5], f.Seq)
	binary.BigEndian.PutUint32(header[5:9], uint32(len(f.Payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("transport: write frame payload: %w", err)
		}
	}
	return nil
}

func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}

	f := frame{
		Type: header[0],
		Seq:  binary.BigEndian.Uint32(header[1:5]),
	}

	length := binary.BigEndian.Uint32(header[5:9])
	if length > maxFramePayload {
		return frame{}, fmt.Errorf("transport: payload length %d exceeds maximum %d", length, maxFramePayload)
	}
	if length > 0 {
		f.Payload = make([]byte, length)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return frame{}, fmt.Errorf("transport: read frame payload: %w", err)
		}
	}
	return f, nil
}
