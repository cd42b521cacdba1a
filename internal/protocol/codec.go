package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// DefaultMaxPayload bounds the encoded size of a single message. A length
// prefix above the bound is treated as stream corruption rather than an
// allocation request.
const DefaultMaxPayload = 1 << 20

const prefixSize = 4

// Codec reads and writes length-prefixed JSON messages on a byte stream.
// The 4-byte big-endian prefix counts payload bytes only. Decode consumes
// exactly prefixSize+L bytes per call, so the stream stays aligned for the
// next message even when payload parsing fails.
type Codec struct {
	r   io.Reader
	w   io.Writer
	max uint32
}

// NewCodec returns a codec over rw. A maxPayload of 0 selects
// DefaultMaxPayload.
func NewCodec(rw io.ReadWriter, maxPayload uint32) *Codec {
	if maxPayload == 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Codec{r: rw, w: rw, max: maxPayload}
}

// Encode writes msg as one length-prefixed frame. The prefix and payload
// are written in a single call so concurrent writers on the same stream
// cannot interleave inside a frame.
func (c *Codec) Encode(msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if uint32(len(payload)) > c.max {
		return &FramingError{Reason: fmt.Sprintf("payload %d bytes exceeds limit %d", len(payload), c.max)}
	}
	frame := make([]byte, prefixSize+len(payload))
	binary.BigEndian.PutUint32(frame[:prefixSize], uint32(len(payload)))
	copy(frame[prefixSize:], payload)
	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Decode blocks until one full message is available and returns it. A clean
// close before the first prefix byte yields io.EOF. Any truncation inside a
// frame, or a prefix above the payload bound, is a fatal FramingError.
func (c *Codec) Decode() (*Message, error) {
	var prefix [prefixSize]byte
	if _, err := io.ReadFull(c.r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FramingError{Reason: fmt.Sprintf("read length prefix: %v", err), Fatal: true}
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > c.max {
		return nil, &FramingError{Reason: fmt.Sprintf("length prefix %d exceeds limit %d", length, c.max), Fatal: true}
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, &FramingError{Reason: fmt.Sprintf("read payload: %v", err), Fatal: true}
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		// The envelope was fully consumed, so the stream is still aligned.
		return nil, &FramingError{Reason: fmt.Sprintf("parse payload: %v", err)}
	}
	return &msg, nil
}
