package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxChunkSize bounds a single chunk frame on the wire. It is independent
// of the message payload bound: chunk framing carries file bytes, not
// structured payloads.
const MaxChunkSize = 1 << 20

// WriteChunk writes one length-prefixed chunk frame. An empty chunk is the
// end-of-stream marker.
func WriteChunk(w io.Writer, chunk []byte) error {
	if len(chunk) > MaxChunkSize {
		return &FramingError{Reason: fmt.Sprintf("chunk %d bytes exceeds limit %d", len(chunk), MaxChunkSize)}
	}
	var prefix [prefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(chunk)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	if len(chunk) == 0 {
		return nil
	}
	_, err := w.Write(chunk)
	return err
}

// WriteEndMarker writes the zero-length frame that terminates a chunk
// stream.
func WriteEndMarker(w io.Writer) error {
	return WriteChunk(w, nil)
}

// ReadChunk reads one chunk frame into buf and returns the chunk length.
// A return of 0 with a nil error is the end-of-stream marker. A frame
// larger than buf or MaxChunkSize is fatal stream corruption.
func ReadChunk(r io.Reader, buf []byte) (int, error) {
	var prefix [prefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length == 0 {
		return 0, nil
	}
	if length > MaxChunkSize || int(length) > len(buf) {
		return 0, &FramingError{Reason: fmt.Sprintf("chunk frame %d bytes exceeds buffer %d", length, len(buf)), Fatal: true}
	}
	if _, err := io.ReadFull(r, buf[:length]); err != nil {
		return 0, err
	}
	return int(length), nil
}
