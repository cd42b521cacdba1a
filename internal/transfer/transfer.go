// Package transfer moves file bytes between a connection and storage in
// bounded chunks. It sits below the message protocol: chunk framing is
// independent of the message envelope, and neither side ever buffers a
// whole file in memory.
package transfer

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/socket-file-server/internal/protocol"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// DefaultChunkSize is the per-chunk read size used when none is configured.
const DefaultChunkSize = 64 * 1024

// Send reads src in sequential chunks of at most chunkSize bytes and writes
// each to conn as a length-prefixed frame, terminating with the end marker.
// It returns the total number of payload bytes sent. On a source read
// failure the stream is left without its end marker; the caller decides
// whether the connection can still be salvaged.
func Send(conn io.Writer, src io.Reader, chunkSize int) (int64, error) {
	chunkSize = clampChunkSize(chunkSize)
	buf := make([]byte, chunkSize)
	var sent int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := protocol.WriteChunk(conn, buf[:n]); werr != nil {
				return sent, &protocol.TransferError{Offset: sent, Err: werr}
			}
			sent += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return sent, &protocol.TransferError{Offset: sent, Err: err}
		}
	}
	if err := protocol.WriteEndMarker(conn); err != nil {
		return sent, &protocol.TransferError{Offset: sent, Err: err}
	}
	return sent, nil
}

// Receive reads chunk frames from conn into dst until expected payload
// bytes have arrived. The declared size wins: the trailing end marker is
// read as integrity confirmation, and a clean close in its place is
// tolerated once the size is satisfied. An early end marker, or a chunk
// that would overrun the declared size, aborts the transfer with a
// TransferError carrying the byte offset.
//
// When dst fails mid-stream the remaining frames are drained through the
// end marker so the connection stays aligned for the next message.
func Receive(conn io.Reader, dst io.Writer, expected int64) (int64, error) {
	buf := make([]byte, protocol.MaxChunkSize)
	var received int64
	for received < expected {
		n, err := protocol.ReadChunk(conn, buf)
		if err != nil {
			return received, &protocol.TransferError{Offset: received, Err: err}
		}
		if n == 0 {
			return received, &protocol.TransferError{
				Offset: received,
				Err:    fmt.Errorf("stream ended %d bytes short of declared size %d", expected-received, expected),
			}
		}
		if received+int64(n) > expected {
			drain(conn, buf)
			return received, &protocol.TransferError{
				Offset: received,
				Err:    fmt.Errorf("chunk overruns declared size %d", expected),
			}
		}
		if _, err := dst.Write(buf[:n]); err != nil {
			drain(conn, buf)
			return received, &protocol.TransferError{Offset: received, Err: err}
		}
		received += int64(n)
	}

	// End marker confirms completion. The size is already satisfied, so a
	// missing marker on a closed stream is not an error.
	n, err := protocol.ReadChunk(conn, buf)
	if err == nil && n != 0 {
		drain(conn, buf)
		return received, &protocol.TransferError{
			Offset: received,
			Err:    fmt.Errorf("peer sent data beyond declared size %d", expected),
		}
	}
	if err != nil {
		log.Debugf("end marker not received after %d bytes: %v", received, err)
	}
	return received, nil
}

// drain consumes chunk frames through the end marker, returning the number
// of payload bytes discarded. Read errors end the drain; the connection is
// unusable at that point anyway.
func drain(conn io.Reader, buf []byte) int64 {
	var discarded int64
	for {
		n, err := protocol.ReadChunk(conn, buf)
		if err != nil || n == 0 {
			return discarded
		}
		discarded += int64(n)
	}
}

func clampChunkSize(chunkSize int) int {
	if chunkSize <= 0 {
		return DefaultChunkSize
	}
	if chunkSize > protocol.MaxChunkSize {
		return protocol.MaxChunkSize
	}
	return chunkSize
}
