package server

import (
	"errors"
	"io"
	"net"

	"git.uuxo.net/uuxo/socket-file-server/internal/metrics"
	"git.uuxo.net/uuxo/socket-file-server/internal/protocol"
	"git.uuxo.net/uuxo/socket-file-server/internal/session"
	"git.uuxo.net/uuxo/socket-file-server/internal/transfer"
)

// errConnBroken stops the message loop when the connection can no longer
// carry aligned frames.
var errConnBroken = errors.New("connection broken")

// Handler owns one socket and one session: it runs the message loop,
// invokes the dispatcher, and drives the transfer engine for file-bearing
// commands. Messages and their responses are strictly sequential; the next
// decode never starts before the previous response (or transfer) has fully
// completed.
type Handler struct {
	conn  net.Conn
	codec *protocol.Codec
	sess  *session.Session
	disp  *Dispatcher
}

// NewHandler wraps an accepted connection.
func NewHandler(conn net.Conn, disp *Dispatcher, maxMessageSize uint32) *Handler {
	return &Handler{
		conn:  conn,
		codec: protocol.NewCodec(conn, maxMessageSize),
		sess:  session.New(conn.RemoteAddr().String()),
		disp:  disp,
	}
}

// Run processes messages until the peer closes the stream or framing is
// corrupted beyond recovery. A failure here closes only this connection;
// other sessions are untouched.
func (h *Handler) Run() {
	defer h.conn.Close()

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	log.Infof("[%s] connection from %s", h.sess.ID, h.sess.RemoteAddr)
	defer log.Infof("[%s] connection closed", h.sess.ID)

	for {
		msg, err := h.codec.Decode()
		if err != nil {
			if err == io.EOF {
				return
			}
			var fe *protocol.FramingError
			if errors.As(err, &fe) && !fe.Fatal {
				// The envelope was intact, so the stream is still aligned.
				if err := h.codec.Encode(protocol.Errorf(protocol.KindProtocol, fe.Reason)); err != nil {
					return
				}
				continue
			}
			log.Warnf("[%s] closing connection: %v", h.sess.ID, err)
			return
		}

		if err := h.handle(msg); err != nil {
			if err != errConnBroken {
				log.Warnf("[%s] closing connection: %v", h.sess.ID, err)
			}
			return
		}
	}
}

func (h *Handler) handle(msg *protocol.Message) error {
	switch msg.Type {
	case protocol.TypeUpload:
		return h.handleUpload(msg)
	case protocol.TypeDownload:
		return h.handleDownload(msg)
	default:
		return h.codec.Encode(h.disp.Dispatch(h.sess, msg))
	}
}

// handleUpload runs the upload leg: ack, then the incoming chunk stream,
// then the final response. The transfer engine drains a broken stream
// where it can; anything it cannot realign ends the connection.
func (h *Handler) handleUpload(msg *protocol.Message) error {
	pending, tc, resp := h.disp.BeginUpload(h.sess, msg)
	if pending == nil {
		return h.codec.Encode(resp)
	}

	if err := h.codec.Encode(resp); err != nil {
		h.disp.FinishUpload(h.sess, pending, tc, &protocol.TransferError{Err: err})
		return errConnBroken
	}

	log.Infof("[%s] receiving %s (%d bytes) from %s", h.sess.ID, tc.Filename, tc.Size, h.sess.Username())
	received, rerr := transfer.Receive(h.conn, pending, tc.Size)
	tc.Transferred = received

	final := h.disp.FinishUpload(h.sess, pending, tc, rerr)
	if err := h.codec.Encode(final); err != nil {
		return errConnBroken
	}
	if isStreamFatal(rerr) {
		return errConnBroken
	}
	return nil
}

// handleDownload runs the download leg: ack with the file size, then the
// outgoing chunk stream. A source read failure is signalled to the peer by
// an early end marker; the declared size tells it the stream is short.
func (h *Handler) handleDownload(msg *protocol.Message) error {
	f, tc, resp := h.disp.BeginDownload(h.sess, msg)
	if f == nil {
		return h.codec.Encode(resp)
	}
	defer f.Close()

	if err := h.codec.Encode(resp); err != nil {
		h.disp.FinishDownload(h.sess, tc, &protocol.TransferError{Err: err})
		return errConnBroken
	}

	log.Infof("[%s] sending %s (%d bytes) to %s", h.sess.ID, tc.Filename, tc.Size, h.sess.Username())
	sent, serr := transfer.Send(h.conn, f, tc.ChunkSize)
	tc.Transferred = sent

	if serr != nil && !isConnWrite(serr) {
		// Source failed but the socket is fine: terminate the stream so
		// the peer aborts cleanly and the connection stays aligned.
		if merr := protocol.WriteEndMarker(h.conn); merr != nil {
			h.disp.FinishDownload(h.sess, tc, serr)
			return errConnBroken
		}
	}
	h.disp.FinishDownload(h.sess, tc, serr)
	if serr != nil && isConnWrite(serr) {
		return errConnBroken
	}
	return nil
}

// isStreamFatal reports whether a receive error means the incoming byte
// stream can no longer be trusted to be frame-aligned.
func isStreamFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *protocol.FramingError
	if errors.As(err, &fe) {
		return fe.Fatal
	}
	// Raw I/O errors inside the chunk stream (short reads, closed socket)
	// leave the cursor mid-frame.
	var te *protocol.TransferError
	if errors.As(err, &te) {
		var nested *protocol.FramingError
		if errors.As(te.Err, &nested) {
			return nested.Fatal
		}
		return isIOError(te.Err)
	}
	return false
}

func isIOError(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	return err == io.EOF || err == io.ErrUnexpectedEOF || errors.As(err, &ne)
}

// isConnWrite reports whether a send error originated from the socket
// rather than the source file.
func isConnWrite(err error) bool {
	var te *protocol.TransferError
	if errors.As(err, &te) {
		var ne net.Error
		return errors.As(te.Err, &ne)
	}
	return false
}
