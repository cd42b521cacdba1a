package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"git.uuxo.net/uuxo/socket-file-server/internal/auth"
	"git.uuxo.net/uuxo/socket-file-server/internal/metrics"
	"git.uuxo.net/uuxo/socket-file-server/internal/protocol"
	"git.uuxo.net/uuxo/socket-file-server/internal/session"
	"git.uuxo.net/uuxo/socket-file-server/internal/storage"
	"git.uuxo.net/uuxo/socket-file-server/internal/transfer"
	"git.uuxo.net/uuxo/socket-file-server/internal/utils"
	"git.uuxo.net/uuxo/socket-file-server/internal/workers"
)

// Options configures a Dispatcher.
type Options struct {
	Auth     *auth.Store
	Store    *storage.Store
	Metadata *storage.MetadataStore // optional transfer journal
	Pool     *workers.Pool          // optional, for async journal writes

	MaxUploadSize int64 // 0 means unlimited
	PreviewBytes  int
	ChunkSize     int

	EnableJWT bool
	JWTSecret string
	JWTTTL    time.Duration
}

// Dispatcher maps a session's commands to operations, enforcing the
// per-session state machine: UNAUTHENTICATED -> AUTHENTICATED ->
// (TRANSFERRING) -> AUTHENTICATED. All command-level failures become
// structured error responses; the connection stays usable.
type Dispatcher struct {
	opts Options
}

// NewDispatcher returns a dispatcher over the given collaborators.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.PreviewBytes <= 0 {
		opts.PreviewBytes = 1024
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultChunkSize
	}
	return &Dispatcher{opts: opts}
}

// Dispatch executes one non-transfer command and returns the response.
// Upload and download are accepted separately (BeginUpload/BeginDownload)
// because the handler must drive the chunk stream after the ack.
func (d *Dispatcher) Dispatch(sess *session.Session, msg *protocol.Message) *protocol.Message {
	metrics.CommandsTotal.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case protocol.TypeLogin:
		return d.handleLogin(sess, msg)
	case protocol.TypeLogout:
		sess.Logout()
		return protocol.OK()
	case protocol.TypeList:
		return d.handleList(sess)
	case protocol.TypePreview:
		return d.handlePreview(sess, msg)
	case protocol.TypeDelete:
		return d.handleDelete(sess, msg)
	default:
		return errorResponse(&protocol.ProtocolError{Reason: fmt.Sprintf("unknown command %q", msg.Type)})
	}
}

func (d *Dispatcher) handleLogin(sess *session.Session, msg *protocol.Message) *protocol.Message {
	// Login is an unauthenticated-only transition; switching identity on a
	// live session requires an explicit logout.
	if sess.Authenticated() {
		return errorResponse(&protocol.StateError{Reason: "already authenticated, logout first"})
	}

	if msg.Token != "" && d.opts.EnableJWT {
		username, err := auth.VerifyToken(d.opts.JWTSecret, msg.Token)
		if err != nil || !d.opts.Auth.Has(username) {
			metrics.AuthFailuresTotal.Inc()
			return errorResponse(&protocol.AuthError{Reason: "invalid token"})
		}
		sess.Adopt(username)
		log.Debugf("[%s] token login for %s", sess.ID, username)
		return protocol.OK()
	}

	if err := storage.ValidateName(msg.Username); err != nil {
		metrics.AuthFailuresTotal.Inc()
		return errorResponse(&protocol.AuthError{Reason: "invalid credentials"})
	}
	if !sess.Authenticate(d.opts.Auth, msg.Username, msg.Secret) {
		metrics.AuthFailuresTotal.Inc()
		return errorResponse(&protocol.AuthError{Reason: "invalid credentials"})
	}

	resp := protocol.OK()
	if d.opts.EnableJWT {
		token, err := auth.IssueToken(d.opts.JWTSecret, msg.Username, d.opts.JWTTTL)
		if err != nil {
			log.Errorf("[%s] token issue failed: %v", sess.ID, err)
		} else {
			resp.Token = token
		}
	}
	return resp
}

func (d *Dispatcher) handleList(sess *session.Session) *protocol.Message {
	if err := sess.RequireAuthenticated(); err != nil {
		return errorResponse(err)
	}
	records, err := d.opts.Store.List(sess.Username())
	if err != nil {
		return errorResponse(err)
	}
	files := make([]protocol.FileRecord, len(records))
	for i, rec := range records {
		files[i] = protocol.FileRecord{
			Name:    rec.Name,
			Owner:   rec.Owner,
			Size:    rec.Size,
			ModTime: rec.ModTime.Unix(),
		}
	}
	resp := protocol.OK()
	resp.Files = files
	return resp
}

func (d *Dispatcher) handlePreview(sess *session.Session, msg *protocol.Message) *protocol.Message {
	if err := sess.RequireAuthenticated(); err != nil {
		return errorResponse(err)
	}
	data, err := d.opts.Store.Preview(sess.Username(), msg.Filename, d.opts.PreviewBytes)
	if err != nil {
		return errorResponse(err)
	}
	resp := protocol.OK()
	resp.Filename = msg.Filename
	resp.Preview = data
	return resp
}

func (d *Dispatcher) handleDelete(sess *session.Session, msg *protocol.Message) *protocol.Message {
	if err := sess.RequireAuthenticated(); err != nil {
		return errorResponse(err)
	}
	if err := d.opts.Store.Delete(sess.Username(), msg.Filename); err != nil {
		return errorResponse(err)
	}
	d.journal("journal delete", func(m *storage.MetadataStore) error {
		return m.RecordDelete(sess.Username(), msg.Filename)
	})
	return protocol.OK()
}

// BeginUpload validates an upload command and stages the destination. On
// success the returned response is the ack the handler must send before
// switching to chunk streaming; the pending file and transfer context are
// live until FinishUpload.
func (d *Dispatcher) BeginUpload(sess *session.Session, msg *protocol.Message) (*storage.PendingFile, *session.TransferContext, *protocol.Message) {
	metrics.CommandsTotal.WithLabelValues(msg.Type).Inc()

	if err := sess.RequireAuthenticated(); err != nil {
		return nil, nil, errorResponse(err)
	}
	if msg.Size < 0 {
		return nil, nil, errorResponse(&protocol.ProtocolError{Reason: "negative upload size"})
	}
	if d.opts.MaxUploadSize > 0 && msg.Size > d.opts.MaxUploadSize {
		return nil, nil, errorResponse(&protocol.ProtocolError{
			Reason: fmt.Sprintf("upload size %s exceeds limit %s",
				utils.FormatBytes(msg.Size), utils.FormatBytes(d.opts.MaxUploadSize)),
		})
	}

	tc := &session.TransferContext{
		Direction: session.DirectionUpload,
		Filename:  msg.Filename,
		Size:      msg.Size,
		ChunkSize: d.opts.ChunkSize,
	}
	if err := sess.BeginTransfer(tc); err != nil {
		return nil, nil, errorResponse(err)
	}

	pending, err := d.opts.Store.Create(sess.Username(), msg.Filename)
	if err != nil {
		sess.EndTransfer()
		return nil, nil, errorResponse(err)
	}

	ack := protocol.OK()
	ack.Filename = msg.Filename
	ack.Size = msg.Size
	return pending, tc, ack
}

// FinishUpload commits or aborts a staged upload after the chunk stream
// ends and returns the final response for the peer.
func (d *Dispatcher) FinishUpload(sess *session.Session, pending *storage.PendingFile, tc *session.TransferContext, transferErr error) *protocol.Message {
	defer sess.EndTransfer()

	if transferErr != nil {
		pending.Abort()
		metrics.UploadErrorsTotal.Inc()
		log.Warnf("[%s] upload %s aborted: %v", sess.ID, tc.Filename, transferErr)
		return errorResponse(transferErr)
	}
	if err := pending.Commit(); err != nil {
		metrics.UploadErrorsTotal.Inc()
		return errorResponse(fmt.Errorf("commit upload: %w", err))
	}

	metrics.UploadsTotal.Inc()
	metrics.UploadSizeBytes.Observe(float64(tc.Transferred))
	owner, name, size := sess.Username(), tc.Filename, tc.Transferred
	d.journal("journal upload", func(m *storage.MetadataStore) error {
		return m.RecordUpload(owner, name, size)
	})

	resp := protocol.OK()
	resp.Bytes = tc.Transferred
	return resp
}

// BeginDownload validates a download command and opens the source file. On
// success the returned response carries the file size and must be sent
// before the chunk stream begins.
func (d *Dispatcher) BeginDownload(sess *session.Session, msg *protocol.Message) (*os.File, *session.TransferContext, *protocol.Message) {
	metrics.CommandsTotal.WithLabelValues(msg.Type).Inc()

	if err := sess.RequireAuthenticated(); err != nil {
		return nil, nil, errorResponse(err)
	}

	tc := &session.TransferContext{
		Direction: session.DirectionDownload,
		Filename:  msg.Filename,
		ChunkSize: d.opts.ChunkSize,
	}
	if err := sess.BeginTransfer(tc); err != nil {
		return nil, nil, errorResponse(err)
	}

	f, rec, err := d.opts.Store.Open(sess.Username(), msg.Filename)
	if err != nil {
		sess.EndTransfer()
		return nil, nil, errorResponse(err)
	}
	tc.Size = rec.Size

	ack := protocol.OK()
	ack.Filename = msg.Filename
	ack.Size = rec.Size
	return f, tc, ack
}

// FinishDownload records the outcome of a download chunk stream.
func (d *Dispatcher) FinishDownload(sess *session.Session, tc *session.TransferContext, transferErr error) {
	defer sess.EndTransfer()

	if transferErr != nil {
		metrics.DownloadErrorsTotal.Inc()
		log.Warnf("[%s] download %s failed: %v", sess.ID, tc.Filename, transferErr)
		return
	}
	metrics.DownloadsTotal.Inc()
	metrics.DownloadSizeBytes.Observe(float64(tc.Transferred))
	owner, name := sess.Username(), tc.Filename
	d.journal("journal download", func(m *storage.MetadataStore) error {
		return m.RecordDownload(owner, name)
	})
}

// journal hands a metadata write to the worker pool, or runs it inline
// when no pool is configured.
func (d *Dispatcher) journal(name string, fn func(*storage.MetadataStore) error) {
	if d.opts.Metadata == nil {
		return
	}
	m := d.opts.Metadata
	if d.opts.Pool == nil {
		if err := fn(m); err != nil {
			log.Errorf("%s failed: %v", name, err)
		}
		return
	}
	d.opts.Pool.Submit(workers.Task{Name: name, Run: func() error { return fn(m) }})
}

// errorResponse maps a failure onto a wire error response.
func errorResponse(err error) *protocol.Message {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return protocol.Errorf(protocol.KindNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidName):
		return protocol.Errorf(protocol.KindProtocol, err.Error())
	}
	var k protocol.Kinder
	if errors.As(err, &k) {
		return protocol.Errorf(k.Kind(), err.Error())
	}
	return protocol.Errorf(protocol.KindStorage, err.Error())
}
