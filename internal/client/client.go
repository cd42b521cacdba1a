// Package client implements the initiating side of the wire protocol: it
// builds command messages, sends them through the codec, and drives the
// transfer engine for uploads and downloads.
package client

import (
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/socket-file-server/internal/protocol"
	"git.uuxo.net/uuxo/socket-file-server/internal/transfer"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// DialTimeout bounds the initial TCP connect.
const DialTimeout = 10 * time.Second

// progressInterval is how often long transfers log their progress.
const progressInterval = 5 * time.Second

// Client is one authenticated connection to a file server. It is not safe
// for concurrent use: the protocol is strictly sequential per connection.
type Client struct {
	conn      net.Conn
	codec     *protocol.Codec
	chunkSize int
	token     string
}

// Dial connects to the server at addr.
func Dial(addr string, chunkSize int) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	if chunkSize <= 0 {
		chunkSize = transfer.DefaultChunkSize
	}
	return &Client{
		conn:      conn,
		codec:     protocol.NewCodec(conn, 0),
		chunkSize: chunkSize,
	}, nil
}

// roundTrip sends one command and returns the response. Error responses
// come back as *protocol.ServerError, kind and message verbatim.
func (c *Client) roundTrip(msg *protocol.Message) (*protocol.Message, error) {
	if err := c.codec.Encode(msg); err != nil {
		return nil, err
	}
	resp, err := c.codec.Decode()
	if err != nil {
		return nil, err
	}
	if resp.Type == protocol.TypeError {
		return nil, &protocol.ServerError{ErrKind: resp.Kind, Message: resp.Message}
	}
	return resp, nil
}

// Login authenticates the session with a username and secret. After an
// auth failure the connection stays open and a new login may be attempted.
func (c *Client) Login(username, secret string) error {
	resp, err := c.roundTrip(&protocol.Message{
		Type:     protocol.TypeLogin,
		Username: username,
		Secret:   secret,
	})
	if err != nil {
		return err
	}
	c.token = resp.Token
	return nil
}

// LoginToken re-authenticates with a session resume token previously
// returned by Login.
func (c *Client) LoginToken(token string) error {
	_, err := c.roundTrip(&protocol.Message{Type: protocol.TypeLogin, Token: token})
	return err
}

// Token returns the session resume token from the last successful login,
// if the server issued one.
func (c *Client) Token() string { return c.token }

// Logout clears the session's authentication. The connection remains
// usable for a new login.
func (c *Client) Logout() error {
	_, err := c.roundTrip(&protocol.Message{Type: protocol.TypeLogout})
	return err
}

// List returns the records of the session owner's files.
func (c *Client) List() ([]protocol.FileRecord, error) {
	resp, err := c.roundTrip(&protocol.Message{Type: protocol.TypeList})
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Preview returns the first bytes of the named file, byte-exact even for
// binary content.
func (c *Client) Preview(name string) ([]byte, error) {
	resp, err := c.roundTrip(&protocol.Message{Type: protocol.TypePreview, Filename: name})
	if err != nil {
		return nil, err
	}
	return resp.Preview, nil
}

// Delete removes the named file.
func (c *Client) Delete(name string) error {
	_, err := c.roundTrip(&protocol.Message{Type: protocol.TypeDelete, Filename: name})
	return err
}

// Upload streams size bytes from r to the server under the given name and
// returns the byte count the server confirmed.
func (c *Client) Upload(name string, r io.Reader, size int64) (int64, error) {
	if _, err := c.roundTrip(&protocol.Message{
		Type:     protocol.TypeUpload,
		Filename: name,
		Size:     size,
	}); err != nil {
		return 0, err
	}

	sent, err := transfer.Send(c.conn, io.LimitReader(r, size), c.chunkSize)
	if err != nil {
		return sent, err
	}
	if sent != size {
		// The stream is already terminated short; the server's error
		// response arrives next.
		log.Warnf("upload %s: source yielded %d of %d declared bytes", name, sent, size)
	}

	resp, err := c.codec.Decode()
	if err != nil {
		return sent, err
	}
	if resp.Type == protocol.TypeError {
		return sent, &protocol.ServerError{ErrKind: resp.Kind, Message: resp.Message}
	}
	return resp.Bytes, nil
}

// UploadFile uploads a local file under its base name.
func (c *Client) UploadFile(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	pw := transfer.NewProgressWriter(io.Discard, info.Size(), info.Name())
	pw.StartReporting(progressInterval)
	defer pw.StopReporting()
	return c.Upload(info.Name(), io.TeeReader(f, pw), info.Size())
}

// Download streams the named file from the server into w and returns the
// number of bytes received.
func (c *Client) Download(name string, w io.Writer) (int64, error) {
	resp, err := c.roundTrip(&protocol.Message{Type: protocol.TypeDownload, Filename: name})
	if err != nil {
		return 0, err
	}

	pw := transfer.NewProgressWriter(w, resp.Size, name)
	pw.StartReporting(progressInterval)
	defer pw.StopReporting()
	return transfer.Receive(c.conn, pw, resp.Size)
}

// DownloadFile downloads the named file to destPath via a staging file, so
// a failed transfer leaves no partial artifact behind.
func (c *Client) DownloadFile(name, destPath string) (int64, error) {
	tmp := destPath + ".partial"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		return 0, fmt.Errorf("stage download: %w", err)
	}

	received, derr := c.Download(name, f)
	if derr != nil {
		f.Close()
		os.Remove(tmp)
		return received, derr
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return received, fmt.Errorf("flush download: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return received, fmt.Errorf("close download: %w", err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return received, fmt.Errorf("finish download: %w", err)
	}
	return received, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
