// Package protocol implements the length-prefixed wire protocol shared by
// the server and the client: the message envelope, the JSON codec, and the
// chunk framing used for file streaming.
package protocol

// Command types sent by the client.
const (
	TypeLogin    = "login"
	TypeLogout   = "logout"
	TypeUpload   = "upload"
	TypeDownload = "download"
	TypeList     = "list"
	TypePreview  = "preview"
	TypeDelete   = "delete"
)

// Response types sent by the server.
const (
	TypeOK    = "ok"
	TypeError = "error"
)

// FileRecord describes one stored file in a list response.
type FileRecord struct {
	Name    string `json:"name"`
	Owner   string `json:"owner,omitempty"`
	Size    int64  `json:"size"`
	ModTime int64  `json:"mod_time,omitempty"` // Unix seconds
}

// Message is the envelope for every command and response on the wire.
// Fields are command-specific; unused fields are omitted from the encoded
// payload. The codec performs no semantic validation of these fields, that
// is the dispatcher's job.
type Message struct {
	Type     string       `json:"type"`
	Username string       `json:"username,omitempty"`
	Secret   string       `json:"secret,omitempty"`
	Token    string       `json:"token,omitempty"`
	Filename string       `json:"filename,omitempty"`
	Size     int64        `json:"size,omitempty"`
	Bytes    int64        `json:"bytes,omitempty"`
	Files    []FileRecord `json:"files,omitempty"`
	Preview  []byte       `json:"preview,omitempty"` // base64 on the wire, byte-exact
	Kind     string       `json:"kind,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// OK returns an empty success response.
func OK() *Message {
	return &Message{Type: TypeOK}
}

// Errorf returns an error response with the given kind and message.
func Errorf(kind, message string) *Message {
	return &Message{Type: TypeError, Kind: kind, Message: message}
}
