package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "login",
			msg:  Message{Type: TypeLogin, Username: "bob", Secret: "secret1"},
		},
		{
			name: "upload",
			msg:  Message{Type: TypeUpload, Filename: "a.txt", Size: 5000000},
		},
		{
			name: "ok with bytes",
			msg:  Message{Type: TypeOK, Bytes: 5000000},
		},
		{
			name: "error",
			msg:  Message{Type: TypeError, Kind: KindNotFound, Message: "file not found"},
		},
		{
			name: "list response",
			msg: Message{Type: TypeOK, Files: []FileRecord{
				{Name: "a.txt", Owner: "bob", Size: 12, ModTime: 1700000000},
				{Name: "b.bin", Owner: "bob", Size: 4096, ModTime: 1700000001},
			}},
		},
		{
			name: "binary preview",
			msg:  Message{Type: TypeOK, Filename: "blob.bin", Preview: []byte{0xf3, 0xff, 0x00, 0xfe, 0x80}},
		},
		{
			name: "empty type only",
			msg:  Message{Type: TypeLogout},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			c := NewCodec(&buf, 0)
			require.NoError(t, c.Encode(&tt.msg))

			got, err := c.Decode()
			require.NoError(t, err)
			assert.Equal(t, tt.msg, *got)
		})
	}
}

func TestCodecConsumesExactFrame(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec(&buf, 0)

	first := Message{Type: TypeList}
	second := Message{Type: TypeDelete, Filename: "a.txt"}
	require.NoError(t, c.Encode(&first))
	require.NoError(t, c.Encode(&second))

	got, err := c.Decode()
	require.NoError(t, err)
	assert.Equal(t, first, *got)

	got, err = c.Decode()
	require.NoError(t, err)
	assert.Equal(t, second, *got)

	assert.Zero(t, buf.Len(), "codec must consume exactly 4+L bytes per message")
}

func TestCodecOversizedPrefixIsFatal(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], DefaultMaxPayload+1)
	buf.Write(prefix[:])

	c := NewCodec(&buf, 0)
	_, err := c.Decode()
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Fatal)
}

func TestCodecMalformedPayloadKeepsAlignment(t *testing.T) {
	var buf bytes.Buffer

	garbage := []byte("{not json")
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(garbage)))
	buf.Write(prefix[:])
	buf.Write(garbage)

	c := NewCodec(&buf, 0)
	next := Message{Type: TypePreview, Filename: "a.txt"}
	require.NoError(t, c.Encode(&next))

	_, err := c.Decode()
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.False(t, fe.Fatal, "parse failure inside an intact envelope is recoverable")

	got, err := c.Decode()
	require.NoError(t, err)
	assert.Equal(t, next, *got)
}

func TestCodecTruncatedFrameIsFatal(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], 100)
	buf.Write(prefix[:])
	buf.WriteString("short")

	c := NewCodec(&buf, 0)
	_, err := c.Decode()
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Fatal)
}

func TestCodecCleanCloseYieldsEOF(t *testing.T) {
	c := NewCodec(&bytes.Buffer{}, 0)
	_, err := c.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestCodecRejectsOversizedEncode(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec(&buf, 16)

	err := c.Encode(&Message{Type: TypeUpload, Filename: "a-name-much-longer-than-the-payload-bound.txt"})
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, buf.Len(), "nothing may reach the wire on an encode failure")
}
