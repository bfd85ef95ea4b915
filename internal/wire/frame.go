// Package wire implements the length-prefixed frame codec shared by the
// UI server and the slave server: a 4-byte big-endian length header
// followed by exactly that many bytes of a self-describing payload.
//
// The payload is gob-encoded, which gives the "self-describing"
// round-trip spec.md requires without needing a schema file. Concrete
// types that travel inside an Envelope's Args (events, CheckState,
// response payloads) must be registered once via Register before they
// can be encoded or decoded — packages that introduce a new wire type
// do so in their own init(), mirroring the teacher's msgcodec package
// treating the payload as an opaque, pre-framed blob.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// compressThreshold is the payload size above which Encode applies zstd
// compression, grounded in the teacher's internal/hub/msgcodec package.
const compressThreshold = 2048

const (
	compressionNone byte = 0
	compressionZstd byte = 1
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("wire: init zstd encoder: %v", err))
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("wire: init zstd decoder: %v", err))
	}
}

// Register makes a concrete type usable inside an Envelope's Args or
// LogRecord fields by registering it with the underlying gob codec.
// Call once per type, typically from an init() in the package that
// defines the type.
func Register(value any) {
	gob.Register(value)
}

// Envelope is the decoded form of one frame: either an action record
// (Action non-empty) or a log-record frame (Action empty, Log set),
// per spec.md §4.1's "absent or null action" rule.
type Envelope struct {
	Action string
	Args   []any
	Log    *LogRecord
}

// IsLogRecord reports whether this envelope carries a log record
// instead of an action.
func (e Envelope) IsLogRecord() bool {
	return e.Action == "" && e.Log != nil
}

// LogRecord is a structured log record forwarded by a slave, decoded
// by the slave server's reader when a frame's action field is absent
// (spec.md §4.7).
type LogRecord struct {
	Level   string
	Message string
	Attrs   map[string]string
}

// Encode serializes an action record into a ready-to-write frame:
// a 4-byte big-endian length header followed by the payload.
func Encode(action string, args []any) ([]byte, error) {
	return encodeEnvelope(Envelope{Action: action, Args: args})
}

// EncodeLogRecord serializes a log-record frame (no action).
func EncodeLogRecord(rec LogRecord) ([]byte, error) {
	return encodeEnvelope(Envelope{Log: &rec})
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("wire: encode payload: %w", err)
	}

	payload := buf.Bytes()
	compression := compressionNone
	if len(payload) > compressThreshold {
		payload = zstdEncoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		compression = compressionZstd
	}

	body := make([]byte, 1+len(payload))
	body[0] = compression
	copy(body[1:], payload)

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)
	return frame, nil
}

// maxFrameLength guards against a corrupt or hostile length header
// causing an unbounded allocation.
const maxFrameLength = 64 << 20 // 64 MiB

// ReadFrame reads exactly one frame from r: a 4-byte length header,
// then that many body bytes. Per spec.md §4.1, reading fewer than n
// bytes across multiple underlying reads is normal; io.ReadFull
// accumulates until the body is complete or the stream ends.
//
// Returns io.EOF if the connection closed cleanly before any header
// bytes were read (spec.md's PeerGone case). A partial header or body
// returns a FramingError.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FramingError{Cause: err}
	}

	n := binary.BigEndian.Uint32(header[:])
	if n == 0 {
		return nil, &FramingError{Cause: fmt.Errorf("zero-length frame")}
	}
	if n > maxFrameLength {
		return nil, &FramingError{Cause: fmt.Errorf("frame length %d exceeds maximum %d", n, maxFrameLength)}
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, &FramingError{Cause: err}
	}
	return body, nil
}

// Decode parses a frame body (as returned by ReadFrame) into an
// Envelope.
func Decode(body []byte) (Envelope, error) {
	if len(body) < 1 {
		return Envelope{}, &DecodeError{Cause: fmt.Errorf("empty frame body")}
	}

	compression, payload := body[0], body[1:]
	switch compression {
	case compressionZstd:
		decompressed, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return Envelope{}, &DecodeError{Cause: fmt.Errorf("zstd decompress: %w", err)}
		}
		payload = decompressed
	case compressionNone:
		// payload already plain
	default:
		return Envelope{}, &DecodeError{Cause: fmt.Errorf("unknown compression flag %d", compression)}
	}

	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&env); err != nil {
		return Envelope{}, &DecodeError{Cause: fmt.Errorf("gob decode: %w", err)}
	}
	return env, nil
}
