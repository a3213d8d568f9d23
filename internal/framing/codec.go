// Package framing implements the ingest link's wire protocol: a 4-byte
// unsigned big-endian length header followed by exactly that many payload
// bytes.
package framing

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameLen is the default upper bound on a single frame's payload.
const DefaultMaxFrameLen = 1_000_000

// headerLen is the size in bytes of the length prefix.
const headerLen = 4

// ErrFrameTooLarge is returned by ReadFrame when the declared frame length
// exceeds the configured maximum (and by Encode for an oversized payload). The caller may continue reading frames from the
// same connection; this error is recoverable per-frame, not per-connection.
var ErrFrameTooLarge = errors.New("framing: frame exceeds maximum length")

// Encode prepends a 4-byte big-endian length header to payload. It returns an
// error if payload exceeds maxFrameLen, mirroring the receive-side limit so a
// writer never produces a frame its own reader would reject.
func Encode(payload []byte, maxFrameLen int) ([]byte, error) {
	if maxFrameLen <= 0 {
		maxFrameLen = DefaultMaxFrameLen
	}
	if len(payload) > maxFrameLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), maxFrameLen)
	}
	framed := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint32(framed[:headerLen], uint32(len(payload)))
	copy(framed[headerLen:], payload)
	return framed, nil
}

// Reader decodes length-prefixed frames from an underlying stream.
type Reader struct {
	r           *bufio.Reader
	maxFrameLen int
}

// NewReader wraps r with frame decoding. maxFrameLen <= 0 selects
// DefaultMaxFrameLen.
func NewReader(r io.Reader, maxFrameLen int) *Reader {
	if maxFrameLen <= 0 {
		maxFrameLen = DefaultMaxFrameLen
	}
	return &Reader{r: bufio.NewReader(r), maxFrameLen: maxFrameLen}
}

// ReadFrame reads exactly one frame: a 4-byte length header followed by that
// many payload bytes.
//
// If the declared length exceeds maxFrameLen, ErrFrameTooLarge is returned
// without consuming the payload bytes from the stream. Callers should log
// and attempt to read the next frame on the same connection, matching the
// original implementation: it does not attempt to resynchronize by skipping
// the oversized payload, so a too-large frame desyncs subsequent reads on
// that connection. This is preserved deliberately rather than "fixed".
//
// A clean EOF before any header bytes are read returns io.EOF. Any other
// partial read (EOF mid-header or mid-payload) returns io.ErrUnexpectedEOF,
// which callers should treat as a silent connection close.
func (r *Reader) ReadFrame() ([]byte, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	n := binary.BigEndian.Uint32(header[:])
	if int(n) > r.maxFrameLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, r.maxFrameLen)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	return payload, nil
}
