package framing

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte(""),
		[]byte("x"),
		[]byte(`{"type":"ticker","product_id":"BTC-USD"}`),
		bytes.Repeat([]byte("a"), DefaultMaxFrameLen),
	}
	for _, payload := range payloads {
		framed, err := Encode(payload, DefaultMaxFrameLen)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		reader := NewReader(bytes.NewReader(framed), DefaultMaxFrameLen)
		got, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(payload))
		}
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), DefaultMaxFrameLen+1)
	if _, err := Encode(payload, DefaultMaxFrameLen); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // declares ~4GB payload
	reader := NewReader(&buf, DefaultMaxFrameLen)
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameReturnsEOFOnCleanClose(t *testing.T) {
	reader := NewReader(bytes.NewReader(nil), DefaultMaxFrameLen)
	if _, err := reader.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameReturnsUnexpectedEOFOnPartialPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x05})
	buf.WriteString("ab")
	reader := NewReader(&buf, DefaultMaxFrameLen)
	if _, err := reader.ReadFrame(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrameContinuesAfterOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x0A}) // declares 10 bytes, too large
	reader := NewReader(&buf, 4)
	if _, err := reader.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	// The stream is now desynced; the reader does not attempt to skip the
	// declared payload. It stays usable: the next call reads on from the
	// current position, which here is the end of the stream.
	if _, err := reader.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF from the next read, got %v", err)
	}
}
