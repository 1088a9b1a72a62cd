package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameBody is the maximum allowed frame body size. A declared length
// of zero or at/above this bound is a protocol violation and closes the
// connection.
const MaxFrameBody = 1 << 20

// frameHeaderLength is the fixed size of the length prefix.
const frameHeaderLength = 4

// Framing violations. Endpoints close the connection on either.
var (
	ErrEmptyFrame    = errors.New("protocol: zero-length frame")
	ErrFrameTooLarge = errors.New("protocol: frame body exceeds 1 MiB")
)

// WriteFrame writes one length-prefixed frame to w. The format is
// [4 bytes body length, big-endian uint32][body]. Callers that share w
// across goroutines must serialize calls so a header is never
// interleaved with another writer's body.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) == 0 {
		return ErrEmptyFrame
	}
	if len(body) >= MaxFrameBody {
		return ErrFrameTooLarge
	}
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. It validates the
// declared body length before allocating, returning ErrEmptyFrame or
// ErrFrameTooLarge on a violation.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length >= MaxFrameBody {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}

// WriteEnvelope serializes env and writes it as a single frame.
func WriteEnvelope(w io.Writer, env Envelope) error {
	body, err := EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return WriteFrame(w, body)
}

// ReadEnvelope reads one frame and parses it as an envelope.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	body, err := ReadFrame(r)
	if err != nil {
		return Envelope{}, err
	}
	env, ok := DecodeEnvelope(body)
	if !ok {
		return Envelope{}, errors.New("protocol: malformed envelope")
	}
	return env, nil
}
