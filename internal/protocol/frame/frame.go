// Package frame recovers message boundaries from a raw byte stream by
// prefixing every payload with a 4-byte unsigned big-endian length.
package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

const prefixLen = 4

// MaxPayloadBytes bounds one frame so a corrupt prefix cannot drive an
// arbitrary allocation.
const MaxPayloadBytes = 32 * 1024 * 1024

var (
	ErrTruncated       = errors.New("frame: stream closed mid-message")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Send writes the length prefix followed by exactly len(payload) bytes.
func Send(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	buf := make([]byte, prefixLen+len(payload))
	binary.BigEndian.PutUint32(buf[:prefixLen], uint32(len(payload)))
	copy(buf[prefixLen:], payload)
	_, err := w.Write(buf)
	return err
}

// Recv reads one complete frame. A peer close before any prefix byte
// arrives returns io.EOF, the clean end-of-stream signal; a close after
// partial consumption is ErrTruncated. io.ReadFull re-enters the read
// until the target count is satisfied, so arbitrarily small transport
// chunks reassemble correctly.
func Recv(r io.Reader) ([]byte, error) {
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return payload, nil
}
