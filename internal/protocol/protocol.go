// Package protocol frames controls and state messages over a byte stream.
//
// Every message is a one-byte type, a 3-byte little-endian payload size, and
// the payload. Decoders return (false, nil) while a message is incomplete and
// wrap ErrMalformed when the bytes can never decode.
package protocol

import (
	"errors"
	"fmt"
)

type MessageType uint8

const (
	TypeControls MessageType = 1
	TypeState    MessageType = 's'
)

const (
	HeaderSize = 4
	MaxPayload = 1<<24 - 1
)

var ErrMalformed = errors.New("protocol: malformed message")

// Stream is one connection's byte queues. Encoders append whole messages to
// Out; decoders read from the front of In and trim what they consume.
type Stream struct {
	Out []byte
	In  []byte
}

// Consume drops n bytes from the front of In.
func (s *Stream) Consume(n int) {
	k := copy(s.In, s.In[n:])
	s.In = s.In[:k]
}

// PeekType reports the type byte of the next buffered message, if any.
func PeekType(in []byte) (MessageType, bool) {
	if len(in) == 0 {
		return 0, false
	}
	return MessageType(in[0]), true
}

func appendHeader(dst []byte, t MessageType, size int) []byte {
	return append(dst, byte(t), byte(size), byte(size>>8), byte(size>>16))
}

// readHeader returns the payload size of the buffered message when its header
// is present and carries type t.
func readHeader(in []byte, t MessageType) (int, bool) {
	if len(in) < HeaderSize || MessageType(in[0]) != t {
		return 0, false
	}
	return int(in[1]) | int(in[2])<<8 | int(in[3])<<16, true
}

// patchSize writes the payload size into a header that starts at mark.
func patchSize(buf []byte, mark int) error {
	size := len(buf) - mark - HeaderSize
	if size > MaxPayload {
		return fmt.Errorf("protocol: payload of %d bytes exceeds %d", size, MaxPayload)
	}
	buf[mark+1] = byte(size)
	buf[mark+2] = byte(size >> 8)
	buf[mark+3] = byte(size >> 16)
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
