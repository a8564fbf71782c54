package protocol

import (
	"encoding/binary"
	"math"

	"meshwalk.io/internal/sim/input"
)

const (
	controlsPayloadSize = 4 + 4

	heldBit  = 0x80
	downMask = 0x7f
)

// AppendControls encodes c as one controls message. Press counts above 127
// do not fit the wire byte and are clamped; clamped reports that case.
func AppendControls(dst []byte, c input.Controls) (out []byte, clamped bool) {
	dst = appendHeader(dst, TypeControls, controlsPayloadSize)
	for _, b := range c.Buttons() {
		e, over := encodeButton(*b)
		clamped = clamped || over
		dst = append(dst, e)
	}
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(c.MouseX))
	return dst, clamped
}

func SendControls(s *Stream, c input.Controls) (clamped bool) {
	s.Out, clamped = AppendControls(s.Out, c)
	return clamped
}

func encodeButton(b input.Button) (byte, bool) {
	downs := b.Downs
	clamped := false
	if downs > downMask {
		downs = downMask
		clamped = true
	}
	e := downs
	if b.Pressed {
		e |= heldBit
	}
	return e, clamped
}

// RecvControls decodes one controls message from the front of s.In into c.
// Press counts are added with saturation, held flags are overwritten and the
// look delta is accumulated. overflow reports that a press counter
// saturated.
func RecvControls(s *Stream, c *input.Controls) (ok, overflow bool, err error) {
	size, ok := readHeader(s.In, TypeControls)
	if !ok {
		return false, false, nil
	}
	if size != controlsPayloadSize {
		return false, false, malformed("controls message size %d != %d", size, controlsPayloadSize)
	}
	if len(s.In) < HeaderSize+size {
		return false, false, nil
	}

	payload := s.In[HeaderSize : HeaderSize+size]
	for i, b := range c.Buttons() {
		var over bool
		*b, over = recvButton(*b, payload[i])
		overflow = overflow || over
	}
	c.MouseX += math.Float32frombits(binary.LittleEndian.Uint32(payload[4:]))

	s.Consume(HeaderSize + size)
	return true, overflow, nil
}

func recvButton(b input.Button, e byte) (input.Button, bool) {
	b.Pressed = e&heldBit != 0
	return input.AddDowns(b, e&downMask)
}
