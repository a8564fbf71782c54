package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/walkmesh"
)

const (
	MaxNameLen  = 255
	MaxEntities = 255

	walkPointSize = 3*4 + 3*4
	rotationSize  = 4 * 4
)

type PlayerState struct {
	At       walkmesh.WalkPoint
	Rotation mgl32.Quat
	Name     string
}

type SheepState struct {
	At       walkmesh.WalkPoint
	Rotation mgl32.Quat
}

// State is a full snapshot of the visible world.
type State struct {
	Players []PlayerState
	Sheep   []SheepState
}

// AppendState encodes st as one state message. If self indexes a player, that
// player is written first and the rest follow in order. Names longer than
// MaxNameLen bytes are truncated.
func AppendState(dst []byte, st State, self int) ([]byte, error) {
	if len(st.Players) > MaxEntities {
		return dst, fmt.Errorf("protocol: %d players exceeds %d", len(st.Players), MaxEntities)
	}
	if len(st.Sheep) > MaxEntities {
		return dst, fmt.Errorf("protocol: %d sheep exceeds %d", len(st.Sheep), MaxEntities)
	}

	mark := len(dst)
	out := appendHeader(dst, TypeState, 0)

	out = append(out, byte(len(st.Players)))
	if self >= 0 && self < len(st.Players) {
		out = appendPlayer(out, st.Players[self])
	}
	for i, p := range st.Players {
		if i == self {
			continue
		}
		out = appendPlayer(out, p)
	}

	out = append(out, byte(len(st.Sheep)))
	for _, s := range st.Sheep {
		out = appendWalkPoint(out, s.At)
		out = appendRotation(out, s.Rotation)
	}

	if err := patchSize(out, mark); err != nil {
		return dst, err
	}
	return out, nil
}

func SendState(s *Stream, st State, self int) error {
	out, err := AppendState(s.Out, st, self)
	if err != nil {
		return err
	}
	s.Out = out
	return nil
}

func appendPlayer(dst []byte, p PlayerState) []byte {
	dst = appendWalkPoint(dst, p.At)
	dst = appendRotation(dst, p.Rotation)
	name := p.Name
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	dst = append(dst, byte(len(name)))
	return append(dst, name...)
}

func appendWalkPoint(dst []byte, p walkmesh.WalkPoint) []byte {
	for _, i := range p.Indices {
		dst = binary.LittleEndian.AppendUint32(dst, i)
	}
	for _, w := range p.Weights {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(w))
	}
	return dst
}

// Rotations travel as x, y, z, w.
func appendRotation(dst []byte, q mgl32.Quat) []byte {
	for _, f := range [4]float32{q.V[0], q.V[1], q.V[2], q.W} {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

// RecvState decodes one state message from the front of s.In. On success st
// is replaced entirely; on error it is left untouched.
func RecvState(s *Stream, st *State) (bool, error) {
	size, ok := readHeader(s.In, TypeState)
	if !ok {
		return false, nil
	}
	if len(s.In) < HeaderSize+size {
		return false, nil
	}

	r := cursor{buf: s.In[HeaderSize : HeaderSize+size]}
	var next State

	n := int(r.u8())
	next.Players = make([]PlayerState, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		var p PlayerState
		p.At = r.walkPoint()
		p.Rotation = r.rotation()
		p.Name = string(r.bytes(int(r.u8())))
		next.Players = append(next.Players, p)
	}

	n = int(r.u8())
	next.Sheep = make([]SheepState, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		var sh SheepState
		sh.At = r.walkPoint()
		sh.Rotation = r.rotation()
		next.Sheep = append(next.Sheep, sh)
	}

	if r.err != nil {
		return false, r.err
	}
	if r.at != size {
		return false, malformed("trailing data in state message (%d of %d bytes read)", r.at, size)
	}

	*st = next
	s.Consume(HeaderSize + size)
	return true, nil
}

// cursor reads little-endian fields from a bounded payload. The first overrun
// sets err and every later read returns zero values.
type cursor struct {
	buf []byte
	at  int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.at+n > len(c.buf) {
		c.err = malformed("ran out of bytes reading state message at offset %d", c.at)
		return nil
	}
	b := c.buf[c.at : c.at+n]
	c.at += n
	return b
}

func (c *cursor) u8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *cursor) u32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *cursor) f32() float32 {
	return math.Float32frombits(c.u32())
}

func (c *cursor) bytes(n int) []byte {
	return c.take(n)
}

func (c *cursor) walkPoint() walkmesh.WalkPoint {
	var p walkmesh.WalkPoint
	for i := range p.Indices {
		p.Indices[i] = c.u32()
	}
	for i := range p.Weights {
		p.Weights[i] = c.f32()
	}
	return p
}

func (c *cursor) rotation() mgl32.Quat {
	x, y, z, w := c.f32(), c.f32(), c.f32(), c.f32()
	return mgl32.Quat{W: w, V: mgl32.Vec3{x, y, z}}
}
