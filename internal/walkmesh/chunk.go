package walkmesh

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Chunk magics, in file order.
const (
	magicPositions = "p..."
	magicNormals   = "n..."
	magicTriangles = "tri0"
	magicNames     = "str0"
	magicIndex     = "idxA"
)

const (
	vec3Size       = 12
	uvec3Size      = 12
	indexEntrySize = 24
)

// maxChunkSize bounds a single chunk payload so a corrupt length can't make
// the loader allocate without limit.
const maxChunkSize = 1 << 30

// readChunk reads one tagged chunk: 4 magic bytes, a little-endian uint32
// payload length, then the payload. The length must be a multiple of
// elemSize.
func readChunk(r io.Reader, magic string, elemSize int) ([]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: chunk %q header: %v", ErrLoad, magic, err)
	}
	if got := string(hdr[:4]); got != magic {
		return nil, fmt.Errorf("%w: expected chunk %q, found %q", ErrLoad, magic, got)
	}
	size := binary.LittleEndian.Uint32(hdr[4:])
	if size > maxChunkSize {
		return nil, fmt.Errorf("%w: chunk %q too large (%d bytes)", ErrLoad, magic, size)
	}
	if int(size)%elemSize != 0 {
		return nil, fmt.Errorf("%w: chunk %q size %d is not a multiple of %d", ErrLoad, magic, size, elemSize)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: chunk %q payload: %v", ErrLoad, magic, err)
	}
	return buf, nil
}

func writeChunk(w io.Writer, magic string, payload []byte) error {
	if len(magic) != 4 {
		return fmt.Errorf("walkmesh: bad chunk magic %q", magic)
	}
	var hdr [8]byte
	copy(hdr[:4], magic)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func decodeVec3s(b []byte) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(b)/vec3Size)
	for i := range out {
		o := i * vec3Size
		out[i] = mgl32.Vec3{
			math.Float32frombits(binary.LittleEndian.Uint32(b[o:])),
			math.Float32frombits(binary.LittleEndian.Uint32(b[o+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(b[o+8:])),
		}
	}
	return out
}

func encodeVec3s(vs []mgl32.Vec3) []byte {
	out := make([]byte, 0, len(vs)*vec3Size)
	for _, v := range vs {
		for k := 0; k < 3; k++ {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v[k]))
		}
	}
	return out
}

func decodeUint32s(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}

func encodeUint32s(vs []uint32) []byte {
	out := make([]byte, 0, len(vs)*4)
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	return out
}
