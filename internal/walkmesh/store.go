package walkmesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrLoad     = errors.New("walkmesh: bad mesh bundle")
	ErrNotFound = errors.New("walkmesh: mesh not found")
)

// Store holds every mesh of a bundle, keyed by name. It is read-only once
// loaded.
type Store struct {
	meshes map[string]*Mesh

	// Warnings collects non-fatal load diagnostics, such as trailing bytes
	// after the index chunk.
	Warnings []string
}

type NamedMesh struct {
	Name string
	Mesh *Mesh
}

type indexEntry struct {
	nameBegin, nameEnd         uint32
	vertexBegin, vertexEnd     uint32
	triangleBegin, triangleEnd uint32
}

// LoadStore reads a bundle file from disk.
func LoadStore(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ReadStore(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadStore parses the position, normal, triangle, name and index chunks in
// that order. Any failure rejects the whole bundle.
func ReadStore(r io.Reader) (*Store, error) {
	posRaw, err := readChunk(r, magicPositions, vec3Size)
	if err != nil {
		return nil, err
	}
	nrmRaw, err := readChunk(r, magicNormals, vec3Size)
	if err != nil {
		return nil, err
	}
	triRaw, err := readChunk(r, magicTriangles, uvec3Size)
	if err != nil {
		return nil, err
	}
	names, err := readChunk(r, magicNames, 1)
	if err != nil {
		return nil, err
	}
	idxRaw, err := readChunk(r, magicIndex, indexEntrySize)
	if err != nil {
		return nil, err
	}

	s := &Store{meshes: map[string]*Mesh{}}

	var extra [1]byte
	if n, _ := io.ReadFull(r, extra[:]); n > 0 {
		s.Warnings = append(s.Warnings, "trailing data after index chunk")
	}

	vertices := decodeVec3s(posRaw)
	normals := decodeVec3s(nrmRaw)
	if len(vertices) != len(normals) {
		return nil, fmt.Errorf("%w: %d positions but %d normals", ErrLoad, len(vertices), len(normals))
	}
	flat := decodeUint32s(triRaw)
	triangles := make([][3]uint32, len(flat)/3)
	for i := range triangles {
		triangles[i] = [3]uint32{flat[i*3], flat[i*3+1], flat[i*3+2]}
	}

	words := decodeUint32s(idxRaw)
	for i := 0; i+6 <= len(words); i += 6 {
		e := indexEntry{words[i], words[i+1], words[i+2], words[i+3], words[i+4], words[i+5]}
		if err := s.addEntry(e, names, vertices, normals, triangles); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) addEntry(e indexEntry, names []byte, vertices, normals []mgl32.Vec3, triangles [][3]uint32) error {
	if !(e.nameBegin <= e.nameEnd && int(e.nameEnd) <= len(names)) {
		return fmt.Errorf("%w: invalid name range [%d,%d)", ErrLoad, e.nameBegin, e.nameEnd)
	}
	if !(e.vertexBegin <= e.vertexEnd && int(e.vertexEnd) <= len(vertices)) {
		return fmt.Errorf("%w: invalid vertex range [%d,%d)", ErrLoad, e.vertexBegin, e.vertexEnd)
	}
	if !(e.triangleBegin <= e.triangleEnd && int(e.triangleEnd) <= len(triangles)) {
		return fmt.Errorf("%w: invalid triangle range [%d,%d)", ErrLoad, e.triangleBegin, e.triangleEnd)
	}
	name := string(names[e.nameBegin:e.nameEnd])

	local := make([][3]uint32, 0, e.triangleEnd-e.triangleBegin)
	for ti := e.triangleBegin; ti < e.triangleEnd; ti++ {
		tri := triangles[ti]
		for _, v := range tri {
			if v < e.vertexBegin || v >= e.vertexEnd {
				return fmt.Errorf("%w: mesh %q triangle %d uses vertex %d outside [%d,%d)", ErrLoad, name, ti, v, e.vertexBegin, e.vertexEnd)
			}
		}
		local = append(local, [3]uint32{tri[0] - e.vertexBegin, tri[1] - e.vertexBegin, tri[2] - e.vertexBegin})
	}

	m, err := New(vertices[e.vertexBegin:e.vertexEnd], normals[e.vertexBegin:e.vertexEnd], local)
	if err != nil {
		return fmt.Errorf("%w: mesh %q: %w", ErrLoad, name, err)
	}
	if _, dup := s.meshes[name]; dup {
		return fmt.Errorf("%w: duplicate mesh name %q", ErrLoad, name)
	}
	s.meshes[name] = m
	return nil
}

func (s *Store) Lookup(name string) (*Mesh, error) {
	m, ok := s.meshes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return m, nil
}

// Names returns the mesh names in sorted order.
func (s *Store) Names() []string {
	out := make([]string, 0, len(s.meshes))
	for n := range s.meshes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// WriteStore writes meshes as one bundle that ReadStore accepts. Each mesh
// gets its own contiguous vertex and triangle range.
func WriteStore(w io.Writer, meshes []NamedMesh) error {
	var (
		vertices, normals []mgl32.Vec3
		tris              []uint32
		names             []byte
		index             []uint32
	)
	for _, nm := range meshes {
		if nm.Mesh == nil {
			return fmt.Errorf("walkmesh: mesh %q is nil", nm.Name)
		}
		nameBegin := uint32(len(names))
		names = append(names, nm.Name...)
		vBegin := uint32(len(vertices))
		vertices = append(vertices, nm.Mesh.vertices...)
		normals = append(normals, nm.Mesh.normals...)
		tBegin := uint32(len(tris) / 3)
		for _, t := range nm.Mesh.triangles {
			tris = append(tris, t[0]+vBegin, t[1]+vBegin, t[2]+vBegin)
		}
		index = append(index,
			nameBegin, uint32(len(names)),
			vBegin, uint32(len(vertices)),
			tBegin, uint32(len(tris)/3),
		)
	}

	chunks := []struct {
		magic   string
		payload []byte
	}{
		{magicPositions, encodeVec3s(vertices)},
		{magicNormals, encodeVec3s(normals)},
		{magicTriangles, encodeUint32s(tris)},
		{magicNames, names},
		{magicIndex, encodeUint32s(index)},
	}
	for _, c := range chunks {
		if err := writeChunk(w, c.magic, c.payload); err != nil {
			return fmt.Errorf("walkmesh: write %q: %w", c.magic, err)
		}
	}
	return nil
}
