package main

import (
	"path/filepath"
	"testing"

	"meshwalk.io/internal/walkmesh"
	"meshwalk.io/internal/walkmesh/meshgen"
)

func TestWriteBundle_Loads(t *testing.T) {
	opts := meshgen.DefaultGridOptions()
	opts.Cols, opts.Rows = 4, 3
	a, err := meshgen.Grid(opts)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	opts.Amplitude = 0
	b, _ := meshgen.Grid(opts)

	path := filepath.Join(t.TempDir(), "out", "world.w")
	if err := writeBundle(path, []walkmesh.NamedMesh{{Name: "WalkMesh", Mesh: a}, {Name: "Flat", Mesh: b}}); err != nil {
		t.Fatalf("writeBundle: %v", err)
	}
	s, err := walkmesh.LoadStore(path)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}
	m, err := s.Lookup("WalkMesh")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if m.NumTriangles() != 4*3*2 || m.NumVertices() != 5*4 {
		t.Fatalf("triangles=%d vertices=%d", m.NumTriangles(), m.NumVertices())
	}
	if got := s.Names(); len(got) != 2 {
		t.Fatalf("names=%v", got)
	}
}
