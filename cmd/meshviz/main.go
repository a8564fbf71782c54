package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"path/filepath"

	"meshwalk.io/internal/meshviz"
	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/walkmesh"
)

func main() {
	def := meshviz.DefaultOptions()
	var (
		meshPath    = flag.String("mesh", "./world.w", "walk mesh bundle")
		name        = flag.String("name", "", "mesh name (default: the snapshot's mesh, else WalkMesh)")
		snapPath    = flag.String("snapshot", "", "snapshot whose sheep and players to draw (optional)")
		out         = flag.String("out", "./mesh.webp", "output webp path")
		width       = flag.Int("width", def.Width, "output width in pixels")
		supersample = flag.Int("supersample", def.Supersample, "supersampling factor")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[meshviz] ", log.LstdFlags)

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		snap = &s
	}
	meshName := *name
	if meshName == "" && snap != nil {
		meshName = snap.MeshName
	}
	if meshName == "" {
		meshName = "WalkMesh"
	}

	store, err := walkmesh.LoadStore(*meshPath)
	if err != nil {
		logger.Fatalf("load meshes: %v", err)
	}
	for _, w := range store.Warnings {
		logger.Printf("mesh bundle %s: %s", *meshPath, w)
	}
	m, err := store.Lookup(meshName)
	if err != nil {
		logger.Fatalf("mesh: %v (bundle has %v)", err, store.Names())
	}

	var markers []meshviz.Marker
	if snap != nil {
		markers = meshviz.SnapshotMarkers(m, *snap)
		if skipped := len(snap.Sheep) + len(snap.Players) - len(markers); skipped > 0 {
			logger.Printf("skipped %d entities that do not fit mesh %q", skipped, meshName)
		}
	}

	opts := def
	opts.Width = *width
	opts.Supersample = *supersample
	if err := renderFile(*out, m, markers, opts); err != nil {
		logger.Fatalf("render: %v", err)
	}
	logger.Printf("wrote %s (mesh=%s triangles=%d markers=%d)", *out, meshName, m.NumTriangles(), len(markers))
}

func renderFile(path string, m *walkmesh.Mesh, markers []meshviz.Marker, opts meshviz.Options) error {
	img, err := meshviz.Render(m, markers, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := meshviz.EncodeWebP(bw, img); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
