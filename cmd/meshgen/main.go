package main

import (
	"bufio"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/walkmesh"
	"meshwalk.io/internal/walkmesh/meshgen"
)

func main() {
	def := meshgen.DefaultGridOptions()
	var (
		out       = flag.String("out", "./world.w", "output bundle path")
		names     = flag.String("name", "WalkMesh", "comma-separated mesh names; each gets its own grid seeded in order")
		cols      = flag.Int("cols", def.Cols, "grid cells along x")
		rows      = flag.Int("rows", def.Rows, "grid cells along y")
		cell      = flag.Float64("cell", float64(def.Cell), "cell size")
		originX   = flag.Float64("origin_x", float64(def.Origin[0]), "grid origin x")
		originY   = flag.Float64("origin_y", float64(def.Origin[1]), "grid origin y")
		amplitude = flag.Float64("amplitude", float64(def.Amplitude), "hill height (0 for a flat plane)")
		frequency = flag.Float64("frequency", def.Frequency, "hill frequency")
		seed      = flag.Int64("seed", def.Seed, "noise seed")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[meshgen] ", log.LstdFlags)

	opts := meshgen.GridOptions{
		Cols:      *cols,
		Rows:      *rows,
		Cell:      float32(*cell),
		Origin:    mgl32.Vec3{float32(*originX), float32(*originY), 0},
		Amplitude: float32(*amplitude),
		Frequency: *frequency,
		Seed:      *seed,
	}

	var meshes []walkmesh.NamedMesh
	for i, name := range strings.Split(*names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		o := opts
		o.Seed += int64(i)
		m, err := meshgen.Grid(o)
		if err != nil {
			logger.Fatalf("grid %q: %v", name, err)
		}
		meshes = append(meshes, walkmesh.NamedMesh{Name: name, Mesh: m})
		logger.Printf("mesh %q: vertices=%d triangles=%d", name, m.NumVertices(), m.NumTriangles())
	}
	if len(meshes) == 0 {
		logger.Fatalf("no mesh names given")
	}

	if err := writeBundle(*out, meshes); err != nil {
		logger.Fatalf("write %s: %v", *out, err)
	}
	logger.Printf("wrote %s", *out)
}

// writeBundle writes to a temp file and renames it into place.
func writeBundle(path string, meshes []walkmesh.NamedMesh) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := walkmesh.WriteStore(bw, meshes); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
