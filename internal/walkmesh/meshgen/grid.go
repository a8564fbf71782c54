// Package meshgen builds procedural walk meshes for tooling and tests.
package meshgen

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/sim/mathx"
	"meshwalk.io/internal/walkmesh"
)

type GridOptions struct {
	Cols, Rows int
	Cell       float32
	Origin     mgl32.Vec3

	// Hills: height = Amplitude * noise(x*Frequency, y*Frequency). Zero
	// amplitude gives a flat plane.
	Amplitude float32
	Frequency float64
	Seed      int64
}

func DefaultGridOptions() GridOptions {
	return GridOptions{
		Cols:      40,
		Rows:      20,
		Cell:      1,
		Origin:    mgl32.Vec3{-10, -10, 0},
		Amplitude: 1.5,
		Frequency: 0.15,
		Seed:      1,
	}
}

// Grid returns a heightfield mesh over (Cols x Rows) cells in the xy plane,
// wound counter-clockwise seen from +z, with area-weighted vertex normals.
func Grid(opts GridOptions) (*walkmesh.Mesh, error) {
	if opts.Cols <= 0 || opts.Rows <= 0 || opts.Cell <= 0 {
		return nil, fmt.Errorf("meshgen: bad grid size %dx%d cell=%v", opts.Cols, opts.Rows, opts.Cell)
	}
	w := opts.Cols + 1
	h := opts.Rows + 1
	at := func(i, j int) uint32 { return uint32(j*w + i) }

	vertices := make([]mgl32.Vec3, 0, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			x := opts.Origin[0] + float32(i)*opts.Cell
			y := opts.Origin[1] + float32(j)*opts.Cell
			z := opts.Origin[2]
			if opts.Amplitude != 0 {
				n := mathx.ValueNoise2(opts.Seed, float64(x)*opts.Frequency, float64(y)*opts.Frequency)
				z += opts.Amplitude * float32(n)
			}
			vertices = append(vertices, mgl32.Vec3{x, y, z})
		}
	}

	triangles := make([][3]uint32, 0, opts.Cols*opts.Rows*2)
	for j := 0; j < opts.Rows; j++ {
		for i := 0; i < opts.Cols; i++ {
			v00, v10 := at(i, j), at(i+1, j)
			v01, v11 := at(i, j+1), at(i+1, j+1)
			triangles = append(triangles,
				[3]uint32{v00, v10, v11},
				[3]uint32{v00, v11, v01},
			)
		}
	}

	normals := make([]mgl32.Vec3, len(vertices))
	for _, t := range triangles {
		a, b, c := vertices[t[0]], vertices[t[1]], vertices[t[2]]
		n := b.Sub(a).Cross(c.Sub(a))
		for _, v := range t {
			normals[v] = normals[v].Add(n)
		}
	}
	for i, n := range normals {
		u, ok := mathx.Normalize(n)
		if !ok {
			u = mathx.Up
		}
		normals[i] = u
	}

	return walkmesh.New(vertices, normals, triangles)
}
