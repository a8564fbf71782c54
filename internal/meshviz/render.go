// Package meshviz draws a walk mesh from above, shaded by its smooth
// normals, with optional entity markers. Output is supersampled and scaled
// down for smooth edges.
package meshviz

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/HugoSmits86/nativewebp"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"meshwalk.io/internal/walkmesh"
)

type Options struct {
	// Width is the output width in pixels; height follows the mesh aspect.
	Width       int
	Supersample int
	Margin      int

	Light      mgl32.Vec3
	Background color.NRGBA
	Ground     color.NRGBA
}

func DefaultOptions() Options {
	return Options{
		Width:       800,
		Supersample: 3,
		Margin:      12,
		Light:       mgl32.Vec3{-0.4, -0.3, 1},
		Background:  color.NRGBA{R: 24, G: 28, B: 36, A: 255},
		Ground:      color.NRGBA{R: 96, G: 160, B: 80, A: 255},
	}
}

// Marker is an entity drawn on top of the mesh. Forward is the world-space
// facing direction; only its xy part is used.
type Marker struct {
	At      mgl32.Vec3
	Forward mgl32.Vec3
	Radius  float32
	Color   color.NRGBA
}

var (
	SheepColor  = color.NRGBA{R: 240, G: 240, B: 230, A: 255}
	PlayerColor = color.NRGBA{R: 220, G: 60, B: 50, A: 255}
)

type view struct {
	minX, maxY float32
	scale      float32
	margin     float32
}

func (v view) px(p mgl32.Vec3) (float32, float32) {
	return v.margin + (p[0]-v.minX)*v.scale, v.margin + (v.maxY-p[1])*v.scale
}

// Render draws m and markers into an image opts.Width pixels wide.
func Render(m *walkmesh.Mesh, markers []Marker, opts Options) (*image.RGBA, error) {
	if m == nil || m.NumTriangles() == 0 {
		return nil, walkmesh.ErrEmptyMesh
	}
	if opts.Width <= 0 {
		return nil, fmt.Errorf("meshviz: bad width %d", opts.Width)
	}
	ss := opts.Supersample
	if ss < 1 {
		ss = 1
	}
	light, ok := normalize(opts.Light)
	if !ok {
		light = mgl32.Vec3{0, 0, 1}
	}

	lo, hi := bounds(m)
	spanX, spanY := hi[0]-lo[0], hi[1]-lo[1]
	if spanX <= 0 {
		spanX = 1
	}
	inner := opts.Width - 2*opts.Margin
	if inner <= 0 {
		return nil, fmt.Errorf("meshviz: margin %d leaves no room in width %d", opts.Margin, opts.Width)
	}
	height := int(math.Ceil(float64(spanY/spanX*float32(inner)))) + 2*opts.Margin

	v := view{
		minX:   lo[0],
		maxY:   hi[1],
		scale:  float32(inner*ss) / spanX,
		margin: float32(opts.Margin * ss),
	}
	big := image.NewRGBA(image.Rect(0, 0, opts.Width*ss, height*ss))
	draw.Draw(big, big.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	var r vector.Rasterizer
	for i := 0; i < m.NumTriangles(); i++ {
		t := m.Triangle(i)
		var n mgl32.Vec3
		var pts [3][2]float32
		for k, vi := range t {
			n = n.Add(m.Normal(vi))
			pts[k][0], pts[k][1] = v.px(m.Vertex(vi))
		}
		shade := float32(0.35)
		if u, ok := normalize(n); ok {
			shade += 0.65 * max(0, u.Dot(light))
		}
		fill(&r, big, pts[:], scale(opts.Ground, shade))
	}

	for _, mk := range markers {
		cx, cy := v.px(mk.At)
		rad := mk.Radius * v.scale
		if rad < float32(ss) {
			rad = float32(ss)
		}
		const sides = 12
		ring := make([][2]float32, sides)
		for k := range ring {
			a := 2 * math.Pi * float64(k) / sides
			ring[k] = [2]float32{cx + rad*float32(math.Cos(a)), cy + rad*float32(math.Sin(a))}
		}
		fill(&r, big, ring, mk.Color)

		if f, ok := normalize(mgl32.Vec3{mk.Forward[0], mk.Forward[1], 0}); ok {
			// Screen y grows downward.
			fx, fy := f[0], -f[1]
			tip := [2]float32{cx + fx*rad*2, cy + fy*rad*2}
			side := [2]float32{-fy * rad * 0.6, fx * rad * 0.6}
			fill(&r, big, [][2]float32{
				tip,
				{cx + side[0], cy + side[1]},
				{cx - side[0], cy - side[1]},
			}, mk.Color)
		}
	}

	if ss == 1 {
		return big, nil
	}
	out := image.NewRGBA(image.Rect(0, 0, opts.Width, height))
	draw.CatmullRom.Scale(out, out.Bounds(), big, big.Bounds(), draw.Src, nil)
	return out, nil
}

// EncodeWebP writes img losslessly.
func EncodeWebP(w io.Writer, img image.Image) error {
	return nativewebp.Encode(w, img, nil)
}

// fill rasterizes the closed polygon pts into its pixel bounding box only.
func fill(r *vector.Rasterizer, dst *image.RGBA, pts [][2]float32, c color.NRGBA) {
	minX, minY := pts[0][0], pts[0][1]
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX, maxX = min(minX, p[0]), max(maxX, p[0])
		minY, maxY = min(minY, p[1]), max(maxY, p[1])
	}
	box := image.Rect(
		int(math.Floor(float64(minX))), int(math.Floor(float64(minY))),
		int(math.Ceil(float64(maxX)))+1, int(math.Ceil(float64(maxY)))+1,
	).Intersect(dst.Bounds())
	if box.Empty() {
		return
	}
	ox, oy := float32(box.Min.X), float32(box.Min.Y)
	r.Reset(box.Dx(), box.Dy())
	r.MoveTo(pts[0][0]-ox, pts[0][1]-oy)
	for _, p := range pts[1:] {
		r.LineTo(p[0]-ox, p[1]-oy)
	}
	r.ClosePath()
	r.Draw(dst, box, image.NewUniform(c), image.Point{})
}

func bounds(m *walkmesh.Mesh) (lo, hi mgl32.Vec3) {
	lo = m.Vertex(0)
	hi = lo
	for i := 1; i < m.NumVertices(); i++ {
		p := m.Vertex(uint32(i))
		for k := 0; k < 3; k++ {
			lo[k] = min(lo[k], p[k])
			hi[k] = max(hi[k], p[k])
		}
	}
	return lo, hi
}

func scale(c color.NRGBA, s float32) color.NRGBA {
	mul := func(v uint8) uint8 { return uint8(min(255, float32(v)*s)) }
	return color.NRGBA{R: mul(c.R), G: mul(c.G), B: mul(c.B), A: c.A}
}

func normalize(v mgl32.Vec3) (mgl32.Vec3, bool) {
	l := v.Len()
	if l == 0 || math.IsNaN(float64(l)) {
		return v, false
	}
	return v.Mul(1 / l), true
}
