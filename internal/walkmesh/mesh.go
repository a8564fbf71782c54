package walkmesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/sim/mathx"
)

var (
	ErrGeometry  = errors.New("walkmesh: invalid geometry")
	ErrEmptyMesh = errors.New("walkmesh: mesh has no triangles")
)

type edge struct {
	a, b uint32
}

// Mesh is an immutable triangulated walking surface. It is safe for
// concurrent readers.
type Mesh struct {
	vertices  []mgl32.Vec3
	normals   []mgl32.Vec3
	triangles [][3]uint32

	// next maps each directed edge to the third vertex of the triangle that
	// contains it in that winding.
	next map[edge]uint32
}

// New validates the geometry and builds the edge adjacency. The input slices
// are copied.
func New(vertices, normals []mgl32.Vec3, triangles [][3]uint32) (*Mesh, error) {
	if len(vertices) != len(normals) {
		return nil, fmt.Errorf("%w: %d vertices but %d normals", ErrGeometry, len(vertices), len(normals))
	}
	m := &Mesh{
		vertices:  append([]mgl32.Vec3(nil), vertices...),
		normals:   append([]mgl32.Vec3(nil), normals...),
		triangles: append([][3]uint32(nil), triangles...),
		next:      make(map[edge]uint32, len(triangles)*3),
	}

	n := uint32(len(m.vertices))
	for ti, tri := range m.triangles {
		if tri[0] >= n || tri[1] >= n || tri[2] >= n {
			return nil, fmt.Errorf("%w: triangle %d references vertex outside [0,%d)", ErrGeometry, ti, n)
		}
		for k := 0; k < 3; k++ {
			e := edge{tri[k], tri[(k+1)%3]}
			if _, dup := m.next[e]; dup {
				return nil, fmt.Errorf("%w: directed edge (%d,%d) appears twice (non-manifold or inconsistent winding)", ErrGeometry, e.a, e.b)
			}
			m.next[e] = tri[(k+2)%3]
		}
	}

	for ti, tri := range m.triangles {
		a, b, c := m.vertices[tri[0]], m.vertices[tri[1]], m.vertices[tri[2]]
		out, ok := mathx.Normalize(b.Sub(a).Cross(c.Sub(a)))
		if !ok {
			return nil, fmt.Errorf("%w: triangle %d is degenerate", ErrGeometry, ti)
		}
		for k := 0; k < 3; k++ {
			if !(out.Dot(m.normals[tri[k]]) > 0) {
				return nil, fmt.Errorf("%w: triangle %d disagrees with the normal of vertex %d", ErrGeometry, ti, tri[k])
			}
		}
	}
	return m, nil
}

func (m *Mesh) NumVertices() int  { return len(m.vertices) }
func (m *Mesh) NumTriangles() int { return len(m.triangles) }

func (m *Mesh) Vertex(i uint32) mgl32.Vec3 { return m.vertices[i] }
func (m *Mesh) Normal(i uint32) mgl32.Vec3 { return m.normals[i] }
func (m *Mesh) Triangle(i int) [3]uint32   { return m.triangles[i] }

// Neighbor returns the third vertex of the triangle wound through a->b.
func (m *Mesh) Neighbor(a, b uint32) (uint32, bool) {
	c, ok := m.next[edge{a, b}]
	return c, ok
}

// Corners returns the world positions of the point's three indices.
func (m *Mesh) Corners(p WalkPoint) (a, b, c mgl32.Vec3) {
	return m.vertices[p.Indices[0]], m.vertices[p.Indices[1]], m.vertices[p.Indices[2]]
}

func (m *Mesh) ToWorldPoint(p WalkPoint) mgl32.Vec3 {
	a, b, c := m.Corners(p)
	return a.Mul(p.Weights[0]).Add(b.Mul(p.Weights[1])).Add(c.Mul(p.Weights[2]))
}

// ToWorldSmoothNormal blends the vertex normals with the point's weights.
func (m *Mesh) ToWorldSmoothNormal(p WalkPoint) mgl32.Vec3 {
	na := m.normals[p.Indices[0]]
	nb := m.normals[p.Indices[1]]
	nc := m.normals[p.Indices[2]]
	n := na.Mul(p.Weights[0]).Add(nb.Mul(p.Weights[1])).Add(nc.Mul(p.Weights[2]))
	if u, ok := mathx.Normalize(n); ok {
		return u
	}
	return mathx.Up
}

// triangleNormal is the geometric normal of the point's triangle, oriented by
// the order of its indices.
func (m *Mesh) triangleNormal(idx [3]uint32) mgl32.Vec3 {
	a, b, c := m.vertices[idx[0]], m.vertices[idx[1]], m.vertices[idx[2]]
	n, _ := mathx.Normalize(a.Sub(c).Cross(b.Sub(c)))
	return n
}

// barycentricWeights projects pt onto the plane of (a,b,c) and returns the
// weights of the projection. Each edge's in-plane height vector gives a signed
// distance which, scaled by the edge length, is twice the sub-triangle area.
func barycentricWeights(a, b, c, pt mgl32.Vec3) mgl32.Vec3 {
	abh := c.Sub(a).Cross(b.Sub(a)).Cross(b.Sub(a))
	bch := a.Sub(b).Cross(c.Sub(b)).Cross(c.Sub(b))
	cah := b.Sub(c).Cross(a.Sub(c)).Cross(a.Sub(c))

	hab := pt.Sub(a).Dot(abh) / abh.Len()
	hbc := pt.Sub(b).Dot(bch) / bch.Len()
	hca := pt.Sub(c).Dot(cah) / cah.Len()

	w := mgl32.Vec3{
		c.Sub(b).Len() * hbc,
		a.Sub(c).Len() * hca,
		b.Sub(a).Len() * hab,
	}
	return w.Mul(1 / (w[0] + w[1] + w[2]))
}

// NearestWalkPoint scans every triangle for the surface point closest to
// world. Ties keep the first candidate found.
func (m *Mesh) NearestWalkPoint(world mgl32.Vec3) (WalkPoint, error) {
	if len(m.triangles) == 0 {
		return WalkPoint{}, ErrEmptyMesh
	}

	var closest WalkPoint
	best := float32(math.Inf(1))

	checkEdge := func(ai, bi, ci uint32) {
		a := m.vertices[ai]
		b := m.vertices[bi]

		along := world.Sub(a).Dot(b.Sub(a))
		length2 := b.Sub(a).Dot(b.Sub(a))
		var pt, coords mgl32.Vec3
		switch {
		case along < 0:
			pt = a
			coords = mgl32.Vec3{1, 0, 0}
		case along > length2:
			pt = b
			coords = mgl32.Vec3{0, 1, 0}
		default:
			amt := along / length2
			pt = a.Add(b.Sub(a).Mul(amt))
			coords = mgl32.Vec3{1 - amt, amt, 0}
		}

		if d := world.Sub(pt).LenSqr(); d < best {
			best = d
			closest = WalkPoint{Indices: [3]uint32{ai, bi, ci}, Weights: coords}
		}
	}

	for _, tri := range m.triangles {
		a, b, c := m.vertices[tri[0]], m.vertices[tri[1]], m.vertices[tri[2]]
		coords := barycentricWeights(a, b, c, world)
		if coords[0] >= 0 && coords[1] >= 0 && coords[2] >= 0 {
			wp := WalkPoint{Indices: tri, Weights: coords}
			if d := world.Sub(m.ToWorldPoint(wp)).LenSqr(); d < best {
				best = d
				closest = wp
			}
			continue
		}
		checkEdge(tri[0], tri[1], tri[2])
		checkEdge(tri[1], tri[2], tri[0])
		checkEdge(tri[2], tri[0], tri[1])
	}
	return closest, nil
}

// WalkInTriangle moves start by step without leaving start's triangle. It
// returns the reached point and the fraction of step taken. When time < 1 the
// result lies on the exited edge, relabelled so its zero weight is third.
func (m *Mesh) WalkInTriangle(start WalkPoint, step mgl32.Vec3) (WalkPoint, float32) {
	a, b, c := m.Corners(start)
	delta := barycentricWeights(a, b, c, m.ToWorldPoint(start).Add(step)).Sub(start.Weights)

	time := float32(1)
	crossed := -1
	for i := 0; i < 3; i++ {
		if !(delta[i] < 0) {
			continue
		}
		t := -start.Weights[i] / delta[i]
		if t < 0 {
			t = 0
		}
		if t < time {
			time = t
			crossed = i
		}
	}

	end := WalkPoint{Indices: start.Indices, Weights: start.Weights.Add(delta.Mul(time))}
	switch crossed {
	case 0:
		end = WalkPoint{
			Indices: [3]uint32{end.Indices[1], end.Indices[2], end.Indices[0]},
			Weights: mgl32.Vec3{end.Weights[1], end.Weights[2], 0},
		}
	case 1:
		end = WalkPoint{
			Indices: [3]uint32{end.Indices[2], end.Indices[0], end.Indices[1]},
			Weights: mgl32.Vec3{end.Weights[2], end.Weights[0], 0},
		}
	case 2:
		end.Weights[2] = 0
	}
	return end, time
}

// CrossEdge moves an on-edge point onto the triangle across that edge. The
// returned rotation takes the old triangle's normal onto the new one's. At a
// boundary edge the point is returned unchanged with ok=false.
func (m *Mesh) CrossEdge(p WalkPoint) (WalkPoint, mgl32.Quat, bool) {
	if !p.OnEdge() {
		return p, mgl32.QuatIdent(), false
	}
	third, ok := m.Neighbor(p.Indices[1], p.Indices[0])
	if !ok {
		return p, mgl32.QuatIdent(), false
	}
	end := WalkPoint{
		Indices: [3]uint32{p.Indices[1], p.Indices[0], third},
		Weights: mgl32.Vec3{p.Weights[1], p.Weights[0], 0},
	}
	rot := mathx.RotationBetween(m.triangleNormal(p.Indices), m.triangleNormal(end.Indices))
	return end, rot, true
}
