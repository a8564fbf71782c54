package walkmesh_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/walkmesh"
	"meshwalk.io/internal/walkmesh/meshgen"
)

var up = mgl32.Vec3{0, 0, 1}

// unitSquare is two triangles covering [0,1]x[0,1] at z=0.
func unitSquare(t *testing.T) *walkmesh.Mesh {
	t.Helper()
	m, err := walkmesh.New(
		[]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		[]mgl32.Vec3{up, up, up, up},
		[][3]uint32{{0, 1, 2}, {0, 2, 3}},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func near(a, b float32, eps float64) bool {
	return math.Abs(float64(a-b)) <= eps
}

func TestNew_RejectsDuplicateDirectedEdge(t *testing.T) {
	_, err := walkmesh.New(
		[]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		[]mgl32.Vec3{up, up, up, up},
		[][3]uint32{{0, 1, 2}, {0, 1, 3}},
	)
	if !errors.Is(err, walkmesh.ErrGeometry) {
		t.Fatalf("expected ErrGeometry, got %v", err)
	}
}

func TestNew_RejectsFlippedNormals(t *testing.T) {
	down := up.Mul(-1)
	_, err := walkmesh.New(
		[]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]mgl32.Vec3{down, down, down},
		[][3]uint32{{0, 1, 2}},
	)
	if !errors.Is(err, walkmesh.ErrGeometry) {
		t.Fatalf("expected ErrGeometry, got %v", err)
	}
}

func TestNew_RejectsCountMismatchAndBadIndex(t *testing.T) {
	if _, err := walkmesh.New([]mgl32.Vec3{{0, 0, 0}}, nil, nil); !errors.Is(err, walkmesh.ErrGeometry) {
		t.Fatalf("mismatch: expected ErrGeometry, got %v", err)
	}
	_, err := walkmesh.New(
		[]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		[]mgl32.Vec3{up, up, up},
		[][3]uint32{{0, 1, 7}},
	)
	if !errors.Is(err, walkmesh.ErrGeometry) {
		t.Fatalf("bad index: expected ErrGeometry, got %v", err)
	}
}

func TestNearestWalkPoint_InsideAndOutside(t *testing.T) {
	m := unitSquare(t)

	p, err := m.NearestWalkPoint(mgl32.Vec3{0.25, 0.75, 5})
	if err != nil {
		t.Fatalf("NearestWalkPoint: %v", err)
	}
	if got := m.ToWorldPoint(p); !vecNear(got, mgl32.Vec3{0.25, 0.75, 0}, 1e-5) {
		t.Fatalf("inside projection: got %v", got)
	}
	if !near(p.WeightSum(), 1, 1e-4) {
		t.Fatalf("weights sum %v", p.WeightSum())
	}

	p, err = m.NearestWalkPoint(mgl32.Vec3{-1, 0.5, 0})
	if err != nil {
		t.Fatalf("NearestWalkPoint: %v", err)
	}
	if got := m.ToWorldPoint(p); !vecNear(got, mgl32.Vec3{0, 0.5, 0}, 1e-5) {
		t.Fatalf("edge projection: got %v", got)
	}
	if !p.OnEdge() {
		t.Fatalf("expected on-edge point, got %+v", p)
	}

	p, _ = m.NearestWalkPoint(mgl32.Vec3{3, 3, 0})
	if got := m.ToWorldPoint(p); !vecNear(got, mgl32.Vec3{1, 1, 0}, 1e-5) {
		t.Fatalf("corner projection: got %v", got)
	}
}

func TestNearestWalkPoint_EmptyMesh(t *testing.T) {
	m, err := walkmesh.New(nil, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.NearestWalkPoint(mgl32.Vec3{}); !errors.Is(err, walkmesh.ErrEmptyMesh) {
		t.Fatalf("expected ErrEmptyMesh, got %v", err)
	}
}

func TestWalkInTriangle_StaysInside(t *testing.T) {
	m := unitSquare(t)
	start := walkmesh.WalkPoint{Indices: [3]uint32{0, 1, 2}, Weights: mgl32.Vec3{1.0 / 3, 1.0 / 3, 1.0 / 3}}

	end, tm := m.WalkInTriangle(start, mgl32.Vec3{0.01, 0, 0})
	if tm != 1 {
		t.Fatalf("time=%v want 1", tm)
	}
	want := m.ToWorldPoint(start).Add(mgl32.Vec3{0.01, 0, 0})
	if got := m.ToWorldPoint(end); !vecNear(got, want, 1e-5) {
		t.Fatalf("end=%v want %v", got, want)
	}
}

func TestWalkInTriangle_ExitsAndRelabels(t *testing.T) {
	m := unitSquare(t)
	start := walkmesh.WalkPoint{Indices: [3]uint32{0, 1, 2}, Weights: mgl32.Vec3{1.0 / 3, 1.0 / 3, 1.0 / 3}}

	// The centroid is at x=2/3, so the x=1 edge (1->2) is hit after 1/3 units.
	end, tm := m.WalkInTriangle(start, mgl32.Vec3{5, 0, 0})
	if !near(tm, (1.0/3)/5, 1e-5) {
		t.Fatalf("time=%v", tm)
	}
	if end.Indices != [3]uint32{1, 2, 0} {
		t.Fatalf("indices=%v want [1 2 0]", end.Indices)
	}
	if !end.OnEdge() || !near(end.WeightSum(), 1, 1e-4) {
		t.Fatalf("bad end point %+v", end)
	}
	if got := m.ToWorldPoint(end); !vecNear(got, mgl32.Vec3{1, 1.0 / 3, 0}, 1e-5) {
		t.Fatalf("end=%v", got)
	}
}

func TestCrossEdge_SharedDiagonal(t *testing.T) {
	m := unitSquare(t)
	p := walkmesh.WalkPoint{Indices: [3]uint32{2, 0, 1}, Weights: mgl32.Vec3{0.25, 0.75, 0}}

	q, rot, ok := m.CrossEdge(p)
	if !ok {
		t.Fatalf("expected crossing")
	}
	if q.Indices != [3]uint32{0, 2, 3} {
		t.Fatalf("indices=%v", q.Indices)
	}
	if q.Weights != (mgl32.Vec3{0.75, 0.25, 0}) {
		t.Fatalf("weights=%v", q.Weights)
	}
	if !vecNear(m.ToWorldPoint(q), m.ToWorldPoint(p), 1e-6) {
		t.Fatalf("crossing moved the point")
	}
	if rot != mgl32.QuatIdent() {
		t.Fatalf("coplanar crossing should not rotate, got %v", rot)
	}
}

func TestCrossEdge_Boundary(t *testing.T) {
	m := unitSquare(t)
	p := walkmesh.WalkPoint{Indices: [3]uint32{0, 1, 2}, Weights: mgl32.Vec3{0.5, 0.5, 0}}
	q, rot, ok := m.CrossEdge(p)
	if ok || q != p || rot != mgl32.QuatIdent() {
		t.Fatalf("boundary crossing: ok=%v q=%+v rot=%v", ok, q, rot)
	}
}

func TestCrossEdge_HingeRotation(t *testing.T) {
	m, err := walkmesh.New(
		[]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 1}},
		[]mgl32.Vec3{up, up, up, up},
		[][3]uint32{{0, 1, 2}, {2, 1, 3}},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p := walkmesh.WalkPoint{Indices: [3]uint32{1, 2, 0}, Weights: mgl32.Vec3{0.5, 0.5, 0}}
	q, rot, ok := m.CrossEdge(p)
	if !ok || q.Indices != [3]uint32{2, 1, 3} {
		t.Fatalf("crossing: ok=%v q=%+v", ok, q)
	}
	want := mgl32.Vec3{-1, -1, 1}.Normalize()
	if got := rot.Rotate(up); !vecNear(got, want, 1e-5) {
		t.Fatalf("rotated normal=%v want %v", got, want)
	}
}

func TestWalkPoints_OnHills(t *testing.T) {
	m, err := meshgen.Grid(meshgen.DefaultGridOptions())
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		q := mgl32.Vec3{rng.Float32()*50 - 15, rng.Float32()*30 - 15, rng.Float32()*6 - 3}
		p, err := m.NearestWalkPoint(q)
		if err != nil {
			t.Fatalf("NearestWalkPoint: %v", err)
		}
		if !near(p.WeightSum(), 1, 1e-4) {
			t.Fatalf("weights sum %v at %v", p.WeightSum(), q)
		}
		d := m.ToWorldPoint(p).Sub(q).Len()
		for v := uint32(0); v < uint32(m.NumVertices()); v++ {
			if dv := m.Vertex(v).Sub(q).Len(); dv+1e-4 < d {
				t.Fatalf("vertex %d is closer (%v) than nearest point (%v)", v, dv, d)
			}
		}

		step := mgl32.Vec3{rng.Float32()*4 - 2, rng.Float32()*4 - 2, 0}
		end, tm := m.WalkInTriangle(p, step)
		if tm < 0 || tm > 1 {
			t.Fatalf("time %v out of range", tm)
		}
		if !near(end.WeightSum(), 1, 1e-4) {
			t.Fatalf("walk weights sum %v", end.WeightSum())
		}
	}
}

// vecNear compares component-wise with an absolute tolerance.
func vecNear(a, b mgl32.Vec3, eps float32) bool {
	for i := range a {
		if d := a[i] - b[i]; d > eps || d < -eps {
			return false
		}
	}
	return true
}
