// Package movement advances walk points across a mesh surface.
package movement

import (
	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/sim/mathx"
	"meshwalk.io/internal/walkmesh"
)

const (
	// MaxIterations bounds the triangle steps taken by one Walk call.
	MaxIterations = 10

	BounceFactor = 1.25
	SlideNudge   = 0.01

	zeroEpsilon = 1e-12
)

// Surface is the part of a walk mesh the integrator needs. *walkmesh.Mesh
// implements it.
type Surface interface {
	WalkInTriangle(start walkmesh.WalkPoint, step mgl32.Vec3) (walkmesh.WalkPoint, float32)
	CrossEdge(p walkmesh.WalkPoint) (walkmesh.WalkPoint, mgl32.Quat, bool)
	Corners(p walkmesh.WalkPoint) (a, b, c mgl32.Vec3)
}

type Result struct {
	At walkmesh.WalkPoint

	// Remaining is the displacement left over when the iteration budget ran
	// out. It is discarded by callers.
	Remaining  mgl32.Vec3
	Iterations int
	Crossings  int
	Bounces    int
	Exhausted  bool
}

// Walk moves start by the world-space displacement step. Edge crossings carry
// the remaining displacement onto the next triangle; boundary edges deflect
// it back inward.
func Walk(s Surface, start walkmesh.WalkPoint, step mgl32.Vec3) Result {
	res := Result{At: start}
	remain := step

	for res.Iterations < MaxIterations {
		if remain.LenSqr() <= zeroEpsilon {
			remain = mgl32.Vec3{}
			break
		}
		res.Iterations++

		end, time := s.WalkInTriangle(res.At, remain)
		res.At = end
		if time == 1 {
			remain = mgl32.Vec3{}
			break
		}
		remain = remain.Mul(1 - time)

		if next, rot, ok := s.CrossEdge(res.At); ok {
			res.At = next
			remain = rot.Rotate(remain)
			res.Crossings++
			continue
		}
		remain = deflect(s, res.At, remain)
		res.Bounces++
	}

	if remain.LenSqr() > zeroEpsilon {
		res.Remaining = remain
		res.Exhausted = true
	}
	return res
}

// deflect handles a boundary edge at p (edge Indices[0]->Indices[1]). A
// displacement pointing out through the edge is bounced back with a little
// overshoot; one running along it is bent slightly inward.
func deflect(s Surface, p walkmesh.WalkPoint, remain mgl32.Vec3) mgl32.Vec3 {
	a, b, c := s.Corners(p)
	along, ok1 := mathx.Normalize(b.Sub(a))
	normal, ok2 := mathx.Normalize(b.Sub(a).Cross(c.Sub(a)))
	if !ok1 || !ok2 {
		return mgl32.Vec3{}
	}
	in := normal.Cross(along)

	d := remain.Dot(in)
	if d < 0 {
		return remain.Add(in.Mul(-BounceFactor * d))
	}
	return remain.Add(in.Mul(SlideNudge * d))
}
