package walkmesh

import "github.com/go-gl/mathgl/mgl32"

// WalkPoint is a location on a walk mesh: three vertex indices and barycentric
// weights relative to them. Weights sum to one. A point on an edge keeps its
// zero weight in the third slot, so the edge is Indices[0]->Indices[1].
type WalkPoint struct {
	Indices [3]uint32
	Weights mgl32.Vec3
}

// OnEdge reports whether the point sits on the Indices[0]->Indices[1] edge.
func (p WalkPoint) OnEdge() bool {
	return p.Weights[2] == 0
}

// WeightSum is exposed for invariant checks in callers' tests and logs.
func (p WalkPoint) WeightSum() float32 {
	return p.Weights[0] + p.Weights[1] + p.Weights[2]
}
