package meshviz

import (
	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/walkmesh"
)

// SnapshotMarkers places the sheep and players of snap on m. Entries whose
// vertices are not in m are skipped.
func SnapshotMarkers(m *walkmesh.Mesh, snap snapshot.SnapshotV1) []Marker {
	var out []Marker
	place := func(at snapshot.WalkPointV1, rot [4]float32, fwd mgl32.Vec3, radius float32, c Marker) {
		for _, i := range at.Indices {
			if int(i) >= m.NumVertices() {
				return
			}
		}
		p := walkmesh.WalkPoint{Indices: at.Indices, Weights: mgl32.Vec3(at.Weights)}
		q := mgl32.Quat{W: rot[3], V: mgl32.Vec3{rot[0], rot[1], rot[2]}}
		c.At = m.ToWorldPoint(p)
		c.Forward = q.Rotate(fwd)
		c.Radius = radius
		out = append(out, c)
	}
	for _, s := range snap.Sheep {
		place(s.At, s.Rotation, mgl32.Vec3{1, 0, 0}, 0.4, Marker{Color: SheepColor})
	}
	for _, p := range snap.Players {
		place(p.At, p.Rotation, mgl32.Vec3{0, 1, 0}, 0.5, Marker{Color: PlayerColor})
	}
	return out
}
