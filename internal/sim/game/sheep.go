package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/sim/mathx"
)

const minBiasLen = 0.1

func (g *Game) updateSheep(elapsed float32, ts *TickStats) {
	sc := g.cfg.Sheep

	// Positions are sampled once so every sheep reacts to the same frame.
	players := make([]mgl32.Vec3, 0, g.players.Len())
	for _, p := range g.players.Items() {
		players = append(players, g.mesh.ToWorldPoint(p.At))
	}
	flock := make([]mgl32.Vec3, 0, g.sheep.Len())
	for _, s := range g.sheep.Items() {
		flock = append(flock, g.mesh.ToWorldPoint(s.At))
	}

	for i := 0; i < g.sheep.Len(); i++ {
		s, _ := g.sheep.At(i)

		if sc.BiasResampleTicks <= 1 || g.rng.Intn(sc.BiasResampleTicks) == 0 || s.Bias == (mgl32.Vec3{}) {
			s.Bias = g.randomBias()
		}

		self := flock[i]
		desired := s.Bias
		for _, other := range players {
			desired = desired.Sub(repel(self, other, sc.MinRepelDistance, sc.DetectPlayerRadius, sc.AvoidPlayerConstant))
		}
		for j, other := range flock {
			if j == i {
				continue
			}
			desired = desired.Sub(repel(self, other, sc.MinRepelDistance, sc.DetectSheepRadius, sc.AvoidSheepConstant))
		}

		local := s.Rotation.Inverse().Rotate(desired)
		local[2] = 0

		if angle := turnRate(sc, local) * elapsed; angle != 0 {
			yaw := mathx.AngleAxis(angle, g.mesh.ToWorldSmoothNormal(s.At))
			s.Rotation = yaw.Mul(s.Rotation).Normalize()
		}

		forward := local[0]
		if forward < 0 {
			forward = 0
		}
		if forward > sc.Speed {
			forward = sc.Speed
		}
		if forward > 0 {
			step := s.Rotation.Rotate(mgl32.Vec3{forward * elapsed, 0, 0})
			s.At = g.walk(s.At, step, ts)
		}

		s.Rotation = g.align(s.Rotation, s.At)
	}
}

// randomBias draws a unit direction from the [-1,1] cube, rejecting vectors
// too short to normalize reliably.
func (g *Game) randomBias() mgl32.Vec3 {
	for {
		v := mgl32.Vec3{
			g.rng.Float32()*2 - 1,
			g.rng.Float32()*2 - 1,
			g.rng.Float32()*2 - 1,
		}
		if v.Len() > minBiasLen {
			return v.Normalize()
		}
	}
}

// repel is the inverse-square push from other acting on self, pointing from
// self toward other. It is zero outside (minDist, radius).
func repel(self, other mgl32.Vec3, minDist, radius, strength float32) mgl32.Vec3 {
	d := other.Sub(self)
	dist := d.Len()
	if !(dist > minDist && dist < radius) {
		return mgl32.Vec3{}
	}
	return d.Mul(strength / (dist * dist * dist))
}

// turnRate picks a signed yaw rate (radians per second, positive turns
// toward local +y) from the desired direction in the sheep's frame.
func turnRate(sc SheepConfig, local mgl32.Vec3) float32 {
	l := local.Len()
	if l == 0 || math.IsNaN(float64(l)) {
		return 0
	}
	lateral := local[1] / l
	mag := float32(math.Abs(float64(lateral)))
	if mag < sc.TurnDeadzone {
		return 0
	}
	rate := sc.TurnRate * mag
	if mag > sc.TurnBiasThreshold && local[0] >= 0 {
		rate += sc.TurnBias
	}
	if lateral < 0 {
		return -rate
	}
	return rate
}
