package mathx

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Up is the local "up" axis shared by every oriented entity.
var Up = mgl32.Vec3{0, 0, 1}

const parallelEpsilon = 1e-6

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit2 maps a lattice point to a deterministic value in [0,1).
func Unit2(seed int64, x, z int) float64 {
	return float64(Hash2(seed, x, z)>>11) / float64(1<<53)
}

// ValueNoise2 is bilinear value noise over a unit lattice, smoothed with a
// cubic fade. Output is in [0,1).
func ValueNoise2(seed int64, x, z float64) float64 {
	x0 := int(math.Floor(x))
	z0 := int(math.Floor(z))
	fx := x - float64(x0)
	fz := z - float64(z0)
	fx = fx * fx * (3 - 2*fx)
	fz = fz * fz * (3 - 2*fz)

	v00 := Unit2(seed, x0, z0)
	v10 := Unit2(seed, x0+1, z0)
	v01 := Unit2(seed, x0, z0+1)
	v11 := Unit2(seed, x0+1, z0+1)

	a := v00 + (v10-v00)*fx
	b := v01 + (v11-v01)*fx
	return a + (b-a)*fz
}

// Normalize returns v scaled to unit length, or ok=false when v is too short
// to have a direction.
func Normalize(v mgl32.Vec3) (mgl32.Vec3, bool) {
	l := v.Len()
	if l < parallelEpsilon || math.IsNaN(float64(l)) {
		return mgl32.Vec3{}, false
	}
	return v.Mul(1 / l), true
}

// RotationBetween returns the shortest-arc rotation taking direction from onto
// direction to. Degenerate inputs yield the identity.
func RotationBetween(from, to mgl32.Vec3) mgl32.Quat {
	f, ok1 := Normalize(from)
	t, ok2 := Normalize(to)
	if !ok1 || !ok2 {
		return mgl32.QuatIdent()
	}
	if f.Dot(t) > 0 && f.Cross(t).LenSqr() < 1e-14 {
		return mgl32.QuatIdent()
	}
	return mgl32.QuatBetweenVectors(f, t).Normalize()
}

// AngleAxis is a rotation of angle radians about axis (which need not be unit length).
func AngleAxis(angle float32, axis mgl32.Vec3) mgl32.Quat {
	a, ok := Normalize(axis)
	if !ok {
		return mgl32.QuatIdent()
	}
	return mgl32.QuatRotate(angle, a)
}
