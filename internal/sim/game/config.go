package game

import "github.com/go-gl/mathgl/mgl32"

type Config struct {
	PlayerSpeed float32
	MouseSpeed  float32
	// PlayerRadius is how close another player may be to the own player
	// before observers hide it.
	PlayerRadius float32
	MaxPlayers   int

	Sheep SheepConfig

	// Spawn positions are sampled uniformly in [SpawnMin, SpawnMax] and then
	// snapped to the mesh.
	SpawnMin mgl32.Vec3
	SpawnMax mgl32.Vec3

	// Seed drives spawning and sheep wander. Zero uses the clock.
	Seed int64
}

type SheepConfig struct {
	Count int
	Speed float32

	// BiasResampleTicks is the mean number of ticks between wander bias
	// changes.
	BiasResampleTicks int

	DetectPlayerRadius  float32
	AvoidPlayerConstant float32
	DetectSheepRadius   float32
	AvoidSheepConstant  float32
	MinRepelDistance    float32

	// Turning: no turn while the normalized lateral component is inside
	// TurnDeadzone; otherwise TurnRate scaled by it, plus TurnBias when it
	// exceeds TurnBiasThreshold with the target ahead.
	TurnRate          float32
	TurnDeadzone      float32
	TurnBiasThreshold float32
	TurnBias          float32
}

func DefaultConfig() Config {
	return Config{
		PlayerSpeed:  2.0,
		MouseSpeed:   1.2,
		PlayerRadius: 1.06,
		MaxPlayers:   255,
		Sheep: SheepConfig{
			Count:               15,
			Speed:               1.5,
			BiasResampleTicks:   60,
			DetectPlayerRadius:  12,
			AvoidPlayerConstant: 60,
			DetectSheepRadius:   2,
			AvoidSheepConstant:  30,
			MinRepelDistance:    0.01,
			TurnRate:            2.0,
			TurnDeadzone:        0.05,
			TurnBiasThreshold:   0.5,
			TurnBias:            0.5,
		},
		SpawnMin: mgl32.Vec3{-5, -5, -10},
		SpawnMax: mgl32.Vec3{25, 5, 10},
	}
}
