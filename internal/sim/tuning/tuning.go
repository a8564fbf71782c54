package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"meshwalk.io/internal/sim/game"
)

type Tuning struct {
	TickRateHz         int    `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	MeshName           string `yaml:"mesh_name" json:"mesh_name"`
	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	Seed               int64  `yaml:"seed" json:"seed"`

	Player Player `yaml:"player" json:"player"`
	Sheep  Sheep  `yaml:"sheep" json:"sheep"`
	Spawn  Spawn  `yaml:"spawn" json:"spawn"`
}

type Player struct {
	Speed      float32 `yaml:"speed" json:"speed"`
	MouseSpeed float32 `yaml:"mouse_speed" json:"mouse_speed"`
	Radius     float32 `yaml:"radius" json:"radius"`
	MaxPlayers int     `yaml:"max_players" json:"max_players"`
}

type Sheep struct {
	Count               int     `yaml:"count" json:"count"`
	Speed               float32 `yaml:"speed" json:"speed"`
	BiasResampleTicks   int     `yaml:"bias_resample_ticks" json:"bias_resample_ticks"`
	DetectPlayerRadius  float32 `yaml:"detect_player_radius" json:"detect_player_radius"`
	AvoidPlayerConstant float32 `yaml:"avoid_player_constant" json:"avoid_player_constant"`
	DetectSheepRadius   float32 `yaml:"detect_sheep_radius" json:"detect_sheep_radius"`
	AvoidSheepConstant  float32 `yaml:"avoid_sheep_constant" json:"avoid_sheep_constant"`
	MinRepelDistance    float32 `yaml:"min_repel_distance" json:"min_repel_distance"`
	TurnRate            float32 `yaml:"turn_rate" json:"turn_rate"`
	TurnDeadzone        float32 `yaml:"turn_deadzone" json:"turn_deadzone"`
	TurnBiasThreshold   float32 `yaml:"turn_bias_threshold" json:"turn_bias_threshold"`
	TurnBias            float32 `yaml:"turn_bias" json:"turn_bias"`
}

type Spawn struct {
	Min [3]float32 `yaml:"min" json:"min"`
	Max [3]float32 `yaml:"max" json:"max"`
}

// Defaults mirrors game.DefaultConfig at 30 ticks per second.
func Defaults() Tuning {
	g := game.DefaultConfig()
	return Tuning{
		TickRateHz:         30,
		MeshName:           "WalkMesh",
		SnapshotEveryTicks: 900,
		Player: Player{
			Speed:      g.PlayerSpeed,
			MouseSpeed: g.MouseSpeed,
			Radius:     g.PlayerRadius,
			MaxPlayers: g.MaxPlayers,
		},
		Sheep: Sheep{
			Count:               g.Sheep.Count,
			Speed:               g.Sheep.Speed,
			BiasResampleTicks:   g.Sheep.BiasResampleTicks,
			DetectPlayerRadius:  g.Sheep.DetectPlayerRadius,
			AvoidPlayerConstant: g.Sheep.AvoidPlayerConstant,
			DetectSheepRadius:   g.Sheep.DetectSheepRadius,
			AvoidSheepConstant:  g.Sheep.AvoidSheepConstant,
			MinRepelDistance:    g.Sheep.MinRepelDistance,
			TurnRate:            g.Sheep.TurnRate,
			TurnDeadzone:        g.Sheep.TurnDeadzone,
			TurnBiasThreshold:   g.Sheep.TurnBiasThreshold,
			TurnBias:            g.Sheep.TurnBias,
		},
		Spawn: Spawn{Min: g.SpawnMin, Max: g.SpawnMax},
	}
}

// Load reads a tuning file over the defaults and validates the result. A
// missing file yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := Validate(t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

//go:embed tuning.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("tuning.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("tuning.schema.json")
	})
	return schema, schemaErr
}

// Validate checks t against the embedded JSON schema.
func Validate(t Tuning) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := s.Validate(doc); err != nil {
		return err
	}
	for k := 0; k < 3; k++ {
		if t.Spawn.Min[k] > t.Spawn.Max[k] {
			return fmt.Errorf("spawn.min[%d]=%v exceeds spawn.max[%d]=%v", k, t.Spawn.Min[k], k, t.Spawn.Max[k])
		}
	}
	return nil
}

func (t Tuning) TickSeconds() float32 {
	return 1 / float32(t.TickRateHz)
}

func (t Tuning) GameConfig() game.Config {
	return game.Config{
		PlayerSpeed:  t.Player.Speed,
		MouseSpeed:   t.Player.MouseSpeed,
		PlayerRadius: t.Player.Radius,
		MaxPlayers:   t.Player.MaxPlayers,
		Sheep: game.SheepConfig{
			Count:               t.Sheep.Count,
			Speed:               t.Sheep.Speed,
			BiasResampleTicks:   t.Sheep.BiasResampleTicks,
			DetectPlayerRadius:  t.Sheep.DetectPlayerRadius,
			AvoidPlayerConstant: t.Sheep.AvoidPlayerConstant,
			DetectSheepRadius:   t.Sheep.DetectSheepRadius,
			AvoidSheepConstant:  t.Sheep.AvoidSheepConstant,
			MinRepelDistance:    t.Sheep.MinRepelDistance,
			TurnRate:            t.Sheep.TurnRate,
			TurnDeadzone:        t.Sheep.TurnDeadzone,
			TurnBiasThreshold:   t.Sheep.TurnBiasThreshold,
			TurnBias:            t.Sheep.TurnBias,
		},
		SpawnMin: mgl32.Vec3(t.Spawn.Min),
		SpawnMax: mgl32.Vec3(t.Spawn.Max),
		Seed:     t.Seed,
	}
}
