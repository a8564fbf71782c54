// Package game is the authoritative simulation of players and sheep walking
// on one mesh. A Game is owned by a single goroutine.
package game

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/sim/arena"
	"meshwalk.io/internal/sim/input"
	"meshwalk.io/internal/sim/mathx"
	"meshwalk.io/internal/sim/movement"
	"meshwalk.io/internal/walkmesh"
)

var ErrFull = errors.New("game: player limit reached")

// Player forward is local +y, right is +x, up is +z.
type Player struct {
	Controls input.Controls
	At       walkmesh.WalkPoint
	Rotation mgl32.Quat
	Name     string
}

// Sheep forward is local +x. Bias is the wander direction and only exists on
// the authoritative side.
type Sheep struct {
	At       walkmesh.WalkPoint
	Rotation mgl32.Quat
	Bias     mgl32.Vec3
}

// TickStats summarizes one Update.
type TickStats struct {
	WalkExhausted int
	Crossings     int
	Bounces       int
}

type Stats struct {
	Ticks         uint64
	WalkExhausted uint64
	Crossings     uint64
	Bounces       uint64
}

type Game struct {
	mesh *walkmesh.Mesh
	cfg  Config
	rng  *rand.Rand

	players arena.Arena[Player]
	sheep   arena.Arena[Sheep]

	nextPlayerNumber uint32
	observer         bool

	stats Stats
}

// New builds an authoritative game on mesh and places the configured number
// of sheep.
func New(mesh *walkmesh.Mesh, cfg Config) (*Game, error) {
	if mesh == nil {
		return nil, fmt.Errorf("game: nil mesh")
	}
	if mesh.NumTriangles() == 0 {
		return nil, walkmesh.ErrEmptyMesh
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &Game{
		mesh:             mesh,
		cfg:              cfg,
		rng:              rand.New(rand.NewSource(seed)),
		nextPlayerNumber: 1,
	}
	for i := 0; i < cfg.Sheep.Count; i++ {
		at, err := g.randomWalkPoint()
		if err != nil {
			return nil, err
		}
		g.sheep.Insert(Sheep{At: at, Rotation: g.restingRotation(at)})
	}
	return g, nil
}

// NewObserver builds a game that is only ever updated through ApplyState.
func NewObserver(mesh *walkmesh.Mesh) *Game {
	return &Game{mesh: mesh, cfg: DefaultConfig(), observer: true, nextPlayerNumber: 1}
}

func (g *Game) Mesh() *walkmesh.Mesh { return g.mesh }
func (g *Game) Config() Config       { return g.cfg }
func (g *Game) Stats() Stats         { return g.stats }
func (g *Game) NumPlayers() int      { return g.players.Len() }
func (g *Game) NumSheep() int        { return g.sheep.Len() }

// Players returns the players in join order. The slice is owned by the game.
func (g *Game) Players() []Player { return g.players.Items() }
func (g *Game) Sheep() []Sheep    { return g.sheep.Items() }

func (g *Game) NextPlayerNumber() uint32 { return g.nextPlayerNumber }

// Reseed restarts the random stream from seed.
func (g *Game) Reseed(seed int64) { g.rng = rand.New(rand.NewSource(seed)) }

func (g *Game) randomWalkPoint() (walkmesh.WalkPoint, error) {
	lo, hi := g.cfg.SpawnMin, g.cfg.SpawnMax
	var p mgl32.Vec3
	for k := 0; k < 3; k++ {
		p[k] = lo[k] + g.rng.Float32()*(hi[k]-lo[k])
	}
	return g.mesh.NearestWalkPoint(p)
}

// restingRotation stands an entity upright on the surface at p.
func (g *Game) restingRotation(p walkmesh.WalkPoint) mgl32.Quat {
	return mathx.RotationBetween(mathx.Up, g.mesh.ToWorldSmoothNormal(p))
}

// SpawnPlayer adds a player at a random location on the mesh.
func (g *Game) SpawnPlayer() (arena.Handle, error) {
	if g.observer {
		return arena.Handle{}, fmt.Errorf("game: observer cannot spawn players")
	}
	if g.cfg.MaxPlayers > 0 && g.players.Len() >= g.cfg.MaxPlayers {
		return arena.Handle{}, ErrFull
	}
	at, err := g.randomWalkPoint()
	if err != nil {
		return arena.Handle{}, err
	}
	p := Player{
		At:       at,
		Rotation: g.restingRotation(at),
		Name:     fmt.Sprintf("ClientPlayer %d", g.nextPlayerNumber),
	}
	g.nextPlayerNumber++
	return g.players.Insert(p), nil
}

func (g *Game) RemovePlayer(h arena.Handle) bool {
	return g.players.Remove(h)
}

func (g *Game) Player(h arena.Handle) (*Player, bool) {
	return g.players.Get(h)
}

// PlayerIndex is the position of h in join order, or -1.
func (g *Game) PlayerIndex(h arena.Handle) int {
	i, ok := g.players.Index(h)
	if !ok {
		return -1
	}
	return i
}

// Update advances the simulation by elapsed seconds.
func (g *Game) Update(elapsed float32) TickStats {
	var ts TickStats
	if g.observer {
		return ts
	}
	for i := 0; i < g.players.Len(); i++ {
		p, _ := g.players.At(i)
		g.updatePlayer(p, elapsed, &ts)
	}
	g.updateSheep(elapsed, &ts)

	g.stats.Ticks++
	g.stats.WalkExhausted += uint64(ts.WalkExhausted)
	g.stats.Crossings += uint64(ts.Crossings)
	g.stats.Bounces += uint64(ts.Bounces)
	return ts
}

func (g *Game) walk(at walkmesh.WalkPoint, step mgl32.Vec3, ts *TickStats) walkmesh.WalkPoint {
	res := movement.Walk(g.mesh, at, step)
	ts.Crossings += res.Crossings
	ts.Bounces += res.Bounces
	if res.Exhausted {
		ts.WalkExhausted++
	}
	return res.At
}

// align turns rot so its local up matches the smooth normal at p.
func (g *Game) align(rot mgl32.Quat, p walkmesh.WalkPoint) mgl32.Quat {
	adjust := mathx.RotationBetween(rot.Rotate(mathx.Up), g.mesh.ToWorldSmoothNormal(p))
	return adjust.Mul(rot).Normalize()
}

func (g *Game) updatePlayer(p *Player, elapsed float32, ts *TickStats) {
	c := &p.Controls

	if c.MouseX != 0 {
		yaw := mathx.AngleAxis(-g.cfg.MouseSpeed*c.MouseX, g.mesh.ToWorldSmoothNormal(p.At))
		p.Rotation = yaw.Mul(p.Rotation).Normalize()
	}

	x, y := c.Move()
	if move, ok := mathx.Normalize(mgl32.Vec3{x, y, 0}); ok {
		step := p.Rotation.Rotate(move.Mul(g.cfg.PlayerSpeed * elapsed))
		p.At = g.walk(p.At, step, ts)
	}

	p.Rotation = g.align(p.Rotation, p.At)
	c.EndTick()
}
