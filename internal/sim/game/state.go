package game

import (
	"fmt"

	"meshwalk.io/internal/protocol"
	"meshwalk.io/internal/walkmesh"
)

// State captures players and sheep for the wire, in join order.
func (g *Game) State() protocol.State {
	st := protocol.State{
		Players: make([]protocol.PlayerState, 0, g.players.Len()),
		Sheep:   make([]protocol.SheepState, 0, g.sheep.Len()),
	}
	for _, p := range g.players.Items() {
		st.Players = append(st.Players, protocol.PlayerState{At: p.At, Rotation: p.Rotation, Name: p.Name})
	}
	for _, s := range g.sheep.Items() {
		st.Sheep = append(st.Sheep, protocol.SheepState{At: s.At, Rotation: s.Rotation})
	}
	return st
}

// ApplyState replaces every player and sheep with the received snapshot.
// Points that do not fit this game's mesh are rejected and nothing changes.
func (g *Game) ApplyState(st protocol.State) error {
	for i, p := range st.Players {
		if err := g.checkPoint(p.At); err != nil {
			return fmt.Errorf("game: player %d: %w", i, err)
		}
	}
	for i, s := range st.Sheep {
		if err := g.checkPoint(s.At); err != nil {
			return fmt.Errorf("game: sheep %d: %w", i, err)
		}
	}

	g.players.Clear()
	for _, p := range st.Players {
		g.players.Insert(Player{At: p.At, Rotation: p.Rotation, Name: p.Name})
	}
	g.sheep.Clear()
	for _, s := range st.Sheep {
		g.sheep.Insert(Sheep{At: s.At, Rotation: s.Rotation})
	}
	return nil
}

func (g *Game) checkPoint(p walkmesh.WalkPoint) error {
	n := uint32(g.mesh.NumVertices())
	for _, i := range p.Indices {
		if i >= n {
			return fmt.Errorf("vertex %d outside mesh of %d vertices", i, n)
		}
	}
	return nil
}

// VisiblePlayers returns the players other than the first (the observer's
// own) that stand farther than PlayerRadius from it.
func (g *Game) VisiblePlayers() []Player {
	all := g.players.Items()
	if len(all) == 0 {
		return nil
	}
	own := g.mesh.ToWorldPoint(all[0].At)
	r2 := g.cfg.PlayerRadius * g.cfg.PlayerRadius
	var out []Player
	for _, p := range all[1:] {
		if g.mesh.ToWorldPoint(p.At).Sub(own).LenSqr() > r2 {
			out = append(out, p)
		}
	}
	return out
}

// ExportSheep copies the flock, including wander biases.
func (g *Game) ExportSheep() []Sheep {
	return append([]Sheep(nil), g.sheep.Items()...)
}

// RestoreSheep replaces the flock and the player naming counter, as after a
// restart from a snapshot.
func (g *Game) RestoreSheep(flock []Sheep, nextPlayerNumber uint32) error {
	for i, s := range flock {
		if err := g.checkPoint(s.At); err != nil {
			return fmt.Errorf("game: sheep %d: %w", i, err)
		}
	}
	g.sheep.Clear()
	for _, s := range flock {
		g.sheep.Insert(s)
	}
	if nextPlayerNumber > g.nextPlayerNumber {
		g.nextPlayerNumber = nextPlayerNumber
	}
	return nil
}

// RestoreStats carries cumulative counters across a restart.
func (g *Game) RestoreStats(s Stats) { g.stats = s }
