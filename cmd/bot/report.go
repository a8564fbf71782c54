package main

import (
	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/sim/game"
)

// viewReport is a copy of what the bot logs about its view. It shares no
// memory with the observer game.
type viewReport struct {
	Ready  bool
	Name   string
	At     mgl32.Vec3
	Others int
	Sheep  int
}

// takeReport reads view; the caller holds the lock that guards it.
func takeReport(view *game.Game) viewReport {
	var r viewReport
	if ps := view.Players(); len(ps) > 0 {
		me := ps[0]
		r.Ready = true
		r.Name = me.Name
		r.At = view.Mesh().ToWorldPoint(me.At)
	}
	r.Others = len(view.VisiblePlayers())
	r.Sheep = view.NumSheep()
	return r
}
