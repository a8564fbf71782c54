package world

import (
	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/sim/game"
)

func (w *World) SetTickLogger(l TickLogger)   { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger) { w.auditLogger = l }

func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Inbox() chan<- InboundBytes { return w.inbox }
func (w *World) Join() chan<- JoinRequest   { return w.join }
func (w *World) Leave() chan<- string       { return w.leave }

// CurrentTick is the tick the next step will run.
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// Game is only safe to touch from the goroutine that steps the world.
func (w *World) Game() *game.Game { return w.game }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) MeshName() string {
	if w == nil {
		return ""
	}
	return w.cfg.MeshName
}
