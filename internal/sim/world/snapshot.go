package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/sim/game"
	"meshwalk.io/internal/sim/mathx"
	"meshwalk.io/internal/walkmesh"
)

// ExportSnapshot captures the world as of the end of tick.
func (w *World) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	gs := w.game.Stats()
	snap := snapshot.SnapshotV1{
		Header:             snapshot.Header{Version: snapshot.Version, WorldID: w.cfg.ID, Tick: tick},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		MeshName:           w.cfg.MeshName,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		NextPlayerNumber:   w.game.NextPlayerNumber(),
		NextClientNumber:   w.nextClientNum.Load(),
		Stats: snapshot.StatsV1{
			Ticks:                gs.Ticks,
			WalkExhausted:        gs.WalkExhausted,
			Crossings:            gs.Crossings,
			Bounces:              gs.Bounces,
			MalformedDisconnects: w.malformedDisconnects,
			RefusedJoins:         w.refusedJoins,
		},
	}
	for _, p := range w.game.Players() {
		snap.Players = append(snap.Players, snapshot.PlayerV1{
			Name:     p.Name,
			At:       walkPointToV1(p.At),
			Rotation: quatToV1(p.Rotation),
		})
	}
	for _, s := range w.game.ExportSheep() {
		snap.Sheep = append(snap.Sheep, snapshot.SheepV1{
			At:       walkPointToV1(s.At),
			Rotation: quatToV1(s.Rotation),
			Bias:     [3]float32(s.Bias),
		})
	}
	return snap
}

// ImportSnapshot resumes from snap: the flock, the naming counters and the
// tick counter carry over. The random stream restarts from the run seed and
// the snapshot tick, and the next logged tick is marked as a resume so a
// replay can rebuild the same world. It must run before any client joins.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("world: unsupported snapshot version %d", snap.Header.Version)
	}
	if len(w.clients) > 0 {
		return fmt.Errorf("world: cannot import a snapshot with %d clients connected", len(w.clients))
	}
	if snap.MeshName != "" && w.cfg.MeshName != "" && snap.MeshName != w.cfg.MeshName {
		return fmt.Errorf("world: snapshot is for mesh %q, world runs %q", snap.MeshName, w.cfg.MeshName)
	}
	flock := make([]game.Sheep, 0, len(snap.Sheep))
	for _, s := range snap.Sheep {
		flock = append(flock, game.Sheep{
			At:       walkPointFromV1(s.At),
			Rotation: quatFromV1(s.Rotation),
			Bias:     mgl32.Vec3(s.Bias),
		})
	}
	if err := w.game.RestoreSheep(flock, snap.NextPlayerNumber); err != nil {
		return fmt.Errorf("world: import: %w", err)
	}
	w.game.RestoreStats(game.Stats{
		Ticks:         snap.Stats.Ticks,
		WalkExhausted: snap.Stats.WalkExhausted,
		Crossings:     snap.Stats.Crossings,
		Bounces:       snap.Stats.Bounces,
	})
	w.malformedDisconnects = snap.Stats.MalformedDisconnects
	w.refusedJoins = snap.Stats.RefusedJoins
	if snap.NextClientNumber > w.nextClientNum.Load() {
		w.nextClientNum.Store(snap.NextClientNumber)
	}
	w.game.Reseed(resumeSeed(w.cfg.Seed, snap.Header.Tick))
	w.resumedFrom = &ResumeMarker{FromTick: snap.Header.Tick}
	w.tick.Store(snap.Header.Tick + 1)
	w.publishMetrics(0)
	return nil
}

func resumeSeed(seed int64, tick uint64) int64 {
	return int64(mathx.Hash2(seed, int(tick), int(tick>>32)))
}

func walkPointToV1(p walkmesh.WalkPoint) snapshot.WalkPointV1 {
	return snapshot.WalkPointV1{Indices: p.Indices, Weights: [3]float32(p.Weights)}
}

func walkPointFromV1(p snapshot.WalkPointV1) walkmesh.WalkPoint {
	return walkmesh.WalkPoint{Indices: p.Indices, Weights: mgl32.Vec3(p.Weights)}
}

func quatToV1(q mgl32.Quat) [4]float32 {
	return [4]float32{q.V[0], q.V[1], q.V[2], q.W}
}

func quatFromV1(r [4]float32) mgl32.Quat {
	return mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
}
