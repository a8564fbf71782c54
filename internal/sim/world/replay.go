package world

import (
	"fmt"

	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/sim/game"
)

// ReplayTick re-applies one logged tick and checks that the world reaches the
// logged digest. Client ids are assigned in join order, so a world started
// from the same seed and mesh gives recorded inputs to the same players.
func (w *World) ReplayTick(entry TickLogEntry) error {
	if entry.Tick != w.tick.Load() {
		return fmt.Errorf("world: replay tick mismatch: want=%d got=%d", w.tick.Load(), entry.Tick)
	}
	joins := make([]JoinRequest, 0, len(entry.Joins))
	for range entry.Joins {
		joins = append(joins, JoinRequest{Out: make(chan []byte, 1)})
	}
	inbound := make([]InboundBytes, 0, len(entry.Inputs))
	for _, in := range entry.Inputs {
		inbound = append(inbound, InboundBytes{ClientID: in.ClientID, Data: in.Data})
	}
	tick, digest := w.StepOnce(joins, entry.Leaves, inbound)
	if entry.Digest != "" && digest != entry.Digest {
		return fmt.Errorf("world: digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
	}
	return nil
}

// Replayer re-applies a tick log that may span server restarts. At an entry
// carrying a ResumeMarker it rebuilds the world from the state replayed for
// the marked tick, as the restarted server rebuilt it from its snapshot.
type Replayer struct {
	w       *World
	resumes map[uint64]bool
	saved   map[uint64]snapshot.SnapshotV1
	rebuilt int
}

// NewReplayer starts from w, which must be fresh for the logged run's seed and
// mesh. resumeTicks lists the FromTick of every marker in the log.
func NewReplayer(w *World, resumeTicks []uint64) *Replayer {
	r := &Replayer{w: w, resumes: map[uint64]bool{}, saved: map[uint64]snapshot.SnapshotV1{}}
	for _, t := range resumeTicks {
		r.resumes[t] = true
	}
	return r
}

// World is the world the last entry was applied to.
func (r *Replayer) World() *World { return r.w }

// Resumes counts the restarts replayed so far.
func (r *Replayer) Resumes() int { return r.rebuilt }

func (r *Replayer) Apply(entry TickLogEntry) error {
	if m := entry.Resume; m != nil {
		snap, ok := r.saved[m.FromTick]
		if !ok {
			return fmt.Errorf("world: tick %d resumes from tick %d, which was never replayed", entry.Tick, m.FromTick)
		}
		nw, err := r.w.rebuild()
		if err != nil {
			return err
		}
		if err := nw.ImportSnapshot(snap); err != nil {
			return fmt.Errorf("world: resume at tick %d: %w", entry.Tick, err)
		}
		r.w = nw
		r.rebuilt++
	}
	if err := r.w.ReplayTick(entry); err != nil {
		return err
	}
	if r.resumes[entry.Tick] {
		r.saved[entry.Tick] = r.w.ExportSnapshot(entry.Tick)
	}
	return nil
}

// rebuild makes a fresh world for the same run, as a server start does.
func (w *World) rebuild() (*World, error) {
	g, err := game.New(w.game.Mesh(), w.game.Config())
	if err != nil {
		return nil, err
	}
	return New(w.cfg, g, w.log)
}
