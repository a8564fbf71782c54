package world

import (
	"context"
	"errors"
)

var (
	ErrNoSnapshotSink   = errors.New("world: no snapshot sink")
	ErrSnapshotSinkFull = errors.New("world: snapshot sink full")
	ErrStopped          = errors.New("world: stopped")
)

// A snapshotRequest is answered by the loop after the tick it arrived in.
type snapshotRequest struct {
	reply chan snapshotReply
}

type snapshotReply struct {
	tick uint64
	err  error
}

// RequestSnapshot has the loop hand a snapshot of the last finished tick to
// the sink, and reports that tick. Safe from any goroutine.
func (w *World) RequestSnapshot(ctx context.Context) (uint64, error) {
	req := snapshotRequest{reply: make(chan snapshotReply, 1)}
	select {
	case w.snapshotReqs <- req:
	case <-w.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.tick, r.err
	case <-w.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// answerSnapshotRequests exports one snapshot for all requests of a tick.
func (w *World) answerSnapshotRequests(reqs []snapshotRequest) {
	if len(reqs) == 0 {
		return
	}
	var tick uint64
	if cur := w.tick.Load(); cur > 0 {
		tick = cur - 1
	}
	err := w.offerSnapshot(tick)
	for _, req := range reqs {
		req.reply <- snapshotReply{tick: tick, err: err}
	}
}

// offerSnapshot passes the snapshot of tick to the sink without waiting.
func (w *World) offerSnapshot(tick uint64) error {
	if w.snapshotSink == nil {
		return ErrNoSnapshotSink
	}
	select {
	case w.snapshotSink <- w.ExportSnapshot(tick):
		return nil
	default:
		return ErrSnapshotSinkFull
	}
}
