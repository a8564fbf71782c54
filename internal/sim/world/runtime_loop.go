package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	defer w.doneOnce.Do(func() { close(w.done) })
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingInbound []InboundBytes
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingSnapshots []snapshotRequest

	for {
		select {
		case <-ctx.Done():
			w.closeAll()
			return ctx.Err()
		case <-w.stop:
			w.closeAll()
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.snapshotReqs:
			pendingSnapshots = append(pendingSnapshots, req)
		case in := <-w.inbox:
			pendingInbound = append(pendingInbound, in)
		case <-ticker.C:
			w.stepInternal(pendingJoins, pendingLeaves, pendingInbound)
			w.answerSnapshotRequests(pendingSnapshots)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingInbound = pendingInbound[:0]
			pendingSnapshots = pendingSnapshots[:0]
		}
	}
}

// Stop ends Run. Later calls do nothing.
func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// Done is closed once Run has returned. Senders on Join, Leave and Inbox
// select on it so they never wait on a loop that is gone.
func (w *World) Done() <-chan struct{} { return w.done }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for tests and offline tools.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, inbound []InboundBytes) (tick uint64, digest string) {
	tick = w.tick.Load()
	digest = w.stepInternal(joins, leaves, inbound)
	return tick, digest
}

// closeAll drops every client when the loop exits so transport writers stop.
func (w *World) closeAll() {
	for _, c := range w.order {
		close(c.out)
		w.game.RemovePlayer(c.player)
	}
	w.clients = map[string]*client{}
	w.order = nil
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
