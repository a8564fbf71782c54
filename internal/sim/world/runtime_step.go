package world

import (
	"fmt"
	"time"

	"meshwalk.io/internal/protocol"
)

func (w *World) stepInternal(joins []JoinRequest, leaves []string, inbound []InboundBytes) string {
	start := time.Now()
	tick := w.tick.Load()
	entry := TickLogEntry{Tick: tick, Resume: w.resumedFrom}
	w.resumedFrom = nil

	for _, req := range joins {
		w.handleJoin(tick, req, &entry)
	}
	for _, id := range leaves {
		if w.handleLeave(id) {
			entry.Leaves = append(entry.Leaves, id)
		}
	}
	for _, in := range inbound {
		c := w.clients[in.ClientID]
		if c == nil {
			continue
		}
		c.stream.In = append(c.stream.In, in.Data...)
		entry.Inputs = append(entry.Inputs, RecordedInput{ClientID: in.ClientID, Data: in.Data})
	}
	for _, c := range append([]*client(nil), w.order...) {
		w.drainControls(tick, c, &entry)
	}

	ts := w.game.Update(w.dt)
	if ts.WalkExhausted > 0 {
		w.log.Printf("tick %d: walk iteration budget exhausted %d time(s)", tick, ts.WalkExhausted)
	}
	entry.WalkExhausted = ts.WalkExhausted

	st := w.game.State()
	w.broadcastState(tick, st, &entry)

	entry.Players = w.game.NumPlayers()
	entry.Sheep = w.game.NumSheep()
	entry.Digest = stateDigest(st)

	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Printf("tick %d: tick log: %v", tick, err)
		}
	}

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && tick > 0 && tick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		if err := w.offerSnapshot(tick); err != nil {
			w.log.Printf("tick %d: periodic snapshot skipped: %v", tick, err)
		}
	}

	w.publishMetrics(time.Since(start))
	w.tick.Add(1)
	return entry.Digest
}

func (w *World) handleJoin(tick uint64, req JoinRequest, entry *TickLogEntry) {
	h, err := w.game.SpawnPlayer()
	if err != nil {
		w.refusedJoins++
		w.audit(AuditEntry{Tick: tick, Action: AuditJoinRefused, Reason: protocol.CodeWorldFull, Details: map[string]any{"error": err.Error()}})
		if req.Resp != nil {
			req.Resp <- JoinResponse{Code: protocol.CodeWorldFull}
		}
		if req.Out != nil {
			close(req.Out)
		}
		return
	}
	p, _ := w.game.Player(h)
	c := &client{
		id:     fmt.Sprintf("C%d", w.nextClientNum.Add(1)),
		name:   p.Name,
		player: h,
		out:    req.Out,
	}
	if c.out == nil {
		c.out = make(chan []byte, 1)
	}
	w.clients[c.id] = c
	w.order = append(w.order, c)
	entry.Joins = append(entry.Joins, RecordedJoin{ClientID: c.id, Name: c.name})
	if req.Resp != nil {
		req.Resp <- JoinResponse{ClientID: c.id, Name: c.name}
	}
}

// handleLeave forgets a client that went away on its own. The transport owns
// the connection by then, so its outbound channel is left open.
func (w *World) handleLeave(id string) bool {
	c := w.clients[id]
	if c == nil {
		return false
	}
	w.forget(c)
	return true
}

func (w *World) forget(c *client) {
	w.game.RemovePlayer(c.player)
	delete(w.clients, c.id)
	for i, o := range w.order {
		if o == c {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// disconnect drops a client for protocol misbehaviour and closes its
// outbound channel so the transport hangs up.
func (w *World) disconnect(tick uint64, c *client, code string, reason error, entry *TickLogEntry) {
	w.forget(c)
	close(c.out)
	if code == protocol.CodeMalformed || code == protocol.CodeUnknownType {
		w.malformedDisconnects++
	}
	d := RecordedDisconnect{ClientID: c.id, Code: code}
	if reason != nil {
		d.Reason = reason.Error()
	}
	entry.Disconnects = append(entry.Disconnects, d)
	w.audit(AuditEntry{Tick: tick, ClientID: c.id, Action: AuditDisconnect, Reason: code, Details: map[string]any{"name": c.name, "error": d.Reason}})
	w.log.Printf("tick %d: disconnect %s (%s): %s %s", tick, c.id, c.name, code, d.Reason)
}

// drainControls decodes every complete controls message buffered for c.
// Anything left must be the prefix of another controls message.
func (w *World) drainControls(tick uint64, c *client, entry *TickLogEntry) {
	p, ok := w.game.Player(c.player)
	if !ok {
		return
	}
	for {
		got, overflow, err := protocol.RecvControls(&c.stream, &p.Controls)
		if err != nil {
			w.disconnect(tick, c, protocol.CodeMalformed, err, entry)
			return
		}
		if overflow {
			w.pressOverflows++
			w.audit(AuditEntry{Tick: tick, ClientID: c.id, Action: AuditPressOverflow})
			w.log.Printf("tick %d: %s press counter saturated", tick, c.id)
		}
		if !got {
			break
		}
	}
	if t, ok := protocol.PeekType(c.stream.In); ok && t != protocol.TypeControls {
		w.disconnect(tick, c, protocol.CodeUnknownType, fmt.Errorf("message type %d", t), entry)
	}
}

// broadcastState sends each client the tick's state with its own player
// first.
func (w *World) broadcastState(tick uint64, st protocol.State, entry *TickLogEntry) {
	for _, c := range append([]*client(nil), w.order...) {
		self := w.game.PlayerIndex(c.player)
		if err := protocol.SendState(&c.stream, st, self); err != nil {
			w.disconnect(tick, c, protocol.CodeInternal, err, entry)
			continue
		}
		b := append([]byte(nil), c.stream.Out...)
		c.stream.Out = c.stream.Out[:0]
		sendLatest(c.out, b)
	}
}

func (w *World) audit(e AuditEntry) {
	if w.auditLogger == nil {
		return
	}
	if err := w.auditLogger.WriteAudit(e); err != nil {
		w.log.Printf("tick %d: audit log: %v", e.Tick, err)
	}
}
