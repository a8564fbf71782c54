package world

import (
	"context"
	"errors"
	"testing"
	"time"

	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/protocol"
	"meshwalk.io/internal/sim/game"
	"meshwalk.io/internal/sim/input"
	"meshwalk.io/internal/walkmesh/meshgen"
)

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memAuditLog struct{ entries []AuditEntry }

func (m *memAuditLog) WriteAudit(e AuditEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func newTestWorld(t *testing.T, seed int64, mut func(*game.Config)) *World {
	t.Helper()
	mesh, err := meshgen.Grid(meshgen.DefaultGridOptions())
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	cfg := game.DefaultConfig()
	cfg.Seed = seed
	cfg.Sheep.Count = 3
	if mut != nil {
		mut(&cfg)
	}
	g, err := game.New(mesh, cfg)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	w, err := New(WorldConfig{ID: "test", TickRateHz: 30, MeshName: "WalkMesh", Seed: seed}, g, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func joinReq() (JoinRequest, chan []byte, chan JoinResponse) {
	out := make(chan []byte, 4)
	resp := make(chan JoinResponse, 1)
	return JoinRequest{Out: out, Resp: resp}, out, resp
}

func decodeState(t *testing.T, b []byte) protocol.State {
	t.Helper()
	s := protocol.Stream{In: b}
	var st protocol.State
	ok, err := protocol.RecvState(&s, &st)
	if err != nil || !ok {
		t.Fatalf("RecvState: ok=%v err=%v", ok, err)
	}
	if len(s.In) != 0 {
		t.Fatalf("%d bytes left after one state message", len(s.In))
	}
	return st
}

func TestStepOnce_JoinSendsOwnPlayerFirst(t *testing.T) {
	w := newTestWorld(t, 1, nil)
	j1, out1, resp1 := joinReq()
	j2, out2, resp2 := joinReq()

	w.StepOnce([]JoinRequest{j1, j2}, nil, nil)

	r1, r2 := <-resp1, <-resp2
	if r1.Code != "" || r2.Code != "" {
		t.Fatalf("unexpected refusal: %+v %+v", r1, r2)
	}
	if r1.Name != "ClientPlayer 1" || r2.Name != "ClientPlayer 2" {
		t.Fatalf("names: %q %q", r1.Name, r2.Name)
	}
	if r1.ClientID == r2.ClientID {
		t.Fatalf("client ids collide: %q", r1.ClientID)
	}

	st1 := decodeState(t, <-out1)
	st2 := decodeState(t, <-out2)
	if len(st1.Players) != 2 || len(st1.Sheep) != 3 {
		t.Fatalf("state counts: players=%d sheep=%d", len(st1.Players), len(st1.Sheep))
	}
	if st1.Players[0].Name != r1.Name || st2.Players[0].Name != r2.Name {
		t.Fatalf("own player not first: %q / %q", st1.Players[0].Name, st2.Players[0].Name)
	}
	if st2.Players[1].Name != r1.Name {
		t.Fatalf("others out of order: %q", st2.Players[1].Name)
	}
}

func TestStepOnce_ControlsSplitAcrossTicks(t *testing.T) {
	w := newTestWorld(t, 2, nil)
	j, _, resp := joinReq()
	w.StepOnce([]JoinRequest{j}, nil, nil)
	id := (<-resp).ClientID

	msg, _ := protocol.AppendControls(nil, input.Controls{Up: input.Button{Downs: 1, Pressed: true}, MouseX: 0.1})
	w.StepOnce(nil, nil, []InboundBytes{{ClientID: id, Data: msg[:5]}})
	if w.Game().Players()[0].Controls.Up.Pressed {
		t.Fatalf("partial message must not apply")
	}
	w.StepOnce(nil, nil, []InboundBytes{{ClientID: id, Data: msg[5:]}})
	if !w.Game().Players()[0].Controls.Up.Pressed {
		t.Fatalf("completed message did not apply")
	}
	if m := w.Metrics(); m.Clients != 1 || m.MalformedDisconnects != 0 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestStepOnce_MalformedDisconnects(t *testing.T) {
	w := newTestWorld(t, 3, nil)
	tl := &memTickLog{}
	al := &memAuditLog{}
	w.SetTickLogger(tl)
	w.SetAuditLogger(al)

	j, out, resp := joinReq()
	w.StepOnce([]JoinRequest{j}, nil, nil)
	id := (<-resp).ClientID
	<-out

	bad := []byte{byte(protocol.TypeControls), 3, 0, 0, 0, 0, 0}
	w.StepOnce(nil, nil, []InboundBytes{{ClientID: id, Data: bad}})

	if _, ok := <-out; ok {
		t.Fatalf("expected outbound channel to be closed")
	}
	if w.Game().NumPlayers() != 0 {
		t.Fatalf("player not removed")
	}
	last := tl.entries[len(tl.entries)-1]
	if len(last.Disconnects) != 1 || last.Disconnects[0].Code != protocol.CodeMalformed {
		t.Fatalf("disconnects=%+v", last.Disconnects)
	}
	if len(al.entries) != 1 || al.entries[0].Action != AuditDisconnect {
		t.Fatalf("audit=%+v", al.entries)
	}
	if m := w.Metrics(); m.MalformedDisconnects != 1 || m.Clients != 0 {
		t.Fatalf("metrics: %+v", m)
	}

	// Bytes for a client that is gone are ignored.
	w.StepOnce(nil, nil, []InboundBytes{{ClientID: id, Data: bad}})
}

func TestStepOnce_UnknownTypeDisconnects(t *testing.T) {
	w := newTestWorld(t, 4, nil)
	tl := &memTickLog{}
	w.SetTickLogger(tl)

	j, out, resp := joinReq()
	w.StepOnce([]JoinRequest{j}, nil, nil)
	id := (<-resp).ClientID
	<-out

	w.StepOnce(nil, nil, []InboundBytes{{ClientID: id, Data: []byte{'s', 0, 0, 0}}})
	if _, ok := <-out; ok {
		t.Fatalf("expected outbound channel to be closed")
	}
	last := tl.entries[len(tl.entries)-1]
	if len(last.Disconnects) != 1 || last.Disconnects[0].Code != protocol.CodeUnknownType {
		t.Fatalf("disconnects=%+v", last.Disconnects)
	}
}

func TestStepOnce_RefusesWhenFull(t *testing.T) {
	w := newTestWorld(t, 5, func(c *game.Config) { c.MaxPlayers = 1 })
	j1, _, resp1 := joinReq()
	j2, out2, resp2 := joinReq()
	w.StepOnce([]JoinRequest{j1, j2}, nil, nil)

	if r := <-resp1; r.Code != "" {
		t.Fatalf("first join refused: %+v", r)
	}
	if r := <-resp2; r.Code != protocol.CodeWorldFull {
		t.Fatalf("second join: %+v", r)
	}
	if _, ok := <-out2; ok {
		t.Fatalf("refused join should get a closed channel")
	}
	if m := w.Metrics(); m.RefusedJoins != 1 || m.Players != 1 {
		t.Fatalf("metrics: %+v", m)
	}
}

func TestStepOnce_LeaveRemovesPlayer(t *testing.T) {
	w := newTestWorld(t, 6, nil)
	tl := &memTickLog{}
	w.SetTickLogger(tl)
	j, _, resp := joinReq()
	w.StepOnce([]JoinRequest{j}, nil, nil)
	id := (<-resp).ClientID

	w.StepOnce(nil, []string{id, "C999"}, nil)
	if w.Game().NumPlayers() != 0 {
		t.Fatalf("player not removed")
	}
	last := tl.entries[len(tl.entries)-1]
	if len(last.Leaves) != 1 || last.Leaves[0] != id {
		t.Fatalf("leaves=%v", last.Leaves)
	}
	if len(tl.entries[0].Joins) != 1 || tl.entries[0].Joins[0].Name != "ClientPlayer 1" {
		t.Fatalf("joins=%+v", tl.entries[0].Joins)
	}
}

func TestStepOnce_DeterministicDigest(t *testing.T) {
	run := func() []string {
		w := newTestWorld(t, 77, nil)
		j, _, resp := joinReq()
		w.StepOnce([]JoinRequest{j}, nil, nil)
		id := (<-resp).ClientID
		msg, _ := protocol.AppendControls(nil, input.Controls{Up: input.Button{Pressed: true}, Right: input.Button{Pressed: true}, MouseX: 0.05})
		var digests []string
		for i := 0; i < 40; i++ {
			var in []InboundBytes
			if i%5 == 0 {
				in = []InboundBytes{{ClientID: id, Data: msg}}
			}
			_, d := w.StepOnce(nil, nil, in)
			digests = append(digests, d)
		}
		return digests
	}
	a, b := run(), run()
	for i := range a {
		if a[i] == "" || a[i] != b[i] {
			t.Fatalf("tick %d: digests differ: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestExportImportSnapshot(t *testing.T) {
	w := newTestWorld(t, 8, nil)
	j, _, _ := joinReq()
	w.StepOnce([]JoinRequest{j}, nil, nil)
	for i := 0; i < 30; i++ {
		w.StepOnce(nil, nil, nil)
	}
	snap := w.ExportSnapshot(w.CurrentTick() - 1)
	if len(snap.Players) != 1 || len(snap.Sheep) != 3 || snap.NextPlayerNumber != 2 {
		t.Fatalf("snapshot: players=%d sheep=%d next=%d", len(snap.Players), len(snap.Sheep), snap.NextPlayerNumber)
	}

	r := newTestWorld(t, 99, nil)
	if err := r.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if r.CurrentTick() != w.CurrentTick() {
		t.Fatalf("tick=%d want %d", r.CurrentTick(), w.CurrentTick())
	}
	got := r.Game().Sheep()
	want := w.Game().Sheep()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sheep %d: got %+v want %+v", i, got[i], want[i])
		}
	}

	j2, _, resp := joinReq()
	r.StepOnce([]JoinRequest{j2}, nil, nil)
	if name := (<-resp).Name; name != "ClientPlayer 2" {
		t.Fatalf("resumed naming: %q", name)
	}

	bad := snap
	bad.MeshName = "Other"
	if err := newTestWorld(t, 1, nil).ImportSnapshot(bad); err == nil {
		t.Fatalf("expected mesh mismatch error")
	}
}

func TestRun_RequestSnapshotAndStop(t *testing.T) {
	w := newTestWorld(t, 9, nil)
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	j, out, resp := joinReq()
	w.Join() <- j
	select {
	case r := <-resp:
		if r.Code != "" {
			t.Fatalf("join refused: %+v", r)
		}
	case <-ctx.Done():
		t.Fatalf("join timed out")
	}

	if _, err := w.RequestSnapshot(ctx); err != nil {
		t.Fatalf("RequestSnapshot: %v", err)
	}
	select {
	case s := <-sink:
		if s.Header.WorldID != "test" || len(s.Sheep) != 3 {
			t.Fatalf("snapshot: %+v", s.Header)
		}
	case <-ctx.Done():
		t.Fatalf("no snapshot")
	}

	w.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	for range out {
	}
}

func TestReplayTick_ReproducesRecordedRun(t *testing.T) {
	rec := newTestWorld(t, 31, nil)
	tl := &memTickLog{}
	rec.SetTickLogger(tl)

	j1, _, resp1 := joinReq()
	j2, _, resp2 := joinReq()
	rec.StepOnce([]JoinRequest{j1, j2}, nil, nil)
	id1, id2 := (<-resp1).ClientID, (<-resp2).ClientID

	fwd, _ := protocol.AppendControls(nil, input.Controls{Up: input.Button{Downs: 1, Pressed: true}, MouseX: 0.2})
	back, _ := protocol.AppendControls(nil, input.Controls{Down: input.Button{Downs: 1, Pressed: true}})
	for i := 0; i < 25; i++ {
		var in []InboundBytes
		switch i % 4 {
		case 0:
			in = append(in, InboundBytes{ClientID: id1, Data: fwd[:7]})
		case 1:
			in = append(in, InboundBytes{ClientID: id1, Data: fwd[7:]}, InboundBytes{ClientID: id2, Data: back})
		}
		var leaves []string
		if i == 20 {
			leaves = []string{id2}
		}
		rec.StepOnce(nil, leaves, in)
	}

	rep := newTestWorld(t, 31, nil)
	for _, e := range tl.entries {
		if err := rep.ReplayTick(e); err != nil {
			t.Fatalf("ReplayTick: %v", err)
		}
	}
	if rep.CurrentTick() != rec.CurrentTick() {
		t.Fatalf("tick=%d want %d", rep.CurrentTick(), rec.CurrentTick())
	}

	tampered := newTestWorld(t, 32, nil)
	if err := tampered.ReplayTick(tl.entries[0]); err == nil {
		t.Fatalf("expected digest mismatch with a different seed")
	}
}

func TestReplayer_FollowsResumeFromSnapshot(t *testing.T) {
	tl := &memTickLog{}
	first := newTestWorld(t, 41, nil)
	first.SetTickLogger(tl)

	fwd, _ := protocol.AppendControls(nil, input.Controls{Up: input.Button{Downs: 1, Pressed: true}, MouseX: 0.3})
	j1, _, resp1 := joinReq()
	first.StepOnce([]JoinRequest{j1}, nil, nil)
	id1 := (<-resp1).ClientID

	var snap snapshot.SnapshotV1
	for first.CurrentTick() < 8 {
		tick, _ := first.StepOnce(nil, nil, []InboundBytes{{ClientID: id1, Data: fwd}})
		if tick == 5 {
			snap = first.ExportSnapshot(tick)
		}
	}
	if snap.NextClientNumber != 1 {
		t.Fatalf("snapshot next client number=%d", snap.NextClientNumber)
	}

	// The server went down after tick 7 and restarts from the tick 5 snapshot.
	second := newTestWorld(t, 41, nil)
	if err := second.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	second.SetTickLogger(tl)
	j2, _, resp2 := joinReq()
	second.StepOnce([]JoinRequest{j2}, nil, nil)
	if id := (<-resp2).ClientID; id != "C2" {
		t.Fatalf("resumed client id=%q want C2", id)
	}
	for second.CurrentTick() < 10 {
		second.StepOnce(nil, nil, []InboundBytes{{ClientID: "C2", Data: fwd}})
	}

	marked := 0
	for _, e := range tl.entries {
		if e.Resume != nil {
			marked++
			if e.Tick != 6 || e.Resume.FromTick != 5 {
				t.Fatalf("resume marker on tick %d from %d", e.Tick, e.Resume.FromTick)
			}
		}
	}
	if marked != 1 || len(tl.entries) != 12 {
		t.Fatalf("markers=%d entries=%d", marked, len(tl.entries))
	}

	r := NewReplayer(newTestWorld(t, 41, nil), []uint64{5})
	for _, e := range tl.entries {
		if err := r.Apply(e); err != nil {
			t.Fatalf("Apply tick %d: %v", e.Tick, err)
		}
	}
	if r.Resumes() != 1 || r.World().CurrentTick() != 10 {
		t.Fatalf("resumes=%d tick=%d", r.Resumes(), r.World().CurrentTick())
	}

	// Without the resume tick the replay has nothing to rebuild from.
	blind := NewReplayer(newTestWorld(t, 41, nil), nil)
	var err error
	for _, e := range tl.entries {
		if err = blind.Apply(e); err != nil {
			break
		}
	}
	if err == nil {
		t.Fatalf("expected an error replaying a resume without its snapshot tick")
	}
}

func TestRun_StopTwiceClosesDone(t *testing.T) {
	w := newTestWorld(t, 12, nil)
	errc := make(chan error, 1)
	go func() { errc <- w.Run(context.Background()) }()

	w.Stop()
	w.Stop()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after Stop")
	}
	select {
	case <-w.Done():
	default:
		t.Fatalf("Done not closed after Run returned")
	}
}

func TestRequestSnapshot_Errors(t *testing.T) {
	w := newTestWorld(t, 13, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	if _, err := w.RequestSnapshot(ctx); !errors.Is(err, ErrNoSnapshotSink) {
		t.Fatalf("no sink: got %v", err)
	}

	sink := make(chan snapshot.SnapshotV1, 1)
	sink <- snapshot.SnapshotV1{}
	w2 := newTestWorld(t, 13, nil)
	w2.SetSnapshotSink(sink)
	go func() { _ = w2.Run(ctx) }()
	if _, err := w2.RequestSnapshot(ctx); !errors.Is(err, ErrSnapshotSinkFull) {
		t.Fatalf("full sink: got %v", err)
	}

	w.Stop()
	<-w.Done()
	if _, err := w.RequestSnapshot(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("stopped: got %v", err)
	}
	w2.Stop()
}
