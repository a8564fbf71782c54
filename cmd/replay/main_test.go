package main

import (
	"path/filepath"
	"strings"
	"testing"

	persistlog "meshwalk.io/internal/persistence/log"
	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/protocol"
	"meshwalk.io/internal/sim/input"
	"meshwalk.io/internal/sim/tuning"
	"meshwalk.io/internal/sim/world"
	"meshwalk.io/internal/walkmesh/meshgen"
)

func recordRun(t *testing.T, dir string, seed int64) {
	t.Helper()
	mesh, err := meshgen.Grid(meshgen.DefaultGridOptions())
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	w, err := newWorld("w1", mesh, tuning.Defaults(), seed)
	if err != nil {
		t.Fatalf("newWorld: %v", err)
	}
	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)

	out := make(chan []byte, 4)
	resp := make(chan world.JoinResponse, 1)
	w.StepOnce([]world.JoinRequest{{Out: out, Resp: resp}}, nil, nil)
	id := (<-resp).ClientID

	fwd, _ := protocol.AppendControls(nil, input.Controls{Up: input.Button{Pressed: true, Downs: 1}, MouseX: 3})
	for i := 0; i < 20; i++ {
		var in []world.InboundBytes
		if i%3 == 0 {
			in = append(in, world.InboundBytes{ClientID: id, Data: fwd})
		}
		w.StepOnce(nil, nil, in)
	}
	w.StepOnce(nil, []string{id}, nil)
	if err := tl.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}
}

func TestReplayDir_MatchesRecordedRun(t *testing.T) {
	dir := t.TempDir()
	recordRun(t, dir, 77)

	mesh, _ := meshgen.Grid(meshgen.DefaultGridOptions())
	w, err := newWorld("w1", mesh, tuning.Defaults(), 77)
	if err != nil {
		t.Fatalf("newWorld: %v", err)
	}
	res, err := replayDir(w, filepath.Join(dir, "events"), 0)
	if err != nil {
		t.Fatalf("replayDir: %v", err)
	}
	if res.Checked != 22 || res.Files == 0 {
		t.Fatalf("result=%+v", res)
	}
}

func TestReplayDir_StopsAtToTick(t *testing.T) {
	dir := t.TempDir()
	recordRun(t, dir, 5)

	mesh, _ := meshgen.Grid(meshgen.DefaultGridOptions())
	w, _ := newWorld("w1", mesh, tuning.Defaults(), 5)
	res, err := replayDir(w, filepath.Join(dir, "events"), 9)
	if err != nil {
		t.Fatalf("replayDir: %v", err)
	}
	if res.Checked != 10 || w.CurrentTick() != 10 {
		t.Fatalf("checked=%d tick=%d", res.Checked, w.CurrentTick())
	}
}

func TestReplayDir_WrongSeedMismatches(t *testing.T) {
	dir := t.TempDir()
	recordRun(t, dir, 77)

	mesh, _ := meshgen.Grid(meshgen.DefaultGridOptions())
	w, _ := newWorld("w1", mesh, tuning.Defaults(), 78)
	_, err := replayDir(w, filepath.Join(dir, "events"), 0)
	if err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}

func TestReplayDir_NoFiles(t *testing.T) {
	mesh, _ := meshgen.Grid(meshgen.DefaultGridOptions())
	w, _ := newWorld("w1", mesh, tuning.Defaults(), 1)
	if _, err := replayDir(w, t.TempDir(), 0); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestReplayDir_FollowsServerRestart(t *testing.T) {
	dir := t.TempDir()
	mesh, _ := meshgen.Grid(meshgen.DefaultGridOptions())
	fwd, _ := protocol.AppendControls(nil, input.Controls{Up: input.Button{Pressed: true, Downs: 1}, MouseX: -2})

	first, err := newWorld("w1", mesh, tuning.Defaults(), 19)
	if err != nil {
		t.Fatalf("newWorld: %v", err)
	}
	tl := persistlog.NewTickLogger(dir)
	first.SetTickLogger(tl)
	resp := make(chan world.JoinResponse, 1)
	first.StepOnce([]world.JoinRequest{{Out: make(chan []byte, 4), Resp: resp}}, nil, nil)
	id := (<-resp).ClientID
	var snap snapshot.SnapshotV1
	for first.CurrentTick() < 15 {
		tick, _ := first.StepOnce(nil, nil, []world.InboundBytes{{ClientID: id, Data: fwd}})
		if tick == 10 {
			snap = first.ExportSnapshot(tick)
		}
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}

	second, _ := newWorld("w1", mesh, tuning.Defaults(), 19)
	if err := second.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	tl = persistlog.NewTickLogger(dir)
	second.SetTickLogger(tl)
	second.StepOnce([]world.JoinRequest{{Out: make(chan []byte, 4), Resp: resp}}, nil, nil)
	id = (<-resp).ClientID
	for second.CurrentTick() < 20 {
		second.StepOnce(nil, nil, []world.InboundBytes{{ClientID: id, Data: fwd}})
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}

	w, _ := newWorld("w1", mesh, tuning.Defaults(), 19)
	res, err := replayDir(w, filepath.Join(dir, "events"), 0)
	if err != nil {
		t.Fatalf("replayDir: %v", err)
	}
	if res.Resumes != 1 || res.Checked != 24 {
		t.Fatalf("result=%+v", res)
	}
}
