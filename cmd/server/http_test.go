package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"meshwalk.io/internal/sim/game"
	"meshwalk.io/internal/sim/world"
	"meshwalk.io/internal/transport/ws"
	"meshwalk.io/internal/walkmesh/meshgen"
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	mesh, err := meshgen.Grid(meshgen.DefaultGridOptions())
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	cfg := game.DefaultConfig()
	cfg.Seed = 5
	cfg.Sheep.Count = 2
	g, err := game.New(mesh, cfg)
	if err != nil {
		t.Fatalf("game.New: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "w1", TickRateHz: 30, MeshName: "WalkMesh", Seed: 5}, g, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w
}

func TestMetrics_ExposesWorldGauges(t *testing.T) {
	w := newTestWorld(t)
	w.StepOnce(nil, nil, nil)
	w.StepOnce(nil, nil, nil)

	discard := log.New(io.Discard, "", 0)
	mux := newMux(muxConfig{WorldID: "w1"}, w, ws.NewServer(w, discard), nil, discard)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`meshwalk_world_tick{world="w1"} 1`,
		`meshwalk_world_sheep{world="w1"} 2`,
		`meshwalk_world_players{world="w1"} 0`,
		`meshwalk_world_queue_depth{world="w1",queue="inbox"} 0`,
		`meshwalk_world_events_total{world="w1",event="refused_join"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "meshwalk_index_") {
		t.Fatalf("index metrics without an index")
	}
}

func TestAdminState_LoopbackOnly(t *testing.T) {
	w := newTestWorld(t)
	w.StepOnce(nil, nil, nil)
	discard := log.New(io.Discard, "", 0)
	mux := newMux(muxConfig{WorldID: "w1", EnableAdmin: true}, w, ws.NewServer(w, discard), nil, discard)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote request: status=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback request: status=%d", rec.Code)
	}
	var resp struct {
		WorldID string `json:"world_id"`
		Tick    uint64 `json:"tick"`
		Mesh    string `json:"mesh"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.WorldID != "w1" || resp.Tick != 1 || resp.Mesh != "WalkMesh" {
		t.Fatalf("resp=%+v", resp)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/snapshot", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET snapshot: status=%d", rec.Code)
	}
}

func TestAdminDisabled(t *testing.T) {
	w := newTestWorld(t)
	discard := log.New(io.Discard, "", 0)
	mux := newMux(muxConfig{WorldID: "w1"}, w, ws.NewServer(w, discard), nil, discard)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:9000":   true,
		"::1":          true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	if got := latestSnapshot(dir); got != "" {
		t.Fatalf("empty dir: %q", got)
	}
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"9.snap.zst", "120.snap.zst", "30.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "120.snap.zst" {
		t.Fatalf("latest=%q", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("MW_TEST_FLAG", "true")
	if !envBool("MW_TEST_FLAG", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("MW_TEST_FLAG", "nope")
	if envBool("MW_TEST_FLAG", false) {
		t.Fatalf("unparsable value should use the default")
	}
}
