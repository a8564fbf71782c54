package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"meshwalk.io/internal/sim/world"
	"meshwalk.io/internal/transport/ws"
)

type muxConfig struct {
	WorldID     string
	EnableAdmin bool
	EnablePprof bool
}

func newMux(cfg muxConfig, w *world.World, wsSrv *ws.Server, idx runtimeIndex, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, cfg.WorldID, w, wsSrv, idx)
	})

	if cfg.EnableAdmin {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Mesh    string             `json:"mesh"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: cfg.WorldID,
				Tick:    w.CurrentTick(),
				Mesh:    w.MeshName(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	} else {
		logger.Printf("admin endpoints disabled (MW_ENABLE_ADMIN_HTTP=false)")
	}

	if cfg.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

// writeMetrics emits a minimal Prometheus exposition.
func writeMetrics(out io.Writer, worldID string, w *world.World, wsSrv *ws.Server, idx runtimeIndex) {
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(out, "# HELP meshwalk_world_tick Current world tick.\n")
	fmt.Fprintf(out, "# TYPE meshwalk_world_tick gauge\n")
	fmt.Fprintf(out, "meshwalk_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(out, "# HELP meshwalk_world_players Current number of players in the world.\n")
	fmt.Fprintf(out, "# TYPE meshwalk_world_players gauge\n")
	fmt.Fprintf(out, "meshwalk_world_players{world=%q} %d\n", worldID, m.Players)

	fmt.Fprintf(out, "# HELP meshwalk_world_sheep Current number of sheep in the world.\n")
	fmt.Fprintf(out, "# TYPE meshwalk_world_sheep gauge\n")
	fmt.Fprintf(out, "meshwalk_world_sheep{world=%q} %d\n", worldID, m.Sheep)

	fmt.Fprintf(out, "# HELP meshwalk_world_clients Current number of connected clients.\n")
	fmt.Fprintf(out, "# TYPE meshwalk_world_clients gauge\n")
	fmt.Fprintf(out, "meshwalk_world_clients{world=%q} %d\n", worldID, m.Clients)
	if wsSrv != nil {
		fmt.Fprintf(out, "meshwalk_ws_connections{world=%q} %d\n", worldID, wsSrv.NumConns())
	}

	fmt.Fprintf(out, "# HELP meshwalk_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(out, "# TYPE meshwalk_world_queue_depth gauge\n")
	fmt.Fprintf(out, "meshwalk_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(out, "meshwalk_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(out, "meshwalk_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(out, "# HELP meshwalk_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(out, "# TYPE meshwalk_world_step_ms gauge\n")
	fmt.Fprintf(out, "meshwalk_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(out, "# HELP meshwalk_world_events_total Simulation event counters.\n")
	fmt.Fprintf(out, "# TYPE meshwalk_world_events_total counter\n")
	fmt.Fprintf(out, "meshwalk_world_events_total{world=%q,event=%q} %d\n", worldID, "walk_exhausted", m.WalkExhaustedTotal)
	fmt.Fprintf(out, "meshwalk_world_events_total{world=%q,event=%q} %d\n", worldID, "edge_crossing", m.CrossingsTotal)
	fmt.Fprintf(out, "meshwalk_world_events_total{world=%q,event=%q} %d\n", worldID, "boundary_bounce", m.BouncesTotal)
	fmt.Fprintf(out, "meshwalk_world_events_total{world=%q,event=%q} %d\n", worldID, "malformed_disconnect", m.MalformedDisconnects)
	fmt.Fprintf(out, "meshwalk_world_events_total{world=%q,event=%q} %d\n", worldID, "refused_join", m.RefusedJoins)
	fmt.Fprintf(out, "meshwalk_world_events_total{world=%q,event=%q} %d\n", worldID, "press_overflow", m.PressOverflows)

	if idx == nil {
		return
	}
	st := idx.Stats()
	fmt.Fprintf(out, "# HELP meshwalk_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(out, "# TYPE meshwalk_index_queue_depth gauge\n")
	fmt.Fprintf(out, "meshwalk_index_queue_depth{world=%q} %d\n", worldID, st.QueueDepth)
	fmt.Fprintf(out, "meshwalk_index_queue_capacity{world=%q} %d\n", worldID, st.QueueCapacity)
	fmt.Fprintf(out, "# HELP meshwalk_index_dropped_total Index records dropped on a full queue.\n")
	fmt.Fprintf(out, "# TYPE meshwalk_index_dropped_total counter\n")
	fmt.Fprintf(out, "meshwalk_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", st.DropTickTotal)
	fmt.Fprintf(out, "meshwalk_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", st.DropAuditTotal)
	fmt.Fprintf(out, "meshwalk_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", st.DropSnapshotTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
