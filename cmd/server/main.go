package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"meshwalk.io/internal/persistence/archive"
	persistlog "meshwalk.io/internal/persistence/log"
	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/sim/game"
	"meshwalk.io/internal/sim/tuning"
	"meshwalk.io/internal/sim/world"
	"meshwalk.io/internal/transport/ws"
	"meshwalk.io/internal/walkmesh"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		meshPath   = flag.String("mesh", "./world.w", "walk mesh bundle")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (tick/audit + tuning + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		archiveEvery  = flag.Int("archive_every_ticks", 108000, "copy snapshots at multiples of this tick into archives/ (0 disables)")
		keepSnapshots = flag.Int("keep_snapshots", 48, "snapshots kept in snapshots/ (0 keeps all)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	store, err := walkmesh.LoadStore(*meshPath)
	if err != nil {
		logger.Fatalf("load meshes: %v", err)
	}
	for _, warn := range store.Warnings {
		logger.Printf("mesh bundle %s: %s", *meshPath, warn)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if s.Header.WorldID != "" && s.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, s.Header.WorldID)
		}
		// The snapshot's run parameters win over the tuning file.
		if s.MeshName != "" {
			tune.MeshName = s.MeshName
		}
		if s.TickRate > 0 && s.TickRate != tune.TickRateHz {
			logger.Printf("snapshot tick rate %d overrides tuning %d", s.TickRate, tune.TickRateHz)
			tune.TickRateHz = s.TickRate
		}
		tune.Seed = s.Seed
		snap = &s
	}

	mesh, err := store.Lookup(tune.MeshName)
	if err != nil {
		logger.Fatalf("mesh: %v (bundle has %v)", err, store.Names())
	}

	seed := tune.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gcfg := tune.GameConfig()
	gcfg.Seed = seed
	g, err := game.New(mesh, gcfg)
	if err != nil {
		logger.Fatalf("game: %v", err)
	}
	w, err := world.New(world.WorldConfig{
		ID:                 *worldID,
		TickRateHz:         tune.TickRateHz,
		MeshName:           tune.MeshName,
		Seed:               seed,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
	}, g, logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snap != nil {
		if err := w.ImportSnapshot(*snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	}
	logger.Printf("world=%s mesh=%s triangles=%d sheep=%d seed=%d tick_rate=%d",
		*worldID, tune.MeshName, mesh.NumTriangles(), g.NumSheep(), seed, tune.TickRateHz)

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(*worldID, seed, tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	w.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", snapshot.FileName(s.Header.Tick))
				if err := snapshot.WriteSnapshot(path, s); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, s)
				}
				if dst, ok, err := archive.ArchiveSnapshot(worldDir, path, s, *archiveEvery); err != nil {
					logger.Printf("snapshot archive: %v", err)
				} else if ok {
					logger.Printf("archived snapshot tick=%d path=%s", s.Header.Tick, dst)
				}
				if _, err := archive.PruneSnapshots(worldDir, *keepSnapshots); err != nil {
					logger.Printf("snapshot prune: %v", err)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	wsSrv := ws.NewServer(w, logger)
	mux := newMux(muxConfig{
		WorldID:     *worldID,
		EnableAdmin: envBool("MW_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		EnablePprof: envBool("MW_ENABLE_PPROF_HTTP", false),
	}, w, wsSrv, idx, logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		wsSrv.Shutdown()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a world.AuditLogger
	b world.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
