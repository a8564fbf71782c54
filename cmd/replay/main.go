package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	persistlog "meshwalk.io/internal/persistence/log"
	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/sim/game"
	"meshwalk.io/internal/sim/tuning"
	"meshwalk.io/internal/sim/world"
	"meshwalk.io/internal/walkmesh"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; supplies world id, seed, mesh and tick rate)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		meshPath   = flag.String("mesh", "./world.w", "walk mesh bundle")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		worldID    = flag.String("world", "world_1", "world id (ignored with -snapshot)")
		seed       = flag.Int64("seed", 0, "world seed (ignored with -snapshot)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *snapPath == "" && *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "need -snapshot and/or -events")
		os.Exit(2)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	if *snapPath != "" {
		snap, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d world=%s tick=%d seed=%d mesh=%s tick_rate=%d players=%d sheep=%d walk_exhausted=%d crossings=%d bounces=%d\n",
			snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed, snap.MeshName, snap.TickRate,
			len(snap.Players), len(snap.Sheep), snap.Stats.WalkExhausted, snap.Stats.Crossings, snap.Stats.Bounces)
		*worldID = snap.Header.WorldID
		*seed = snap.Seed
		tune.MeshName = snap.MeshName
		if snap.TickRate > 0 {
			tune.TickRateHz = snap.TickRate
		}
	}

	if *eventsDir == "" {
		return
	}
	if *seed == 0 {
		fmt.Fprintln(os.Stderr, "replay needs the run's seed: pass -seed or -snapshot")
		os.Exit(2)
	}

	store, err := walkmesh.LoadStore(*meshPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load meshes:", err)
		os.Exit(1)
	}
	mesh, err := store.Lookup(tune.MeshName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mesh:", err)
		os.Exit(1)
	}
	w, err := newWorld(*worldID, mesh, tune, *seed)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}

	res, err := replayDir(w, *eventsDir, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks files=%d resumes=%d walk_exhausted_ticks=%d\n", res.Checked, res.Files, res.Resumes, res.ExhaustedTicks)
}

func newWorld(id string, mesh *walkmesh.Mesh, tune tuning.Tuning, seed int64) (*world.World, error) {
	gcfg := tune.GameConfig()
	gcfg.Seed = seed
	g, err := game.New(mesh, gcfg)
	if err != nil {
		return nil, err
	}
	return world.New(world.WorldConfig{
		ID:         id,
		TickRateHz: tune.TickRateHz,
		MeshName:   tune.MeshName,
		Seed:       seed,
	}, g, nil)
}

type replayResult struct {
	Files          int
	Checked        uint64
	Resumes        int
	ExhaustedTicks uint64
}

// replayDir steps w through every logged tick in dir. The log must start at
// tick 0 of the run w was built for. Restarts recorded in the log are
// followed, and entries past toTick are skipped.
func replayDir(w *world.World, dir string, toTick uint64) (replayResult, error) {
	var res replayResult
	files, err := persistlog.ListFiles(dir, "events")
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		return res, fmt.Errorf("no events files found in %s", dir)
	}
	resumes, err := resumeTicks(files)
	if err != nil {
		return res, err
	}

	r := world.NewReplayer(w, resumes)
	for _, path := range files {
		res.Files++
		err := persistlog.ReadTicks(path, func(entry world.TickLogEntry) error {
			if toTick != 0 && entry.Tick > toTick {
				return nil
			}
			if res.Checked == 0 && entry.Tick != 0 {
				return fmt.Errorf("events begin at tick %d; replay needs a run logged from tick 0", entry.Tick)
			}
			if entry.Resume != nil {
				fmt.Printf("tick %d: server restarted from the tick %d snapshot\n", entry.Tick, entry.Resume.FromTick)
			}
			if err := r.Apply(entry); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			res.Checked++
			if entry.WalkExhausted > 0 {
				res.ExhaustedTicks++
				fmt.Printf("tick %d: walk iteration budget exhausted %d time(s)\n", entry.Tick, entry.WalkExhausted)
			}
			return nil
		})
		if err != nil {
			return res, err
		}
	}
	res.Resumes = r.Resumes()
	return res, nil
}

// resumeTicks collects the snapshot ticks restarts in files resumed from.
func resumeTicks(files []string) ([]uint64, error) {
	var ticks []uint64
	for _, path := range files {
		err := persistlog.ReadTicks(path, func(entry world.TickLogEntry) error {
			if entry.Resume != nil {
				ticks = append(ticks, entry.Resume.FromTick)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return ticks, nil
}
