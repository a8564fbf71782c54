package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "meshwalk.io/internal/persistence/log"
	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "metrics":
			metricsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional; lists its snapshots)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID == "" {
		entries, err := os.ReadDir(base)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if e.IsDir() {
				fmt.Println(e.Name())
			}
		}
		return
	}

	paths, err := listSnapshots(filepath.Join(base, *worldID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, p := range paths {
		h, err := snapshot.ReadHeader(p)
		if err != nil {
			fmt.Printf("%s\terror=%v\n", filepath.Base(p), err)
			continue
		}
		fmt.Printf("%s\tv%d\tworld=%s\ttick=%d\n", filepath.Base(p), h.Version, h.WorldID, h.Tick)
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarize(path, snap))
}

type snapshotSummary struct {
	Path             string           `json:"path"`
	Version          int              `json:"version"`
	WorldID          string           `json:"world_id"`
	Tick             uint64           `json:"tick"`
	Seed             int64            `json:"seed"`
	TickRate         int              `json:"tick_rate"`
	MeshName         string           `json:"mesh_name"`
	NextPlayerNumber uint32           `json:"next_player_number"`
	Players          []string         `json:"players"`
	Sheep            int              `json:"sheep"`
	Stats            snapshot.StatsV1 `json:"stats"`
}

func summarize(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:             path,
		Version:          snap.Header.Version,
		WorldID:          snap.Header.WorldID,
		Tick:             snap.Header.Tick,
		Seed:             snap.Seed,
		TickRate:         snap.TickRate,
		MeshName:         snap.MeshName,
		NextPlayerNumber: snap.NextPlayerNumber,
		Players:          []string{},
		Sheep:            len(snap.Sheep),
		Stats:            snap.Stats,
	}
	for _, p := range snap.Players {
		s.Players = append(s.Players, p.Name)
	}
	return s
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	clientID := fs.String("client", "", "client_id filter")
	action := fs.String("action", "", "action filter, e.g. DISCONNECT")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	recs, err := readAudit(filepath.Join(*dataDir, "worlds", *worldID), auditFilter{
		SinceTick: *sinceTick,
		ToTick:    *toTick,
		ClientID:  *clientID,
		Action:    strings.ToUpper(strings.TrimSpace(*action)),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		printJSON(r)
	}
}

type auditFilter struct {
	SinceTick uint64
	ToTick    uint64
	ClientID  string
	Action    string
}

func (f auditFilter) match(e world.AuditEntry) bool {
	if e.Tick < f.SinceTick || (f.ToTick != 0 && e.Tick > f.ToTick) {
		return false
	}
	if f.ClientID != "" && e.ClientID != f.ClientID {
		return false
	}
	return f.Action == "" || e.Action == f.Action
}

func readAudit(worldDir string, f auditFilter) ([]world.AuditEntry, error) {
	files, err := persistlog.ListFiles(filepath.Join(worldDir, "audit"), "audit")
	if err != nil {
		return nil, err
	}
	var out []world.AuditEntry
	for _, path := range files {
		err := persistlog.ReadLines(path, func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if f.match(e) {
				out = append(out, e)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// listSnapshots returns a world's snapshot files in tick order.
func listSnapshots(worldDir string) ([]string, error) {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type item struct {
		tick uint64
		path string
	}
	var items []item
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		items = append(items, item{tick, filepath.Join(dir, name)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].tick < items[j].tick })
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.path)
	}
	return out, nil
}

func latestSnapshot(worldDir string) string {
	paths, err := listSnapshots(worldDir)
	if err != nil || len(paths) == 0 {
		return ""
	}
	return paths[len(paths)-1]
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
