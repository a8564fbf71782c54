// Package archive keeps long-lived copies of selected snapshots and prunes
// the rolling snapshot directory.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"meshwalk.io/internal/persistence/snapshot"
)

type Meta struct {
	WorldID   string `json:"world_id"`
	Tick      uint64 `json:"tick"`
	Seed      int64  `json:"seed"`
	MeshName  string `json:"mesh_name"`
	Players   int    `json:"players"`
	Sheep     int    `json:"sheep"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveSnapshot copies a snapshot whose tick is a multiple of everyTicks
// into worldDir/archives/tick_<N>/ next to a meta.json. everyTicks <= 0
// disables archiving.
func ArchiveSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1, everyTicks int) (archivedPath string, archived bool, err error) {
	if everyTicks <= 0 || snap.Header.Tick == 0 || snap.Header.Tick%uint64(everyTicks) != 0 {
		return "", false, nil
	}

	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("tick_%012d", snap.Header.Tick))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, err
	}

	meta := Meta{
		WorldID:   snap.Header.WorldID,
		Tick:      snap.Header.Tick,
		Seed:      snap.Seed,
		MeshName:  snap.MeshName,
		Players:   len(snap.Players),
		Sheep:     len(snap.Sheep),
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

// PruneSnapshots removes all but the newest keep snapshots from
// worldDir/snapshots. keep <= 0 keeps everything.
func PruneSnapshots(worldDir string, keep int) (removed []string, err error) {
	if keep <= 0 {
		return nil, nil
	}
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type item struct {
		tick uint64
		name string
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
		items = append(items, item{tick, name})
	}
	if len(items) <= keep {
		return nil, nil
	}
	sort.Slice(items, func(i, j int) bool { return items[i].tick < items[j].tick })
	for _, it := range items[:len(items)-keep] {
		p := filepath.Join(dir, it.name)
		if err := os.Remove(p); err != nil {
			return removed, err
		}
		removed = append(removed, p)
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
