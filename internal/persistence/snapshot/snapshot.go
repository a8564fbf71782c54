package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is what a server needs to resume a world: the flock (with wander
// biases), the player naming counter and the run parameters. Connected
// players are recorded for inspection only; they do not survive a restart.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed               int64  `json:"seed"`
	TickRate           int    `json:"tick_rate_hz"`
	MeshName           string `json:"mesh_name"`
	SnapshotEveryTicks int    `json:"snapshot_every_ticks,omitempty"`
	NextPlayerNumber   uint32 `json:"next_player_number"`
	NextClientNumber   uint64 `json:"next_client_number,omitempty"`

	Players []PlayerV1 `json:"players"`
	Sheep   []SheepV1  `json:"sheep"`

	Stats StatsV1 `json:"stats"`
}

type WalkPointV1 struct {
	Indices [3]uint32  `json:"indices"`
	Weights [3]float32 `json:"weights"`
}

// Rotations are stored x, y, z, w like on the wire.
type PlayerV1 struct {
	Name     string      `json:"name"`
	At       WalkPointV1 `json:"at"`
	Rotation [4]float32  `json:"rotation"`
}

type SheepV1 struct {
	At       WalkPointV1 `json:"at"`
	Rotation [4]float32  `json:"rotation"`
	Bias     [3]float32  `json:"bias"`
}

type StatsV1 struct {
	Ticks                uint64 `json:"ticks"`
	WalkExhausted        uint64 `json:"walk_exhausted"`
	Crossings            uint64 `json:"crossings"`
	Bounces              uint64 `json:"bounces"`
	MalformedDisconnects uint64 `json:"malformed_disconnects"`
	RefusedJoins         uint64 `json:"refused_joins"`
}

// FileName is the conventional name of the snapshot for tick.
func FileName(tick uint64) string {
	return fmt.Sprintf("%d.snap.zst", tick)
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}

	me := msgpack.NewEncoder(bw)
	me.SetCustomStructTag("json")
	if err := me.Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("msgpack encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The body repeats the header; the line only serves ReadHeader.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("header line: %w", err)
	}

	md := msgpack.NewDecoder(br)
	md.SetCustomStructTag("json")
	if err := md.Decode(&snap); err != nil {
		return snap, fmt.Errorf("msgpack decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("header line: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}
