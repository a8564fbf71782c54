// Package log keeps the world's append-only journals: JSON lines, zstd
// compressed, split into hourly segments.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"meshwalk.io/internal/sim/world"
)

const (
	segmentExt     = ".jsonl.zst"
	segmentHour    = "2006-01-02-15"
	maxHourlySegs  = 10000
	segmentNameFmt = "%s-%s-%04d" + segmentExt
)

// Journal appends JSON lines under dir in segments named
// <prefix>-YYYY-MM-DD-HH-NNNN.jsonl.zst. A segment holds one UTC hour of one
// process; NNNN numbers the segments opened within that hour, so names sort
// in write order. Each line is flushed as its own zstd block and a segment
// cut short by a crash still reads back up to its last whole line.
type Journal struct {
	dir    string
	prefix string
	clock  func() time.Time

	mu   sync.Mutex
	hour string
	seg  *os.File
	zw   *zstd.Encoder
}

func NewJournal(dir, prefix string) *Journal {
	return &Journal{dir: dir, prefix: prefix, clock: time.Now}
}

// Append writes v as one line, starting a new segment when the hour turns.
func (j *Journal) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if hour := j.clock().UTC().Format(segmentHour); hour != j.hour || j.zw == nil {
		if err := j.startSegment(hour); err != nil {
			return err
		}
	}
	if _, err := j.zw.Write(line); err != nil {
		return err
	}
	return j.zw.Flush()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.endSegment()
}

func (j *Journal) startSegment(hour string) error {
	if err := j.endSegment(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}
	for n := 0; n < maxHourlySegs; n++ {
		path := filepath.Join(j.dir, fmt.Sprintf(segmentNameFmt, j.prefix, hour, n))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return err
		}
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = f.Close()
			return err
		}
		j.seg, j.zw, j.hour = f, zw, hour
		return nil
	}
	return fmt.Errorf("journal %s: no free segment for hour %s", j.prefix, hour)
}

func (j *Journal) endSegment() error {
	if j.zw == nil {
		return nil
	}
	err := j.zw.Close()
	if cerr := j.seg.Close(); err == nil {
		err = cerr
	}
	j.seg, j.zw = nil, nil
	return err
}

// TickLogger journals one entry per tick under <worldDir>/events.
type TickLogger struct{ j *Journal }

var _ world.TickLogger = (*TickLogger)(nil)

func NewTickLogger(worldDir string) *TickLogger {
	return &TickLogger{j: NewJournal(filepath.Join(worldDir, "events"), "events")}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error { return l.j.Append(e) }
func (l *TickLogger) Close() error                         { return l.j.Close() }

// AuditLogger journals audit entries under <worldDir>/audit.
type AuditLogger struct{ j *Journal }

var _ world.AuditLogger = (*AuditLogger)(nil)

func NewAuditLogger(worldDir string) *AuditLogger {
	return &AuditLogger{j: NewJournal(filepath.Join(worldDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error { return l.j.Append(e) }
func (l *AuditLogger) Close() error                        { return l.j.Close() }

// ListFiles returns dir's <prefix> segments in write order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, segmentExt) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = filepath.Join(dir, name)
	}
	return out, nil
}

// ReadLines calls fn with every whole line of one segment. A segment whose
// zstd frame was never finished ends at its last complete block.
func ReadLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return err
	}
	defer zr.Close()

	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return nil
}

// ReadTicks decodes every tick entry of one events segment in order.
func ReadTicks(path string, fn func(world.TickLogEntry) error) error {
	line := 0
	return ReadLines(path, func(b []byte) error {
		line++
		var entry world.TickLogEntry
		if err := json.Unmarshal(b, &entry); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		return fn(entry)
	})
}
