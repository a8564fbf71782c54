// Package world runs one Game on a single goroutine and connects it to byte
// streams: joins, leaves and inbound bytes arrive over channels and are
// applied in tick order.
package world

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"meshwalk.io/internal/persistence/snapshot"
	"meshwalk.io/internal/protocol"
	"meshwalk.io/internal/sim/arena"
	"meshwalk.io/internal/sim/game"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	MeshName   string
	Seed       int64

	// Operational parameters. These are included in snapshots.
	SnapshotEveryTicks int
}

type World struct {
	cfg  WorldConfig
	game *game.Game
	dt   float32
	log  *log.Logger

	tick atomic.Uint64

	clients map[string]*client
	order   []*client

	inbox        chan InboundBytes
	join         chan JoinRequest
	leave        chan string
	snapshotReqs chan snapshotRequest
	stop         chan struct{}
	done         chan struct{}

	stopOnce sync.Once
	doneOnce sync.Once

	nextClientNum atomic.Uint64

	// Set by ImportSnapshot, logged with the next tick.
	resumedFrom *ResumeMarker

	malformedDisconnects uint64
	refusedJoins         uint64
	pressOverflows       uint64

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value // WorldMetrics
}

type client struct {
	id     string
	name   string
	player arena.Handle
	stream protocol.Stream
	out    chan []byte
}

// New wraps g, which must be an authoritative game. A nil logger discards.
func New(cfg WorldConfig, g *game.Game, logger *log.Logger) (*World, error) {
	if g == nil {
		return nil, fmt.Errorf("world: nil game")
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("world: tick rate must be positive, got %d", cfg.TickRateHz)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		cfg:          cfg,
		game:         g,
		dt:           1 / float32(cfg.TickRateHz),
		log:          logger,
		clients:      map[string]*client{},
		inbox:        make(chan InboundBytes, 4096),
		join:         make(chan JoinRequest, 256),
		leave:        make(chan string, 256),
		snapshotReqs: make(chan snapshotRequest, 16),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	w.publishMetrics(0)
	return w, nil
}
