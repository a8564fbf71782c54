package world

import "time"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players int `json:"players"`
	Sheep   int `json:"sheep"`
	Clients int `json:"clients"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	WalkExhaustedTotal   uint64 `json:"walk_exhausted_total"`
	CrossingsTotal       uint64 `json:"crossings_total"`
	BouncesTotal         uint64 `json:"bounces_total"`
	MalformedDisconnects uint64 `json:"malformed_disconnects"`
	RefusedJoins         uint64 `json:"refused_joins"`
	PressOverflows       uint64 `json:"press_overflows"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(step time.Duration) {
	gs := w.game.Stats()
	w.metrics.Store(WorldMetrics{
		Tick:    w.tick.Load(),
		Players: w.game.NumPlayers(),
		Sheep:   w.game.NumSheep(),
		Clients: len(w.clients),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS:               float64(step.Microseconds()) / 1000,
		WalkExhaustedTotal:   gs.WalkExhausted,
		CrossingsTotal:       gs.Crossings,
		BouncesTotal:         gs.Bounces,
		MalformedDisconnects: w.malformedDisconnects,
		RefusedJoins:         w.refusedJoins,
		PressOverflows:       w.pressOverflows,
	})
}
