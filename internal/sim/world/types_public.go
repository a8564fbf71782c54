package world

// JoinRequest registers a connection. Out receives one encoded state message
// per tick; the world closes it when it drops the client.
type JoinRequest struct {
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	ClientID string
	Name     string

	// Code is set when the join was refused.
	Code string
}

// InboundBytes is a chunk of a client's byte stream. Chunks need not align
// with message boundaries.
type InboundBytes struct {
	ClientID string
	Data     []byte
}

type RecordedJoin struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
}

// RecordedInput is one inbound chunk as applied, so a run can be replayed
// byte for byte.
type RecordedInput struct {
	ClientID string `json:"client_id"`
	Data     []byte `json:"data"`
}

type RecordedDisconnect struct {
	ClientID string `json:"client_id"`
	Code     string `json:"code"`
	Reason   string `json:"reason,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick          uint64               `json:"tick"`
	Joins         []RecordedJoin       `json:"joins,omitempty"`
	Leaves        []string             `json:"leaves,omitempty"`
	Disconnects   []RecordedDisconnect `json:"disconnects,omitempty"`
	Inputs        []RecordedInput      `json:"inputs,omitempty"`
	Players       int                  `json:"players"`
	Sheep         int                  `json:"sheep"`
	WalkExhausted int                  `json:"walk_exhausted,omitempty"`
	Digest        string               `json:"digest"`

	// Resume is set on the first tick a restarted server ran.
	Resume *ResumeMarker `json:"resume,omitempty"`
}

// ResumeMarker names the snapshot tick a run restarted from. Entries logged
// before it with a later tick belong to the run that was cut short.
type ResumeMarker struct {
	FromTick uint64 `json:"from_tick"`
}

type AuditEntry struct {
	Tick     uint64         `json:"tick"`
	ClientID string         `json:"client_id"`
	Action   string         `json:"action"` // e.g. "PRESS_OVERFLOW"
	Reason   string         `json:"reason,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Audit actions.
const (
	AuditJoinRefused   = "JOIN_REFUSED"
	AuditPressOverflow = "PRESS_OVERFLOW"
	AuditDisconnect    = "DISCONNECT"
)
