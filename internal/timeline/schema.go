package timeline

import (
	"time"
)

// Turn outcomes as stored in the turns table.
const (
	OutcomeDelivered = "delivered"
	OutcomeSilent    = "silent"
	OutcomeTimeout   = "timeout"
	OutcomeFailed    = "failed"
)

// TurnEvent is one granted turn and what became of it.
type TurnEvent struct {
	ID          int64         `json:"id"`
	TraceID     string        `json:"trace_id"`    // Unique per granted turn
	Agent       string        `json:"agent"`       // Personality name
	Destination string        `json:"destination"` // Channel the turn was granted in
	Weight      int           `json:"weight"`      // Interest accumulated when drawn
	Outcome     string        `json:"outcome"`     // delivered, silent, timeout, failed
	ErrorText   string        `json:"error_text,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Schema creates the turns table. Scheduling state is never restored from it.
const Schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT UNIQUE NOT NULL,
	agent TEXT NOT NULL,
	destination TEXT NOT NULL,
	weight INTEGER NOT NULL DEFAULT 1,
	outcome TEXT NOT NULL,
	error_text TEXT DEFAULT '',
	started_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_turns_agent ON turns(agent);
CREATE INDEX IF NOT EXISTS idx_turns_outcome ON turns(outcome);
CREATE INDEX IF NOT EXISTS idx_turns_started ON turns(started_at);
`
