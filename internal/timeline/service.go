package timeline

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// TimelineService is the turn journal: an append-only record of every turn
// the scheduler granted.
type TimelineService struct {
	db *sql.DB
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &TimelineService{db: db}, nil
}

func (s *TimelineService) Close() error {
	return s.db.Close()
}

// RecordTurn appends a turn event.
func (s *TimelineService) RecordTurn(evt *TurnEvent) error {
	if strings.TrimSpace(evt.TraceID) == "" {
		return fmt.Errorf("trace id required")
	}
	if evt.StartedAt.IsZero() {
		evt.StartedAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO turns (trace_id, agent, destination, weight, outcome, error_text, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.TraceID, evt.Agent, evt.Destination, evt.Weight, evt.Outcome, evt.ErrorText,
		evt.StartedAt.UTC(), evt.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		evt.ID = id
	}
	return nil
}

// RecentTurns returns the newest turns first.
func (s *TimelineService) RecentTurns(limit int) ([]TurnEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT id, trace_id, agent, destination, weight, outcome,
		COALESCE(error_text,''), started_at, duration_ms
		FROM turns ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnEvent
	for rows.Next() {
		var e TurnEvent
		var durMS int64
		if err := rows.Scan(&e.ID, &e.TraceID, &e.Agent, &e.Destination, &e.Weight, &e.Outcome,
			&e.ErrorText, &e.StartedAt, &durMS); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// OutcomeCounts tallies turns by outcome, optionally for one agent.
func (s *TimelineService) OutcomeCounts(agent string) (map[string]int, error) {
	query := `SELECT outcome, COUNT(*) FROM turns`
	var args []any
	if a := strings.TrimSpace(agent); a != "" {
		query += ` WHERE agent = ?`
		args = append(args, a)
	}
	query += ` GROUP BY outcome`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
