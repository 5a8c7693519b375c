package audit

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/fwrules/internal/clock"
	"grimm.is/fwrules/internal/firewall"
)

// Event is one journaled rule operation.
type Event struct {
	ID        int64         `json:"id"`
	OpID      string        `json:"op_id"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user"`
	Action    string        `json:"action"`
	Rule      string        `json:"rule"`
	Result    string        `json:"result"`
	Code      int64         `json:"code,omitempty"`
	Removed   int           `json:"removed,omitempty"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Filter selects events for Query. Zero fields match everything.
type Filter struct {
	Since  time.Time
	Until  time.Time
	Action string
	Rule   string
	Limit  int
}

// Store provides persistent storage for audit events.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	retentionDays int
	user          string
	clock         clock.Clock
}

// NewStore creates a new audit store at the given path.
func NewStore(dbPath string, retentionDays int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			op_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			user TEXT NOT NULL,
			action TEXT NOT NULL,
			rule TEXT NOT NULL,
			result TEXT NOT NULL,
			code INTEGER DEFAULT 0,
			removed INTEGER DEFAULT 0,
			duration_ns INTEGER DEFAULT 0,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action);
		CREATE INDEX IF NOT EXISTS idx_audit_rule ON audit_events(rule);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = 90
	}

	return &Store{
		db:            db,
		retentionDays: retentionDays,
		user:          currentUser(),
		clock:         clock.RealClock{},
	}, nil
}

func currentUser() string {
	for _, k := range []string{"SUDO_USER", "USER", "LOGNAME"} {
		if u := os.Getenv(k); u != "" {
			return u
		}
	}
	return fmt.Sprintf("uid:%d", os.Getuid())
}

// SetClock replaces the time source used by Prune.
func (s *Store) SetClock(c clock.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = c
}

// Write persists an audit event. A zero Timestamp or User is filled in.
func (s *Store) Write(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock.Now()
	}
	if evt.User == "" {
		evt.User = s.user
	}

	_, err := s.db.Exec(`
		INSERT INTO audit_events (op_id, timestamp, user, action, rule, result, code, removed, duration_ns, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, evt.OpID, evt.Timestamp.UnixNano(), evt.User, evt.Action, evt.Rule, evt.Result,
		evt.Code, evt.Removed, int64(evt.Duration), nullString(evt.Error))
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Record converts a Manager report into an Event and writes it.
func (s *Store) Record(rep firewall.OperationReport) error {
	evt := Event{
		OpID:      rep.ID,
		Timestamp: rep.Timestamp,
		Action:    rep.Op,
		Rule:      rep.Name,
		Result:    rep.Result(),
		Removed:   rep.Removed,
		Duration:  rep.Duration,
	}
	if rep.Err != nil {
		evt.Code = firewall.CodeOf(rep.Err)
		evt.Error = rep.Err.Error()
	}
	return s.Write(evt)
}

// Query returns events matching f, newest first.
func (s *Store) Query(f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, f.Until.UnixNano())
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if f.Rule != "" {
		where = append(where, "rule = ?")
		args = append(args, f.Rule)
	}

	query := `SELECT id, op_id, timestamp, user, action, rule, result, code, removed, duration_ns, error
		FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			evt      Event
			ts       int64
			duration int64
			errText  sql.NullString
		)
		if err := rows.Scan(&evt.ID, &evt.OpID, &ts, &evt.User, &evt.Action, &evt.Rule,
			&evt.Result, &evt.Code, &evt.Removed, &duration, &errText); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Timestamp = time.Unix(0, ts)
		evt.Duration = time.Duration(duration)
		if errText.Valid {
			evt.Error = errText.String
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit events: %w", err)
	}

	return events, nil
}

// Prune removes events older than the retention period.
func (s *Store) Prune() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.db.Exec("DELETE FROM audit_events WHERE timestamp < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}

	return result.RowsAffected()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New("audit store already closed")
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Count returns the total number of events in the store.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&count)
	return count, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
