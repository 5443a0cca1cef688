// Package history is the local audit trail of screening decisions. Every
// hook and check verdict is recorded in a SQLite database so an operator
// can answer "what got blocked yesterday, and by which rule" without
// scraping agent transcripts. Recording is best-effort throughout: a
// storage failure is logged and the verdict stands.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/apollo-com-ph/apollo-claude/internal/fileutil"
	"github.com/apollo-com-ph/apollo-claude/internal/logger"
)

var log = logger.New("history")

// Store handles SQLite database operations for the decision log.
type Store struct {
	conn          *sql.DB
	retentionDays int
}

// Entry is one recorded decision.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Tool      string    `json:"tool"`
	Command   string    `json:"command"`
	Verdict   string    `json:"verdict"`
	Reason    string    `json:"reason,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Source    string    `json:"source,omitempty"`
	Segment   string    `json:"segment,omitempty"`
}

// ListOptions narrow a List call.
type ListOptions struct {
	// Limit caps the number of rows returned, newest first. Zero means
	// the default of 20.
	Limit int
	// OnlyDenied restricts the result to blocked commands.
	OnlyDenied bool
	// SessionID restricts the result to one agent session.
	SessionID string
}

// Stats summarizes the stored decisions.
type Stats struct {
	Total  int64 `json:"total"`
	Denied int64 `json:"denied"`
}

// Open opens (creating if needed) the decision database at dbPath.
// Entries older than retentionDays are pruned on every write; zero keeps
// everything.
func Open(dbPath string, retentionDays int) (*Store, error) {
	if err := fileutil.SecureMkdirAll(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")

	dsn := "file:" + dbPath + "?" + params.Encode()

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one writer at a time. Limiting to 1 connection
	// serializes all DB access at the Go level, preventing SQLITE_BUSY errors.
	conn.SetMaxOpenConns(1)

	s := &Store{
		conn:          conn,
		retentionDays: retentionDays,
	}

	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	_, err := s.conn.ExecContext(context.Background(), schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	session_id TEXT,
	tool_name TEXT NOT NULL,
	command TEXT NOT NULL,
	verdict TEXT NOT NULL,
	reason TEXT,
	rule TEXT,
	source TEXT,
	segment TEXT
);
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_verdict ON decisions(verdict);
CREATE INDEX IF NOT EXISTS idx_decisions_session_id ON decisions(session_id);
`

// Record inserts one decision and prunes entries past retention.
func (s *Store) Record(ctx context.Context, e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO decisions (timestamp, session_id, tool_name, command, verdict, reason, rule, source, segment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, e.SessionID, e.Tool, e.Command, e.Verdict, e.Reason, e.Rule, e.Source, e.Segment,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}

	s.prune(ctx)
	return nil
}

// prune drops entries older than the retention window. Failures only log;
// an oversized history must not fail the write that triggered the prune.
func (s *Store) prune(ctx context.Context) {
	if s.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	res, err := s.conn.ExecContext(ctx, `DELETE FROM decisions WHERE timestamp < ?`, cutoff)
	if err != nil {
		log.Warn("History prune failed: %v", err)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		log.Debug("Pruned %d history entries older than %d days", n, s.retentionDays)
	}
}

// List returns recorded decisions, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, timestamp, session_id, tool_name, command, verdict, reason, rule, source, segment
		FROM decisions`
	var where []string
	var args []any
	if opts.OnlyDenied {
		where = append(where, "verdict = 'deny'")
	}
	if opts.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, opts.SessionID)
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var sessionID, reason, rule, source, segment sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &sessionID, &e.Tool, &e.Command,
			&e.Verdict, &reason, &rule, &source, &segment); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		e.SessionID = sessionID.String
		e.Reason = reason.String
		e.Rule = rule.String
		e.Source = source.String
		e.Segment = segment.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountStats returns totals for the history summary line.
func (s *Store) CountStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN verdict = 'deny' THEN 1 ELSE 0 END), 0) FROM decisions`,
	).Scan(&st.Total, &st.Denied)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count decisions: %w", err)
	}
	return st, nil
}
