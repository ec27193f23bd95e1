package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/observability"
)

// Entry is the outcome of one domain within a run.
type Entry struct {
	RunID      string                      `json:"run_id"`
	Group      string                      `json:"group"`
	Domain     string                      `json:"domain"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
	Rows       int                         `json:"rows"`
	File       string                      `json:"file,omitempty"`
	Uploaded   bool                        `json:"uploaded"`
	Error      string                      `json:"error,omitempty"`
	Tally      observability.TallySnapshot `json:"tally"`
}

// Log is the run log.
type Log interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Discard is a Log that keeps nothing.
type Discard struct{}

func (Discard) Append(context.Context, Entry) error          { return nil }
func (Discard) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Discard) Close() error                                 { return nil }

// SQLiteLog implements Log using SQLite.
type SQLiteLog struct {
	db *sql.DB
	mu sync.Mutex // single writer
}

// Open opens or creates the run log at dbPath.
func Open(dbPath string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("runlog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range AllSchemaSQL() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("runlog: failed to initialize schema: %w", err)
		}
	}
	return &SQLiteLog{db: db}, nil
}

// Append stores one domain outcome.
func (l *SQLiteLog) Append(ctx context.Context, e Entry) error {
	tally, err := encodeTally(e.Tally)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO domain_runs (
			run_id, run_group, domain, started_at, finished_at,
			row_count, file_name, uploaded, error, tally
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Group, e.Domain, e.StartedAt.UnixMilli(), e.FinishedAt.UnixMilli(),
		e.Rows, e.File, e.Uploaded, e.Error, tally)
	if err != nil {
		return fmt.Errorf("runlog: failed to append %s/%s: %w", e.RunID, e.Domain, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *SQLiteLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, run_group, domain, started_at, finished_at,
		       row_count, file_name, uploaded, error, tally
		FROM domain_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("runlog: failed to query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished int64
			tally             []byte
		)
		if err := rows.Scan(&e.RunID, &e.Group, &e.Domain, &started, &finished,
			&e.Rows, &e.File, &e.Uploaded, &e.Error, &tally); err != nil {
			return nil, fmt.Errorf("runlog: failed to scan run: %w", err)
		}
		e.StartedAt = time.UnixMilli(started).UTC()
		e.FinishedAt = time.UnixMilli(finished).UTC()
		if e.Tally, err = decodeTally(tally); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func encodeTally(s observability.TallySnapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("runlog: failed to encode tally: %w", err)
	}
	return snappy.Encode(nil, data), nil
}

func decodeTally(blob []byte) (observability.TallySnapshot, error) {
	var s observability.TallySnapshot
	if len(blob) == 0 {
		return s, nil
	}
	data, err := snappy.Decode(nil, blob)
	if err != nil {
		return s, fmt.Errorf("runlog: corrupt tally: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("runlog: failed to decode tally: %w", err)
	}
	return s, nil
}
