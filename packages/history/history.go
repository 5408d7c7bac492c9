// Package history records finished requests in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/http"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound indicates no entry matches the session and reference id
var ErrNotFound = errors.New("history entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS responses (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id         TEXT    NOT NULL,
	reference_id       INTEGER NOT NULL,
	recorded_at        INTEGER NOT NULL,
	method             TEXT    NOT NULL,
	endpoint           TEXT    NOT NULL,
	security           TEXT    NOT NULL DEFAULT '',
	state              TEXT    NOT NULL,
	status_line        TEXT    NOT NULL DEFAULT '',
	status_code        INTEGER NOT NULL DEFAULT 0,
	headers            TEXT    NOT NULL DEFAULT '',
	body               TEXT    NOT NULL DEFAULT '',
	elapsed_ms         INTEGER NOT NULL DEFAULT 0,
	needed_client_auth INTEGER NOT NULL DEFAULT 0,
	error              TEXT    NOT NULL DEFAULT '',
	audit              TEXT    NOT NULL DEFAULT '',
	UNIQUE (session_id, reference_id)
);
CREATE INDEX IF NOT EXISTS responses_recorded_at ON responses (recorded_at);
`

// Entry is one recorded request and its outcome
type Entry struct {
	SessionID        string
	ReferenceID      int64
	RecordedAt       time.Time
	Method           string
	Endpoint         string
	Security         string
	State            string
	StatusLine       string
	StatusCode       int
	Headers          string
	Body             string
	ElapsedMillis    int64
	NeededClientAuth bool
	Error            string
	Audit            []string
}

// Store is the history database
type Store struct {
	db           *sql.DB
	path         string
	queryTimeout time.Duration
}

// Open opens or creates the database at path. Both a plain path and a
// sqlite:// or sqlite: prefixed one are accepted.
func Open(path string) (*Store, error) {
	path = parsePath(path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{
		db:           db,
		path:         path,
		queryTimeout: 30 * time.Second,
	}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores a finished request. Recording the same session and
// reference id twice replaces the earlier entry.
func (s *Store) Record(ctx context.Context, sessionID string, req http.Request, resp *http.Response) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO responses (
			session_id, reference_id, recorded_at, method, endpoint, security, state,
			status_line, status_code, headers, body, elapsed_ms, needed_client_auth, error, audit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		resp.ReferenceID,
		time.Now().UnixMilli(),
		strings.ToUpper(req.Method),
		req.Endpoint,
		req.Security,
		resp.State.String(),
		resp.StatusLine,
		resp.StatusCode,
		resp.Headers,
		resp.Body,
		resp.ElapsedMillis(),
		resp.NeededClientAuth,
		resp.ErrString(),
		strings.Join(resp.Audit, "\n"),
	)
	if err != nil {
		return fmt.Errorf("recording request %d: %w", resp.ReferenceID, err)
	}
	return nil
}

const selectColumns = `
	session_id, reference_id, recorded_at, method, endpoint, security, state,
	status_line, status_code, headers, body, elapsed_ms, needed_client_auth, error, audit`

// List returns the most recent entries first. A non-positive limit returns
// everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := `SELECT ` + selectColumns + ` FROM responses ORDER BY recorded_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Get returns one entry. A sessionID prefix is enough when it is
// unambiguous.
func (s *Store) Get(ctx context.Context, sessionID string, referenceID int64) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM responses WHERE session_id LIKE ? ESCAPE '\' AND reference_id = ? ORDER BY id DESC LIMIT 1`,
		escapeLike(sessionID)+"%", referenceID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s ref %d", ErrNotFound, sessionID, referenceID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Prune deletes entries recorded before cutoff and reports how many went
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE recorded_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var recordedAt int64
	var audit string

	err := row.Scan(
		&e.SessionID, &e.ReferenceID, &recordedAt, &e.Method, &e.Endpoint, &e.Security, &e.State,
		&e.StatusLine, &e.StatusCode, &e.Headers, &e.Body, &e.ElapsedMillis, &e.NeededClientAuth, &e.Error, &audit,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan row: %w", err)
	}

	e.RecordedAt = time.UnixMilli(recordedAt)
	if audit != "" {
		e.Audit = strings.Split(audit, "\n")
	}
	return e, nil
}

// parsePath strips the sqlite:// and sqlite: prefixes
func parsePath(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "sqlite://") {
		return strings.TrimPrefix(path, "sqlite://")
	}
	if strings.HasPrefix(path, "sqlite:") {
		return strings.TrimPrefix(path, "sqlite:")
	}
	return path
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
