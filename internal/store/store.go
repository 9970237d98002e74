// Package store persists reviewed call records in SQLite (default) or
// PostgreSQL. Records are inserted whole and deleted whole; nothing is updated
// in place.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"reception-agent-go/internal/config"
	"reception-agent-go/internal/types"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Filter narrows List results. Query is matched case-insensitively as a
// substring of caller name, department, summary, or transcript.
type Filter struct {
	Query  string
	Limit  int
	Offset int
}

type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, cfg config.Database) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", types.ErrStoreUnavailable, d.name, err)
	}
	if err := d.configure(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}

	s := &Store{db: db, dialect: d, now: time.Now}
	if err := s.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStoreUnavailable, err)
	}
	return nil
}

// Insert writes rec as a single row and returns it with ID and CreatedAt set.
func (s *Store) Insert(ctx context.Context, rec types.CallRecord) (types.CallRecord, error) {
	if err := validate(rec); err != nil {
		return types.CallRecord{}, fmt.Errorf("insert call: %w", err)
	}
	rec.CreatedAt = s.now().UTC()

	row := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO calls (
            created_at, caller_name, phone_number, department,
            priority, summary, transcript, ai_response
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.CallerName,
		rec.PhoneNumber,
		rec.Department,
		string(rec.Priority),
		rec.Summary,
		rec.Transcript,
		rec.AIResponse,
	)
	if err := row.Scan(&rec.ID); err != nil {
		return types.CallRecord{}, fmt.Errorf("%w: insert call: %w", types.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// Get fetches one record by id.
func (s *Store) Get(ctx context.Context, id int64) (types.CallRecord, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+callColumns+` FROM calls WHERE id = ?`), id)
	rec, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.CallRecord{}, fmt.Errorf("call %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.CallRecord{}, fmt.Errorf("%w: get call: %w", types.ErrStoreUnavailable, err)
	}
	return rec, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]types.CallRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + callColumns + ` FROM calls`
	var args []any
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		lower := s.dialect.lower
		query += ` WHERE ` + lower + `(caller_name) LIKE ? ESCAPE '\'
            OR ` + lower + `(department) LIKE ? ESCAPE '\'
            OR ` + lower + `(summary) LIKE ? ESCAPE '\'
            OR ` + lower + `(transcript) LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern, pattern, pattern)
	}
	query += ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return s.query(ctx, "list calls", query, args...)
}

// Recent returns up to limit of the newest records, newest first. It backs
// the duplicate detector's recency window.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.CallRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.query(ctx, "recent calls", `SELECT `+callColumns+` FROM calls ORDER BY id DESC LIMIT ?`, limit)
}

// Delete removes a record entirely. Missing ids yield ErrNotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM calls WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("%w: delete call: %w", types.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete call: %w", types.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("call %d: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM calls`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count calls: %w", types.ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, op, query string, args ...any) ([]types.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrStoreUnavailable, op, err)
	}
	defer rows.Close()

	var out []types.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", types.ErrStoreUnavailable, op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrStoreUnavailable, op, err)
	}
	return out, nil
}

func validate(rec types.CallRecord) error {
	if !rec.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", rec.Priority)
	}
	for _, r := range rec.PhoneNumber {
		if r < '0' || r > '9' {
			return errors.New("phone number must be digits only")
		}
	}
	if strings.TrimSpace(rec.Summary) == "" {
		return errors.New("summary is required")
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
