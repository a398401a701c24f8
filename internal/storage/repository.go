package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"billingsync/internal/core"

	_ "modernc.org/sqlite"
)

// ImportSession is the state kept between preparing an import and the
// operator confirming it.
type ImportSession struct {
	ID          uuid.UUID
	Label       core.PeriodLabel
	Row         int
	Confirmed   bool
	SourceSheet string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// PeriodState is the persisted pipeline phase of a billing period.
type PeriodState struct {
	Label     core.PeriodLabel
	State     core.PipelineState
	Sheet     string
	UpdatedAt time.Time
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := MigrateSchema(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// WithClock replaces the time source; used by tests.
func (r *SQLiteRepository) WithClock(now func() time.Time) *SQLiteRepository {
	r.now = now
	return r
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateSession stores s, assigning an id and creation time. ExpiresAt must
// be set by the caller.
func (r *SQLiteRepository) CreateSession(ctx context.Context, s ImportSession) (*ImportSession, error) {
	if s.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("%w: session expiry is required", core.ErrValidation)
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = r.now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO import_sessions (id, label, row_number, confirmed, source_sheet, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID.String(), string(s.Label), s.Row, s.Confirmed, s.SourceSheet,
		s.CreatedAt.UnixMilli(), s.ExpiresAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.DebugContext(ctx, "Import session created",
		"session_id", s.ID, "label", s.Label, "row", s.Row, "expires_at", s.ExpiresAt)
	return &s, nil
}

// GetSession loads a live session. Unknown ids yield ErrNotFound; expired
// sessions are removed and yield ErrValidation.
func (r *SQLiteRepository) GetSession(ctx context.Context, id uuid.UUID) (*ImportSession, error) {
	var (
		s                  ImportSession
		rawID, label       string
		created, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, label, row_number, confirmed, source_sheet, created_at, expires_at
		FROM import_sessions WHERE id = ?`, id.String()).
		Scan(&rawID, &label, &s.Row, &s.Confirmed, &s.SourceSheet, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: import session %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	s.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("get session: bad id %q: %w", rawID, err)
	}
	s.Label = core.PeriodLabel(label)
	s.CreatedAt = time.UnixMilli(created)
	s.ExpiresAt = time.UnixMilli(expiresAt)

	if !r.now().Before(s.ExpiresAt) {
		if err := r.DeleteSession(ctx, id); err != nil {
			slog.WarnContext(ctx, "Failed to delete expired session", "session_id", id, "error", err)
		}
		return nil, fmt.Errorf("%w: import session %s expired at %s", core.ErrValidation, id, s.ExpiresAt.Format(time.RFC3339))
	}
	return &s, nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM import_sessions WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired removes expired sessions and locks.
func (r *SQLiteRepository) PurgeExpired(ctx context.Context) (int64, error) {
	now := r.now().UnixMilli()
	var total int64
	for _, q := range []string{
		`DELETE FROM import_sessions WHERE expires_at <= ?`,
		`DELETE FROM period_locks WHERE expires_at <= ?`,
	} {
		res, err := r.db.ExecContext(ctx, q, now)
		if err != nil {
			return total, fmt.Errorf("purge expired: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// GetState returns the persisted state of label, or StateNotStarted when
// nothing has been recorded.
func (r *SQLiteRepository) GetState(ctx context.Context, label core.PeriodLabel) (PeriodState, error) {
	var (
		state, sheet string
		updated      int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT state, sheet, updated_at FROM period_states WHERE label = ?`, string(label)).
		Scan(&state, &sheet, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return PeriodState{Label: label, State: core.StateNotStarted}, nil
	}
	if err != nil {
		return PeriodState{}, fmt.Errorf("get state: %w", err)
	}
	ps, err := core.ParsePipelineState(state)
	if err != nil {
		return PeriodState{}, err
	}
	return PeriodState{Label: label, State: ps, Sheet: sheet, UpdatedAt: time.UnixMilli(updated)}, nil
}

// SetState records the phase reached by label.
func (r *SQLiteRepository) SetState(ctx context.Context, label core.PeriodLabel, state core.PipelineState, sheet string) error {
	if !state.IsValid() {
		return fmt.Errorf("%w: unknown pipeline state %q", core.ErrValidation, state)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO period_states (label, state, sheet, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET state = excluded.state, sheet = excluded.sheet, updated_at = excluded.updated_at`,
		string(label), string(state), sheet, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

// ListStates returns every recorded period, most recently updated first.
func (r *SQLiteRepository) ListStates(ctx context.Context) ([]PeriodState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT label, state, sheet, updated_at FROM period_states ORDER BY updated_at DESC, label`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var out []PeriodState
	for rows.Next() {
		var (
			label, state, sheet string
			updated             int64
		)
		if err := rows.Scan(&label, &state, &sheet, &updated); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		ps, err := core.ParsePipelineState(state)
		if err != nil {
			return nil, err
		}
		out = append(out, PeriodState{Label: core.PeriodLabel(label), State: ps, Sheet: sheet, UpdatedAt: time.UnixMilli(updated)})
	}
	return out, rows.Err()
}

// AcquireLock takes the per-period lock for owner. A live lock held by
// someone else yields ErrLocked; an expired one is taken over.
func (r *SQLiteRepository) AcquireLock(ctx context.Context, label core.PeriodLabel, owner string, ttl time.Duration) error {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO period_locks (label, owner, acquired_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(label) DO UPDATE SET owner = excluded.owner, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at
		WHERE period_locks.expires_at <= ? OR period_locks.owner = excluded.owner`,
		string(label), owner, now.UnixMilli(), now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrLocked, label)
	}
	return nil
}

// ReleaseLock drops the lock if owner still holds it.
func (r *SQLiteRepository) ReleaseLock(ctx context.Context, label core.PeriodLabel, owner string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM period_locks WHERE label = ? AND owner = ?`, string(label), owner); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
