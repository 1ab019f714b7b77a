// Package sqlitestore provides a durable, SQLite-backed onboarding.Store.
//
// WAL mode is enabled on Open so readers never block the writer. The pool
// is limited to a single connection: SQLite performs best with one writer,
// and funnelling every Mutate through one connection inside a transaction
// serializes the read-transition-write sequence per instance, which is the
// concurrency discipline the engine requires.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shortlyhq/shortly-sagas/internal/onboarding"

	// Register the pure-Go SQLite driver. CGO-free builds keep the Docker
	// images small and the cross-compilation story simple.
	_ "modernc.org/sqlite"
)

// schema is applied once on Open. Instances are never deleted; terminal
// rows remain as the onboarding audit trail. The partial unique index is
// the duplicate-start guard: at most one non-terminal instance per email.
const schema = `
CREATE TABLE IF NOT EXISTS onboarding_instances (
    correlation_id    TEXT PRIMARY KEY,
    current_state     TEXT NOT NULL,
    username          TEXT NOT NULL,
    email             TEXT NOT NULL,
    auth_user_id      TEXT,
    confirmation_code TEXT NOT NULL,
    assigned_role     TEXT NOT NULL DEFAULT 'User',
    user_id           TEXT,
    created_at        TEXT NOT NULL,
    completed_at      TEXT,
    failure_reason    TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_onboarding_email_in_flight
    ON onboarding_instances(email)
    WHERE current_state NOT IN ('Completed', 'Failed');
`

// Store is the SQLite implementation of onboarding.Store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new instance. A violation of the in-flight email index
// maps to onboarding.ErrEmailInFlight.
func (s *Store) Create(ctx context.Context, inst *onboarding.Instance) error {
	const q = `
		INSERT INTO onboarding_instances
			(correlation_id, current_state, username, email, auth_user_id,
			 confirmation_code, assigned_role, user_id, created_at, completed_at, failure_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		inst.CorrelationID.String(),
		string(inst.CurrentState),
		inst.Username,
		inst.Email,
		nullableUUID(inst.AuthUserID),
		inst.ConfirmationCode,
		inst.AssignedRole,
		nullableUUID(inst.UserID),
		formatTime(inst.CreatedAt),
		nullableTime(inst.CompletedAt),
		inst.FailureReason,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return onboarding.ErrEmailInFlight
		}
		return fmt.Errorf("sqlitestore: create instance %s: %w", inst.CorrelationID, err)
	}
	return nil
}

// Get returns the instance for the correlation id.
func (s *Store) Get(ctx context.Context, correlationID uuid.UUID) (*onboarding.Instance, error) {
	return scanInstance(s.db.QueryRowContext(ctx, selectQuery, correlationID.String()))
}

// FindByEmail returns the most recently started instance for the email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*onboarding.Instance, error) {
	const q = selectColumns + `
	FROM   onboarding_instances
	WHERE  email = ?
	ORDER  BY created_at DESC, rowid DESC
	LIMIT  1`
	return scanInstance(s.db.QueryRowContext(ctx, q, email))
}

const selectColumns = `
	SELECT correlation_id, current_state, username, email, auth_user_id,
	       confirmation_code, assigned_role, user_id, created_at, completed_at, failure_reason`

const selectQuery = selectColumns + `
	FROM   onboarding_instances
	WHERE  correlation_id = ?`

// Mutate runs the read-transition-write sequence inside one transaction on
// the single writer connection, so concurrent events for the same instance
// are applied one at a time against the freshest row.
func (s *Store) Mutate(ctx context.Context, correlationID uuid.UUID, fn func(*onboarding.Instance) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inst, err := scanInstance(tx.QueryRowContext(ctx, selectQuery, correlationID.String()))
	if err != nil {
		return err
	}

	if err := fn(inst); err != nil {
		return err
	}

	const q = `
		UPDATE onboarding_instances
		SET    current_state = ?, auth_user_id = ?, assigned_role = ?,
		       user_id = ?, completed_at = ?, failure_reason = ?
		WHERE  correlation_id = ?`

	if _, err := tx.ExecContext(ctx, q,
		string(inst.CurrentState),
		nullableUUID(inst.AuthUserID),
		inst.AssignedRole,
		nullableUUID(inst.UserID),
		nullableTime(inst.CompletedAt),
		inst.FailureReason,
		correlationID.String(),
	); err != nil {
		return fmt.Errorf("sqlitestore: update instance %s: %w", correlationID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*onboarding.Instance, error) {
	var (
		inst               onboarding.Instance
		correlationID      string
		state              string
		authUserID, userID sql.NullString
		createdAt          string
		completedAt        sql.NullString
	)
	err := row.Scan(
		&correlationID,
		&state,
		&inst.Username,
		&inst.Email,
		&authUserID,
		&inst.ConfirmationCode,
		&inst.AssignedRole,
		&userID,
		&createdAt,
		&completedAt,
		&inst.FailureReason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, onboarding.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: scan instance: %w", err)
	}

	inst.CorrelationID, err = uuid.Parse(correlationID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parse correlation id %q: %w", correlationID, err)
	}
	inst.CurrentState = onboarding.State(state)
	if inst.AuthUserID, err = parseNullableUUID(authUserID); err != nil {
		return nil, err
	}
	if inst.UserID, err = parseNullableUUID(userID); err != nil {
		return nil, err
	}
	if inst.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		inst.CompletedAt = &t
	}
	return &inst, nil
}

// SQLite has no native datetime type; timestamps are stored as RFC3339
// TEXT. The layout keeps all nine fraction digits (RFC3339Nano trims
// trailing zeros) so the column sorts lexicographically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlitestore: parse time %q: %w", s, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseNullableUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: parse uuid %q: %w", s.String, err)
	}
	return &id, nil
}
