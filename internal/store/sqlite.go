// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides actor/code/session persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS actors (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			verified INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_actors_kind_email
			ON actors(kind, email);

		CREATE TABLE IF NOT EXISTS codes (
			code TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			purpose TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY (actor_id) REFERENCES actors(id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_codes_actor_purpose
			ON codes(actor_id, purpose);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY (actor_id) REFERENCES actors(id)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_actor_id
			ON sessions(actor_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}

	return nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateActor persists a new actor.
func (s *SQLiteStore) CreateActor(ctx context.Context, actor *Actor) error {
	now := time.Now().UTC()
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = now
	}
	if actor.UpdatedAt.IsZero() {
		actor.UpdatedAt = now
	}

	query := `
		INSERT INTO actors (id, kind, email, password_hash, name, verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		actor.ID,
		string(actor.Kind),
		actor.Email,
		actor.PasswordHash,
		actor.Name,
		boolToInt(actor.Verified),
		actor.CreatedAt.Format(time.RFC3339),
		actor.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateActor
		}
		return fmt.Errorf("inserting actor: %w", err)
	}

	s.logger.Info("created actor", "id", actor.ID, "kind", actor.Kind, "email", actor.Email)
	return nil
}

// FindActorBy looks up an actor of the given kind by a named field.
func (s *SQLiteStore) FindActorBy(ctx context.Context, kind ActorKind, field, value string) (*Actor, error) {
	var column string
	switch field {
	case "id":
		column = "id"
	case "email":
		column = "email"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	query := fmt.Sprintf(`
		SELECT id, kind, email, password_hash, name, verified, created_at, updated_at
		FROM actors
		WHERE kind = ? AND %s = ?
	`, column)

	var actor Actor
	var kindStr string
	var verified int
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, query, string(kind), value).Scan(
		&actor.ID,
		&kindStr,
		&actor.Email,
		&actor.PasswordHash,
		&actor.Name,
		&verified,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying actor: %w", err)
	}

	actor.Kind = ActorKind(kindStr)
	actor.Verified = verified != 0
	actor.CreatedAt = parseStoredTime(createdAt, "actors.created_at", actor.ID)
	actor.UpdatedAt = parseStoredTime(updatedAt, "actors.updated_at", actor.ID)

	return &actor, nil
}

// UpdateActorCredential replaces the actor's password hash.
func (s *SQLiteStore) UpdateActorCredential(ctx context.Context, actorID, passwordHash string) (bool, error) {
	query := `
		UPDATE actors
		SET password_hash = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, passwordHash, time.Now().UTC().Format(time.RFC3339), actorID)
	if err != nil {
		return false, fmt.Errorf("updating actor credential: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}

	if affected > 0 {
		s.logger.Info("updated actor credential", "actor_id", actorID)
	}
	return affected > 0, nil
}

// SetActorVerified marks the actor as verified.
func (s *SQLiteStore) SetActorVerified(ctx context.Context, actorID string) (bool, error) {
	query := `
		UPDATE actors
		SET verified = 1, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), actorID)
	if err != nil {
		return false, fmt.Errorf("updating actor verified flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}

	return affected > 0, nil
}

// UpdateActorProfile updates the actor's name and/or email.
func (s *SQLiteStore) UpdateActorProfile(ctx context.Context, actorID, name, email string) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}
	if name != "" {
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if email != "" {
		sets = append(sets, "email = ?")
		args = append(args, email)
	}
	args = append(args, actorID)

	query := fmt.Sprintf(`UPDATE actors SET %s WHERE id = ?`, strings.Join(sets, ", "))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return false, ErrDuplicateActor
		}
		return false, fmt.Errorf("updating actor profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}

	return affected > 0, nil
}

// IssueCode creates a new live code for (actorID, purpose), superseding any
// prior live code for that pair. The delete and insert run in one transaction
// so concurrent issuance for the same actor never leaves two live codes.
func (s *SQLiteStore) IssueCode(ctx context.Context, actorID string, purpose CodePurpose, ttl time.Duration) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM codes WHERE actor_id = ? AND purpose = ?`,
		actorID, string(purpose),
	); err != nil {
		return "", fmt.Errorf("superseding prior code: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO codes (code, actor_id, purpose, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		code, actorID, string(purpose),
		now.Format(time.RFC3339), expiresAt.Format(time.RFC3339),
	); err != nil {
		return "", fmt.Errorf("inserting code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing code issuance: %w", err)
	}

	s.logger.Debug("issued code", "actor_id", actorID, "purpose", purpose, "expires_at", expiresAt)
	return code, nil
}

// FindCode retrieves a live code. Expired codes are treated as absent.
func (s *SQLiteStore) FindCode(ctx context.Context, code string, purpose CodePurpose) (*Code, error) {
	query := `
		SELECT code, actor_id, purpose, created_at, expires_at
		FROM codes
		WHERE code = ? AND purpose = ?
	`

	var c Code
	var purposeStr string
	var createdAt, expiresAt string

	err := s.db.QueryRowContext(ctx, query, code, string(purpose)).Scan(
		&c.Code,
		&c.ActorID,
		&purposeStr,
		&createdAt,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying code: %w", err)
	}

	c.Purpose = CodePurpose(purposeStr)
	c.CreatedAt = parseStoredTime(createdAt, "codes.created_at", c.Code)
	c.ExpiresAt = parseStoredTime(expiresAt, "codes.expires_at", c.Code)

	if c.Expired(time.Now().UTC()) {
		// Lazy cleanup; an expired code is indistinguishable from a missing one.
		_, _ = s.db.ExecContext(ctx, `DELETE FROM codes WHERE code = ?`, code)
		return nil, ErrNotFound
	}

	return &c, nil
}

// DeleteCode removes a code. Returns true iff a record existed and was removed.
func (s *SQLiteStore) DeleteCode(ctx context.Context, code string, purpose CodePurpose) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM codes WHERE code = ? AND purpose = ?`,
		code, string(purpose),
	)
	if err != nil {
		return false, fmt.Errorf("deleting code: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}

	return affected > 0, nil
}

// CreateSession persists a refresh session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sessions (id, actor_id, kind, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.ActorID,
		string(session.Kind),
		session.CreatedAt.Format(time.RFC3339),
		session.ExpiresAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, actor_id, kind, created_at, expires_at
		FROM sessions
		WHERE id = ?
	`

	var session Session
	var kindStr string
	var createdAt, expiresAt string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.ActorID,
		&kindStr,
		&createdAt,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session.Kind = ActorKind(kindStr)
	session.CreatedAt = parseStoredTime(createdAt, "sessions.created_at", session.ID)
	session.ExpiresAt = parseStoredTime(expiresAt, "sessions.expires_at", session.ID)

	return &session, nil
}

// DeleteSession removes a session. Returns true iff it existed.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}

	return affected > 0, nil
}

// DeleteExpiredSessions removes all sessions past their expiry.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("deleting expired sessions: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		s.logger.Debug("deleted expired sessions", "count", affected)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// parseStoredTime parses an RFC3339 timestamp column, logging and returning the
// zero time on malformed data rather than failing the read.
func parseStoredTime(value, column, id string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		slog.Warn("failed to parse stored timestamp", "column", column, "id", id, "error", err)
		return time.Time{}
	}
	return parsed
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
