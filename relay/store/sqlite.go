package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps correlation records in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-process deployments requiring persistence across restarts
//
// SQLiteStore uses WAL mode for concurrent reads. The conditional create in
// Register relies on the table's composite primary key, which makes the
// "register once per identity" guarantee race-safe within the database.
//
// Schema:
//   - correlation_records: one row per statement identity
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a new SQLite-backed correlation store.
//
// The path parameter specifies the database file location:
//   - "./relay.db" - file in current directory
//   - ":memory:" - in-memory database (data lost on close)
//
// The store automatically creates the database file and schema, enables WAL
// mode, and configures a busy timeout.
//
// Example:
//
//	st, err := store.NewSQLiteStore("./relay.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS correlation_records (
			execution_arn TEXT NOT NULL,
			invocation_id TEXT NOT NULL,
			sql_statement TEXT NOT NULL,
			task_token TEXT,
			expires_at INTEGER,
			outcome_details TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (execution_arn, invocation_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create correlation_records table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_records_expires ON correlation_records(expires_at)"); err != nil {
		return fmt.Errorf("failed to create idx_records_expires: %w", err)
	}
	return nil
}

func (s *SQLiteStore) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Register creates a correlation record (implements Store).
//
// The insert does nothing on key conflict; zero affected rows therefore
// means a record already existed and the current attempt is rejected with
// ErrAlreadyRegistered, leaving the first record untouched.
func (s *SQLiteStore) Register(ctx context.Context, rec Record) error {
	if err := s.guard(); err != nil {
		return err
	}

	detailsJSON, err := marshalDetails(rec.OutcomeDetails)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO correlation_records
			(execution_arn, invocation_id, sql_statement, task_token, expires_at, outcome_details)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_arn, invocation_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		rec.ExecutionARN,
		rec.InvocationID,
		rec.SQLStatement,
		nullString(rec.TaskToken),
		nullInt(rec.ExpiresAt),
		detailsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to register record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyRegistered
	}
	return nil
}

// LatestInvocation returns the numerically greatest invocation ID for an
// execution ARN (implements Store).
//
// Invocation IDs are stored as text but ordered as real numbers; a plain
// ORDER BY on the text column would misorder different-length integers.
func (s *SQLiteStore) LatestInvocation(ctx context.Context, executionARN string) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}

	query := `
		SELECT invocation_id
		FROM correlation_records
		WHERE execution_arn = ?
		ORDER BY CAST(invocation_id AS REAL) DESC
		LIMIT 1
	`
	var invocationID string
	err := s.db.QueryRowContext(ctx, query, executionARN).Scan(&invocationID)
	if err == sql.ErrNoRows {
		return "", ErrNoPriorSubmission
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve latest invocation: %w", err)
	}
	return invocationID, nil
}

// TaskToken returns the resume handle for a statement identity
// (implements Store).
func (s *SQLiteStore) TaskToken(ctx context.Context, executionARN, invocationID string) (string, error) {
	if err := s.guard(); err != nil {
		return "", err
	}

	query := `
		SELECT task_token
		FROM correlation_records
		WHERE execution_arn = ? AND invocation_id = ?
	`
	var token sql.NullString
	err := s.db.QueryRowContext(ctx, query, executionARN, invocationID).Scan(&token)
	if err == sql.ErrNoRows {
		return "", ErrUntrackedStatement
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up task token: %w", err)
	}
	if !token.Valid || token.String == "" {
		return "", ErrUntrackedStatement
	}
	return token.String, nil
}

// Retire sets the expiry marker and outcome details (implements Store).
func (s *SQLiteStore) Retire(ctx context.Context, executionARN, invocationID string, expiresAt int64, details map[string]interface{}) error {
	if err := s.guard(); err != nil {
		return err
	}

	detailsJSON, err := marshalDetails(details)
	if err != nil {
		return err
	}

	query := `
		UPDATE correlation_records
		SET expires_at = ?, outcome_details = ?
		WHERE execution_arn = ? AND invocation_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, expiresAt, detailsJSON, executionARN, invocationID); err != nil {
		return fmt.Errorf("failed to retire record: %w", err)
	}
	return nil
}

// DeleteExpired removes records whose expiry marker has elapsed
// (implements Store).
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now int64) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	query := `
		DELETE FROM correlation_records
		WHERE expires_at IS NOT NULL AND expires_at <= ?
	`
	res, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return int(affected), nil
}

// Close closes the database connection. Calling Close multiple times is
// safe; subsequent calls are no-ops.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive. Useful for health checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.guard(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// marshalDetails normalizes and serializes an outcome payload for storage.
// Nil payloads map to SQL NULL.
func marshalDetails(details map[string]interface{}) (sql.NullString, error) {
	if details == nil {
		return sql.NullString{}, nil
	}
	normalized, err := NormalizeNumbers(details)
	if err != nil {
		return sql.NullString{}, err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal outcome details: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
