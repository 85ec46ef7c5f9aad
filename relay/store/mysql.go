package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store.
//
// It keeps correlation records in a relational database. Designed for:
//   - Production deployments with multiple concurrent invocations
//   - Deployments requiring audit trails that survive process restarts
//
// MySQLStore uses connection pooling. The conditional create in Register
// relies on the composite primary key, so "register once per identity" holds
// across processes.
//
// Schema:
//   - correlation_records: one row per statement identity
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a new MySQL-backed correlation store.
//
// The DSN (Data Source Name) format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Never hardcode credentials in source; read the DSN from the environment:
//
//	dsn := os.Getenv("MYSQL_DSN")
//	st, err := store.NewMySQLStore(dsn)
//
// The store creates required tables if they don't exist and configures
// connection pooling with sensible timeouts.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS correlation_records (
			execution_arn VARCHAR(512) NOT NULL,
			invocation_id VARCHAR(64) NOT NULL,
			sql_statement TEXT NOT NULL,
			task_token TEXT,
			expires_at BIGINT,
			outcome_details JSON,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (execution_arn, invocation_id),
			INDEX idx_records_expires (expires_at)
		) ENGINE=InnoDB
	`
	if _, err := m.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create correlation_records table: %w", err)
	}
	return nil
}

func (m *MySQLStore) guard() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Register creates a correlation record (implements Store).
//
// INSERT IGNORE reports zero affected rows on a duplicate key, which maps
// to ErrAlreadyRegistered without a read-before-write race.
func (m *MySQLStore) Register(ctx context.Context, rec Record) error {
	if err := m.guard(); err != nil {
		return err
	}

	detailsJSON, err := marshalDetails(rec.OutcomeDetails)
	if err != nil {
		return err
	}

	query := `
		INSERT IGNORE INTO correlation_records
			(execution_arn, invocation_id, sql_statement, task_token, expires_at, outcome_details)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := m.db.ExecContext(ctx, query,
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
func (m *MySQLStore) LatestInvocation(ctx context.Context, executionARN string) (string, error) {
	if err := m.guard(); err != nil {
		return "", err
	}

	query := `
		SELECT invocation_id
		FROM correlation_records
		WHERE execution_arn = ?
		ORDER BY CAST(invocation_id AS DECIMAL(32, 10)) DESC
		LIMIT 1
	`
	var invocationID string
	err := m.db.QueryRowContext(ctx, query, executionARN).Scan(&invocationID)
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
func (m *MySQLStore) TaskToken(ctx context.Context, executionARN, invocationID string) (string, error) {
	if err := m.guard(); err != nil {
		return "", err
	}

	query := `
		SELECT task_token
		FROM correlation_records
		WHERE execution_arn = ? AND invocation_id = ?
	`
	var token sql.NullString
	err := m.db.QueryRowContext(ctx, query, executionARN, invocationID).Scan(&token)
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
func (m *MySQLStore) Retire(ctx context.Context, executionARN, invocationID string, expiresAt int64, details map[string]interface{}) error {
	if err := m.guard(); err != nil {
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
	if _, err := m.db.ExecContext(ctx, query, expiresAt, detailsJSON, executionARN, invocationID); err != nil {
		return fmt.Errorf("failed to retire record: %w", err)
	}
	return nil
}

// DeleteExpired removes records whose expiry marker has elapsed
// (implements Store).
func (m *MySQLStore) DeleteExpired(ctx context.Context, now int64) (int, error) {
	if err := m.guard(); err != nil {
		return 0, err
	}

	query := `
		DELETE FROM correlation_records
		WHERE expires_at IS NOT NULL AND expires_at <= ?
	`
	res, err := m.db.ExecContext(ctx, query, now)
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
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive. Useful for health checks.
func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.guard(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}
