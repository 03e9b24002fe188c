package security

import (
	"context"
	"database/sql"
	"time"

	// MySQL is the rate-limit store's SQL dialect (SPEC_FULL's domain-stack
	// table: "MySQL (enrichment, ratelimit store)"); memory.SQLBackend also
	// offers it as one of its sqlite/postgres/mysql dialects.
	_ "github.com/go-sql-driver/mysql"

	"github.com/relaykit/kernel/kernelerr"
)

const createRateLimitSchemaSQL = `
CREATE TABLE IF NOT EXISTS rate_limit_usage (
    scope VARCHAR(32) NOT NULL,
    identifier VARCHAR(255) NOT NULL,
    window_name VARCHAR(16) NOT NULL,
    amount BIGINT NOT NULL DEFAULT 0,
    window_end TIMESTAMP NOT NULL,
    PRIMARY KEY (scope, identifier, window_name)
)`

// SQLRateLimitStore implements RateLimitStore over a MySQL table, following
// memory.SQLBackend's shape: a schema-init step run once at construction,
// then per write a read of the current window followed by one upsert of the
// new total, generalized from
// SQLBackend's single-row kv_store to this store's three-column composite
// key (scope, identifier, window).
type SQLRateLimitStore struct {
	db *sql.DB
}

// NewSQLRateLimitStore opens a MySQL-backed RateLimitStore against db,
// creating its table if it does not already exist.
func NewSQLRateLimitStore(db *sql.DB) (*SQLRateLimitStore, error) {
	s := &SQLRateLimitStore{db: db}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createRateLimitSchemaSQL); err != nil {
		return nil, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeBackendUnavailable, "security.ratelimit.sql", "NewSQLRateLimitStore", "failed to create rate_limit_usage table", err)
	}
	return s, nil
}

func (s *SQLRateLimitStore) GetUsage(ctx context.Context, scope Scope, identifier string, window TimeWindow) (int64, time.Time, error) {
	var amount int64
	var windowEnd time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT amount, window_end FROM rate_limit_usage WHERE scope = ? AND identifier = ? AND window_name = ?`,
		string(scope), identifier, string(window),
	).Scan(&amount, &windowEnd)
	now := time.Now()
	if err == sql.ErrNoRows {
		return 0, now.Add(window.Duration()), nil
	}
	if err != nil {
		return 0, time.Time{}, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "security.ratelimit.sql", "GetUsage", "query failed", err)
	}
	if windowEnd.Before(now) {
		return 0, now.Add(window.Duration()), nil
	}
	return amount, windowEnd, nil
}

func (s *SQLRateLimitStore) IncrementUsage(ctx context.Context, scope Scope, identifier string, window TimeWindow, amount int64) (int64, time.Time, error) {
	now := time.Now()
	current, windowEnd, err := s.GetUsage(ctx, scope, identifier, window)
	if err != nil {
		return 0, time.Time{}, err
	}
	if windowEnd.Before(now) || current == 0 {
		windowEnd = now.Add(window.Duration())
		current = 0
	}
	newAmount := current + amount

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_usage (scope, identifier, window_name, amount, window_end) VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE amount = ?, window_end = ?`,
		string(scope), identifier, string(window), newAmount, windowEnd,
		newAmount, windowEnd,
	)
	if err != nil {
		return 0, time.Time{}, kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "security.ratelimit.sql", "IncrementUsage", "upsert failed", err)
	}
	return newAmount, windowEnd, nil
}

func (s *SQLRateLimitStore) DeleteUsage(ctx context.Context, scope Scope, identifier string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_usage WHERE scope = ? AND identifier = ?`, string(scope), identifier)
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "security.ratelimit.sql", "DeleteUsage", "delete failed", err)
	}
	return nil
}

func (s *SQLRateLimitStore) DeleteExpired(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_usage WHERE window_end < ?`, before)
	if err != nil {
		return kernelerr.Wrap(kernelerr.KindMemory, kernelerr.CodeConnection, "security.ratelimit.sql", "DeleteExpired", "delete failed", err)
	}
	return nil
}

func (s *SQLRateLimitStore) Close() error { return s.db.Close() }

var _ RateLimitStore = (*SQLRateLimitStore)(nil)
var _ RateLimitStore = (*MemoryRateLimitStore)(nil)
