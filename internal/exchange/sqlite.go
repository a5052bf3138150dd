package exchange

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps exchange records in the broker's own database. Expiry is
// an expires_at column filtered on read; expired rows are purged
// opportunistically on writes.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Put(ctx context.Context, id string, value json.RawMessage, ttl time.Duration) error {
	if id == "" {
		return fmt.Errorf("exchange id is empty")
	}
	if !json.Valid(value) {
		return fmt.Errorf("exchange value is not valid JSON")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl).Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, `
INSERT INTO exchange_records(id, value, expires_at)
VALUES(?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  value = excluded.value,
  expires_at = excluded.expires_at;
`, id, string(value), expiresAt)
	if err != nil {
		return fmt.Errorf("put exchange record: %w", err)
	}

	// Best-effort cleanup of anything already expired.
	_, _ = s.db.ExecContext(ctx, `DELETE FROM exchange_records WHERE expires_at <= ?;`,
		now.Format(time.RFC3339Nano))
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, fmt.Errorf("exchange id is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `
SELECT value FROM exchange_records
WHERE id = ? AND expires_at > ?;
`, id, s.now().UTC().Format(time.RFC3339Nano)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exchange record: %w", err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored exchange value is invalid JSON for id=%q", id)
	}
	return json.RawMessage(raw), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("exchange id is empty")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchange_records WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete exchange record: %w", err)
	}
	return nil
}
