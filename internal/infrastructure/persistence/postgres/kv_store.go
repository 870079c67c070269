package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/web3-hub/learning-hub/internal/domain/shared"
)

// KVStore implements shared.KVStore on the kv_records table.
type KVStore struct {
	conn *Connection
}

// NewKVStore wraps conn. Run Migrator.Migrate first.
func NewKVStore(conn *Connection) *KVStore {
	return &KVStore{conn: conn}
}

func (s *KVStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.conn.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.conn.config.QueryTimeout)
}

// Get returns the raw JSON stored under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var value []byte
	err := s.conn.QueryRow(ctx, `SELECT value::text FROM kv_records WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrRecordNotFound
		}
		return nil, fmt.Errorf("postgres: get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts value under key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO kv_records (key, value, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}
	return nil
}

// Update runs fn in one transaction. A transaction-scoped advisory lock on
// the key serialises writers even while the row does not exist yet; FOR
// UPDATE keeps plain Set callers out until commit.
func (s *KVStore) Update(ctx context.Context, key string, fn shared.UpdateFunc) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("postgres: lock %s: %w", key, err)
		}

		var current []byte
		found := true
		err := tx.QueryRow(ctx, `SELECT value::text FROM kv_records WHERE key = $1 FOR UPDATE`, key).Scan(&current)
		if IsNoRows(err) {
			found = false
		} else if err != nil {
			return fmt.Errorf("postgres: read %s for update: %w", key, err)
		}

		next, err := fn(current, found)
		if err != nil || next == nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO kv_records (key, value, updated_at)
			VALUES ($1, $2::jsonb, NOW())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			key, string(next)); err != nil {
			return fmt.Errorf("postgres: update %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes key. A missing key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.conn.Exec(ctx, `DELETE FROM kv_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: delete %s: %w", key, err)
	}
	return nil
}

// DeleteProfile removes every record of profile.
func (s *KVStore) DeleteProfile(ctx context.Context, profile shared.ProfileID) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.conn.Exec(ctx, `DELETE FROM kv_records WHERE split_part(key, ':', 1) = $1`, profile.String())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete profile %s: %w", profile, err)
	}
	return tag.RowsAffected(), nil
}
