package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStateRepo はPostgreSQLのclient_stateテーブルを使用したLocalStorage。
type PostgresStateRepo struct {
	db *sql.DB
}

// NewPostgresStateRepo はPostgresStateRepoを生成する。
func NewPostgresStateRepo(db *sql.DB) *PostgresStateRepo {
	return &PostgresStateRepo{db: db}
}

// Get はkeyの値を取得する。存在しない場合はfalseを返す。
func (r *PostgresStateRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE key = $1`,
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get client state: %w", err)
	}
	return value, true, nil
}

// Set はkeyに値をUPSERTする。
func (r *PostgresStateRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_state (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set client state: %w", err)
	}
	return nil
}

// Remove はkeyを削除する。
func (r *PostgresStateRepo) Remove(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to remove client state: %w", err)
	}
	return nil
}

// PurgeBefore はprefixで始まりcutoffより前に更新された行を削除する。
func (r *PostgresStateRepo) PurgeBefore(ctx context.Context, prefix string, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE key LIKE $1 ESCAPE '\' AND updated_at < $2`,
		likePrefix(prefix), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge client state: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged client state: %w", err)
	}
	return n, nil
}

// compile-time interface check
var (
	_ LocalStorage = (*PostgresStateRepo)(nil)
	_ Purger       = (*PostgresStateRepo)(nil)
)
