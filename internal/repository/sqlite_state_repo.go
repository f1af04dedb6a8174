package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStateRepo はSQLiteのclient_stateテーブルを使用したLocalStorage。
// CLIの既定ストレージ。
type SQLiteStateRepo struct {
	db *sql.DB
}

// NewSQLiteStateRepo はSQLiteStateRepoを生成する。
func NewSQLiteStateRepo(db *sql.DB) *SQLiteStateRepo {
	return &SQLiteStateRepo{db: db}
}

// Get はkeyの値を取得する。
func (r *SQLiteStateRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM client_state WHERE key = ?`,
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
func (r *SQLiteStateRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO client_state (key, value, updated_at)
		 VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set client state: %w", err)
	}
	return nil
}

// Remove はkeyを削除する。
func (r *SQLiteStateRepo) Remove(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove client state: %w", err)
	}
	return nil
}

// sqliteTimeLayout はclient_state.updated_atの書式。
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// PurgeBefore はprefixで始まりcutoffより前に更新された行を削除する。
func (r *SQLiteStateRepo) PurgeBefore(ctx context.Context, prefix string, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE key LIKE ? ESCAPE '\' AND updated_at < ?`,
		likePrefix(prefix), cutoff.UTC().Format(sqliteTimeLayout),
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

var (
	_ LocalStorage = (*SQLiteStateRepo)(nil)
	_ Purger       = (*SQLiteStateRepo)(nil)
)
