package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository stores configuration blobs in the user_configs table.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Load(ctx context.Context, userID string) ([]byte, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT blob FROM user_configs WHERE user_id = ?`, userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	return blob, nil
}

func (r *Repository) Save(ctx context.Context, userID string, blob []byte) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_configs (user_id, version, blob, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			version = excluded.version,
			blob = excluded.blob,
			updated_at = excluded.updated_at`,
		userID, Version, blob)
	if err != nil {
		return fmt.Errorf("failed to upsert config: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_configs WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	return nil
}

// Users lists every user with a stored configuration.
func (r *Repository) Users(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM user_configs ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
