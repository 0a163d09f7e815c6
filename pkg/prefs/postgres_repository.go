package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPreferenceRepository implements PreferenceRepository using
// PostgreSQL.
type PostgresPreferenceRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresPreferenceRepository creates a new PostgreSQL preference
// repository.
func NewPostgresPreferenceRepository(pool *pgxpool.Pool) *PostgresPreferenceRepository {
	return &PostgresPreferenceRepository{
		pool: pool,
	}
}

// SetUserPreference stores one preference value, replacing any previous value
// for the key.
func (r *PostgresPreferenceRepository) SetUserPreference(ctx context.Context, identityID uuid.UUID, key, value string) error {
	query := `
		INSERT INTO user_preferences (id, account_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, uuid.New(), identityID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}

// GetUserPreference returns the stored value for one key, or
// ErrPreferenceNotFound.
func (r *PostgresPreferenceRepository) GetUserPreference(ctx context.Context, identityID uuid.UUID, key string) (string, error) {
	query := `SELECT value FROM user_preferences WHERE account_id = $1 AND key = $2`

	var value string
	err := r.pool.QueryRow(ctx, query, identityID, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrPreferenceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get preference: %w", err)
	}
	return value, nil
}

// GetAllUserPreferences returns every stored preference for one user.
func (r *PostgresPreferenceRepository) GetAllUserPreferences(ctx context.Context, identityID uuid.UUID) (map[string]string, error) {
	query := `SELECT key, value FROM user_preferences WHERE account_id = $1`

	rows, err := r.pool.Query(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	preferences := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		preferences[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	return preferences, nil
}

// DeleteUserPreference removes one stored preference.
func (r *PostgresPreferenceRepository) DeleteUserPreference(ctx context.Context, identityID uuid.UUID, key string) error {
	query := `DELETE FROM user_preferences WHERE account_id = $1 AND key = $2`

	tag, err := r.pool.Exec(ctx, query, identityID, key)
	if err != nil {
		return fmt.Errorf("failed to delete preference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPreferenceNotFound
	}
	return nil
}
