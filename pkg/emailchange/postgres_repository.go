package emailchange

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL pending email change
// repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pool: pool,
	}
}

// Upsert stores a pending change, replacing any outstanding request for the
// same identity.
func (r *PostgresRepository) Upsert(ctx context.Context, change PendingEmailChange) error {
	query := `
		INSERT INTO pending_email_changes (id, account_id, new_email, confirmation_key, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE SET
			id = EXCLUDED.id,
			new_email = EXCLUDED.new_email,
			confirmation_key = EXCLUDED.confirmation_key,
			created_at = EXCLUDED.created_at,
			confirmed_at = NULL
	`

	_, err := r.pool.Exec(ctx, query, change.ID, change.IdentityID, change.NewEmail, change.ConfirmationKey, change.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert pending email change: %w", err)
	}
	return nil
}

// GetByConfirmationKey looks up a pending change by its confirmation key.
func (r *PostgresRepository) GetByConfirmationKey(ctx context.Context, key string) (PendingEmailChange, error) {
	query := `
		SELECT id, account_id, new_email, confirmation_key, created_at, confirmed_at
		FROM pending_email_changes
		WHERE confirmation_key = $1
	`

	var change PendingEmailChange
	var confirmedAt sql.NullTime
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&change.ID,
		&change.IdentityID,
		&change.NewEmail,
		&change.ConfirmationKey,
		&change.CreatedAt,
		&confirmedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingEmailChange{}, ErrChangeRequestNotFound
	}
	if err != nil {
		return PendingEmailChange{}, fmt.Errorf("failed to get pending email change: %w", err)
	}
	if confirmedAt.Valid {
		change.ConfirmedAt = &confirmedAt.Time
	}
	return change, nil
}

// MarkConfirmed marks a pending change as confirmed.
func (r *PostgresRepository) MarkConfirmed(ctx context.Context, changeID uuid.UUID) error {
	query := `UPDATE pending_email_changes SET confirmed_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, changeID)
	if err != nil {
		return fmt.Errorf("failed to mark email change confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChangeRequestNotFound
	}
	return nil
}
