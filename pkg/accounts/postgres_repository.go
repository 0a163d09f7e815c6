package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const pgUniqueViolation = "23505"

// PostgresAccountRepository implements AccountRepository using PostgreSQL.
// Username and email uniqueness rides on the table constraints; constraint
// violations surface as ErrUserAlreadyExists.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAccountRepository creates a new PostgreSQL account repository.
func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{
		pool: pool,
	}
}

const identityColumns = `id, username, email, password_hash, is_active, is_staff, date_joined, deleted_at`

func scanIdentity(row pgx.Row) (Identity, error) {
	var identity Identity
	var deletedAt sql.NullTime
	err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.Email,
		&identity.PasswordHash,
		&identity.Active,
		&identity.IsStaff,
		&identity.DateJoined,
		&deletedAt,
	)
	if err != nil {
		return Identity{}, err
	}
	if deletedAt.Valid {
		identity.DeletedAt = &deletedAt.Time
	}
	return identity, nil
}

// GetIdentityByID gets an identity by ID.
func (r *PostgresAccountRepository) GetIdentityByID(ctx context.Context, identityID uuid.UUID) (Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM accounts WHERE id = $1 AND deleted_at IS NULL`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, identityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrUserNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to get account: %w", err)
	}
	return identity, nil
}

// GetIdentityByUsername gets an identity by username.
func (r *PostgresAccountRepository) GetIdentityByUsername(ctx context.Context, username string) (Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM accounts WHERE username = $1 AND deleted_at IS NULL`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrUserNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to get account by username: %w", err)
	}
	return identity, nil
}

// GetIdentityByEmail gets an identity by email.
func (r *PostgresAccountRepository) GetIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM accounts WHERE email = $1 AND deleted_at IS NULL`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrUserNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("failed to get account by email: %w", err)
	}
	return identity, nil
}

// FindIdentitiesByUsernames returns the identities whose usernames appear in
// the input, in input order. Unknown usernames are skipped.
func (r *PostgresAccountRepository) FindIdentitiesByUsernames(ctx context.Context, usernames []string) ([]Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM accounts WHERE username = ANY($1) AND deleted_at IS NULL`

	rows, err := r.pool.Query(ctx, query, usernames)
	if err != nil {
		return nil, fmt.Errorf("failed to find accounts: %w", err)
	}
	defer rows.Close()

	byUsername := make(map[string]Identity)
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		byUsername[identity.Username] = identity
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}

	var result []Identity
	for _, username := range usernames {
		if identity, ok := byUsername[username]; ok {
			result = append(result, identity)
		}
	}
	return result, nil
}

// UsernameExists reports whether any account holds the username.
func (r *PostgresAccountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check username existence: %w", err)
	}
	return exists, nil
}

// EmailExists reports whether any account holds the email.
func (r *PostgresAccountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return exists, nil
}

// SaveIdentity updates an existing identity. The username column is left
// untouched; a unique violation on email maps to ErrUserAlreadyExists.
func (r *PostgresAccountRepository) SaveIdentity(ctx context.Context, identity Identity) error {
	query := `
		UPDATE accounts
		SET email = $2, password_hash = $3, is_active = $4, is_staff = $5
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := r.pool.Exec(ctx, query,
		identity.ID,
		identity.Email,
		identity.PasswordHash,
		identity.Active,
		identity.IsStaff,
	)
	if isUniqueViolation(err) {
		return ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetIdentityActive flips the active flag on an identity.
func (r *PostgresAccountRepository) SetIdentityActive(ctx context.Context, identityID uuid.UUID, active bool) error {
	query := `UPDATE accounts SET is_active = $2 WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, identityID, active)
	if err != nil {
		return fmt.Errorf("failed to set account active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetOrCreateProfile returns the profile paired with an identity, creating an
// empty one if absent.
func (r *PostgresAccountRepository) GetOrCreateProfile(ctx context.Context, identityID uuid.UUID) (Profile, error) {
	query := `
		INSERT INTO profiles (id, account_id, name, bio, language_proficiencies, meta)
		VALUES ($1, $2, '', '', '{}', '{}')
		ON CONFLICT (account_id) DO UPDATE SET account_id = EXCLUDED.account_id
		RETURNING id, account_id, name, bio, language_proficiencies, meta
	`

	var profile Profile
	err := r.pool.QueryRow(ctx, query, uuid.New(), identityID).Scan(
		&profile.ID,
		&profile.IdentityID,
		&profile.Name,
		&profile.Bio,
		&profile.LanguageProficiencies,
		&profile.Meta,
	)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to get or create profile: %w", err)
	}
	return profile, nil
}

// SaveProfile updates a profile. Metadata is stored as JSONB.
func (r *PostgresAccountRepository) SaveProfile(ctx context.Context, profile Profile) error {
	query := `
		UPDATE profiles
		SET name = $2, bio = $3, language_proficiencies = $4, meta = $5
		WHERE account_id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		profile.IdentityID,
		profile.Name,
		profile.Bio,
		profile.LanguageProficiencies,
		profile.Meta,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateAccount creates identity, registration and profile in one
// transaction. A unique violation on username or email rolls everything back
// and maps to ErrUserAlreadyExists.
func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Identity, Registration, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Identity{}, Registration{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	identity := Identity{
		ID:           uuid.New(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		Active:       false,
		DateJoined:   now,
	}
	registration := Registration{
		ID:            uuid.New(),
		IdentityID:    identity.ID,
		ActivationKey: params.ActivationKey,
		CreatedAt:     now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, username, email, password_hash, is_active, is_staff, date_joined)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, identity.ID, identity.Username, identity.Email, identity.PasswordHash, identity.Active, identity.IsStaff, identity.DateJoined)
	if isUniqueViolation(err) {
		return Identity{}, Registration{}, ErrUserAlreadyExists
	}
	if err != nil {
		return Identity{}, Registration{}, fmt.Errorf("failed to create account: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO registrations (id, account_id, activation_key, created_at)
		VALUES ($1, $2, $3, $4)
	`, registration.ID, registration.IdentityID, registration.ActivationKey, registration.CreatedAt)
	if err != nil {
		return Identity{}, Registration{}, fmt.Errorf("failed to create registration: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (id, account_id, name, bio, language_proficiencies, meta)
		VALUES ($1, $2, '', '', '{}', '{}')
	`, uuid.New(), identity.ID)
	if err != nil {
		return Identity{}, Registration{}, fmt.Errorf("failed to create profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Identity{}, Registration{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return identity, registration, nil
}

// GetRegistrationByKey looks up a registration by its activation key.
func (r *PostgresAccountRepository) GetRegistrationByKey(ctx context.Context, activationKey string) (Registration, error) {
	query := `
		SELECT id, account_id, activation_key, created_at, consumed_at
		FROM registrations
		WHERE activation_key = $1
	`

	var registration Registration
	var consumedAt sql.NullTime
	err := r.pool.QueryRow(ctx, query, activationKey).Scan(
		&registration.ID,
		&registration.IdentityID,
		&registration.ActivationKey,
		&registration.CreatedAt,
		&consumedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Registration{}, ErrRegistrationNotFound
	}
	if err != nil {
		return Registration{}, fmt.Errorf("failed to get registration: %w", err)
	}
	if consumedAt.Valid {
		registration.ConsumedAt = &consumedAt.Time
	}
	return registration, nil
}

// MarkRegistrationConsumed marks a registration token as spent.
func (r *PostgresAccountRepository) MarkRegistrationConsumed(ctx context.Context, registrationID uuid.UUID) error {
	query := `UPDATE registrations SET consumed_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, registrationID)
	if err != nil {
		return fmt.Errorf("failed to mark registration consumed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

// CreatePasswordReset stores a new password reset token.
func (r *PostgresAccountRepository) CreatePasswordReset(ctx context.Context, reset PasswordReset) error {
	query := `
		INSERT INTO password_resets (id, account_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query, reset.ID, reset.IdentityID, reset.Token, reset.CreatedAt, reset.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}
	return nil
}

// GetPasswordResetByToken looks up a password reset by token.
func (r *PostgresAccountRepository) GetPasswordResetByToken(ctx context.Context, token string) (PasswordReset, error) {
	query := `
		SELECT id, account_id, token, created_at, expires_at, used_at
		FROM password_resets
		WHERE token = $1
	`

	var reset PasswordReset
	var usedAt sql.NullTime
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&reset.ID,
		&reset.IdentityID,
		&reset.Token,
		&reset.CreatedAt,
		&reset.ExpiresAt,
		&usedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PasswordReset{}, ErrPasswordResetNotFound
	}
	if err != nil {
		return PasswordReset{}, fmt.Errorf("failed to get password reset: %w", err)
	}
	if usedAt.Valid {
		reset.UsedAt = &usedAt.Time
	}
	return reset, nil
}

// MarkPasswordResetUsed marks a password reset token as spent.
func (r *PostgresAccountRepository) MarkPasswordResetUsed(ctx context.Context, resetID uuid.UUID) error {
	query := `UPDATE password_resets SET used_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, resetID)
	if err != nil {
		return fmt.Errorf("failed to mark password reset used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPasswordResetNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
