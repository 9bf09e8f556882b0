package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/citadel-io/citadel-auth/internal/domain"
)

const userColumns = `id, email, name, COALESCE(phone_number, ''), password_hash, password_history, status, email_verified,
		mfa_enabled, COALESCE(mfa_method, ''), COALESCE(mfa_secret, ''), backup_code_hashes,
		created_at, updated_at`

// PostgresUserRepo implements domain.UserRepository using PostgreSQL.
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo creates a new repository instance.
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	var passwordHash sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PhoneNumber,
		&passwordHash,
		pq.Array(&user.PasswordHistory),
		&user.Status,
		&user.EmailVerified,
		&user.MFAEnabled,
		&user.MFAMethod,
		&user.MFASecret,
		pq.Array(&user.BackupCodeHashes),
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	user.PasswordHash = passwordHash.String
	return user, nil
}

// GetByEmail retrieves a user by their email address.
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByID retrieves a user by their UUID.
func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// Create inserts a new user into the database.
func (r *PostgresUserRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (email, name, phone_number, password_hash, password_history, status, email_verified,
			mfa_enabled, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	var passwordHash sql.NullString
	if user.PasswordHash != "" {
		passwordHash.String = user.PasswordHash
		passwordHash.Valid = true
	}

	err := r.db.QueryRowContext(ctx, query,
		user.Email,
		user.Name,
		user.PhoneNumber,
		passwordHash,
		pq.Array(user.PasswordHistory),
		user.Status,
		user.EmailVerified,
		user.MFAEnabled,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrEmailAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdateMFA replaces the user's MFA state in a single write. Disabling
// clears method, secret and backup codes together.
func (r *PostgresUserRepo) UpdateMFA(ctx context.Context, userID string, settings domain.MFASettings) error {
	query := `
		UPDATE users
		SET mfa_enabled = $1, mfa_method = $2, mfa_secret = $3, backup_code_hashes = $4, updated_at = $5
		WHERE id = $6
	`

	var method, secret sql.NullString
	if settings.Enabled {
		method = sql.NullString{String: settings.Method, Valid: true}
		if settings.EncryptedSecret != "" {
			secret = sql.NullString{String: settings.EncryptedSecret, Valid: true}
		}
	}

	result, err := r.db.ExecContext(ctx, query,
		settings.Enabled, method, secret, pq.Array(settings.BackupCodeHashes), time.Now(), userID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return requireRow(result)
}

// UpdateBackupCodes persists the remaining backup code hashes after one is
// consumed.
func (r *PostgresUserRepo) UpdateBackupCodes(ctx context.Context, userID string, hashes []string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET backup_code_hashes = $1, updated_at = $2 WHERE id = $3`,
		pq.Array(hashes), time.Now(), userID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return requireRow(result)
}

// UpdatePassword stores the new hash and the bounded prior-hash history.
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, userID, newHash string, history []string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, password_history = $2, updated_at = $3 WHERE id = $4`,
		newHash, pq.Array(history), time.Now(), userID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return requireRow(result)
}

// MarkEmailVerified flips the email_verified flag.
func (r *PostgresUserRepo) MarkEmailVerified(ctx context.Context, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email_verified = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), userID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
