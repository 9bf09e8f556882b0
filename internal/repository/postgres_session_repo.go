package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/citadel-io/citadel-auth/internal/domain"
)

const sessionColumns = `id, user_id, refresh_token_hash, token_family, device_info, ip_address,
		created_at, last_activity_at, expires_at`

// PostgresSessionRepo implements domain.SessionRepository using PostgreSQL.
// DeviceInfo is stored as a jsonb column.
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo creates a new repository instance.
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Insert stores a new session row.
func (r *PostgresSessionRepo) Insert(ctx context.Context, session *domain.Session) error {
	deviceJSON, err := json.Marshal(session.DeviceInfo)
	if err != nil {
		deviceJSON = []byte("{}")
	}

	query := `
		INSERT INTO sessions (id, user_id, refresh_token_hash, token_family, device_info, ip_address,
			created_at, last_activity_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.RefreshTokenHash,
		session.TokenFamily,
		deviceJSON,
		session.IPAddress,
		session.CreatedAt,
		session.LastActivityAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	session := &domain.Session{}
	var deviceJSON []byte
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.RefreshTokenHash,
		&session.TokenFamily,
		&deviceJSON,
		&session.IPAddress,
		&session.CreatedAt,
		&session.LastActivityAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	_ = json.Unmarshal(deviceJSON, &session.DeviceInfo)
	return session, nil
}

// GetByID retrieves one session.
func (r *PostgresSessionRepo) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.db.QueryRowContext(ctx, query, sessionID))
}

// ListForUser returns all non-expired sessions ordered oldest first.
func (r *PostgresSessionRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session := &domain.Session{}
		var deviceJSON []byte
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.RefreshTokenHash,
			&session.TokenFamily,
			&deviceJSON,
			&session.IPAddress,
			&session.CreatedAt,
			&session.LastActivityAt,
			&session.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		_ = json.Unmarshal(deviceJSON, &session.DeviceInfo)
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// CountActive counts non-expired sessions for the cap check.
func (r *PostgresSessionRepo) CountActive(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND expires_at > NOW()`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return count, nil
}

// OldestActive returns the session evicted when the cap is exceeded.
func (r *PostgresSessionRepo) OldestActive(ctx context.Context, userID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY created_at ASC LIMIT 1`
	return scanSession(r.db.QueryRowContext(ctx, query, userID))
}

// Delete removes one session by id. Deleting an absent session is not an
// error; revocation is idempotent.
func (r *PostgresSessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	return err
}

// DeleteByTokenHash removes the session owning a rotated-out refresh token.
func (r *PostgresSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE refresh_token_hash = $1`, tokenHash)
	return err
}

// DeleteAllForUser removes every session for the user.
func (r *PostgresSessionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// UpdateRefresh swaps in the rotated token hash, extends expiry and bumps
// last_activity_at, keeping the session id stable across rotations.
func (r *PostgresSessionRepo) UpdateRefresh(ctx context.Context, sessionID, newHash string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET refresh_token_hash = $1, expires_at = $2, last_activity_at = $3 WHERE id = $4`,
		newHash, expiresAt, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}
