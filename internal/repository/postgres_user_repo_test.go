package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citadel-io/citadel-auth/internal/domain"
)

var userRows = []string{
	"id", "email", "name", "phone_number", "password_hash", "password_history",
	"status", "email_verified", "mfa_enabled", "mfa_method", "mfa_secret",
	"backup_code_hashes", "created_at", "updated_at",
}

func TestUserRepoGetByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userRows).AddRow(
			"user-1", "alice@example.com", "Alice", "", "$argon2id$hash", "{}",
			domain.StatusActive, true, false, "", "", "{}", now, now,
		))

	repo := NewPostgresUserRepo(db)
	user, err := repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "Alice", user.Name)
	assert.True(t, user.EmailVerified)
	assert.False(t, user.MFAEnabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoGetByEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(userRows))

	repo := NewPostgresUserRepo(db)
	_, err = repo.GetByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepoUpdateMFADisables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Disabling must null out method and secret in the same statement.
	mock.ExpectExec("UPDATE users").
		WithArgs(false, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresUserRepo(db)
	err = repo.UpdateMFA(context.Background(), "user-1", domain.MFASettings{
		Enabled: false,
		Method:  domain.MFAMethodNone,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepoUpdatePasswordMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE users SET password_hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresUserRepo(db)
	err = repo.UpdatePassword(context.Background(), "ghost", "hash", nil)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
