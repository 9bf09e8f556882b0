package domain

import (
	"context"
	"time"
)

// Account lifecycle states.
const (
	StatusActive      = "active"
	StatusDeactivated = "deactivated"
	StatusDeleted     = "deleted"
)

// MFA methods. MFAMethodNone is only valid while MFAEnabled is false.
const (
	MFAMethodTOTP  = "totp"
	MFAMethodSMS   = "sms"
	MFAMethodEmail = "email"
	MFAMethodNone  = "none"
)

// User represents the central identity entity of the system.
// PasswordHash is empty for OAuth-only accounts. MFASecret holds the
// symmetrically encrypted TOTP seed and is set iff MFAMethod is totp.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	PhoneNumber      string    `json:"phone_number,omitempty"`
	PasswordHash     string    `json:"-"`
	PasswordHistory  []string  `json:"-"` // bounded to the last 5 hashes
	Status           string    `json:"status"`
	EmailVerified    bool      `json:"email_verified"`
	MFAEnabled       bool      `json:"mfa_enabled"`
	MFAMethod        string    `json:"mfa_method,omitempty"`
	MFASecret        string    `json:"-"`
	BackupCodeHashes []string  `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MFASettings is the unit persisted by UpdateMFA. It replaces the user's
// MFA state atomically so enablement and disablement are single writes.
type MFASettings struct {
	Enabled          bool
	Method           string
	EncryptedSecret  string
	BackupCodeHashes []string
}

// AuthResponse defines the payload returned after a fully authenticated
// login. Warning carries user-facing notices such as a low backup code
// count.
type AuthResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Warning      string `json:"warning,omitempty"`
}

// MFAChallenge is returned instead of tokens when the account has MFA
// enabled. No session exists until the challenge is completed.
type MFAChallenge struct {
	MFARequired bool   `json:"mfa_required"`
	MFAToken    string `json:"mfa_token"`
	Method      string `json:"method"`
}

// LoginResult carries either a token pair or a pending MFA challenge.
type LoginResult struct {
	Tokens    *AuthResponse `json:"tokens,omitempty"`
	Challenge *MFAChallenge `json:"challenge,omitempty"`
}

// UserRepository defines the contract for user persistence in the
// credential store.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdateMFA(ctx context.Context, userID string, settings MFASettings) error
	UpdateBackupCodes(ctx context.Context, userID string, hashes []string) error
	UpdatePassword(ctx context.Context, userID, newHash string, history []string) error
	MarkEmailVerified(ctx context.Context, userID string) error
}
