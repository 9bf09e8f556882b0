package domain

import (
	"errors"
	"fmt"
)

// Client-correctable failures. Messages are safe to surface verbatim and
// never echo received secrets.
var (
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrAccountDeactivated      = errors.New("account is deactivated")
	ErrEmailNotVerified        = errors.New("email address is not verified")
	ErrEmailAlreadyExists      = errors.New("email already registered")
	ErrInvalidToken            = errors.New("invalid or expired token")
	ErrTokenExpired            = errors.New("token expired")
	ErrUserNotFound            = errors.New("user not found")
	ErrSessionNotFound         = errors.New("session not found")
	ErrPasswordRecentlyUsed    = errors.New("password has been used recently")
	ErrMFAAlreadyEnabled       = errors.New("mfa is already enabled")
	ErrMFANotEnabled           = errors.New("mfa is not enabled")
	ErrEnrollmentNotFound      = errors.New("no pending mfa enrollment found or enrollment expired")
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	ErrCodeAlreadyUsed         = errors.New("this code has already been used")
	ErrCodeExpired             = errors.New("code expired or not found")
	ErrInvalidBackupCode       = errors.New("invalid backup code")
)

// Rate and lockout failures.
var (
	ErrTooManyCodeRequests = errors.New("too many code requests")
)

// Security-critical: presentation of an already-rotated refresh token.
// Returning it implies every session of the affected user was revoked.
var ErrTokenReuseDetected = errors.New("token reuse detected, all sessions have been revoked")

// RBAC failures.
var (
	ErrRoleNotFound        = errors.New("role not found")
	ErrRoleNameTaken       = errors.New("role name already exists")
	ErrSystemRoleImmutable = errors.New("system roles cannot be modified or deleted")
	ErrRoleCycle           = errors.New("role cannot be its own ancestor")
	ErrRoleAlreadyAssigned = errors.New("user already has this role")
	ErrRoleNotAssigned     = errors.New("user does not have this role")
	ErrRoleInUse           = errors.New("role is still assigned to users")
	ErrUnknownPermission   = errors.New("unknown permission")
)

// ErrCacheMiss is returned by Cache implementations for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// AccountLockedError carries the remaining lock duration so callers can
// surface a retry-after hint.
type AccountLockedError struct {
	RetryAfterSeconds int64
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %d seconds", e.RetryAfterSeconds)
}

// IsAccountLocked reports whether err is an AccountLockedError and returns it.
func IsAccountLocked(err error) (*AccountLockedError, bool) {
	var locked *AccountLockedError
	if errors.As(err, &locked) {
		return locked, true
	}
	return nil, false
}
