package usecase

import "time"

// Config carries the engine tunables. Defaults match the documented
// production values; tests shrink the windows where useful.
type Config struct {
	// Login hardening
	MaxFailedLogins     int
	FailedLoginWindow   time.Duration
	AccountLockDuration time.Duration

	// Sessions
	MaxSessionsPerUser int

	// MFA
	MFAChallengeTTL        time.Duration
	EnrollmentTTL          time.Duration
	CodeTTL                time.Duration
	CodeRateLimit          int
	CodeRateWindow         time.Duration
	UsedCodeTTL            time.Duration
	BackupCodeCount        int
	LowBackupCodeThreshold int
	TOTPIssuer             string

	// Account flows
	EmailVerifyTTL       time.Duration
	PasswordResetTTL     time.Duration
	PasswordHistoryLimit int
	DefaultRoleName      string

	// RBAC
	PermissionCacheTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailedLogins:     5,
		FailedLoginWindow:   15 * time.Minute,
		AccountLockDuration: 30 * time.Minute,

		MaxSessionsPerUser: 5,

		MFAChallengeTTL:        5 * time.Minute,
		EnrollmentTTL:          15 * time.Minute,
		CodeTTL:                5 * time.Minute,
		CodeRateLimit:          3,
		CodeRateWindow:         5 * time.Minute,
		UsedCodeTTL:            90 * time.Second,
		BackupCodeCount:        10,
		LowBackupCodeThreshold: 3,
		TOTPIssuer:             "Citadel",

		EmailVerifyTTL:       24 * time.Hour,
		PasswordResetTTL:     time.Hour,
		PasswordHistoryLimit: 5,
		DefaultRoleName:      "user",

		PermissionCacheTTL: 10 * time.Minute,
	}
}
