package domain

import (
	"context"
	"time"
)

// Cache is the ephemeral key-value collaborator. Implementations must make
// Incr atomic under concurrent callers; the engine never performs
// read-modify-write on counters client-side.
//
// Key namespaces in use:
//
//	failed_login:{email}            counter, 15m
//	account_lock:{email}            marker, 30m
//	refresh_token:{hash}            -> userID, 30d (reverse index)
//	refresh_token_used:{hash}       -> family, 30d (rotation tombstone)
//	token_family_revoked:{family}   marker, 30d
//	mfa:{tokenHash}                 -> userID, 5m (login challenge)
//	mfa_enrollment:{userID}         JSON record, 15m
//	mfa_sms_code:{userID}           code hash, 5m
//	mfa_email_code:{userID}         code hash, 5m
//	mfa_sms_rate:{userID}           counter, 5m
//	mfa_email_rate:{userID}         counter, 5m
//	mfa_used_code:{userID}:{code}   marker, 90s
//	email_verify:{tokenHash}        -> userID, 24h
//	password_reset:{tokenHash}      -> userID, 1h
//	reset_tokens:{userID}           JSON list of hashes, 1h
//	user_permissions:{userID}       JSON list, 10m
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	// GetDel atomically reads and removes a key, returning ErrCacheMiss if
	// absent. The refresh flow relies on this to pick a single winner when
	// two rotations of the same token race.
	GetDel(ctx context.Context, key string) (string, error)

	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}
