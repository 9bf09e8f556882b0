package domain

import (
	"context"
	"time"
)

// DeviceInfo is the parsed user-agent descriptor attached to a session.
type DeviceInfo struct {
	UserAgent string `json:"user_agent"`
	Browser   string `json:"browser"`
	OS        string `json:"os"`
	Device    string `json:"device"`
}

// Session is a refresh-token-backed login on one device. The refresh token
// itself is never stored; only its SHA-256 hash is.
type Session struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	RefreshTokenHash string     `json:"-"`
	TokenFamily      string     `json:"-"`
	DeviceInfo       DeviceInfo `json:"device_info"`
	IPAddress        string     `json:"ip_address"`
	CreatedAt        time.Time  `json:"created_at"`
	LastActivityAt   time.Time  `json:"last_activity_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
}

// SessionRepository persists sessions in the credential store.
type SessionRepository interface {
	Insert(ctx context.Context, session *Session) error
	Delete(ctx context.Context, sessionID string) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	GetByID(ctx context.Context, sessionID string) (*Session, error)
	ListForUser(ctx context.Context, userID string) ([]*Session, error)
	CountActive(ctx context.Context, userID string) (int, error)
	OldestActive(ctx context.Context, userID string) (*Session, error)
	UpdateRefresh(ctx context.Context, sessionID, newHash string, expiresAt time.Time) error
}

// DeviceParser turns a raw User-Agent string into a DeviceInfo. It is a
// pure function supplied by the embedding service.
type DeviceParser func(userAgent string) DeviceInfo

// Notifier is the fire-and-forget hand-off to the notification
// collaborator. Implementations queue the message; delivery is external.
type Notifier interface {
	QueueEmailVerification(ctx context.Context, email, token string) error
	QueuePasswordReset(ctx context.Context, email, token string) error
	QueuePasswordChanged(ctx context.Context, email string) error
	QueueMFACodeSMS(ctx context.Context, phoneNumber, code string) error
	QueueMFACodeEmail(ctx context.Context, email, code string) error
	QueueMFADisabled(ctx context.Context, email string) error
}
