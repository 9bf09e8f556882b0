package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// notificationQueue is the list the notification service consumes from.
const notificationQueue = "notifications:queue"

// RedisNotifier implements domain.Notifier by pushing JSON envelopes onto
// a Redis list. Rendering and delivery happen in the notification service.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a new notifier instance.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

type notification struct {
	Type      string    `json:"type"`
	Recipient string    `json:"recipient"`
	Payload   string    `json:"payload,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
}

func (n *RedisNotifier) push(ctx context.Context, kind, recipient, payload string) error {
	envelope, err := json.Marshal(notification{
		Type:      kind,
		Recipient: recipient,
		Payload:   payload,
		QueuedAt:  time.Now(),
	})
	if err != nil {
		return err
	}
	if err := n.client.LPush(ctx, notificationQueue, envelope).Err(); err != nil {
		return fmt.Errorf("queue notification: %w", err)
	}
	return nil
}

func (n *RedisNotifier) QueueEmailVerification(ctx context.Context, email, token string) error {
	return n.push(ctx, "email_verification", email, token)
}

func (n *RedisNotifier) QueuePasswordReset(ctx context.Context, email, token string) error {
	return n.push(ctx, "password_reset", email, token)
}

func (n *RedisNotifier) QueuePasswordChanged(ctx context.Context, email string) error {
	return n.push(ctx, "password_changed", email, "")
}

func (n *RedisNotifier) QueueMFACodeSMS(ctx context.Context, phoneNumber, code string) error {
	return n.push(ctx, "mfa_code_sms", phoneNumber, code)
}

func (n *RedisNotifier) QueueMFACodeEmail(ctx context.Context, email, code string) error {
	return n.push(ctx, "mfa_code_email", email, code)
}

func (n *RedisNotifier) QueueMFADisabled(ctx context.Context, email string) error {
	return n.push(ctx, "mfa_disabled", email, "")
}
