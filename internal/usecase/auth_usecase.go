package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/citadel-io/citadel-auth/internal/domain"
	"github.com/citadel-io/citadel-auth/internal/metrics"
	"github.com/citadel-io/citadel-auth/pkg/security"
)

// MFAVerifier checks a login-time second factor. Implemented by MFAUsecase;
// the dependency points one way so the two engines stay decoupled. The
// string result is an optional user-facing warning for the login response.
type MFAVerifier interface {
	VerifyForLogin(ctx context.Context, user *domain.User, code, method string) (string, error)
}

// PermissionSource resolves role names and permissions for token claims.
// Implemented by RBACUsecase.
type PermissionSource interface {
	RoleNamesAndPermissions(ctx context.Context, userID string) ([]string, []string, error)
}

// RegisterInput is the payload for AuthUsecase.Register.
type RegisterInput struct {
	Email       string
	Name        string
	Password    string
	PhoneNumber string
}

// RequestContext carries per-request client metadata into session issuance.
type RequestContext struct {
	UserAgent string
	IPAddress string
}

// AuthUsecase implements registration, login with lockout, MFA-gated
// session issuance, refresh rotation with reuse detection, and the
// password reset flow.
type AuthUsecase struct {
	users       domain.UserRepository
	sessions    domain.SessionRepository
	roles       domain.RoleRepository
	cache       domain.Cache
	codec       *security.TokenCodec
	mfa         MFAVerifier
	permissions PermissionSource
	notifier    domain.Notifier
	parseDevice domain.DeviceParser
	cfg         Config
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

// NewAuthUsecase wires the session and token manager.
func NewAuthUsecase(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	roles domain.RoleRepository,
	cache domain.Cache,
	codec *security.TokenCodec,
	mfa MFAVerifier,
	permissions PermissionSource,
	notifier domain.Notifier,
	parseDevice domain.DeviceParser,
	cfg Config,
	log zerolog.Logger,
	m *metrics.Metrics,
) *AuthUsecase {
	return &AuthUsecase{
		users:       users,
		sessions:    sessions,
		roles:       roles,
		cache:       cache,
		codec:       codec,
		mfa:         mfa,
		permissions: permissions,
		notifier:    notifier,
		parseDevice: parseDevice,
		cfg:         cfg,
		log:         log.With().Str("component", "auth").Logger(),
		metrics:     m,
	}
}

// Register creates an account, assigns the default role and queues the
// email verification message. No session is issued until the address is
// verified.
func (u *AuthUsecase) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:        input.Email,
		Name:         input.Name,
		PhoneNumber:  input.PhoneNumber,
		PasswordHash: hash,
		Status:       domain.StatusActive,
	}
	if err := u.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if role, err := u.roles.GetByName(ctx, u.cfg.DefaultRoleName); err == nil {
		if err := u.roles.InsertAssignment(ctx, user.ID, role.ID, "system"); err != nil {
			u.log.Warn().Err(err).Str("user_id", user.ID).Msg("default role assignment failed")
		}
	} else {
		u.log.Warn().Err(err).Str("role", u.cfg.DefaultRoleName).Msg("default role lookup failed")
	}

	if err := u.queueEmailVerification(ctx, user); err != nil {
		u.log.Warn().Err(err).Str("user_id", user.ID).Msg("verification email failed")
	}

	u.log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("user registered")
	return user, nil
}

// ResendVerification re-issues the email verification token.
func (u *AuthUsecase) ResendVerification(ctx context.Context, email string) error {
	user, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		// Swallow unknown addresses; the endpoint must not leak existence.
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.EmailVerified {
		return nil
	}
	return u.queueEmailVerification(ctx, user)
}

func (u *AuthUsecase) queueEmailVerification(ctx context.Context, user *domain.User) error {
	token, err := security.GenerateRandomToken(32)
	if err != nil {
		return err
	}
	if err := u.cache.Set(ctx, emailVerifyKey(security.HashToken(token)), user.ID, u.cfg.EmailVerifyTTL); err != nil {
		return err
	}
	return u.notifier.QueueEmailVerification(ctx, user.Email, token)
}

// VerifyEmail consumes a verification token and flips the account flag.
func (u *AuthUsecase) VerifyEmail(ctx context.Context, token string) error {
	userID, err := u.cache.GetDel(ctx, emailVerifyKey(security.HashToken(token)))
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return domain.ErrInvalidToken
		}
		return err
	}
	if err := u.users.MarkEmailVerified(ctx, userID); err != nil {
		return err
	}
	u.log.Info().Str("user_id", userID).Msg("email verified")
	return nil
}

// Login authenticates credentials and either issues a session or returns
// an MFA challenge. Lockout state is checked before anything else so a
// locked account cannot be password-probed.
func (u *AuthUsecase) Login(ctx context.Context, email, password string, rc RequestContext) (*domain.LoginResult, error) {
	locked, err := u.cache.Exists(ctx, accountLockKey(email))
	if err != nil {
		return nil, err
	}
	if locked {
		ttl, err := u.cache.TTL(ctx, accountLockKey(email))
		if err != nil {
			return nil, err
		}
		u.metrics.Login("locked")
		return nil, &domain.AccountLockedError{RetryAfterSeconds: int64(ttl.Seconds())}
	}

	user, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			u.metrics.Login("failure")
			return nil, u.handleFailedLogin(ctx, email)
		}
		return nil, err
	}

	switch user.Status {
	case domain.StatusDeactivated:
		u.metrics.Login("failure")
		return nil, domain.ErrAccountDeactivated
	case domain.StatusDeleted:
		u.metrics.Login("failure")
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := security.ComparePassword(password, user.PasswordHash)
	if err != nil || !ok {
		u.metrics.Login("failure")
		return nil, u.handleFailedLogin(ctx, email)
	}

	if !user.EmailVerified {
		u.metrics.Login("failure")
		return nil, domain.ErrEmailNotVerified
	}

	if err := u.cache.Del(ctx, failedLoginKey(email)); err != nil {
		u.log.Warn().Err(err).Msg("failed-login counter reset failed")
	}

	if user.MFAEnabled {
		challenge, err := u.createMFAChallenge(ctx, user)
		if err != nil {
			return nil, err
		}
		u.metrics.Login("mfa_challenge")
		return &domain.LoginResult{Challenge: challenge}, nil
	}

	tokens, err := u.issueSession(ctx, user, rc, "")
	if err != nil {
		return nil, err
	}
	u.metrics.Login("success")
	return &domain.LoginResult{Tokens: tokens}, nil
}

// handleFailedLogin bumps the per-email counter and locks the account when
// the threshold is reached. The attempt that trips the lock already
// reports the lockout, not a credentials error.
func (u *AuthUsecase) handleFailedLogin(ctx context.Context, email string) error {
	count, err := u.cache.Incr(ctx, failedLoginKey(email))
	if err != nil {
		return fmt.Errorf("failed-login counter: %w", err)
	}
	if count == 1 {
		if err := u.cache.Expire(ctx, failedLoginKey(email), u.cfg.FailedLoginWindow); err != nil {
			u.log.Warn().Err(err).Msg("failed-login window expire failed")
		}
	}
	if count >= int64(u.cfg.MaxFailedLogins) {
		if err := u.cache.Set(ctx, accountLockKey(email), "1", u.cfg.AccountLockDuration); err != nil {
			return fmt.Errorf("account lock: %w", err)
		}
		if err := u.cache.Del(ctx, failedLoginKey(email)); err != nil {
			u.log.Warn().Err(err).Msg("failed-login counter cleanup failed")
		}
		u.log.Warn().Str("email", email).Int64("failures", count).Msg("account locked")
		return &domain.AccountLockedError{RetryAfterSeconds: int64(u.cfg.AccountLockDuration.Seconds())}
	}
	return domain.ErrInvalidCredentials
}

func (u *AuthUsecase) createMFAChallenge(ctx context.Context, user *domain.User) (*domain.MFAChallenge, error) {
	token, err := security.GenerateRandomToken(32)
	if err != nil {
		return nil, err
	}
	if err := u.cache.Set(ctx, mfaChallengeKey(security.HashToken(token)), user.ID, u.cfg.MFAChallengeTTL); err != nil {
		return nil, err
	}
	return &domain.MFAChallenge{
		MFARequired: true,
		MFAToken:    token,
		Method:      user.MFAMethod,
	}, nil
}

// CompleteMFALogin exchanges a pending challenge plus a valid second factor
// for a session. A wrong code leaves the challenge alive until its TTL.
func (u *AuthUsecase) CompleteMFALogin(ctx context.Context, mfaToken, code, method string, rc RequestContext) (*domain.AuthResponse, error) {
	key := mfaChallengeKey(security.HashToken(mfaToken))
	userID, err := u.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}

	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	warning, err := u.mfa.VerifyForLogin(ctx, user, code, method)
	if err != nil {
		u.metrics.Login("mfa_failure")
		return nil, err
	}

	if err := u.cache.Del(ctx, key); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("mfa challenge cleanup failed")
	}

	tokens, err := u.issueSession(ctx, user, rc, "")
	if err != nil {
		return nil, err
	}
	tokens.Warning = warning
	u.metrics.Login("success")
	return tokens, nil
}

// issueSession mints a token pair and persists the session it belongs to.
// An empty family starts a new lineage (login); a non-empty one continues
// an existing lineage (refresh). The per-user session cap evicts the
// oldest session.
func (u *AuthUsecase) issueSession(ctx context.Context, user *domain.User, rc RequestContext, family string) (*domain.AuthResponse, error) {
	roleNames, permissions, err := u.permissions.RoleNamesAndPermissions(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}

	sessionID := uuid.NewString()
	pair, err := u.codec.GeneratePair(security.PairInput{
		UserID:      user.ID,
		Email:       user.Email,
		Roles:       roleNames,
		Permissions: permissions,
		SessionID:   sessionID,
		TokenFamily: family,
	})
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}

	count, err := u.sessions.CountActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if count >= u.cfg.MaxSessionsPerUser {
		oldest, err := u.sessions.OldestActive(ctx, user.ID)
		if err == nil {
			if err := u.revokeSessionRow(ctx, oldest); err != nil {
				u.log.Warn().Err(err).Str("session_id", oldest.ID).Msg("session eviction failed")
			} else {
				u.metrics.SessionEvicted()
				u.log.Info().Str("user_id", user.ID).Str("session_id", oldest.ID).
					Msg("oldest session evicted")
			}
		}
	}

	now := time.Now()
	session := &domain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshTokenHash: security.HashToken(pair.RefreshToken),
		TokenFamily:      pair.TokenFamily,
		DeviceInfo:       u.parseDevice(rc.UserAgent),
		IPAddress:        rc.IPAddress,
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(u.codec.RefreshTTL()),
	}
	if err := u.sessions.Insert(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	if err := u.cache.Set(ctx, refreshTokenKey(session.RefreshTokenHash), user.ID, u.codec.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("index refresh token: %w", err)
	}

	return &domain.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// Refresh rotates a refresh token. The reverse index is consumed with an
// atomic get-and-delete, so when two requests race on the same token only
// one wins; the loser is indistinguishable from an invalid token. A token
// that was already rotated out marks its whole family revoked and every
// session of the account is dropped.
func (u *AuthUsecase) Refresh(ctx context.Context, refreshToken string, rc RequestContext) (*domain.AuthResponse, error) {
	claims, err := u.codec.ParseRefresh(refreshToken)
	if err != nil {
		u.metrics.Refresh("invalid")
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrInvalidToken
	}

	// A revoked family means this lineage was already killed by a logout,
	// an explicit revocation or a prior breach response. No further
	// escalation; the token is simply dead.
	revoked, err := u.cache.Exists(ctx, familyRevokedKey(claims.TokenFamily))
	if err != nil {
		return nil, err
	}
	if revoked {
		u.metrics.Refresh("revoked")
		return nil, domain.ErrInvalidToken
	}

	hash := security.HashToken(refreshToken)
	userID, err := u.cache.GetDel(ctx, refreshTokenKey(hash))
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			return nil, err
		}
		used, existsErr := u.cache.Exists(ctx, usedTokenKey(hash))
		if existsErr != nil {
			return nil, existsErr
		}
		if used {
			return nil, u.handleTokenReuse(ctx, claims.Subject, claims.TokenFamily)
		}
		u.metrics.Refresh("invalid")
		return nil, domain.ErrInvalidToken
	}

	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch user.Status {
	case domain.StatusDeactivated:
		u.metrics.Refresh("invalid")
		return nil, domain.ErrAccountDeactivated
	case domain.StatusDeleted:
		u.metrics.Refresh("invalid")
		return nil, domain.ErrInvalidToken
	}

	session, err := u.sessions.GetByID(ctx, claims.SessionID)
	if err != nil || session.UserID != userID {
		u.metrics.Refresh("invalid")
		return nil, domain.ErrInvalidToken
	}

	roleNames, permissions, err := u.permissions.RoleNamesAndPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	pair, err := u.codec.GeneratePair(security.PairInput{
		UserID:      userID,
		Email:       user.Email,
		Roles:       roleNames,
		Permissions: permissions,
		SessionID:   session.ID,
		TokenFamily: claims.TokenFamily,
	})
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}

	newHash := security.HashToken(pair.RefreshToken)
	if err := u.sessions.UpdateRefresh(ctx, session.ID, newHash, time.Now().Add(u.codec.RefreshTTL())); err != nil {
		return nil, err
	}
	if err := u.cache.Set(ctx, refreshTokenKey(newHash), userID, u.codec.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("index refresh token: %w", err)
	}

	// Tombstone the consumed token for the rest of its natural lifetime so
	// a later replay is recognized as reuse rather than garbage. Written
	// only once the rotation has stuck: a rotation that failed midway
	// leaves the retried old token plainly invalid, not a breach signal.
	if err := u.cache.Set(ctx, usedTokenKey(hash), claims.TokenFamily, u.codec.RefreshTTL()); err != nil {
		u.log.Warn().Err(err).Msg("refresh token tombstone write failed")
	}

	u.metrics.Refresh("success")
	return &domain.AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// handleTokenReuse is the breach response: the family is marked revoked
// and every session of the account is dropped, forcing re-authentication
// on all devices.
func (u *AuthUsecase) handleTokenReuse(ctx context.Context, userID, family string) error {
	u.log.Error().Str("user_id", userID).Str("token_family", family).
		Msg("refresh token reuse detected, revoking all sessions")
	u.metrics.TokenReuseDetected()
	u.metrics.Refresh("reuse")

	if err := u.cache.Set(ctx, familyRevokedKey(family), "1", u.codec.RefreshTTL()); err != nil {
		u.log.Warn().Err(err).Msg("family revocation marker failed")
	}
	if err := u.revokeAllSessions(ctx, userID); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("session revocation failed")
	}
	return domain.ErrTokenReuseDetected
}

// ListSessions returns the user's active sessions, oldest first.
func (u *AuthUsecase) ListSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	return u.sessions.ListForUser(ctx, userID)
}

// RevokeSession revokes one session owned by the caller.
func (u *AuthUsecase) RevokeSession(ctx context.Context, userID, sessionID string) error {
	session, err := u.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return domain.ErrSessionNotFound
	}
	if err := u.revokeSessionRow(ctx, session); err != nil {
		return err
	}
	u.log.Info().Str("user_id", userID).Str("session_id", sessionID).Msg("session revoked")
	return nil
}

// RevokeAllSessions logs the user out of every device.
func (u *AuthUsecase) RevokeAllSessions(ctx context.Context, userID string) error {
	if err := u.revokeAllSessions(ctx, userID); err != nil {
		return err
	}
	u.log.Info().Str("user_id", userID).Msg("all sessions revoked")
	return nil
}

// Logout revokes the session owning the presented refresh token. An
// already-invalid token is not an error; logout is idempotent.
func (u *AuthUsecase) Logout(ctx context.Context, refreshToken string) error {
	claims, err := u.codec.ParseRefresh(refreshToken)
	if err != nil {
		return nil
	}
	hash := security.HashToken(refreshToken)
	if _, err := u.cache.GetDel(ctx, refreshTokenKey(hash)); err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		return err
	}
	if err := u.cache.Set(ctx, familyRevokedKey(claims.TokenFamily), "1", u.codec.RefreshTTL()); err != nil {
		return err
	}
	if err := u.sessions.DeleteByTokenHash(ctx, hash); err != nil {
		return err
	}
	u.log.Info().Str("session_id", claims.SessionID).Msg("logged out")
	return nil
}

func (u *AuthUsecase) revokeSessionRow(ctx context.Context, session *domain.Session) error {
	if err := u.cache.Del(ctx, refreshTokenKey(session.RefreshTokenHash)); err != nil {
		return err
	}
	if err := u.cache.Set(ctx, familyRevokedKey(session.TokenFamily), "1", u.codec.RefreshTTL()); err != nil {
		return err
	}
	return u.sessions.Delete(ctx, session.ID)
}

func (u *AuthUsecase) revokeAllSessions(ctx context.Context, userID string) error {
	sessions, err := u.sessions.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if err := u.cache.Del(ctx, refreshTokenKey(session.RefreshTokenHash)); err != nil {
			return err
		}
		if err := u.cache.Set(ctx, familyRevokedKey(session.TokenFamily), "1", u.codec.RefreshTTL()); err != nil {
			return err
		}
	}
	return u.sessions.DeleteAllForUser(ctx, userID)
}

// RequestPasswordReset issues a reset token. Unknown addresses are
// swallowed so the endpoint cannot be used to enumerate accounts.
func (u *AuthUsecase) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.Status != domain.StatusActive {
		return nil
	}

	token, err := security.GenerateRandomToken(32)
	if err != nil {
		return err
	}
	hash := security.HashToken(token)
	if err := u.cache.Set(ctx, passwordResetKey(hash), user.ID, u.cfg.PasswordResetTTL); err != nil {
		return err
	}
	if err := u.trackResetToken(ctx, user.ID, hash); err != nil {
		u.log.Warn().Err(err).Str("user_id", user.ID).Msg("reset token tracking failed")
	}
	if err := u.notifier.QueuePasswordReset(ctx, user.Email, token); err != nil {
		return err
	}

	u.log.Info().Str("user_id", user.ID).Msg("password reset requested")
	return nil
}

// trackResetToken keeps the set of outstanding reset token hashes per user
// so a successful reset can invalidate the others.
func (u *AuthUsecase) trackResetToken(ctx context.Context, userID, hash string) error {
	var hashes []string
	if raw, err := u.cache.Get(ctx, resetTokensKey(userID)); err == nil {
		_ = json.Unmarshal([]byte(raw), &hashes)
	}
	hashes = append(hashes, hash)
	encoded, err := json.Marshal(hashes)
	if err != nil {
		return err
	}
	return u.cache.Set(ctx, resetTokensKey(userID), string(encoded), u.cfg.PasswordResetTTL)
}

// ResetPassword consumes a reset token, rejects recently used passwords,
// stores the new hash and revokes every session and outstanding reset
// token for the account.
func (u *AuthUsecase) ResetPassword(ctx context.Context, token, newPassword string) error {
	userID, err := u.cache.GetDel(ctx, passwordResetKey(security.HashToken(token)))
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return domain.ErrInvalidToken
		}
		return err
	}

	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := u.checkPasswordHistory(user, newPassword); err != nil {
		return err
	}

	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	history := append(user.PasswordHistory, user.PasswordHash)
	if len(history) > u.cfg.PasswordHistoryLimit {
		history = history[len(history)-u.cfg.PasswordHistoryLimit:]
	}
	if err := u.users.UpdatePassword(ctx, userID, newHash, history); err != nil {
		return err
	}

	u.invalidateResetTokens(ctx, userID)
	if err := u.revokeAllSessions(ctx, userID); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("post-reset session revocation failed")
	}
	if err := u.notifier.QueuePasswordChanged(ctx, user.Email); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("password changed notification failed")
	}

	u.log.Info().Str("user_id", userID).Msg("password reset completed")
	return nil
}

// ChangePassword is the authenticated variant: the current password is
// required and other sessions stay alive.
func (u *AuthUsecase) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := security.ComparePassword(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		return domain.ErrInvalidCredentials
	}

	if err := u.checkPasswordHistory(user, newPassword); err != nil {
		return err
	}

	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	history := append(user.PasswordHistory, user.PasswordHash)
	if len(history) > u.cfg.PasswordHistoryLimit {
		history = history[len(history)-u.cfg.PasswordHistoryLimit:]
	}
	if err := u.users.UpdatePassword(ctx, userID, newHash, history); err != nil {
		return err
	}

	if err := u.notifier.QueuePasswordChanged(ctx, user.Email); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("password changed notification failed")
	}
	u.log.Info().Str("user_id", userID).Msg("password changed")
	return nil
}

// checkPasswordHistory rejects the current password and the bounded set
// of prior hashes.
func (u *AuthUsecase) checkPasswordHistory(user *domain.User, newPassword string) error {
	candidates := append([]string{user.PasswordHash}, user.PasswordHistory...)
	for _, h := range candidates {
		if h == "" {
			continue
		}
		if match, err := security.ComparePassword(newPassword, h); err == nil && match {
			return domain.ErrPasswordRecentlyUsed
		}
	}
	return nil
}

func (u *AuthUsecase) invalidateResetTokens(ctx context.Context, userID string) {
	raw, err := u.cache.Get(ctx, resetTokensKey(userID))
	if err != nil {
		return
	}
	var hashes []string
	if err := json.Unmarshal([]byte(raw), &hashes); err != nil {
		return
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, passwordResetKey(h))
	}
	keys = append(keys, resetTokensKey(userID))
	if err := u.cache.Del(ctx, keys...); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("reset token invalidation failed")
	}
}
