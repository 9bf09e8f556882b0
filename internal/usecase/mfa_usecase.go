package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/citadel-io/citadel-auth/internal/domain"
	"github.com/citadel-io/citadel-auth/internal/metrics"
	"github.com/citadel-io/citadel-auth/pkg/security"
)

// EnrollmentResult is returned by EnrollTOTP. The plaintext backup codes
// appear here exactly once; only their hashes survive.
type EnrollmentResult struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// enrollmentRecord is the ephemeral pending-enrollment payload held in the
// cache until the first code is verified.
type enrollmentRecord struct {
	Secret           string    `json:"secret"`
	BackupCodeHashes []string  `json:"backup_code_hashes"`
	CreatedAt        time.Time `json:"created_at"`
}

// MFAUsecase implements TOTP, SMS/email one-time code and backup code
// verification. Nothing here creates sessions; the login flow calls
// VerifyForLogin and issues tokens itself.
type MFAUsecase struct {
	users    domain.UserRepository
	cache    domain.Cache
	cipher   *security.SecretCipher
	notifier domain.Notifier
	cfg      Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewMFAUsecase wires the MFA engine.
func NewMFAUsecase(users domain.UserRepository, cache domain.Cache, cipher *security.SecretCipher,
	notifier domain.Notifier, cfg Config, log zerolog.Logger, m *metrics.Metrics) *MFAUsecase {
	return &MFAUsecase{
		users:    users,
		cache:    cache,
		cipher:   cipher,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "mfa").Logger(),
		metrics:  m,
		now:      time.Now,
	}
}

// EnrollTOTP starts TOTP enrollment: mints a secret and backup codes and
// parks them in the cache. MFA is not enabled until VerifyEnrollment
// proves the authenticator works.
func (u *MFAUsecase) EnrollTOTP(ctx context.Context, userID string) (*EnrollmentResult, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, domain.ErrMFAAlreadyEnabled
	}

	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	backupCodes, err := security.GenerateBackupCodes(u.cfg.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	hashes := make([]string, len(backupCodes))
	for i, code := range backupCodes {
		hashes[i] = security.HashToken(code)
	}

	record := enrollmentRecord{
		Secret:           secret,
		BackupCodeHashes: hashes,
		CreatedAt:        u.now(),
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	if err := u.cache.Set(ctx, enrollmentKey(userID), string(encoded), u.cfg.EnrollmentTTL); err != nil {
		return nil, fmt.Errorf("store enrollment: %w", err)
	}

	u.log.Info().Str("user_id", userID).Msg("totp enrollment started")
	return &EnrollmentResult{
		Secret:          secret,
		ProvisioningURI: security.ProvisioningURI(u.cfg.TOTPIssuer, user.Email, secret),
		BackupCodes:     backupCodes,
	}, nil
}

// VerifyEnrollment completes TOTP enrollment. The wider skew window
// tolerates authenticator clock drift during setup. A wrong code leaves
// the pending enrollment intact for another attempt.
func (u *MFAUsecase) VerifyEnrollment(ctx context.Context, userID, code string) error {
	raw, err := u.cache.Get(ctx, enrollmentKey(userID))
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return domain.ErrEnrollmentNotFound
		}
		return err
	}
	var record enrollmentRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return domain.ErrEnrollmentNotFound
	}

	if !security.ValidateTOTP(code, record.Secret, security.EnrollmentSkew, u.now()) {
		u.metrics.MFAVerification(domain.MFAMethodTOTP, "failure")
		return domain.ErrInvalidVerificationCode
	}

	encrypted, err := u.cipher.Encrypt(record.Secret)
	if err != nil {
		return fmt.Errorf("encrypt totp secret: %w", err)
	}
	settings := domain.MFASettings{
		Enabled:          true,
		Method:           domain.MFAMethodTOTP,
		EncryptedSecret:  encrypted,
		BackupCodeHashes: record.BackupCodeHashes,
	}
	if err := u.users.UpdateMFA(ctx, userID, settings); err != nil {
		return err
	}

	if err := u.cache.Del(ctx, enrollmentKey(userID)); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("enrollment cleanup failed")
	}
	u.metrics.MFAVerification(domain.MFAMethodTOTP, "success")
	u.log.Info().Str("user_id", userID).Msg("totp enrollment completed")
	return nil
}

// VerifyTOTP checks a code against the user's enabled secret with the
// strict skew window, and marks the code used so it cannot be replayed
// inside the tolerance window.
func (u *MFAUsecase) VerifyTOTP(ctx context.Context, user *domain.User, code string) error {
	if !user.MFAEnabled || user.MFAMethod != domain.MFAMethodTOTP {
		return domain.ErrMFANotEnabled
	}

	used, err := u.cache.Exists(ctx, usedCodeKey(user.ID, code))
	if err != nil {
		return err
	}
	if used {
		u.metrics.MFAVerification(domain.MFAMethodTOTP, "replay")
		return domain.ErrCodeAlreadyUsed
	}

	secret, err := u.cipher.Decrypt(user.MFASecret)
	if err != nil {
		return fmt.Errorf("decrypt totp secret: %w", err)
	}
	if !security.ValidateTOTP(code, secret, security.VerificationSkew, u.now()) {
		u.metrics.MFAVerification(domain.MFAMethodTOTP, "failure")
		return domain.ErrInvalidVerificationCode
	}

	if err := u.cache.Set(ctx, usedCodeKey(user.ID, code), "1", u.cfg.UsedCodeTTL); err != nil {
		return fmt.Errorf("mark code used: %w", err)
	}
	u.metrics.MFAVerification(domain.MFAMethodTOTP, "success")
	return nil
}

// SendCode generates and dispatches a one-time code over SMS or email.
// Requests are rate limited per user per channel.
func (u *MFAUsecase) SendCode(ctx context.Context, userID, channel string) error {
	if channel != domain.MFAMethodSMS && channel != domain.MFAMethodEmail {
		return fmt.Errorf("unsupported mfa channel %q", channel)
	}
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled || user.MFAMethod != channel {
		return domain.ErrMFANotEnabled
	}

	count, err := u.cache.Incr(ctx, codeRateKey(userID, channel))
	if err != nil {
		return err
	}
	if count == 1 {
		if err := u.cache.Expire(ctx, codeRateKey(userID, channel), u.cfg.CodeRateWindow); err != nil {
			return err
		}
	}
	if count > int64(u.cfg.CodeRateLimit) {
		u.log.Warn().Str("user_id", userID).Str("channel", channel).Int64("count", count).
			Msg("mfa code rate limit hit")
		return domain.ErrTooManyCodeRequests
	}

	code, err := security.GenerateNumericCode(6)
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	if err := u.cache.Set(ctx, oneTimeCodeKey(userID, channel), security.HashToken(code), u.cfg.CodeTTL); err != nil {
		return fmt.Errorf("store code: %w", err)
	}

	switch channel {
	case domain.MFAMethodSMS:
		err = u.notifier.QueueMFACodeSMS(ctx, user.PhoneNumber, code)
	case domain.MFAMethodEmail:
		err = u.notifier.QueueMFACodeEmail(ctx, user.Email, code)
	}
	if err != nil {
		return fmt.Errorf("queue mfa code: %w", err)
	}

	u.log.Info().Str("user_id", userID).Str("channel", channel).Msg("mfa code sent")
	return nil
}

// VerifyCode checks an SMS/email one-time code. The stored hash is deleted
// only on a successful match, so a typo does not burn the code.
func (u *MFAUsecase) VerifyCode(ctx context.Context, user *domain.User, code, channel string) error {
	if !user.MFAEnabled || user.MFAMethod != channel {
		return domain.ErrMFANotEnabled
	}

	stored, err := u.cache.Get(ctx, oneTimeCodeKey(user.ID, channel))
	if err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			u.metrics.MFAVerification(channel, "expired")
			return domain.ErrCodeExpired
		}
		return err
	}
	if !security.ConstantTimeEquals(stored, security.HashToken(code)) {
		u.metrics.MFAVerification(channel, "failure")
		return domain.ErrInvalidVerificationCode
	}

	if err := u.cache.Del(ctx, oneTimeCodeKey(user.ID, channel)); err != nil {
		return fmt.Errorf("consume code: %w", err)
	}
	u.metrics.MFAVerification(channel, "success")
	return nil
}

// VerifyBackupCode consumes a single-use recovery code and returns how many
// codes the account has left, so callers can warn when the set runs low.
func (u *MFAUsecase) VerifyBackupCode(ctx context.Context, user *domain.User, code string) (int, error) {
	if !user.MFAEnabled {
		return 0, domain.ErrMFANotEnabled
	}

	codeHash := security.HashToken(code)
	matched := -1
	for i, h := range user.BackupCodeHashes {
		if security.ConstantTimeEquals(h, codeHash) {
			matched = i
			break
		}
	}
	if matched < 0 {
		u.metrics.MFAVerification("backup", "failure")
		return 0, domain.ErrInvalidBackupCode
	}

	remaining := make([]string, 0, len(user.BackupCodeHashes)-1)
	remaining = append(remaining, user.BackupCodeHashes[:matched]...)
	remaining = append(remaining, user.BackupCodeHashes[matched+1:]...)
	if err := u.users.UpdateBackupCodes(ctx, user.ID, remaining); err != nil {
		return 0, err
	}
	user.BackupCodeHashes = remaining

	if len(remaining) <= u.cfg.LowBackupCodeThreshold {
		u.log.Warn().Str("user_id", user.ID).Int("remaining", len(remaining)).
			Msg("backup codes running low")
	}
	u.metrics.MFAVerification("backup", "success")
	return len(remaining), nil
}

// RegenerateBackupCodes replaces the full backup code set. The new
// plaintext codes are returned exactly once.
func (u *MFAUsecase) RegenerateBackupCodes(ctx context.Context, userID, password string) ([]string, error) {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, domain.ErrMFANotEnabled
	}
	if err := u.requirePassword(user, password); err != nil {
		return nil, err
	}

	codes, err := security.GenerateBackupCodes(u.cfg.BackupCodeCount)
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = security.HashToken(code)
	}
	if err := u.users.UpdateBackupCodes(ctx, userID, hashes); err != nil {
		return nil, err
	}

	u.log.Info().Str("user_id", userID).Msg("backup codes regenerated")
	return codes, nil
}

// Disable turns MFA off. The caller must re-prove the account password;
// secret, method and backup codes are cleared in one write.
func (u *MFAUsecase) Disable(ctx context.Context, userID, password string) error {
	user, err := u.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return domain.ErrMFANotEnabled
	}
	if err := u.requirePassword(user, password); err != nil {
		return err
	}

	settings := domain.MFASettings{Enabled: false, Method: domain.MFAMethodNone}
	if err := u.users.UpdateMFA(ctx, userID, settings); err != nil {
		return err
	}

	if err := u.notifier.QueueMFADisabled(ctx, user.Email); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("mfa disabled notification failed")
	}
	u.log.Info().Str("user_id", userID).Msg("mfa disabled")
	return nil
}

// VerifyForLogin dispatches a login-time second factor to the right
// verifier. method "backup" consumes a recovery code regardless of the
// account's primary method. The returned string is a user-facing warning
// ("" when there is nothing to say) that rides along on the login response.
func (u *MFAUsecase) VerifyForLogin(ctx context.Context, user *domain.User, code, method string) (string, error) {
	if method == "" {
		method = user.MFAMethod
	}
	switch method {
	case domain.MFAMethodTOTP:
		return "", u.VerifyTOTP(ctx, user, code)
	case domain.MFAMethodSMS, domain.MFAMethodEmail:
		return "", u.VerifyCode(ctx, user, code, method)
	case "backup":
		remaining, err := u.VerifyBackupCode(ctx, user, code)
		if err != nil {
			return "", err
		}
		if remaining <= u.cfg.LowBackupCodeThreshold {
			return fmt.Sprintf("only %d backup codes remaining, regenerate soon", remaining), nil
		}
		return "", nil
	default:
		return "", fmt.Errorf("unsupported mfa method %q", method)
	}
}

func (u *MFAUsecase) requirePassword(user *domain.User, password string) error {
	ok, err := security.ComparePassword(password, user.PasswordHash)
	if err != nil {
		return domain.ErrInvalidCredentials
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}
	return nil
}
