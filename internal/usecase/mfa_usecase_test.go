package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citadel-io/citadel-auth/internal/domain"
)

func totpCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	require.NoError(t, err)
	return code
}

// enrollTOTP runs the full enrollment flow for a seeded user.
func enrollTOTP(t *testing.T, env *testEnv, userID string) *EnrollmentResult {
	t.Helper()
	enrollment, err := env.mfa.EnrollTOTP(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, env.mfa.VerifyEnrollment(context.Background(), userID,
		totpCodeAt(t, enrollment.Secret, time.Now())))
	return enrollment
}

func TestEnrollTOTPLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")

	enrollment, err := env.mfa.EnrollTOTP(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")
	assert.Len(t, enrollment.BackupCodes, env.cfg.BackupCodeCount)

	// MFA is not on yet; a wrong code leaves the enrollment pending.
	err = env.mfa.VerifyEnrollment(ctx, user.ID, "000000")
	assert.ErrorIs(t, err, domain.ErrInvalidVerificationCode)

	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.MFAEnabled)

	// The right code completes it.
	require.NoError(t, env.mfa.VerifyEnrollment(ctx, user.ID,
		totpCodeAt(t, enrollment.Secret, time.Now())))

	stored, err = env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.MFAEnabled)
	assert.Equal(t, domain.MFAMethodTOTP, stored.MFAMethod)
	assert.NotEqual(t, enrollment.Secret, stored.MFASecret, "secret is stored encrypted")
	assert.Len(t, stored.BackupCodeHashes, env.cfg.BackupCodeCount)

	// A second enrollment attempt is rejected.
	_, err = env.mfa.EnrollTOTP(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrMFAAlreadyEnabled)
}

func TestEnrollmentExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")

	enrollment, err := env.mfa.EnrollTOTP(ctx, user.ID)
	require.NoError(t, err)

	env.redis.FastForward(env.cfg.EnrollmentTTL + time.Second)
	err = env.mfa.VerifyEnrollment(ctx, user.ID,
		totpCodeAt(t, enrollment.Secret, time.Now()))
	assert.ErrorIs(t, err, domain.ErrEnrollmentNotFound)
}

func TestEnrollmentAcceptsDriftedCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")

	enrollment, err := env.mfa.EnrollTOTP(ctx, user.ID)
	require.NoError(t, err)

	// An authenticator running a minute behind still enrolls.
	drifted := totpCodeAt(t, enrollment.Secret, time.Now().Add(-60*time.Second))
	assert.NoError(t, env.mfa.VerifyEnrollment(ctx, user.ID, drifted))
}

func TestVerifyTOTPReplayGuard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")
	enrollment := enrollTOTP(t, env, user.ID)

	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)

	code := totpCodeAt(t, enrollment.Secret, time.Now())
	require.NoError(t, env.mfa.VerifyTOTP(ctx, stored, code))

	// The same code is rejected until the replay marker lapses.
	err = env.mfa.VerifyTOTP(ctx, stored, code)
	assert.ErrorIs(t, err, domain.ErrCodeAlreadyUsed)

	env.redis.FastForward(env.cfg.UsedCodeTTL + time.Second)
	// After the marker expires the code may have left its validity window,
	// so only the replay error must be gone.
	err = env.mfa.VerifyTOTP(ctx, stored, code)
	assert.NotErrorIs(t, err, domain.ErrCodeAlreadyUsed)
}

func TestVerifyTOTPRequiresEnabledMethod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")

	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	err = env.mfa.VerifyTOTP(ctx, stored, "123456")
	assert.ErrorIs(t, err, domain.ErrMFANotEnabled)
}

// enableChannelMFA flips a user straight into SMS or email MFA.
func enableChannelMFA(t *testing.T, env *testEnv, userID, method string) {
	t.Helper()
	require.NoError(t, env.users.UpdateMFA(context.Background(), userID, domain.MFASettings{
		Enabled: true,
		Method:  method,
	}))
}

func TestSendAndVerifyCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")
	env.users.users[user.ID].PhoneNumber = "+15550100"
	enableChannelMFA(t, env, user.ID, domain.MFAMethodSMS)

	require.NoError(t, env.mfa.SendCode(ctx, user.ID, domain.MFAMethodSMS))
	msg, ok := env.notifier.last("mfa_code_sms")
	require.True(t, ok)
	assert.Equal(t, "+15550100", msg.Recipient)
	assert.Len(t, msg.Payload, 6)

	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)

	// A wrong guess does not burn the code.
	err = env.mfa.VerifyCode(ctx, stored, "000000", domain.MFAMethodSMS)
	assert.ErrorIs(t, err, domain.ErrInvalidVerificationCode)
	require.NoError(t, env.mfa.VerifyCode(ctx, stored, msg.Payload, domain.MFAMethodSMS))

	// A correct verification consumes it.
	err = env.mfa.VerifyCode(ctx, stored, msg.Payload, domain.MFAMethodSMS)
	assert.ErrorIs(t, err, domain.ErrCodeExpired)
}

func TestSendCodeRateLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")
	enableChannelMFA(t, env, user.ID, domain.MFAMethodEmail)

	for i := 0; i < env.cfg.CodeRateLimit; i++ {
		require.NoError(t, env.mfa.SendCode(ctx, user.ID, domain.MFAMethodEmail))
	}
	err := env.mfa.SendCode(ctx, user.ID, domain.MFAMethodEmail)
	assert.ErrorIs(t, err, domain.ErrTooManyCodeRequests)

	// The window rolls over.
	env.redis.FastForward(env.cfg.CodeRateWindow + time.Second)
	assert.NoError(t, env.mfa.SendCode(ctx, user.ID, domain.MFAMethodEmail))
}

func TestCodeExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")
	enableChannelMFA(t, env, user.ID, domain.MFAMethodEmail)

	require.NoError(t, env.mfa.SendCode(ctx, user.ID, domain.MFAMethodEmail))
	msg, _ := env.notifier.last("mfa_code_email")

	env.redis.FastForward(env.cfg.CodeTTL + time.Second)
	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	err = env.mfa.VerifyCode(ctx, stored, msg.Payload, domain.MFAMethodEmail)
	assert.ErrorIs(t, err, domain.ErrCodeExpired)
}

func TestRegenerateBackupCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")
	enrollment := enrollTOTP(t, env, user.ID)

	_, err := env.mfa.RegenerateBackupCodes(ctx, user.ID, "wrong password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	codes, err := env.mfa.RegenerateBackupCodes(ctx, user.ID, "some password")
	require.NoError(t, err)
	assert.Len(t, codes, env.cfg.BackupCodeCount)
	assert.NotEqual(t, enrollment.BackupCodes, codes)

	// Old codes stop working, new ones work.
	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	_, err = env.mfa.VerifyBackupCode(ctx, stored, enrollment.BackupCodes[0])
	assert.ErrorIs(t, err, domain.ErrInvalidBackupCode)
	remaining, err := env.mfa.VerifyBackupCode(ctx, stored, codes[0])
	assert.NoError(t, err)
	assert.Equal(t, env.cfg.BackupCodeCount-1, remaining)
}

func TestDisableMFA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")
	enrollTOTP(t, env, user.ID)

	err := env.mfa.Disable(ctx, user.ID, "wrong password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	require.NoError(t, env.mfa.Disable(ctx, user.ID, "some password"))

	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, stored.MFAEnabled)
	assert.Empty(t, stored.MFASecret)
	assert.Empty(t, stored.BackupCodeHashes)

	_, ok := env.notifier.last("mfa_disabled")
	assert.True(t, ok)

	// Disabling twice is an error.
	err = env.mfa.Disable(ctx, user.ID, "some password")
	assert.ErrorIs(t, err, domain.ErrMFANotEnabled)
}

func TestVerifyForLoginDispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "alice@example.com", "some password")
	enrollment := enrollTOTP(t, env, user.ID)

	stored, err := env.users.GetByID(ctx, user.ID)
	require.NoError(t, err)

	// Empty method falls back to the account's configured one.
	code := totpCodeAt(t, enrollment.Secret, time.Now())
	warning, err := env.mfa.VerifyForLogin(ctx, stored, code, "")
	require.NoError(t, err)
	assert.Empty(t, warning)

	_, err = env.mfa.VerifyForLogin(ctx, stored, "whatever", "carrier-pigeon")
	assert.Error(t, err)
}
