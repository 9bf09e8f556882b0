package usecase

import "fmt"

// Cache key builders. The layout is documented on domain.Cache.

func failedLoginKey(email string) string    { return fmt.Sprintf("failed_login:%s", email) }
func accountLockKey(email string) string    { return fmt.Sprintf("account_lock:%s", email) }
func refreshTokenKey(hash string) string    { return fmt.Sprintf("refresh_token:%s", hash) }
func usedTokenKey(hash string) string       { return fmt.Sprintf("refresh_token_used:%s", hash) }
func familyRevokedKey(family string) string { return fmt.Sprintf("token_family_revoked:%s", family) }
func mfaChallengeKey(hash string) string    { return fmt.Sprintf("mfa:%s", hash) }
func enrollmentKey(userID string) string    { return fmt.Sprintf("mfa_enrollment:%s", userID) }
func usedCodeKey(userID, code string) string {
	return fmt.Sprintf("mfa_used_code:%s:%s", userID, code)
}
func emailVerifyKey(hash string) string    { return fmt.Sprintf("email_verify:%s", hash) }
func passwordResetKey(hash string) string  { return fmt.Sprintf("password_reset:%s", hash) }
func resetTokensKey(userID string) string  { return fmt.Sprintf("reset_tokens:%s", userID) }
func permissionsKey(userID string) string  { return fmt.Sprintf("user_permissions:%s", userID) }
func userProfileKey(userID string) string  { return fmt.Sprintf("user_profile:%s", userID) }

func oneTimeCodeKey(userID, channel string) string {
	return fmt.Sprintf("mfa_%s_code:%s", channel, userID)
}

func codeRateKey(userID, channel string) string {
	return fmt.Sprintf("mfa_%s_rate:%s", channel, userID)
}
