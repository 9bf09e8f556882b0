package security

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// EnrollmentSkew is the TOTP tolerance window (±2 steps) applied during
	// enrollment, absorbing clock drift while the authenticator is set up.
	EnrollmentSkew uint = 2
	// VerificationSkew is the stricter post-enrollment window (±1 step).
	VerificationSkew uint = 1
)

// GenerateTOTPSecret generates a random Base32 string (compatible with TOTP secrets).
func GenerateTOTPSecret() (string, error) {
	secret := make([]byte, 20)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	// Google Authenticator requires Base32, not Base64
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret), nil
}

// ProvisioningURI returns the otpauth:// URI for QR code generation
// (compatible with Google Authenticator).
func ProvisioningURI(issuer, email, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		url.PathEscape(issuer), url.PathEscape(email), secret, url.QueryEscape(issuer))
}

// ValidateTOTP checks a 6-digit code against the secret with an explicit
// skew window, at the given reference time.
func ValidateTOTP(code, secret string, skew uint, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
