package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/citadel-io/citadel-auth/internal/domain"
)

// statusFor maps domain errors to HTTP status codes. Unmapped errors are
// 500s and their detail never reaches the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenReuseDetected),
		errors.Is(err, domain.ErrInvalidVerificationCode),
		errors.Is(err, domain.ErrInvalidBackupCode),
		errors.Is(err, domain.ErrCodeExpired),
		errors.Is(err, domain.ErrCodeAlreadyUsed):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccountDeactivated),
		errors.Is(err, domain.ErrEmailNotVerified),
		errors.Is(err, domain.ErrSystemRoleImmutable):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrRoleNotFound),
		errors.Is(err, domain.ErrEnrollmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEmailAlreadyExists),
		errors.Is(err, domain.ErrRoleNameTaken),
		errors.Is(err, domain.ErrRoleAlreadyAssigned),
		errors.Is(err, domain.ErrRoleNotAssigned),
		errors.Is(err, domain.ErrRoleInUse),
		errors.Is(err, domain.ErrMFAAlreadyEnabled),
		errors.Is(err, domain.ErrMFANotEnabled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPasswordRecentlyUsed),
		errors.Is(err, domain.ErrUnknownPermission),
		errors.Is(err, domain.ErrRoleCycle):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTooManyCodeRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the canonical error envelope. Account lockout gets a
// Retry-After header alongside the 429.
func respondError(c echo.Context, err error) error {
	if locked, ok := domain.IsAccountLocked(err); ok {
		c.Response().Header().Set("Retry-After", strconv.FormatInt(locked.RetryAfterSeconds, 10))
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"error":       "account temporarily locked",
			"retry_after": locked.RetryAfterSeconds,
		})
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return c.JSON(status, echo.Map{"error": "internal server error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
