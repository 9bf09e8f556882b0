package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citadel-io/citadel-auth/internal/usecase"
)

// MFAHandler handles MFA enrollment and management. Every route requires
// an authenticated caller.
type MFAHandler struct {
	usecase *usecase.MFAUsecase
}

// NewMFAHandler registers the MFA management routes.
func NewMFAHandler(e *echo.Group, u *usecase.MFAUsecase, auth echo.MiddlewareFunc) {
	handler := &MFAHandler{usecase: u}

	mfa := e.Group("/mfa", auth)
	mfa.POST("/totp/enroll", handler.EnrollTOTP)
	mfa.POST("/totp/verify", handler.VerifyEnrollment)
	mfa.POST("/code/send", handler.SendCode)
	mfa.POST("/backup-codes/regenerate", handler.RegenerateBackupCodes)
	mfa.POST("/disable", handler.Disable)
}

type codeRequest struct {
	Code string `json:"code" validate:"required,len=6"`
}

type sendCodeRequest struct {
	Channel string `json:"channel" validate:"required,oneof=sms email"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required"`
}

// EnrollTOTP starts TOTP enrollment and returns the secret, provisioning
// URI and the one-time view of the backup codes.
func (h *MFAHandler) EnrollTOTP(c echo.Context) error {
	result, err := h.usecase.EnrollTOTP(c.Request().Context(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// VerifyEnrollment confirms the first authenticator code and enables MFA.
func (h *MFAHandler) VerifyEnrollment(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.VerifyEnrollment(c.Request().Context(), currentUserID(c), req.Code); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "mfa enabled"})
}

// SendCode dispatches a one-time code over the account's SMS or email
// channel.
func (h *MFAHandler) SendCode(c echo.Context) error {
	var req sendCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.SendCode(c.Request().Context(), currentUserID(c), req.Channel); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "code sent"})
}

// RegenerateBackupCodes replaces the backup code set; requires the account
// password.
func (h *MFAHandler) RegenerateBackupCodes(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	codes, err := h.usecase.RegenerateBackupCodes(c.Request().Context(), currentUserID(c), req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"backup_codes": codes})
}

// Disable turns MFA off; requires the account password.
func (h *MFAHandler) Disable(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.Disable(c.Request().Context(), currentUserID(c), req.Password); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "mfa disabled"})
}
