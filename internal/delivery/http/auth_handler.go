package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citadel-io/citadel-auth/internal/usecase"
)

// AuthHandler represents the HTTP delivery layer for authentication.
type AuthHandler struct {
	usecase *usecase.AuthUsecase
}

// NewAuthHandler registers the authentication routes. Public routes go on
// the group directly; session management requires a valid access token.
func NewAuthHandler(e *echo.Group, u *usecase.AuthUsecase, auth echo.MiddlewareFunc) {
	handler := &AuthHandler{usecase: u}

	e.POST("/register", handler.Register)
	e.POST("/verify-email", handler.VerifyEmail)
	e.POST("/resend-verification", handler.ResendVerification)
	e.POST("/login", handler.Login)
	e.POST("/login/mfa", handler.CompleteMFALogin)
	e.POST("/refresh", handler.Refresh)
	e.POST("/logout", handler.Logout)
	e.POST("/password/forgot", handler.ForgotPassword)
	e.POST("/password/reset", handler.ResetPassword)

	sessions := e.Group("/sessions", auth)
	sessions.GET("", handler.ListSessions)
	sessions.DELETE("/:id", handler.RevokeSession)
	sessions.DELETE("", handler.RevokeAllSessions)

	e.POST("/password/change", handler.ChangePassword, auth)
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Name        string `json:"name" validate:"required"`
	Password    string `json:"password" validate:"required,min=8"`
	PhoneNumber string `json:"phone_number"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type mfaLoginRequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Method   string `json:"method"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func requestContext(c echo.Context) usecase.RequestContext {
	return usecase.RequestContext{
		UserAgent: c.Request().UserAgent(),
		IPAddress: c.RealIP(),
	}
}

// Register creates a new account and sends the verification email.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, err := h.usecase.Register(c.Request().Context(), usecase.RegisterInput{
		Email:       req.Email,
		Name:        req.Name,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// VerifyEmail consumes an email verification token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.VerifyEmail(c.Request().Context(), req.Token); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "email verified"})
}

// ResendVerification re-issues the verification email. The response does
// not reveal whether the address exists.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.ResendVerification(c.Request().Context(), req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "verification email sent if the account exists"})
}

// Login handles the initial authentication request. An MFA-enabled account
// gets a 202 with a challenge instead of tokens.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	result, err := h.usecase.Login(c.Request().Context(), req.Email, req.Password, requestContext(c))
	if err != nil {
		return respondError(c, err)
	}
	if result.Challenge != nil {
		return c.JSON(http.StatusAccepted, result.Challenge)
	}
	return c.JSON(http.StatusOK, result.Tokens)
}

// CompleteMFALogin exchanges a pending challenge and a second factor for
// tokens.
func (h *AuthHandler) CompleteMFALogin(c echo.Context) error {
	var req mfaLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	tokens, err := h.usecase.CompleteMFALogin(c.Request().Context(),
		req.MFAToken, req.Code, req.Method, requestContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, tokens)
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	tokens, err := h.usecase.Refresh(c.Request().Context(), req.RefreshToken, requestContext(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, tokens)
}

// Logout revokes the presented refresh token's session.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.Logout(c.Request().Context(), req.RefreshToken); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// ListSessions returns the caller's active sessions; the one serving this
// request is flagged.
func (h *AuthHandler) ListSessions(c echo.Context) error {
	sessions, err := h.usecase.ListSessions(c.Request().Context(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}

	current := currentSessionID(c)
	out := make([]echo.Map, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, echo.Map{
			"id":               s.ID,
			"device_info":      s.DeviceInfo,
			"ip_address":       s.IPAddress,
			"created_at":       s.CreatedAt,
			"last_activity_at": s.LastActivityAt,
			"expires_at":       s.ExpiresAt,
			"current":          s.ID == current,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

// RevokeSession revokes one of the caller's sessions.
func (h *AuthHandler) RevokeSession(c echo.Context) error {
	if err := h.usecase.RevokeSession(c.Request().Context(), currentUserID(c), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "session revoked"})
}

// RevokeAllSessions logs the caller out everywhere.
func (h *AuthHandler) RevokeAllSessions(c echo.Context) error {
	if err := h.usecase.RevokeAllSessions(c.Request().Context(), currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "all sessions revoked"})
}

// ForgotPassword issues a reset token. Always 200; unknown addresses are
// not distinguishable.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "reset email sent if the account exists"})
}

// ResetPassword consumes a reset token and sets a new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.ResetPassword(c.Request().Context(), req.Token, req.NewPassword); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password reset"})
}

// ChangePassword is the authenticated password change.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := h.usecase.ChangePassword(c.Request().Context(),
		currentUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}
