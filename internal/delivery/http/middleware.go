package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/citadel-io/citadel-auth/pkg/security"
)

// Context keys populated by Authenticate.
const (
	ctxUserID      = "user_id"
	ctxEmail       = "email"
	ctxSessionID   = "session_id"
	ctxRoles       = "roles"
	ctxPermissions = "permissions"
)

// Authenticate validates the bearer access token and injects its claims
// into the echo context for downstream handlers.
func Authenticate(codec *security.TokenCodec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization header"})
			}

			// Expected format: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format"})
			}

			claims, err := codec.ParseAccess(parts[1])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxEmail, claims.Email)
			c.Set(ctxSessionID, claims.SessionID)
			c.Set(ctxRoles, claims.Roles)
			c.Set(ctxPermissions, claims.Permissions)

			return next(c)
		}
	}
}

// RequirePermission gates a route on a "resource:action" permission carried
// in the access token. admin:manage implies everything.
func RequirePermission(permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			permissions, ok := c.Get(ctxPermissions).([]string)
			if !ok {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied: insufficient permissions"})
			}
			for _, p := range permissions {
				if p == permission || p == "admin:manage" {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied: insufficient permissions"})
		}
	}
}

func currentUserID(c echo.Context) string {
	id, _ := c.Get(ctxUserID).(string)
	return id
}

func currentSessionID(c echo.Context) string {
	id, _ := c.Get(ctxSessionID).(string)
	return id
}
