package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citadel-io/citadel-auth/internal/domain"
	"github.com/citadel-io/citadel-auth/internal/usecase"
)

// RBACHandler exposes role and assignment management. All routes require
// authentication plus the matching roles:* permission.
type RBACHandler struct {
	usecase *usecase.RBACUsecase
}

// NewRBACHandler registers the role management routes.
func NewRBACHandler(e *echo.Group, u *usecase.RBACUsecase, auth echo.MiddlewareFunc) {
	handler := &RBACHandler{usecase: u}

	roles := e.Group("/roles", auth)
	roles.GET("", handler.ListRoles, RequirePermission("roles:read"))
	roles.GET("/permissions", handler.ListPermissions, RequirePermission("roles:read"))
	roles.GET("/:id", handler.GetRole, RequirePermission("roles:read"))
	roles.POST("", handler.CreateRole, RequirePermission("roles:write"))
	roles.PATCH("/:id", handler.UpdateRole, RequirePermission("roles:write"))
	roles.DELETE("/:id", handler.DeleteRole, RequirePermission("roles:delete"))

	users := e.Group("/users", auth)
	users.GET("/:id/permissions", handler.UserPermissions, RequirePermission("users:read"))
	users.POST("/:id/roles/:roleId", handler.AssignRole, RequirePermission("roles:write"))
	users.DELETE("/:id/roles/:roleId", handler.RemoveRole, RequirePermission("roles:write"))
}

type createRoleRequest struct {
	Name         string   `json:"name" validate:"required"`
	Description  string   `json:"description"`
	Permissions  []string `json:"permissions"`
	ParentRoleID string   `json:"parent_role_id"`
}

type updateRoleRequest struct {
	Name         *string   `json:"name"`
	Description  *string   `json:"description"`
	Permissions  *[]string `json:"permissions"`
	ParentRoleID *string   `json:"parent_role_id"`
}

// ListRoles returns every role.
func (h *RBACHandler) ListRoles(c echo.Context) error {
	roles, err := h.usecase.ListRoles(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"roles": roles})
}

// ListPermissions returns the fixed permission catalogue.
func (h *RBACHandler) ListPermissions(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"permissions": h.usecase.Permissions()})
}

// GetRole returns one role by id.
func (h *RBACHandler) GetRole(c echo.Context) error {
	role, err := h.usecase.GetRole(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, role)
}

// CreateRole creates a custom role.
func (h *RBACHandler) CreateRole(c echo.Context) error {
	var req createRoleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	role, err := h.usecase.CreateRole(c.Request().Context(), usecase.CreateRoleInput{
		Name:         req.Name,
		Description:  req.Description,
		Permissions:  req.Permissions,
		ParentRoleID: req.ParentRoleID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, role)
}

// UpdateRole applies a partial update to a role.
func (h *RBACHandler) UpdateRole(c echo.Context) error {
	var req updateRoleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	role, err := h.usecase.UpdateRole(c.Request().Context(), c.Param("id"), domain.RoleUpdate{
		Name:         req.Name,
		Description:  req.Description,
		Permissions:  req.Permissions,
		ParentRoleID: req.ParentRoleID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, role)
}

// DeleteRole removes an unassigned custom role.
func (h *RBACHandler) DeleteRole(c echo.Context) error {
	if err := h.usecase.DeleteRole(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "role deleted"})
}

// UserPermissions returns the resolved permission set for a user.
func (h *RBACHandler) UserPermissions(c echo.Context) error {
	permissions, err := h.usecase.Resolve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"permissions": permissions})
}

// AssignRole grants a role to a user.
func (h *RBACHandler) AssignRole(c echo.Context) error {
	err := h.usecase.AssignRole(c.Request().Context(), c.Param("id"), c.Param("roleId"), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "role assigned"})
}

// RemoveRole revokes a role from a user.
func (h *RBACHandler) RemoveRole(c echo.Context) error {
	err := h.usecase.RemoveRole(c.Request().Context(), c.Param("id"), c.Param("roleId"), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "role removed"})
}
