package domain

import (
	"context"
	"time"
)

// Role groups permissions. ParentRoleID enables single-parent inheritance;
// system roles are immutable and undeletable.
type Role struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Permissions  []string  `json:"permissions"`
	ParentRoleID string    `json:"parent_role_id,omitempty"`
	IsSystem     bool      `json:"is_system"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Permission is one entry of the fixed catalogue, keyed "resource:action".
type Permission struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Key returns the canonical "resource:action" form.
func (p Permission) Key() string { return p.Resource + ":" + p.Action }

// RoleUpdate carries partial role mutations; nil fields are left untouched.
type RoleUpdate struct {
	Name         *string
	Description  *string
	Permissions  *[]string
	ParentRoleID *string
}

// RoleRepository persists roles and user-role assignments.
type RoleRepository interface {
	Create(ctx context.Context, role *Role) error
	GetByID(ctx context.Context, roleID string) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, roleID string) error

	ListForUser(ctx context.Context, userID string) ([]*Role, error)
	HasAssignment(ctx context.Context, userID, roleID string) (bool, error)
	InsertAssignment(ctx context.Context, userID, roleID, assignedBy string) error
	DeleteAssignment(ctx context.Context, userID, roleID string) error
	CountAssignments(ctx context.Context, roleID string) (int, error)
	ListAssignedUserIDs(ctx context.Context, roleID string) ([]string, error)
}
