package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/citadel-io/citadel-auth/internal/domain"
	"github.com/citadel-io/citadel-auth/internal/metrics"
)

// PermissionCatalogue is the fixed set of valid "resource:action" strings.
// Role writes are validated against it; unknown permissions are rejected.
var PermissionCatalogue = []domain.Permission{
	{Resource: "users", Action: "read", Description: "View user information"},
	{Resource: "users", Action: "write", Description: "Create and update users"},
	{Resource: "users", Action: "delete", Description: "Delete users"},
	{Resource: "roles", Action: "read", Description: "View roles"},
	{Resource: "roles", Action: "write", Description: "Create and update roles"},
	{Resource: "roles", Action: "delete", Description: "Delete roles"},
	{Resource: "sessions", Action: "read", Description: "View sessions"},
	{Resource: "sessions", Action: "write", Description: "Manage sessions"},
	{Resource: "subscriptions", Action: "read", Description: "View subscriptions"},
	{Resource: "subscriptions", Action: "write", Description: "Manage subscriptions"},
	{Resource: "payments", Action: "read", Description: "View payments"},
	{Resource: "payments", Action: "write", Description: "Process payments"},
	{Resource: "admin", Action: "access", Description: "Access admin dashboard"},
	{Resource: "admin", Action: "manage", Description: "Full admin access"},
}

// CreateRoleInput is the payload for RBACUsecase.CreateRole.
type CreateRoleInput struct {
	Name         string
	Description  string
	Permissions  []string
	ParentRoleID string
}

// RBACUsecase resolves hierarchical role-based permissions and manages the
// role catalogue. Cache invalidation on every mutation is a correctness
// requirement: stale entries are a privilege-escalation or lockout risk.
type RBACUsecase struct {
	roles     domain.RoleRepository
	users     domain.UserRepository
	cache     domain.Cache
	cfg       Config
	log       zerolog.Logger
	metrics   *metrics.Metrics
	catalogue map[string]struct{}
}

// NewRBACUsecase wires the resolver.
func NewRBACUsecase(roles domain.RoleRepository, users domain.UserRepository, cache domain.Cache,
	cfg Config, log zerolog.Logger, m *metrics.Metrics) *RBACUsecase {

	catalogue := make(map[string]struct{}, len(PermissionCatalogue))
	for _, p := range PermissionCatalogue {
		catalogue[p.Key()] = struct{}{}
	}
	return &RBACUsecase{
		roles:     roles,
		users:     users,
		cache:     cache,
		cfg:       cfg,
		log:       log.With().Str("component", "rbac").Logger(),
		metrics:   m,
		catalogue: catalogue,
	}
}

// Permissions returns the fixed catalogue.
func (u *RBACUsecase) Permissions() []domain.Permission {
	return PermissionCatalogue
}

// Resolve returns the de-duplicated permission set for a user, walking
// parent chains of every directly assigned role. Cache-first.
func (u *RBACUsecase) Resolve(ctx context.Context, userID string) ([]string, error) {
	key := permissionsKey(userID)
	if cached, err := u.cache.Get(ctx, key); err == nil {
		var permissions []string
		if err := json.Unmarshal([]byte(cached), &permissions); err == nil {
			u.metrics.PermissionCache("hit")
			return permissions, nil
		}
	}
	u.metrics.PermissionCache("miss")

	_, permissions, err := u.resolveFromStore(ctx, userID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(permissions); err == nil {
		if err := u.cache.Set(ctx, key, string(encoded), u.cfg.PermissionCacheTTL); err != nil {
			u.log.Warn().Err(err).Str("user_id", userID).Msg("permission cache write failed")
		}
	}
	return permissions, nil
}

// RoleNamesAndPermissions loads both the role name list (for token claims)
// and the resolved permission set, bypassing the cache so a fresh login
// always reflects current assignments.
func (u *RBACUsecase) RoleNamesAndPermissions(ctx context.Context, userID string) ([]string, []string, error) {
	return u.resolveFromStore(ctx, userID)
}

// HasPermission reports whether the user's resolved set contains the key.
func (u *RBACUsecase) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	permissions, err := u.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range permissions {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

func (u *RBACUsecase) resolveFromStore(ctx context.Context, userID string) ([]string, []string, error) {
	assigned, err := u.roles.ListForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	names := make([]string, 0, len(assigned))
	set := make(map[string]struct{})
	for _, role := range assigned {
		names = append(names, role.Name)
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
		if role.ParentRoleID != "" {
			if err := u.collectInherited(ctx, role.ParentRoleID, set); err != nil {
				return nil, nil, err
			}
		}
	}

	permissions := make([]string, 0, len(set))
	for p := range set {
		permissions = append(permissions, p)
	}
	sort.Strings(permissions)
	sort.Strings(names)
	return names, permissions, nil
}

// collectInherited walks the parent chain upward. Cycles are rejected at
// write time, so the walk terminates; a missing parent ends the chain.
func (u *RBACUsecase) collectInherited(ctx context.Context, roleID string, set map[string]struct{}) error {
	for roleID != "" {
		role, err := u.roles.GetByID(ctx, roleID)
		if err != nil {
			if errors.Is(err, domain.ErrRoleNotFound) {
				return nil
			}
			return err
		}
		for _, p := range role.Permissions {
			set[p] = struct{}{}
		}
		roleID = role.ParentRoleID
	}
	return nil
}

// CreateRole validates and inserts a new non-system role.
func (u *RBACUsecase) CreateRole(ctx context.Context, input CreateRoleInput) (*domain.Role, error) {
	if input.Name == "" {
		return nil, errors.New("role name is required")
	}
	if _, err := u.roles.GetByName(ctx, input.Name); err == nil {
		return nil, domain.ErrRoleNameTaken
	} else if !errors.Is(err, domain.ErrRoleNotFound) {
		return nil, err
	}

	if err := u.validatePermissions(input.Permissions); err != nil {
		return nil, err
	}
	if input.ParentRoleID != "" {
		if _, err := u.roles.GetByID(ctx, input.ParentRoleID); err != nil {
			return nil, err
		}
	}

	role := &domain.Role{
		Name:         input.Name,
		Description:  input.Description,
		Permissions:  input.Permissions,
		ParentRoleID: input.ParentRoleID,
	}
	if err := u.roles.Create(ctx, role); err != nil {
		return nil, err
	}

	u.log.Info().Str("role_id", role.ID).Str("name", role.Name).Msg("role created")
	return role, nil
}

// GetRole returns one role.
func (u *RBACUsecase) GetRole(ctx context.Context, roleID string) (*domain.Role, error) {
	return u.roles.GetByID(ctx, roleID)
}

// ListRoles returns all roles.
func (u *RBACUsecase) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	return u.roles.List(ctx)
}

// UpdateRole applies a partial mutation. System roles reject all writes;
// parent changes are checked for cycles before anything is persisted.
func (u *RBACUsecase) UpdateRole(ctx context.Context, roleID string, upd domain.RoleUpdate) (*domain.Role, error) {
	role, err := u.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsSystem {
		return nil, domain.ErrSystemRoleImmutable
	}

	if upd.Name != nil && *upd.Name != role.Name {
		if _, err := u.roles.GetByName(ctx, *upd.Name); err == nil {
			return nil, domain.ErrRoleNameTaken
		} else if !errors.Is(err, domain.ErrRoleNotFound) {
			return nil, err
		}
		role.Name = *upd.Name
	}
	if upd.Description != nil {
		role.Description = *upd.Description
	}
	if upd.Permissions != nil {
		if err := u.validatePermissions(*upd.Permissions); err != nil {
			return nil, err
		}
		role.Permissions = *upd.Permissions
	}
	if upd.ParentRoleID != nil {
		parentID := *upd.ParentRoleID
		if parentID != "" {
			if _, err := u.roles.GetByID(ctx, parentID); err != nil {
				return nil, err
			}
			cycle, err := u.wouldCreateCycle(ctx, roleID, parentID)
			if err != nil {
				return nil, err
			}
			if cycle {
				return nil, domain.ErrRoleCycle
			}
		}
		role.ParentRoleID = parentID
	}

	if err := u.roles.Update(ctx, role); err != nil {
		return nil, err
	}

	if err := u.invalidateRoleHolders(ctx, roleID); err != nil {
		u.log.Warn().Err(err).Str("role_id", roleID).Msg("permission cache invalidation failed")
	}
	u.log.Info().Str("role_id", roleID).Msg("role updated")
	return role, nil
}

// DeleteRole removes an unassigned, non-system role.
func (u *RBACUsecase) DeleteRole(ctx context.Context, roleID string) error {
	role, err := u.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return domain.ErrSystemRoleImmutable
	}

	count, err := u.roles.CountAssignments(ctx, roleID)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrRoleInUse
	}

	if err := u.roles.Delete(ctx, roleID); err != nil {
		return err
	}
	u.log.Info().Str("role_id", roleID).Msg("role deleted")
	return nil
}

// AssignRole links a role to a user. Duplicate assignment is rejected and
// the user's cached permission set is invalidated.
func (u *RBACUsecase) AssignRole(ctx context.Context, userID, roleID, assignedBy string) error {
	if _, err := u.users.GetByID(ctx, userID); err != nil {
		return err
	}
	if _, err := u.roles.GetByID(ctx, roleID); err != nil {
		return err
	}

	held, err := u.roles.HasAssignment(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if held {
		return domain.ErrRoleAlreadyAssigned
	}

	if err := u.roles.InsertAssignment(ctx, userID, roleID, assignedBy); err != nil {
		return err
	}

	if err := u.cache.Del(ctx, permissionsKey(userID), userProfileKey(userID)); err != nil {
		return fmt.Errorf("invalidate permission cache: %w", err)
	}
	u.log.Info().Str("user_id", userID).Str("role_id", roleID).Str("assigned_by", assignedBy).
		Msg("role assigned")
	return nil
}

// RemoveRole unlinks a role from a user; removing an absent assignment is
// rejected with a descriptive error.
func (u *RBACUsecase) RemoveRole(ctx context.Context, userID, roleID, removedBy string) error {
	held, err := u.roles.HasAssignment(ctx, userID, roleID)
	if err != nil {
		return err
	}
	if !held {
		return domain.ErrRoleNotAssigned
	}

	if err := u.roles.DeleteAssignment(ctx, userID, roleID); err != nil {
		return err
	}

	if err := u.cache.Del(ctx, permissionsKey(userID), userProfileKey(userID)); err != nil {
		return fmt.Errorf("invalidate permission cache: %w", err)
	}
	u.log.Info().Str("user_id", userID).Str("role_id", roleID).Str("removed_by", removedBy).
		Msg("role removed")
	return nil
}

func (u *RBACUsecase) validatePermissions(permissions []string) error {
	for _, p := range permissions {
		if _, ok := u.catalogue[p]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownPermission, p)
		}
	}
	return nil
}

// wouldCreateCycle walks the candidate parent's ancestor chain and reports
// whether roleID appears in it.
func (u *RBACUsecase) wouldCreateCycle(ctx context.Context, roleID, candidateParentID string) (bool, error) {
	current := candidateParentID
	for current != "" {
		if current == roleID {
			return true, nil
		}
		parent, err := u.roles.GetByID(ctx, current)
		if err != nil {
			if errors.Is(err, domain.ErrRoleNotFound) {
				return false, nil
			}
			return false, err
		}
		current = parent.ParentRoleID
	}
	return false, nil
}

func (u *RBACUsecase) invalidateRoleHolders(ctx context.Context, roleID string) error {
	userIDs, err := u.roles.ListAssignedUserIDs(ctx, roleID)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(userIDs)*2)
	for _, id := range userIDs {
		keys = append(keys, permissionsKey(id), userProfileKey(id))
	}
	return u.cache.Del(ctx, keys...)
}
