package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/citadel-io/citadel-auth/internal/domain"
)

const roleColumns = `id, name, COALESCE(description, ''), permissions, COALESCE(parent_role_id::text, ''),
		is_system, created_at, updated_at`

// PostgresRoleRepo implements domain.RoleRepository using PostgreSQL.
// Permissions are stored as a text[] column.
type PostgresRoleRepo struct {
	db *sql.DB
}

// NewPostgresRoleRepo creates a new repository instance.
func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

func scanRole(row *sql.Row) (*domain.Role, error) {
	role := &domain.Role{}
	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		pq.Array(&role.Permissions),
		&role.ParentRoleID,
		&role.IsSystem,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return role, nil
}

// Create inserts a new role.
func (r *PostgresRoleRepo) Create(ctx context.Context, role *domain.Role) error {
	query := `
		INSERT INTO roles (name, description, permissions, parent_role_id, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7)
		RETURNING id
	`

	role.CreatedAt = time.Now()
	role.UpdatedAt = role.CreatedAt

	err := r.db.QueryRowContext(ctx, query,
		role.Name,
		role.Description,
		pq.Array(role.Permissions),
		role.ParentRoleID,
		role.IsSystem,
		role.CreatedAt,
		role.UpdatedAt,
	).Scan(&role.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrRoleNameTaken
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetByID retrieves a role.
func (r *PostgresRoleRepo) GetByID(ctx context.Context, roleID string) (*domain.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	return scanRole(r.db.QueryRowContext(ctx, query, roleID))
}

// GetByName retrieves a role by its unique name.
func (r *PostgresRoleRepo) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1`
	return scanRole(r.db.QueryRowContext(ctx, query, name))
}

// List returns all roles ordered by name.
func (r *PostgresRoleRepo) List(ctx context.Context) ([]*domain.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY name ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var roles []*domain.Role
	for rows.Next() {
		role := &domain.Role{}
		if err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.Description,
			pq.Array(&role.Permissions),
			&role.ParentRoleID,
			&role.IsSystem,
			&role.CreatedAt,
			&role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Update persists a fully resolved role mutation.
func (r *PostgresRoleRepo) Update(ctx context.Context, role *domain.Role) error {
	query := `
		UPDATE roles
		SET name = $1, description = $2, permissions = $3, parent_role_id = NULLIF($4, '')::uuid, updated_at = $5
		WHERE id = $6
	`
	role.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		role.Name, role.Description, pq.Array(role.Permissions), role.ParentRoleID, role.UpdatedAt, role.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrRoleNameTaken
		}
		return fmt.Errorf("database error: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

// Delete removes a role.
func (r *PostgresRoleRepo) Delete(ctx context.Context, roleID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrRoleNotFound
	}
	return nil
}

// ListForUser returns the roles directly assigned to a user, including
// each role's parent pointer so the resolver can walk the chain.
func (r *PostgresRoleRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Role, error) {
	query := `
		SELECT r.id, r.name, COALESCE(r.description, ''), r.permissions,
			COALESCE(r.parent_role_id::text, ''), r.is_system, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var roles []*domain.Role
	for rows.Next() {
		role := &domain.Role{}
		if err := rows.Scan(
			&role.ID,
			&role.Name,
			&role.Description,
			pq.Array(&role.Permissions),
			&role.ParentRoleID,
			&role.IsSystem,
			&role.CreatedAt,
			&role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// HasAssignment reports whether the user already holds the role.
func (r *PostgresRoleRepo) HasAssignment(ctx context.Context, userID, roleID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role_id = $2)`,
		userID, roleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return exists, nil
}

// InsertAssignment links a role to a user.
func (r *PostgresRoleRepo) InsertAssignment(ctx context.Context, userID, roleID, assignedBy string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, assigned_by, created_at) VALUES ($1, $2, $3, $4)`,
		userID, roleID, assignedBy, time.Now())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrRoleAlreadyAssigned
		}
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// DeleteAssignment unlinks a role from a user.
func (r *PostgresRoleRepo) DeleteAssignment(ctx context.Context, userID, roleID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrRoleNotAssigned
	}
	return nil
}

// CountAssignments counts users currently holding the role.
func (r *PostgresRoleRepo) CountAssignments(ctx context.Context, roleID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("database error: %w", err)
	}
	return count, nil
}

// ListAssignedUserIDs returns every user holding the role, used for cache
// invalidation after a role mutation.
func (r *PostgresRoleRepo) ListAssignedUserIDs(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
