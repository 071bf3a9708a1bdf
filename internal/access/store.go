package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads resources and membership edges from Postgres. Soft-deleted rows
// are filtered at the query level so a deleted entity is indistinguishable
// from a missing one.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	var o Organization
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, is_personal, created_at, updated_at
		FROM organization
		WHERE id = $1 AND is_deleted = FALSE`,
		id,
	).Scan(&o.ID, &o.Name, &o.Slug, &o.IsPersonal, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, owner_id, name, COALESCE(description, ''), status, created_at, updated_at
		FROM project
		WHERE id = $1 AND is_deleted = FALSE`,
		id,
	).Scan(&p.ID, &p.OrganizationID, &p.OwnerID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, name, status, created_at, updated_at
		FROM task
		WHERE id = $1 AND is_deleted = FALSE`,
		id,
	).Scan(&t.ID, &t.ProjectID, &t.Name, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (*Assignment, error) {
	var a Assignment
	err := s.pool.QueryRow(ctx, `
		SELECT id, task_id, COALESCE(resource_id::text, ''), units, created_at
		FROM assignment
		WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.TaskID, &a.ResourceID, &a.Units, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return &a, nil
}

// GetOrganizationRole returns the caller's role on the organization membership
// edge, or ErrNotFound when no edge exists.
func (s *Store) GetOrganizationRole(ctx context.Context, accountID, orgID string) (string, error) {
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT role
		FROM organization_member
		WHERE account_id = $1 AND organization_id = $2`,
		accountID, orgID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get organization role: %w", err)
	}
	return role, nil
}

// GetProjectRole returns the role name for the caller's project membership,
// resolved through the role table, or ErrNotFound when no edge exists.
func (s *Store) GetProjectRole(ctx context.Context, accountID, projectID string) (string, error) {
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT r.name
		FROM project_member pm
		JOIN role r ON r.id = pm.role_id
		WHERE pm.account_id = $1 AND pm.project_id = $2`,
		accountID, projectID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get project role: %w", err)
	}
	return role, nil
}

// SoftDeleteProject marks a project deleted. Idempotent; the row survives for
// audit but disappears from all access-resolution reads.
func (s *Store) SoftDeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE project
		SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE`,
		id,
	)
	if err != nil {
		return fmt.Errorf("soft delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
