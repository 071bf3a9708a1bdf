package access

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both a missing resource and one whose ancestor chain
	// contains a soft-deleted entity.
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden means the resource exists but the caller holds no
	// membership that grants access to it.
	ErrForbidden = errors.New("access denied")
)

// Reader is the slice of Store the resolver needs.
type Reader interface {
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	GetTask(ctx context.Context, id string) (*Task, error)
	GetAssignment(ctx context.Context, id string) (*Assignment, error)
	GetOrganizationRole(ctx context.Context, accountID, orgID string) (string, error)
	GetProjectRole(ctx context.Context, accountID, projectID string) (string, error)
}

// Resolver computes the caller's effective role on a target resource. Every
// layer follows the same shape: load the row (soft-delete filtered), apply the
// owner short-circuit where the entity records an owner, fall back to the
// membership edge, and deny when no edge exists. Task and assignment targets
// additionally walk up to the owning project first, so deletion at any
// ancestor level invalidates access to everything beneath it.
type Resolver struct {
	store Reader
}

func NewResolver(store Reader) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) ResolveOrganization(ctx context.Context, accountID, orgID string) (*OrganizationGrant, error) {
	org, err := r.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	// Organizations record no owner column; ownership lives on the membership
	// edge as the role value itself.
	role, err := r.store.GetOrganizationRole(ctx, accountID, orgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, fmt.Errorf("resolve organization: %w", err)
	}
	return &OrganizationGrant{Organization: org, Role: role}, nil
}

func (r *Resolver) ResolveProject(ctx context.Context, accountID, projectID string) (*ProjectGrant, error) {
	project, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	role, err := r.projectRole(ctx, accountID, project)
	if err != nil {
		return nil, err
	}
	return &ProjectGrant{Project: project, Role: role}, nil
}

func (r *Resolver) ResolveTask(ctx context.Context, accountID, taskID string) (*TaskGrant, error) {
	task, err := r.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	project, err := r.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		// A deleted or missing parent project hides the task entirely.
		return nil, err
	}
	role, err := r.projectRole(ctx, accountID, project)
	if err != nil {
		return nil, err
	}
	return &TaskGrant{Task: task, Project: project, Role: role}, nil
}

func (r *Resolver) ResolveAssignment(ctx context.Context, accountID, assignmentID string) (*AssignmentGrant, error) {
	assignment, err := r.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	task, err := r.store.GetTask(ctx, assignment.TaskID)
	if err != nil {
		return nil, err
	}
	project, err := r.store.GetProject(ctx, task.ProjectID)
	if err != nil {
		return nil, err
	}
	role, err := r.projectRole(ctx, accountID, project)
	if err != nil {
		return nil, err
	}
	return &AssignmentGrant{Assignment: assignment, Task: task, Project: project, Role: role}, nil
}

func (r *Resolver) projectRole(ctx context.Context, accountID string, project *Project) (string, error) {
	if project.OwnerID == accountID {
		return RoleOwner, nil
	}
	role, err := r.store.GetProjectRole(ctx, accountID, project.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrForbidden
		}
		return "", fmt.Errorf("resolve project role: %w", err)
	}
	return role, nil
}

// Require gates an operation on the caller's effective role. Pure; call sites
// choose the allow-list per operation.
func Require(role string, allowed ...string) error {
	for _, a := range allowed {
		if role == a {
			return nil
		}
	}
	return ErrForbidden
}
