package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gantry-app/gantry/internal/access"
	"github.com/gantry-app/gantry/internal/auth"
	"github.com/gantry-app/gantry/internal/metrics"
)

// AccessService is the slice of the access resolver the handlers need.
type AccessService interface {
	ResolveOrganization(ctx context.Context, accountID, orgID string) (*access.OrganizationGrant, error)
	ResolveProject(ctx context.Context, accountID, projectID string) (*access.ProjectGrant, error)
	ResolveTask(ctx context.Context, accountID, taskID string) (*access.TaskGrant, error)
	ResolveAssignment(ctx context.Context, accountID, assignmentID string) (*access.AssignmentGrant, error)
}

// ProjectWriter covers the single mutation this surface exposes.
type ProjectWriter interface {
	SoftDeleteProject(ctx context.Context, id string) error
}

// resourcesHandler serves resource reads that go through access resolution,
// plus project deletion.
type resourcesHandler struct {
	resolver AccessService
	projects ProjectWriter
	metrics  *metrics.Metrics
}

func newResourcesHandler(resolver AccessService, projects ProjectWriter, m *metrics.Metrics) *resourcesHandler {
	return &resourcesHandler{resolver: resolver, projects: projects, metrics: m}
}

// writeResolveError records the denial and maps it onto the HTTP taxonomy.
func (h *resourcesHandler) writeResolveError(w http.ResponseWriter, resource string, err error) {
	switch {
	case errors.Is(err, access.ErrNotFound):
		h.metrics.IncAccessDenial(resource, "not_found")
	case errors.Is(err, access.ErrForbidden):
		h.metrics.IncAccessDenial(resource, "forbidden")
	default:
		slog.Error("access resolution failed", "resource", resource, "error", err)
	}
	writeDomainError(w, err)
}

// GetOrganization handles GET /api/v1/organizations/{id}.
func (h *resourcesHandler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	caller := auth.AccountFromContext(r.Context())
	grant, err := h.resolver.ResolveOrganization(r.Context(), caller.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeResolveError(w, "organization", err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// GetProject handles GET /api/v1/projects/{id}.
func (h *resourcesHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	caller := auth.AccountFromContext(r.Context())
	grant, err := h.resolver.ResolveProject(r.Context(), caller.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeResolveError(w, "project", err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *resourcesHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	caller := auth.AccountFromContext(r.Context())
	grant, err := h.resolver.ResolveTask(r.Context(), caller.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeResolveError(w, "task", err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// GetAssignment handles GET /api/v1/assignments/{id}.
func (h *resourcesHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	caller := auth.AccountFromContext(r.Context())
	grant, err := h.resolver.ResolveAssignment(r.Context(), caller.ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeResolveError(w, "assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// DeleteProject handles DELETE /api/v1/projects/{id}. Soft delete, restricted
// to owners and managers.
func (h *resourcesHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	caller := auth.AccountFromContext(r.Context())
	id := chi.URLParam(r, "id")

	grant, err := h.resolver.ResolveProject(r.Context(), caller.ID, id)
	if err != nil {
		h.writeResolveError(w, "project", err)
		return
	}
	if err := access.Require(grant.Role, access.RoleOwner, access.RoleManager); err != nil {
		h.metrics.IncAccessDenial("project", "forbidden")
		writeDomainError(w, err)
		return
	}

	if err := h.projects.SoftDeleteProject(r.Context(), id); err != nil {
		if !errors.Is(err, access.ErrNotFound) {
			slog.Error("project delete failed", "project_id", id, "error", err)
		}
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
