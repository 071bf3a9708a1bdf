package access

import "time"

// Project-scoped role names, seeded in migrations.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleMember  = "member"
	RoleViewer  = "viewer"
)

// Organization membership roles, stored directly on the membership edge.
const (
	OrgRoleOwner  = "owner"
	OrgRoleAdmin  = "admin"
	OrgRoleMember = "member"
)

type Organization struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	IsPersonal bool      `json:"is_personal"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Task struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Assignment struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	ResourceID string    `json:"resource_id,omitempty"`
	Units      float64   `json:"units"`
	CreatedAt  time.Time `json:"created_at"`
}

// Grants pair a resolved resource with the caller's effective role. Task and
// assignment grants carry the ancestors walked during resolution so handlers
// do not re-load them.

type OrganizationGrant struct {
	Organization *Organization `json:"organization"`
	Role         string        `json:"role"`
}

type ProjectGrant struct {
	Project *Project `json:"project"`
	Role    string   `json:"role"`
}

type TaskGrant struct {
	Task    *Task    `json:"task"`
	Project *Project `json:"project"`
	Role    string   `json:"role"`
}

type AssignmentGrant struct {
	Assignment *Assignment `json:"assignment"`
	Task       *Task       `json:"task"`
	Project    *Project    `json:"project"`
	Role       string      `json:"role"`
}
