package models

import "time"

// Role is a member's role inside a workspace.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known workspace role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	default:
		return false
	}
}

// Permission returns the effective permission a role grants.
func (r Role) Permission() Permission {
	switch r {
	case RoleOwner:
		return PermissionOwner
	case RoleAdmin:
		return PermissionAdmin
	case RoleMember:
		return PermissionWrite
	case RoleViewer:
		return PermissionRead
	default:
		return PermissionNone
	}
}

// Permission is an effective access level, ordered from none to owner.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionAdmin
	PermissionOwner
)

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionWrite:
		return "write"
	case PermissionAdmin:
		return "admin"
	case PermissionOwner:
		return "owner"
	default:
		return "none"
	}
}

// AtLeast reports whether p grants at least the required level.
func (p Permission) AtLeast(required Permission) bool {
	return p >= required
}

// Workspace scopes a set of workflows shared between its members.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WorkspaceMember binds a user to a workspace with a role.
type WorkspaceMember struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Role        Role      `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
}
