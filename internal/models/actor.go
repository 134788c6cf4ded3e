package models

import "github.com/google/uuid"

// Role is the role claim carried by an authenticated caller
type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleAuditor    Role = "auditor"
	RoleViewer     Role = "viewer"
	// RoleSystem is used by background jobs, never issued in a token
	RoleSystem Role = "system"
)

// Valid reports whether r is a role a token may carry
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleAccountant, RoleAuditor, RoleViewer:
		return true
	}
	return false
}

// Elevated reports whether the role may review, decide or delete beyond its own drafts
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleSuperAdmin || r == RoleSystem
}

// Contributor reports whether the role authors reports
func (r Role) Contributor() bool {
	return r == RoleAccountant || r == RoleAuditor
}

// Actor is the identity supplied per request by the identity provider
type Actor struct {
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	CompanyID uuid.UUID `json:"company_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
}

// CrossTenant reports whether the actor ignores company boundaries
func (a Actor) CrossTenant() bool {
	return a.Role == RoleSuperAdmin || a.Role == RoleSystem
}

// SystemActor returns the actor used by scheduled jobs
func SystemActor() Actor {
	return Actor{Role: RoleSystem}
}
