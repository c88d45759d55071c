// Package auth defines the closed role enumeration and the pure permission
// rule that gates stage transitions.
package auth

// Role is one of the fixed set of roles known to the case engine.
type Role string

// Known roles.
const (
	RoleAdmin           Role = "ADMIN"
	RoleDepartmentAdmin Role = "DEPARTMENT_ADMIN"
	RoleSupervisor      Role = "SUPERVISOR"
	RoleAnalyst         Role = "ANALYST"
)

// ParseRole validates a role string against the closed enumeration.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleDepartmentAdmin, RoleSupervisor, RoleAnalyst:
		return Role(s), true
	}
	return "", false
}

// Actor is the authenticated caller, as resolved by the authentication
// layer. The engine never looks roles up itself.
type Actor struct {
	UserID       string
	Role         Role
	DepartmentID string
	IP           string
	UserAgent    string
}

// CaseRef carries the case fields the permission rule depends on.
type CaseRef struct {
	DepartmentID     string
	AssignedUserID   string
	SupervisorUserID string
}

// CanTransition reports whether the actor may trigger a stage transition on
// the case. Admins always may; department admins only within their own
// department; supervisors and analysts only on cases they supervise or are
// assigned to. Every other role is denied.
func CanTransition(actor Actor, c CaseRef) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleDepartmentAdmin:
		return actor.DepartmentID != "" && actor.DepartmentID == c.DepartmentID
	case RoleSupervisor:
		return actor.UserID != "" && actor.UserID == c.SupervisorUserID
	case RoleAnalyst:
		return actor.UserID != "" && actor.UserID == c.AssignedUserID
	default:
		return false
	}
}
