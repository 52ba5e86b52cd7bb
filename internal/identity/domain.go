package identity

import "time"

// Role enumerates the agency roles an actor can hold. The role is fixed for
// the lifetime of a request and drives every authorization decision.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleManager   Role = "MANAGER"
	RoleTeamLead  Role = "TEAM_LEAD"
	RoleDeveloper Role = "DEVELOPER"
	RoleDesigner  Role = "DESIGNER"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleManager, RoleTeamLead, RoleDeveloper, RoleDesigner}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTeamLead, RoleDeveloper, RoleDesigner:
		return true
	default:
		return false
	}
}

// Tier ranks roles for the one-tier-above review rule. A reviewer must sit
// strictly above the assignee: Team Lead over Developer/Designer, Manager or
// Admin over a Team Lead's deliverables.
func (r Role) Tier() int {
	switch r {
	case RoleAdmin:
		return 4
	case RoleManager:
		return 3
	case RoleTeamLead:
		return 2
	case RoleDeveloper, RoleDesigner:
		return 1
	default:
		return 0
	}
}

// Actor is the slice of the User entity the engine reads: identity plus role.
type Actor struct {
	ID           int64
	Name         string
	Email        string
	Role         Role
	IsActive     bool
	PasswordHash string
	CreatedAt    time.Time
}
