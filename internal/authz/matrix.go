// Package authz holds the static authorization matrix for work item
// transitions. The matrix is data, not code: every (role, kind, edge) rule
// lives in one table so it can be audited and tested on its own, away from
// request-context plumbing.
package authz

import (
	"fmt"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/workflow"
)

type edge struct {
	From workflow.Status
	To   workflow.Status
}

// matrix maps kind -> edge -> roles permitted to take that edge. Absence
// means denied. The per-edge assignee and reviewer-tier rules are layered on
// top by the workflow engine; this table answers only "may this role ever
// take this edge".
var matrix = map[workflow.Kind]map[edge][]identity.Role{
	workflow.KindTask: {
		{workflow.StatusAssigned, workflow.StatusInProgress}:  workerRoles,
		{workflow.StatusInProgress, workflow.StatusSubmitted}: workerRoles,
		{workflow.StatusSubmitted, workflow.StatusApproved}:   reviewerRoles,
		{workflow.StatusSubmitted, workflow.StatusRejected}:   reviewerRoles,
		{workflow.StatusRejected, workflow.StatusInProgress}:  workerRoles,
	},
	workflow.KindAsset: {
		{workflow.StatusRequested, workflow.StatusInProgress}: workerRoles,
		{workflow.StatusInProgress, workflow.StatusSubmitted}: workerRoles,
		{workflow.StatusSubmitted, workflow.StatusApproved}:   reviewerRoles,
		{workflow.StatusSubmitted, workflow.StatusRejected}:   reviewerRoles,
		{workflow.StatusRejected, workflow.StatusInProgress}:  workerRoles,
	},
	workflow.KindRevision: {
		{workflow.StatusCreated, workflow.StatusInProgress}:   workerRoles,
		{workflow.StatusInProgress, workflow.StatusCompleted}: workerRoles,
		{workflow.StatusCompleted, workflow.StatusAccepted}:   reviewerRoles,
		{workflow.StatusCompleted, workflow.StatusInProgress}: reviewerRoles,
	},
}

var (
	workerRoles   = []identity.Role{identity.RoleDeveloper, identity.RoleDesigner, identity.RoleTeamLead}
	reviewerRoles = []identity.Role{identity.RoleTeamLead, identity.RoleManager, identity.RoleAdmin}
)

// creators maps kind to the roles permitted to create that kind of item.
var creators = map[workflow.Kind][]identity.Role{
	workflow.KindTask:     {identity.RoleTeamLead, identity.RoleAdmin},
	workflow.KindAsset:    {identity.RoleTeamLead, identity.RoleManager, identity.RoleAdmin},
	workflow.KindRevision: {identity.RoleTeamLead, identity.RoleManager, identity.RoleAdmin},
}

// Matrix is the stateless authorizer consulted by the workflow engine.
type Matrix struct{}

// NewMatrix returns the shared matrix.
func NewMatrix() Matrix { return Matrix{} }

// Allowed reports whether the role may take the kind's from -> to edge.
// An unknown kind is a programming error and panics.
func (Matrix) Allowed(role identity.Role, kind workflow.Kind, from, to workflow.Status) bool {
	edges, ok := matrix[kind]
	if !ok {
		panic(fmt.Sprintf("authz: unknown work item kind %q", kind))
	}
	for _, r := range edges[edge{from, to}] {
		if r == role {
			return true
		}
	}
	return false
}

// CanReview reports whether a reviewer role sits strictly above the
// assignee's role: Team Lead reviews Developer/Designer work, Manager and
// Admin review a Team Lead's deliverables.
func (Matrix) CanReview(reviewer, assignee identity.Role) bool {
	return reviewer.Tier() > assignee.Tier()
}

// CanCreate reports whether the role may create the kind.
func (Matrix) CanCreate(role identity.Role, kind workflow.Kind) bool {
	edges, ok := creators[kind]
	if !ok {
		panic(fmt.Sprintf("authz: unknown work item kind %q", kind))
	}
	for _, r := range edges {
		if r == role {
			return true
		}
	}
	return false
}

// IsSelfApproval reports whether the actor is deciding on their own
// submitted work. Always denied downstream, independent of role.
func (Matrix) IsSelfApproval(actorID int64, item workflow.WorkItem) bool {
	return item.AssignedTo != nil && *item.AssignedTo == actorID
}
