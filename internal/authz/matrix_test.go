package authz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/workflow"
)

func TestWorkerEdges(t *testing.T) {
	m := NewMatrix()
	workerEdges := []struct {
		kind workflow.Kind
		from workflow.Status
		to   workflow.Status
	}{
		{workflow.KindTask, workflow.StatusAssigned, workflow.StatusInProgress},
		{workflow.KindTask, workflow.StatusInProgress, workflow.StatusSubmitted},
		{workflow.KindTask, workflow.StatusRejected, workflow.StatusInProgress},
		{workflow.KindAsset, workflow.StatusRequested, workflow.StatusInProgress},
		{workflow.KindAsset, workflow.StatusInProgress, workflow.StatusSubmitted},
		{workflow.KindAsset, workflow.StatusRejected, workflow.StatusInProgress},
		{workflow.KindRevision, workflow.StatusCreated, workflow.StatusInProgress},
		{workflow.KindRevision, workflow.StatusInProgress, workflow.StatusCompleted},
	}
	for _, e := range workerEdges {
		for _, role := range []identity.Role{identity.RoleDeveloper, identity.RoleDesigner, identity.RoleTeamLead} {
			require.Truef(t, m.Allowed(role, e.kind, e.from, e.to), "%s %s %s->%s", role, e.kind, e.from, e.to)
		}
		for _, role := range []identity.Role{identity.RoleManager, identity.RoleAdmin} {
			require.Falsef(t, m.Allowed(role, e.kind, e.from, e.to), "%s %s %s->%s", role, e.kind, e.from, e.to)
		}
	}
}

func TestReviewerEdges(t *testing.T) {
	m := NewMatrix()
	reviewEdges := []struct {
		kind workflow.Kind
		from workflow.Status
		to   workflow.Status
	}{
		{workflow.KindTask, workflow.StatusSubmitted, workflow.StatusApproved},
		{workflow.KindTask, workflow.StatusSubmitted, workflow.StatusRejected},
		{workflow.KindAsset, workflow.StatusSubmitted, workflow.StatusApproved},
		{workflow.KindAsset, workflow.StatusSubmitted, workflow.StatusRejected},
		{workflow.KindRevision, workflow.StatusCompleted, workflow.StatusAccepted},
		{workflow.KindRevision, workflow.StatusCompleted, workflow.StatusInProgress},
	}
	for _, e := range reviewEdges {
		for _, role := range []identity.Role{identity.RoleTeamLead, identity.RoleManager, identity.RoleAdmin} {
			require.Truef(t, m.Allowed(role, e.kind, e.from, e.to), "%s %s %s->%s", role, e.kind, e.from, e.to)
		}
		for _, role := range []identity.Role{identity.RoleDeveloper, identity.RoleDesigner} {
			require.Falsef(t, m.Allowed(role, e.kind, e.from, e.to), "%s %s %s->%s", role, e.kind, e.from, e.to)
		}
	}
}

func TestUnknownEdgeIsDenied(t *testing.T) {
	m := NewMatrix()
	for _, role := range identity.Roles {
		require.False(t, m.Allowed(role, workflow.KindTask, workflow.StatusAssigned, workflow.StatusApproved))
		require.False(t, m.Allowed(role, workflow.KindTask, workflow.StatusApproved, workflow.StatusInProgress))
	}
}

func TestUnknownKindPanics(t *testing.T) {
	m := NewMatrix()
	require.Panics(t, func() {
		m.Allowed(identity.RoleAdmin, workflow.Kind("SPRINT"), workflow.StatusAssigned, workflow.StatusInProgress)
	})
	require.Panics(t, func() {
		m.CanCreate(identity.RoleAdmin, workflow.Kind("SPRINT"))
	})
}

func TestCanReviewRequiresStrictlyHigherTier(t *testing.T) {
	m := NewMatrix()
	cases := []struct {
		reviewer identity.Role
		assignee identity.Role
		want     bool
	}{
		{identity.RoleTeamLead, identity.RoleDeveloper, true},
		{identity.RoleTeamLead, identity.RoleDesigner, true},
		{identity.RoleTeamLead, identity.RoleTeamLead, false},
		{identity.RoleManager, identity.RoleTeamLead, true},
		{identity.RoleAdmin, identity.RoleTeamLead, true},
		{identity.RoleAdmin, identity.RoleManager, true},
		{identity.RoleManager, identity.RoleManager, false},
		{identity.RoleDeveloper, identity.RoleDeveloper, false},
		{identity.RoleDeveloper, identity.RoleTeamLead, false},
		{identity.RoleDesigner, identity.RoleDeveloper, false},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.want, m.CanReview(tc.reviewer, tc.assignee), "%s reviews %s", tc.reviewer, tc.assignee)
	}
}

func TestCanCreate(t *testing.T) {
	m := NewMatrix()
	require.True(t, m.CanCreate(identity.RoleTeamLead, workflow.KindTask))
	require.True(t, m.CanCreate(identity.RoleAdmin, workflow.KindTask))
	require.False(t, m.CanCreate(identity.RoleManager, workflow.KindTask))
	require.False(t, m.CanCreate(identity.RoleDeveloper, workflow.KindTask))

	for _, kind := range []workflow.Kind{workflow.KindAsset, workflow.KindRevision} {
		require.True(t, m.CanCreate(identity.RoleTeamLead, kind))
		require.True(t, m.CanCreate(identity.RoleManager, kind))
		require.True(t, m.CanCreate(identity.RoleAdmin, kind))
		require.False(t, m.CanCreate(identity.RoleDeveloper, kind))
		require.False(t, m.CanCreate(identity.RoleDesigner, kind))
	}
}

func TestIsSelfApproval(t *testing.T) {
	m := NewMatrix()
	actor := int64(7)
	other := int64(8)
	require.True(t, m.IsSelfApproval(actor, workflow.WorkItem{AssignedTo: &actor}))
	require.False(t, m.IsSelfApproval(actor, workflow.WorkItem{AssignedTo: &other}))
	require.False(t, m.IsSelfApproval(actor, workflow.WorkItem{}))
}
