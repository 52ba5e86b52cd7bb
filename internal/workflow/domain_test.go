package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atelier-hq/atelier/internal/projects"
)

func TestInitialStatus(t *testing.T) {
	require.Equal(t, StatusAssigned, InitialStatus(KindTask))
	require.Equal(t, StatusRequested, InitialStatus(KindAsset))
	require.Equal(t, StatusCreated, InitialStatus(KindRevision))
}

func TestIsDirectSuccessor(t *testing.T) {
	cases := []struct {
		kind Kind
		from Status
		to   Status
		ok   bool
	}{
		{KindTask, StatusAssigned, StatusInProgress, true},
		{KindTask, StatusInProgress, StatusSubmitted, true},
		{KindTask, StatusSubmitted, StatusApproved, true},
		{KindTask, StatusSubmitted, StatusRejected, true},
		{KindTask, StatusRejected, StatusInProgress, true},
		{KindTask, StatusAssigned, StatusSubmitted, false},
		{KindTask, StatusAssigned, StatusApproved, false},
		{KindTask, StatusApproved, StatusInProgress, false},
		{KindTask, StatusRejected, StatusSubmitted, false},
		{KindAsset, StatusRequested, StatusInProgress, true},
		{KindAsset, StatusRequested, StatusSubmitted, false},
		{KindRevision, StatusCreated, StatusInProgress, true},
		{KindRevision, StatusInProgress, StatusCompleted, true},
		{KindRevision, StatusCompleted, StatusAccepted, true},
		{KindRevision, StatusCompleted, StatusInProgress, true},
		{KindRevision, StatusCreated, StatusCompleted, false},
		{KindRevision, StatusAccepted, StatusInProgress, false},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.ok, IsDirectSuccessor(tc.kind, tc.from, tc.to),
			"%s %s -> %s", tc.kind, tc.from, tc.to)
	}
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	require.Empty(t, Successors(KindTask, StatusApproved))
	require.Empty(t, Successors(KindAsset, StatusApproved))
	require.Empty(t, Successors(KindRevision, StatusAccepted))
}

func TestReviewAndSelfReportEdges(t *testing.T) {
	require.True(t, IsReviewEdge(KindTask, StatusSubmitted, StatusApproved))
	require.True(t, IsReviewEdge(KindTask, StatusSubmitted, StatusRejected))
	require.False(t, IsReviewEdge(KindTask, StatusInProgress, StatusSubmitted))
	require.True(t, IsReviewEdge(KindRevision, StatusCompleted, StatusAccepted))
	require.True(t, IsReviewEdge(KindRevision, StatusCompleted, StatusInProgress))

	require.True(t, IsSelfReportEdge(KindTask, StatusInProgress, StatusSubmitted))
	require.True(t, IsSelfReportEdge(KindTask, StatusRejected, StatusInProgress))
	require.False(t, IsSelfReportEdge(KindTask, StatusAssigned, StatusInProgress))
	require.True(t, IsSelfReportEdge(KindRevision, StatusInProgress, StatusCompleted))
	require.False(t, IsSelfReportEdge(KindRevision, StatusCompleted, StatusAccepted))
}

func TestDeriveProjectStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []Status
		want     projects.Status
	}{
		{"no tasks", nil, projects.StatusActive},
		{"work in flight", []Status{StatusAssigned, StatusInProgress}, projects.StatusActive},
		{"one still open", []Status{StatusSubmitted, StatusInProgress}, projects.StatusActive},
		{"all submitted", []Status{StatusSubmitted, StatusSubmitted}, projects.StatusReview},
		{"submitted and approved", []Status{StatusSubmitted, StatusApproved}, projects.StatusReview},
		{"all approved", []Status{StatusApproved, StatusApproved}, projects.StatusCompleted},
		{"rejected reopens", []Status{StatusApproved, StatusRejected}, projects.StatusActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveProjectStatus(tc.statuses))
		})
	}
}

func TestDeriveProjectStatusIsIdempotent(t *testing.T) {
	statuses := []Status{StatusSubmitted, StatusApproved, StatusSubmitted}
	first := DeriveProjectStatus(statuses)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, DeriveProjectStatus(statuses))
	}
}
