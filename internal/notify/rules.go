package notify

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/workflow"
)

// counterparty names the other side of the assignment relationship for a
// given edge.
type counterparty int

const (
	notifyNobody counterparty = iota
	notifyAssignee
	notifyCreator
)

type ruleKey struct {
	Kind workflow.Kind
	From workflow.Status
	To   workflow.Status
}

type rule struct {
	Verb         string
	Counterparty counterparty
	Roles        []identity.Role
}

// rules is the declarative per-(kind, transition) recipient table. Keeping
// it as data makes the fan-out auditable independently of delivery.
var rules = map[ruleKey]rule{
	// Task
	{workflow.KindTask, workflow.StatusAssigned, workflow.StatusInProgress}:   {Verb: "started", Counterparty: notifyCreator},
	{workflow.KindTask, workflow.StatusRejected, workflow.StatusInProgress}:   {Verb: "reworked", Counterparty: notifyCreator},
	{workflow.KindTask, workflow.StatusInProgress, workflow.StatusSubmitted}:  {Verb: "submitted", Counterparty: notifyCreator},
	{workflow.KindTask, workflow.StatusSubmitted, workflow.StatusApproved}:    {Verb: "approved", Counterparty: notifyAssignee},
	{workflow.KindTask, workflow.StatusSubmitted, workflow.StatusRejected}:    {Verb: "rejected", Counterparty: notifyAssignee},
	// Asset
	{workflow.KindAsset, workflow.StatusRequested, workflow.StatusInProgress}: {Verb: "started", Counterparty: notifyCreator},
	{workflow.KindAsset, workflow.StatusRejected, workflow.StatusInProgress}:  {Verb: "reworked", Counterparty: notifyCreator},
	{workflow.KindAsset, workflow.StatusInProgress, workflow.StatusSubmitted}: {Verb: "submitted", Counterparty: notifyCreator},
	{workflow.KindAsset, workflow.StatusSubmitted, workflow.StatusApproved}:   {Verb: "approved", Counterparty: notifyAssignee},
	{workflow.KindAsset, workflow.StatusSubmitted, workflow.StatusRejected}:   {Verb: "rejected", Counterparty: notifyAssignee},
	// Revision
	{workflow.KindRevision, workflow.StatusCreated, workflow.StatusInProgress}:    {Verb: "started", Counterparty: notifyCreator},
	{workflow.KindRevision, workflow.StatusInProgress, workflow.StatusCompleted}:  {Verb: "completed", Counterparty: notifyCreator},
	{workflow.KindRevision, workflow.StatusCompleted, workflow.StatusAccepted}:    {Verb: "accepted", Counterparty: notifyAssignee},
	{workflow.KindRevision, workflow.StatusCompleted, workflow.StatusInProgress}:  {Verb: "reopened", Counterparty: notifyAssignee},
}

// projectRule applies to every derived project status change.
var projectRule = rule{Verb: "status", Roles: []identity.Role{identity.RoleManager, identity.RoleAdmin}}

// ruleFor resolves the recipient rule for an event edge.
func ruleFor(event workflow.TransitionEvent) (rule, bool) {
	if event.Kind == workflow.KindProject {
		return projectRule, true
	}
	r, ok := rules[ruleKey{event.Kind, event.From, event.To}]
	return r, ok
}

// typeFor builds the notification type string, e.g. "task_approved".
func typeFor(kind workflow.Kind, verb string) string {
	return strings.ToLower(string(kind)) + "_" + verb
}

var titleCaser = cases.Title(language.English)

// titleFor renders a short human title, e.g. "Task Approved".
func titleFor(kind workflow.Kind, verb string) string {
	return titleCaser.String(strings.ToLower(string(kind)) + " " + verb)
}

// bodyFor renders the notification body for a transition.
func bodyFor(event workflow.TransitionEvent, verb string) string {
	if event.Kind == workflow.KindProject {
		return fmt.Sprintf("Project %q moved to %s", event.Title, event.To)
	}
	return fmt.Sprintf("%s %q was %s", titleCaser.String(strings.ToLower(string(event.Kind))), event.Title, verb)
}
