package workflow

import (
	"fmt"

	"github.com/regdesk/backend/internal/models"
)

// Event drives a status transition
type Event string

const (
	EventSubmit      Event = "submit"
	EventBeginReview Event = "begin_review"
	EventDecide      Event = "decide"
)

// Reason codes carried by InvalidTransition errors
const (
	ReasonChecklistIncomplete = "checklist_incomplete"
	ReasonAlreadySubmitted    = "already_submitted"
	ReasonWrongStatus         = "wrong_status"
	ReasonInvalidDecision     = "invalid_decision"
)

type edge struct {
	from  models.ReportStatus
	event Event
}

// transitions lists every permitted edge. decide is resolved by decisionTargets.
var transitions = map[edge]models.ReportStatus{
	{models.ReportStatusDraft, EventSubmit}:          models.ReportStatusSubmitted,
	{models.ReportStatusSubmitted, EventBeginReview}: models.ReportStatusUnderReview,
	{models.ReportStatusSubmitted, EventDecide}:      "",
	{models.ReportStatusUnderReview, EventDecide}:    "",
}

var decisionTargets = map[models.Decision]models.ReportStatus{
	models.DecisionApproved: models.ReportStatusApproved,
	models.DecisionRejected: models.ReportStatusRejected,
}

// TransitionError describes why an edge does not exist
type TransitionError struct {
	From   models.ReportStatus
	Event  Event
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a report in status %s", e.Event, e.From)
}

// Next returns the status reached from `from` by event. decision is only read for EventDecide.
func Next(from models.ReportStatus, event Event, decision models.Decision) (models.ReportStatus, error) {
	to, ok := transitions[edge{from, event}]
	if !ok {
		reason := ReasonWrongStatus
		if event == EventSubmit && from != models.ReportStatusDraft {
			reason = ReasonAlreadySubmitted
		}
		return "", &TransitionError{From: from, Event: event, Reason: reason}
	}
	if event == EventDecide {
		target, ok := decisionTargets[decision]
		if !ok {
			return "", &TransitionError{From: from, Event: event, Reason: ReasonInvalidDecision}
		}
		return target, nil
	}
	return to, nil
}

// Allowed lists the events that have an edge out of status
func Allowed(status models.ReportStatus) []Event {
	var events []Event
	for _, event := range []Event{EventSubmit, EventBeginReview, EventDecide} {
		if _, ok := transitions[edge{status, event}]; ok {
			events = append(events, event)
		}
	}
	return events
}

// Terminal reports whether no event leaves status
func Terminal(status models.ReportStatus) bool {
	return len(Allowed(status)) == 0
}
