package application

import "github.com/osas-hub/scholarship-hub/internal/domain/shared"

// Status is the workflow status of an application.
type Status string

const (
	StatusDraft             Status = "draft"
	StatusSubmitted         Status = "submitted"
	StatusUnderVerification Status = "under_verification"
	StatusIncomplete        Status = "incomplete"
	StatusVerified          Status = "verified"
	StatusUnderEvaluation   Status = "under_evaluation"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusEnd               Status = "end"
)

// transitions is the forward-only workflow table. It is never modified
// after package initialisation.
var transitions = map[Status][]Status{
	StatusDraft:             {StatusSubmitted},
	StatusSubmitted:         {StatusUnderVerification},
	StatusUnderVerification: {StatusIncomplete, StatusVerified},
	StatusIncomplete:        {StatusUnderVerification},
	StatusVerified:          {StatusUnderEvaluation},
	StatusUnderEvaluation:   {StatusApproved, StatusRejected},
	StatusApproved:          {StatusEnd},
	StatusRejected:          {StatusEnd},
	StatusEnd:               {},
}

// AllStatuses lists every status in workflow order.
var AllStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusUnderVerification, StatusIncomplete,
	StatusVerified, StatusUnderEvaluation, StatusApproved, StatusRejected, StatusEnd,
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// ParseStatus converts a string to a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(value)
	if !s.IsValid() {
		return "", shared.Errorf(domainName, "ParseStatus", shared.ErrValidation, "unknown application status %q", value)
	}
	return s, nil
}

// CanTransitionTo reports whether s → to is in the table. Self-loops are
// never allowed.
func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns a copy of the legal targets from s.
func (s Status) AllowedTargets() []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsApplicantFacing reports whether entering s notifies the student.
func (s Status) IsApplicantFacing() bool {
	switch s {
	case StatusSubmitted, StatusIncomplete, StatusVerified, StatusUnderEvaluation, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// AcceptsDocuments reports whether documents may still be uploaded in s.
func (s Status) AcceptsDocuments() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderVerification, StatusIncomplete:
		return true
	}
	return false
}

// Cascade names a whitelisted edge outside the forward table, driven by an
// interview outcome.
type Cascade string

const (
	CascadeInterviewCancelled Cascade = "interview_cancelled"
	CascadeInterviewNoShow    Cascade = "interview_no_show"
)

type edge struct {
	from Status
	to   Status
}

var cascades = map[Cascade]edge{
	CascadeInterviewCancelled: {from: StatusUnderEvaluation, to: StatusSubmitted},
	CascadeInterviewNoShow:    {from: StatusUnderEvaluation, to: StatusRejected},
}

// NoShowReason is recorded when an application is rejected for a missed
// interview.
const NoShowReason = "Applicant did not attend the scheduled interview"

// Priority orders applications in the review queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// IsValid checks if the priority is known.
func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}
