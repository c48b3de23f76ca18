// Package payment computes and drives disbursements: fixed stipends for
// academic, performing-arts and economic scholarships, and hour-based
// payments for student assistants.
package payment

const domainName = "payment"

// Status is the status of a stipend or payment record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReleased   Status = "released"
	StatusFailed     Status = "failed"
	StatusOnHold     Status = "on_hold"
	StatusCancelled  Status = "cancelled"
)

// transitions is the complete table of legal status changes. Released and
// cancelled have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusOnHold, StatusCancelled},
	StatusProcessing: {StatusReleased, StatusFailed, StatusOnHold, StatusCancelled},
	StatusOnHold:     {StatusPending, StatusProcessing, StatusCancelled},
	StatusFailed:     {StatusProcessing, StatusCancelled},
	StatusReleased:   {},
	StatusCancelled:  {},
}

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether s → to is in the table.
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

// IsPreRelease reports whether amounts may still be recalculated: every
// status before released, cancelled excluded.
func (s Status) IsPreRelease() bool {
	return s.IsValid() && !s.IsTerminal()
}
