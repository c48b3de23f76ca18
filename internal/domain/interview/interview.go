// Package interview schedules and records scholarship interviews and
// drives the application workflow from their outcome.
package interview

import (
	"context"
	"time"
)

const domainName = "interview"

// Status is the lifecycle status of an interview.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusRescheduled Status = "rescheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusNoShow      Status = "no_show"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusRescheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// IsActive reports whether the interview is still upcoming.
func (s Status) IsActive() bool {
	return s == StatusScheduled || s == StatusRescheduled
}

// Type is the interview medium.
type Type string

const (
	TypeInPerson Type = "in_person"
	TypeOnline   Type = "online"
	TypePhone    Type = "phone"
)

// IsValid checks if the type is known.
func (t Type) IsValid() bool {
	return t == TypeInPerson || t == TypeOnline || t == TypePhone
}

// Recommendation is the interviewer's verdict.
type Recommendation string

const (
	RecommendApproved Recommendation = "approved"
	RecommendRejected Recommendation = "rejected"
	RecommendPending  Recommendation = "pending"
)

// IsValid checks if the recommendation is known.
func (r Recommendation) IsValid() bool {
	return r == RecommendApproved || r == RecommendRejected || r == RecommendPending
}

// RescheduleEntry is one entry of the append-only reschedule log.
type RescheduleEntry struct {
	OriginalSchedule time.Time `json:"original_schedule"`
	NewSchedule      time.Time `json:"new_schedule"`
	Reason           string    `json:"reason"`
	RescheduledBy    string    `json:"rescheduled_by"`
	At               time.Time `json:"at"`
}

// Interview is the interview record of one application.
type Interview struct {
	ID                string
	ApplicationID     string
	StudentID         string
	InterviewerID     string
	ScheduledAt       time.Time
	Location          string
	Type              Type
	Status            Status
	Scores            []float64
	TotalScore        *float64
	Recommendation    Recommendation
	RescheduleHistory []RescheduleEntry
	Notes             string
	Remarks           string
	CompletedAt       *time.Time
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep copy of iv.
func (iv *Interview) Clone() *Interview {
	c := *iv
	c.Scores = append([]float64(nil), iv.Scores...)
	c.RescheduleHistory = append([]RescheduleEntry(nil), iv.RescheduleHistory...)
	if iv.TotalScore != nil {
		s := *iv.TotalScore
		c.TotalScore = &s
	}
	if iv.CompletedAt != nil {
		t := *iv.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Repository persists interviews. Update fails with
// shared.ErrConcurrentModification on a version mismatch.
type Repository interface {
	Create(ctx context.Context, iv *Interview) error
	Update(ctx context.Context, iv *Interview, expectedVersion int) error
	GetByID(ctx context.Context, id string) (*Interview, error)
	// ListByInterviewer returns the interviewer's interviews scheduled in [from, to].
	ListByInterviewer(ctx context.Context, interviewerID string, from, to time.Time) ([]*Interview, error)
	ListByApplication(ctx context.Context, applicationID string) ([]*Interview, error)
}
