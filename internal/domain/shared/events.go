package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Statuses travel as plain strings so this package does
// not depend on the workflow packages that define them.
const (
	EventApplicationCreated      EventType = "application.created"
	EventApplicationTransitioned EventType = "application.transitioned"
	EventApplicationArchived     EventType = "application.archived"
	EventDisbursementRecorded    EventType = "application.disbursement_recorded"

	EventDocumentUploaded EventType = "document.uploaded"
	EventDocumentVerified EventType = "document.verified"
	EventDocumentRejected EventType = "document.rejected"

	EventInterviewScheduled   EventType = "interview.scheduled"
	EventInterviewRescheduled EventType = "interview.rescheduled"
	EventInterviewCompleted   EventType = "interview.completed"
	EventInterviewCancelled   EventType = "interview.cancelled"
	EventInterviewNoShow      EventType = "interview.no_show"

	EventWorkHoursLogged   EventType = "worklog.logged"
	EventWorkHoursApproved EventType = "worklog.approved"
	EventWorkHoursRejected EventType = "worklog.rejected"

	EventPaymentGenerated     EventType = "payment.generated"
	EventPaymentStatusChanged EventType = "payment.status_changed"
	EventStipendGenerated     EventType = "stipend.generated"
	EventStipendStatusChanged EventType = "stipend.status_changed"

	EventScholarshipChanged EventType = "scholarship.changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with at.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Application Events
// ═══════════════════════════════════════════════════════════════════════════

// ApplicationTransitionedEvent is emitted on every successful status change,
// including interview cascades.
type ApplicationTransitionedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	ScholarshipID string `json:"scholarship_id"`
	From          string `json:"from"`
	To            string `json:"to"`
	ActorID       string `json:"actor_id"`
	Comment       string `json:"comment,omitempty"`
	Cascade       string `json:"cascade,omitempty"` // e.g. "interview_cancelled"
}

// Payload implements Event interface.
func (e ApplicationTransitionedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"scholarship_id": e.ScholarshipID,
		"from":           e.From,
		"to":             e.To,
		"actor_id":       e.ActorID,
		"comment":        e.Comment,
		"cascade":        e.Cascade,
	}
}

// NewApplicationTransitionedEvent creates a new ApplicationTransitionedEvent.
func NewApplicationTransitionedEvent(applicationID, studentID, scholarshipID, from, to, actorID string, at time.Time) ApplicationTransitionedEvent {
	return ApplicationTransitionedEvent{
		BaseEvent:     NewBaseEvent(EventApplicationTransitioned, applicationID, at),
		StudentID:     studentID,
		ScholarshipID: scholarshipID,
		From:          from,
		To:            to,
		ActorID:       actorID,
	}
}

// ApplicationCreatedEvent is emitted when a draft is opened.
type ApplicationCreatedEvent struct {
	BaseEvent
	StudentID     string `json:"student_id"`
	ScholarshipID string `json:"scholarship_id"`
	AcademicYear  string `json:"academic_year"`
	Semester      string `json:"semester"`
}

// Payload implements Event interface.
func (e ApplicationCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":     e.StudentID,
		"scholarship_id": e.ScholarshipID,
		"academic_year":  e.AcademicYear,
		"semester":       e.Semester,
	}
}

// ApplicationArchivedEvent is emitted when an application is soft-deleted.
type ApplicationArchivedEvent struct {
	BaseEvent
	ActorID string `json:"actor_id"`
}

// Payload implements Event interface.
func (e ApplicationArchivedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"actor_id": e.ActorID}
}

// DisbursementRecordedEvent is emitted when a released stipend is credited
// to the application's running total.
type DisbursementRecordedEvent struct {
	BaseEvent
	Amount         string `json:"amount"`
	AmountReceived string `json:"amount_received"`
}

// Payload implements Event interface.
func (e DisbursementRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":          e.Amount,
		"amount_received": e.AmountReceived,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Document Events
// ═══════════════════════════════════════════════════════════════════════════

// DocumentEvent covers upload, verification and rejection.
type DocumentEvent struct {
	BaseEvent
	ApplicationID string `json:"application_id"`
	DocumentType  string `json:"document_type"`
	ActorID       string `json:"actor_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e DocumentEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"application_id": e.ApplicationID,
		"document_type":  e.DocumentType,
		"actor_id":       e.ActorID,
		"reason":         e.Reason,
	}
}

// NewDocumentEvent creates a new DocumentEvent.
func NewDocumentEvent(eventType EventType, documentID, applicationID, docType, actorID string, at time.Time) DocumentEvent {
	return DocumentEvent{
		BaseEvent:     NewBaseEvent(eventType, documentID, at),
		ApplicationID: applicationID,
		DocumentType:  docType,
		ActorID:       actorID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Interview Events
// ═══════════════════════════════════════════════════════════════════════════

// InterviewEvent covers every interview lifecycle change.
type InterviewEvent struct {
	BaseEvent
	ApplicationID  string    `json:"application_id"`
	InterviewerID  string    `json:"interviewer_id"`
	Status         string    `json:"status"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	TotalScore     *float64  `json:"total_score,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}

// Payload implements Event interface.
func (e InterviewEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"application_id": e.ApplicationID,
		"interviewer_id": e.InterviewerID,
		"status":         e.Status,
		"scheduled_at":   e.ScheduledAt.Format(time.RFC3339),
		"recommendation": e.Recommendation,
		"reason":         e.Reason,
	}
	if e.TotalScore != nil {
		p["total_score"] = *e.TotalScore
	}
	return p
}

// NewInterviewEvent creates a new InterviewEvent.
func NewInterviewEvent(eventType EventType, interviewID, applicationID, interviewerID, status string, scheduledAt, at time.Time) InterviewEvent {
	return InterviewEvent{
		BaseEvent:     NewBaseEvent(eventType, interviewID, at),
		ApplicationID: applicationID,
		InterviewerID: interviewerID,
		Status:        status,
		ScheduledAt:   scheduledAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Payroll Events
// ═══════════════════════════════════════════════════════════════════════════

// WorkHoursEvent covers work-hour log submission and review.
type WorkHoursEvent struct {
	BaseEvent
	AssignmentID string `json:"assignment_id"`
	StudentID    string `json:"student_id"`
	WorkDate     string `json:"work_date"`
	Hours        string `json:"hours"`
	ActorID      string `json:"actor_id,omitempty"`
}

// Payload implements Event interface.
func (e WorkHoursEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"assignment_id": e.AssignmentID,
		"student_id":    e.StudentID,
		"work_date":     e.WorkDate,
		"hours":         e.Hours,
		"actor_id":      e.ActorID,
	}
}

// DisbursementEvent covers generation and status changes of payments and
// stipends. Amounts are decimal strings.
type DisbursementEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	From      string `json:"from,omitempty"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	ActorID   string `json:"actor_id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// Payload implements Event interface.
func (e DisbursementEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"from":       e.From,
		"to":         e.To,
		"amount":     e.Amount,
		"actor_id":   e.ActorID,
		"reference":  e.Reference,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes an event's payload into an envelope.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Payload:     payload,
	}, nil
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// ═══════════════════════════════════════════════════════════════════════════
// Scholarship Events
// ═══════════════════════════════════════════════════════════════════════════

// ScholarshipChangedEvent is emitted when a program definition is created or
// edited. Caches drop their copy of the program on it.
type ScholarshipChangedEvent struct {
	BaseEvent
	Status string `json:"status"`
}

// Payload implements Event interface.
func (e ScholarshipChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"status": e.Status}
}

// NewScholarshipChangedEvent creates a new ScholarshipChangedEvent.
func NewScholarshipChangedEvent(scholarshipID, status string, at time.Time) ScholarshipChangedEvent {
	return ScholarshipChangedEvent{
		BaseEvent: NewBaseEvent(EventScholarshipChanged, scholarshipID, at),
		Status:    status,
	}
}
