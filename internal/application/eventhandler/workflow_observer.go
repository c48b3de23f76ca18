// Package eventhandler contains subscribers to domain events.
package eventhandler

import (
	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// WORKFLOW OBSERVER
// Logs every committed domain event and feeds the workflow metrics:
// transitions by edge, event counts and released amounts.
// ═══════════════════════════════════════════════════════════════════════════

// Recorder receives workflow measurements.
type Recorder interface {
	RecordTransition(from, to, cascade string)
	RecordEvent(eventType string)
	RecordRelease(kind string, amount float64)
}

// WorkflowObserver subscribes to every event.
type WorkflowObserver struct {
	recorder Recorder
	log      *logger.Logger
}

// NewWorkflowObserver creates the observer. recorder may be nil.
func NewWorkflowObserver(recorder Recorder, log *logger.Logger) *WorkflowObserver {
	if log == nil {
		log = logger.Nop()
	}
	return &WorkflowObserver{recorder: recorder, log: log.Named("workflow_observer")}
}

// Register subscribes the observer to bus.
func (o *WorkflowObserver) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(o.Handle)
}

// Handle implements shared.EventHandler. It never fails.
func (o *WorkflowObserver) Handle(event shared.Event) error {
	if o.recorder != nil {
		o.recorder.RecordEvent(string(event.EventType()))
	}

	switch e := event.(type) {
	case shared.ApplicationTransitionedEvent:
		if o.recorder != nil {
			o.recorder.RecordTransition(e.From, e.To, e.Cascade)
		}
		o.log.Info("application transitioned",
			logger.ApplicationID(e.AggregateID()),
			logger.StudentID(e.StudentID),
			logger.String("from", e.From),
			logger.String("to", e.To),
			logger.ActorID(e.ActorID),
			logger.String("cascade", e.Cascade),
		)

	case shared.DisbursementEvent:
		o.log.Info("disbursement status changed",
			logger.PaymentID(e.AggregateID()),
			logger.String("event", string(e.EventType())),
			logger.String("from", e.From),
			logger.String("to", e.To),
			logger.String("amount", e.Amount),
		)
		if e.To == "released" && o.recorder != nil {
			o.recorder.RecordRelease(releaseKind(e.EventType()), amountOf(e.Amount))
		}

	case shared.InterviewEvent:
		o.log.Info("interview changed",
			logger.InterviewID(e.AggregateID()),
			logger.ApplicationID(e.ApplicationID),
			logger.Status(e.Status),
		)

	default:
		o.log.Debug("event", logger.String("type", string(event.EventType())), logger.String("aggregate_id", event.AggregateID()))
	}
	return nil
}

func releaseKind(t shared.EventType) string {
	if t == shared.EventStipendStatusChanged {
		return "stipend"
	}
	return "payment"
}

func amountOf(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
