package eventhandler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

type recorded struct {
	transitions []string
	events      []string
	released    map[string]float64
}

func (r *recorded) RecordTransition(from, to, cascade string) {
	r.transitions = append(r.transitions, from+">"+to+"/"+cascade)
}

func (r *recorded) RecordEvent(t string) { r.events = append(r.events, t) }

func (r *recorded) RecordRelease(kind string, amount float64) {
	if r.released == nil {
		r.released = map[string]float64{}
	}
	r.released[kind] += amount
}

type subscriber struct{ all []shared.EventHandler }

func (s *subscriber) Subscribe(shared.EventType, shared.EventHandler) error { return nil }
func (s *subscriber) SubscribeAll(h shared.EventHandler) error {
	s.all = append(s.all, h)
	return nil
}

func TestWorkflowObserver(t *testing.T) {
	rec := &recorded{}
	obs := NewWorkflowObserver(rec, logger.Nop())
	bus := &subscriber{}
	require.NoError(t, obs.Register(bus))
	require.Len(t, bus.all, 1)

	at := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	tr := shared.NewApplicationTransitionedEvent("app-1", "stu-1", "sch-1", "under_evaluation", "rejected", "int-1", at)
	tr.Cascade = "interview_no_show"

	events := []shared.Event{
		tr,
		shared.DisbursementEvent{BaseEvent: shared.NewBaseEvent(shared.EventStipendStatusChanged, "st-1", at), From: "processing", To: "released", Amount: "500.00"},
		shared.DisbursementEvent{BaseEvent: shared.NewBaseEvent(shared.EventPaymentStatusChanged, "pay-1", at), From: "processing", To: "released", Amount: "412.50"},
		shared.DisbursementEvent{BaseEvent: shared.NewBaseEvent(shared.EventPaymentStatusChanged, "pay-2", at), From: "pending", To: "on_hold", Amount: "100.00"},
		shared.NewDocumentEvent(shared.EventDocumentVerified, "doc-1", "app-1", "valid_id", "staff-1", at),
	}
	for _, e := range events {
		assert.NoError(t, bus.all[0](e))
	}

	assert.Equal(t, []string{"under_evaluation>rejected/interview_no_show"}, rec.transitions)
	assert.Len(t, rec.events, 5)
	assert.Equal(t, 500.0, rec.released["stipend"])
	assert.Equal(t, 412.5, rec.released["payment"])
}

func TestWorkflowObserver_NilRecorder(t *testing.T) {
	obs := NewWorkflowObserver(nil, nil)
	at := time.Now()
	assert.NoError(t, obs.Handle(shared.NewApplicationTransitionedEvent("a", "s", "x", "draft", "submitted", "s", at)))
}
