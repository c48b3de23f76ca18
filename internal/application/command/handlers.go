package command

import (
	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// Services are the workflow core components the handlers drive.
type Services struct {
	Workflow   *application.Workflow
	Scheduler  *interview.Scheduler
	Calculator *payment.Calculator
	Clock      shared.Clock
}

// Handlers bundles every command handler.
type Handlers struct {
	CreateApplication     *CreateApplicationHandler
	TransitionApplication *TransitionApplicationHandler
	UpdateDraft           *UpdateDraftHandler
	ArchiveApplication    *ArchiveApplicationHandler
	RegisterDocument      *RegisterDocumentHandler
	ReviewDocument        *ReviewDocumentHandler
	ScheduleInterview     *ScheduleInterviewHandler
	RescheduleInterview   *RescheduleInterviewHandler
	CloseInterview        *CloseInterviewHandler
	CreateAssignment      *CreateAssignmentHandler
	LogWorkHours          *LogWorkHoursHandler
	ReviewWorkHours       *ReviewWorkHoursHandler
	Payments              *PaymentHandler
	Stipends              *StipendHandler
	Scholarships          *ScholarshipHandler
}

// NewHandlers wires every handler to exec and svc.
func NewHandlers(exec *Executor, svc Services) *Handlers {
	clock := clockOrSystem(svc.Clock)
	return &Handlers{
		CreateApplication:     NewCreateApplicationHandler(exec, svc.Workflow),
		TransitionApplication: NewTransitionApplicationHandler(exec, svc.Workflow),
		UpdateDraft:           NewUpdateDraftHandler(exec, svc.Workflow),
		ArchiveApplication:    NewArchiveApplicationHandler(exec, svc.Workflow),
		RegisterDocument:      NewRegisterDocumentHandler(exec, clock),
		ReviewDocument:        NewReviewDocumentHandler(exec, clock),
		ScheduleInterview:     NewScheduleInterviewHandler(exec, svc.Scheduler),
		RescheduleInterview:   NewRescheduleInterviewHandler(exec, svc.Scheduler),
		CloseInterview:        NewCloseInterviewHandler(exec, svc.Scheduler),
		CreateAssignment:      NewCreateAssignmentHandler(exec, clock),
		LogWorkHours:          NewLogWorkHoursHandler(exec, clock),
		ReviewWorkHours:       NewReviewWorkHoursHandler(exec, svc.Calculator, clock),
		Payments:              NewPaymentHandler(exec, svc.Calculator, svc.Workflow),
		Stipends:              NewStipendHandler(exec, svc.Calculator, svc.Workflow),
		Scholarships:          NewScholarshipHandler(exec, clock),
	}
}
