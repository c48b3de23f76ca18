package http

import (
	"net/http"
	"time"

	"github.com/osas-hub/scholarship-hub/internal/application/command"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENTS AND WORK HOURS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	slots, err := req.slots()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := parseOptionalDate("end_date", req.EndDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.CreateAssignment.Handle(r.Context(), command.CreateAssignmentCommand{
		ApplicationID: req.ApplicationID,
		Office:        req.Office,
		SupervisorID:  req.SupervisorID,
		HourlyRate:    req.HourlyRate,
		WorkSchedule:  slots,
		StartDate:     start,
		EndDate:       end,
		ActorID:       actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toAssignmentView(res.Assignment))
}

func (s *Server) handleLogWorkHours(w http.ResponseWriter, r *http.Request) {
	var req logWorkHoursRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	day, err := parseDate("work_date", req.WorkDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := timeutil.ParseClock(req.TimeIn)
	if err != nil {
		s.writeError(w, r, badRequest("time_in", err))
		return
	}
	out, err := timeutil.ParseClock(req.TimeOut)
	if err != nil {
		s.writeError(w, r, badRequest("time_out", err))
		return
	}
	res, err := s.deps.Commands.LogWorkHours.Handle(r.Context(), command.LogWorkHoursCommand{
		AssignmentID: pathID(r, "id"),
		WorkDate:     day,
		TimeIn:       in,
		TimeOut:      out,
		Tasks:        req.Tasks,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toWorkLogView(res.Log))
}

func (s *Server) handleReviewWorkHours(w http.ResponseWriter, r *http.Request) {
	var req reviewWorkHoursRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.ReviewWorkHours.Handle(r.Context(), command.ReviewWorkHoursCommand{
		LogID:   pathID(r, "id"),
		ActorID: actorFrom(r),
		Reject:  req.Decision == "reject",
		Hours:   req.Hours,
		Reason:  req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toWorkLogView(res.Log))
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

type payrollView struct {
	PeriodStart string            `json:"period_start"`
	PeriodEnd   string            `json:"period_end"`
	Generated   []*paymentView    `json:"generated"`
	Skipped     map[string]string `json:"skipped"`
}

func (s *Server) handleGeneratePayment(w http.ResponseWriter, r *http.Request) {
	var req generatePaymentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	start, err := parseDate("period_start", req.PeriodStart)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := parseDate("period_end", req.PeriodEnd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.Payments.Generate(r.Context(), command.GeneratePaymentCommand{
		AssignmentID: req.AssignmentID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Deductions:   req.Deductions,
		ActorID:      actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("payment generated",
		logger.PaymentID(res.Payment.ID),
		logger.String("assignment_id", req.AssignmentID),
	)
	writeJSON(w, r, http.StatusCreated, toPaymentView(res.Payment))
}

func (s *Server) handleGeneratePayroll(w http.ResponseWriter, r *http.Request) {
	var req generatePayrollRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var start, end time.Time
	if req.PeriodStart != "" {
		var err error
		if start, err = parseDate("period_start", req.PeriodStart); err != nil {
			s.writeError(w, r, err)
			return
		}
		if end, err = parseDate("period_end", req.PeriodEnd); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	res, err := s.deps.Commands.Payments.GeneratePayroll(r.Context(), command.GeneratePayrollCommand{
		PeriodStart: start,
		PeriodEnd:   end,
		ActorID:     actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	skipped := res.Skipped
	if skipped == nil {
		skipped = map[string]string{}
	}
	writeJSON(w, r, http.StatusOK, payrollView{
		PeriodStart: timeutil.FormatDateStr(res.PeriodStart),
		PeriodEnd:   timeutil.FormatDateStr(res.PeriodEnd),
		Generated:   mapSlice(res.Generated, toPaymentView),
		Skipped:     skipped,
	})
}

func (s *Server) handleChangePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondPayment(w, r, func() (*command.PaymentResult, error) {
		return s.deps.Commands.Payments.ChangeStatus(r.Context(), command.ChangePaymentStatusCommand{
			PaymentID: pathID(r, "id"),
			Target:    payment.Status(req.Status),
			ActorID:   actorFrom(r),
			Reason:    req.Reason,
		})
	})
}

func (s *Server) handleReleasePayment(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondPayment(w, r, func() (*command.PaymentResult, error) {
		return s.deps.Commands.Payments.Release(r.Context(), command.ReleasePaymentCommand{
			PaymentID: pathID(r, "id"),
			Reference: req.Reference,
			ActorID:   actorFrom(r),
		})
	})
}

func (s *Server) handleAnnotatePayment(w http.ResponseWriter, r *http.Request) {
	var req annotateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondPayment(w, r, func() (*command.PaymentResult, error) {
		return s.deps.Commands.Payments.Annotate(r.Context(), command.AnnotatePaymentCommand{
			PaymentID: pathID(r, "id"),
			Note:      req.Note,
			ActorID:   actorFrom(r),
		})
	})
}

func (s *Server) handleRecalculatePayment(w http.ResponseWriter, r *http.Request) {
	var req recalculateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondPayment(w, r, func() (*command.PaymentResult, error) {
		return s.deps.Commands.Payments.Recalculate(r.Context(), command.RecalculatePaymentCommand{
			PaymentID:  pathID(r, "id"),
			Deductions: req.Deductions,
			ActorID:    actorFrom(r),
		})
	})
}

func (s *Server) respondPayment(w http.ResponseWriter, r *http.Request, run func() (*command.PaymentResult, error)) {
	res, err := run()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("payment updated",
		logger.PaymentID(res.Payment.ID),
		logger.Status(string(res.Payment.Status)),
		logger.ActorID(actorFrom(r)),
	)
	writeJSON(w, r, http.StatusOK, toPaymentView(res.Payment))
}

// ══════════════════════════════════════════════════════════════════════════════
// STIPENDS
// ══════════════════════════════════════════════════════════════════════════════

type stipendResultView struct {
	Stipend     *stipendView     `json:"stipend"`
	Application *applicationView `json:"application,omitempty"`
}

func (s *Server) handleGenerateStipend(w http.ResponseWriter, r *http.Request) {
	var req generateStipendRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.Stipends.Generate(r.Context(), command.GenerateStipendCommand{
		ApplicationID: req.ApplicationID,
		Month:         time.Month(req.Month),
		Year:          req.Year,
		ActorID:       actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, stipendResultView{
		Stipend:     toStipendView(res.Stipend),
		Application: toApplicationView(res.Application),
	})
}

func (s *Server) handleChangeStipendStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondStipend(w, r, func() (*command.StipendResult, error) {
		return s.deps.Commands.Stipends.ChangeStatus(r.Context(), command.ChangeStipendStatusCommand{
			StipendID: pathID(r, "id"),
			Target:    payment.Status(req.Status),
			ActorID:   actorFrom(r),
			Reason:    req.Reason,
		})
	})
}

func (s *Server) handleReleaseStipend(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondStipend(w, r, func() (*command.StipendResult, error) {
		return s.deps.Commands.Stipends.Release(r.Context(), command.ReleaseStipendCommand{
			StipendID: pathID(r, "id"),
			Reference: req.Reference,
			ActorID:   actorFrom(r),
		})
	})
}

func (s *Server) handleAnnotateStipend(w http.ResponseWriter, r *http.Request) {
	var req annotateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respondStipend(w, r, func() (*command.StipendResult, error) {
		return s.deps.Commands.Stipends.Annotate(r.Context(), command.AnnotateStipendCommand{
			StipendID: pathID(r, "id"),
			Note:      req.Note,
			ActorID:   actorFrom(r),
		})
	})
}

func (s *Server) respondStipend(w http.ResponseWriter, r *http.Request, run func() (*command.StipendResult, error)) {
	res, err := run()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stipendResultView{
		Stipend:     toStipendView(res.Stipend),
		Application: toApplicationView(res.Application),
	})
}
