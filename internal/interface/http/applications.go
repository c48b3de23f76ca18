package http

import (
	"net/http"

	"github.com/osas-hub/scholarship-hub/internal/application/command"
	"github.com/osas-hub/scholarship-hub/internal/application/query"
	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

func toTransitionView(res *command.ApplicationResult) *transitionView {
	return &transitionView{
		Application: toApplicationView(res.Application),
		From:        res.From,
		To:          res.To,
		Report:      res.Report,
		Verdict:     res.Verdict,
	}
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	apps, err := s.deps.Queries.ListApplications.Handle(r.Context(), query.ListApplicationsQuery{
		StudentID:       q.Get("student_id"),
		ScholarshipID:   q.Get("scholarship_id"),
		Status:          application.Status(q.Get("status")),
		IncludeArchived: queryBool(r, "include_archived"),
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, r, mapSlice(apps, toApplicationView))
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.CreateApplication.Handle(r.Context(), command.CreateApplicationCommand{
		StudentID:     req.StudentID,
		ScholarshipID: req.ScholarshipID,
		AcademicYear:  shared.AcademicYear(req.AcademicYear),
		Semester:      shared.Semester(req.Semester),
		Purpose:       req.Purpose,
		Priority:      application.Priority(req.Priority),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("application created",
		logger.ApplicationID(res.Application.ID),
		logger.StudentID(res.Application.StudentID),
	)
	writeJSON(w, r, http.StatusCreated, toTransitionView(res))
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Queries.GetApplication.Handle(r.Context(), query.GetApplicationQuery{
		ApplicationID: pathID(r, "id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toApplicationDetailView(view))
}

func (s *Server) handleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req updateDraftRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.UpdateDraft.Handle(r.Context(), command.UpdateDraftCommand{
		ApplicationID: pathID(r, "id"),
		Purpose:       req.Purpose,
		ActorID:       actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTransitionView(res))
}

func (s *Server) handleArchiveApplication(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Commands.ArchiveApplication.Handle(r.Context(), command.ArchiveApplicationCommand{
		ApplicationID: pathID(r, "id"),
		ActorID:       actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toTransitionView(res))
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.TransitionApplication.Handle(r.Context(), command.TransitionApplicationCommand{
		ApplicationID: pathID(r, "id"),
		Target:        application.Status(req.Target),
		ActorID:       actorFrom(r),
		Comment:       req.Comment,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("application transitioned",
		logger.ApplicationID(res.Application.ID),
		logger.String("from", string(res.From)),
		logger.String("to", string(res.To)),
		logger.ActorID(actorFrom(r)),
	)
	writeJSON(w, r, http.StatusOK, toTransitionView(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCheckDocuments(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Queries.CheckDocuments.Handle(r.Context(), query.CheckDocumentsQuery{
		ApplicationID: pathID(r, "id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req registerDocumentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.RegisterDocument.Handle(r.Context(), command.RegisterDocumentCommand{
		ApplicationID: pathID(r, "id"),
		Type:          document.Type(req.Type),
		FileRef:       req.FileRef,
		OriginalName:  req.OriginalName,
		UploaderID:    actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toDocumentView(res.Document))
}

func (s *Server) handleReviewDocument(w http.ResponseWriter, r *http.Request) {
	var req reviewDocumentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.ReviewDocument.Handle(r.Context(), command.ReviewDocumentCommand{
		DocumentID: pathID(r, "id"),
		ActorID:    actorFrom(r),
		Reject:     req.Decision == "reject",
		Reason:     req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toDocumentView(res.Document))
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERVIEWS
// ══════════════════════════════════════════════════════════════════════════════

type interviewResultView struct {
	Interview   *interviewView   `json:"interview"`
	Application *applicationView `json:"application,omitempty"`
}

func toInterviewResultView(res *command.InterviewResult) *interviewResultView {
	return &interviewResultView{
		Interview:   toInterviewView(res.Interview),
		Application: toApplicationView(res.Application),
	}
}

func (s *Server) handleScheduleInterview(w http.ResponseWriter, r *http.Request) {
	var req scheduleInterviewRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.ScheduleInterview.Handle(r.Context(), command.ScheduleInterviewCommand{
		ApplicationID: pathID(r, "id"),
		InterviewerID: req.InterviewerID,
		When:          req.ScheduledAt,
		Location:      req.Location,
		Type:          interview.Type(req.Type),
		ActorID:       actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("interview scheduled",
		logger.InterviewID(res.Interview.ID),
		logger.ApplicationID(res.Interview.ApplicationID),
		logger.Time("scheduled_at", res.Interview.ScheduledAt),
	)
	writeJSON(w, r, http.StatusCreated, toInterviewResultView(res))
}

func (s *Server) handleRescheduleInterview(w http.ResponseWriter, r *http.Request) {
	var req rescheduleInterviewRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.RescheduleInterview.Handle(r.Context(), command.RescheduleInterviewCommand{
		InterviewID: pathID(r, "id"),
		When:        req.ScheduledAt,
		Reason:      req.Reason,
		ActorID:     actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toInterviewResultView(res))
}

func (s *Server) handleCompleteInterview(w http.ResponseWriter, r *http.Request) {
	var req completeInterviewRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.CloseInterview.Complete(r.Context(), command.CompleteInterviewCommand{
		InterviewID:    pathID(r, "id"),
		Scores:         req.Scores,
		Recommendation: interview.Recommendation(req.Recommendation),
		Notes:          req.Notes,
		ActorID:        actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toInterviewResultView(res))
}

func (s *Server) handleCancelInterview(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Commands.CloseInterview.Cancel(r.Context(), command.CancelInterviewCommand{
		InterviewID: pathID(r, "id"),
		Reason:      req.Reason,
		ActorID:     actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toInterviewResultView(res))
}

func (s *Server) handleMarkNoShow(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Commands.CloseInterview.MarkNoShow(r.Context(), command.MarkNoShowCommand{
		InterviewID: pathID(r, "id"),
		ActorID:     actorFrom(r),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toInterviewResultView(res))
}
