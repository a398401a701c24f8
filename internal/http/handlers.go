package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"billingsync/internal/core"
	"billingsync/internal/log"
	"billingsync/internal/pipeline"
)

// sessionResponse is what the dialog shows before the operator confirms.
type sessionResponse struct {
	SessionID   uuid.UUID        `json:"session_id"`
	Label       core.PeriodLabel `json:"label"`
	Row         int              `json:"row"`
	Confirmed   bool             `json:"confirmed"`
	SourceSheet string           `json:"source_sheet"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

type importBody struct {
	SessionID string `json:"session_id"`
	pipeline.ImportRequest
}

type processBody struct {
	Sheet string `json:"sheet"`
}

type periodResponse struct {
	pipeline.PeriodStatus
	Consistent bool `json:"consistent"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// stageContext bounds a stage run. The run is not cancelled when the client
// disconnects, so a started stage always reaches its cleanup.
func (s *Server) stageContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(r.Context())
	if s.stageTimeout > 0 {
		return context.WithTimeout(ctx, s.stageTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Server) handlePrepareImport(w http.ResponseWriter, r *http.Request) {
	sheet := sanitizeInput(r.URL.Query().Get("sheet"))
	sess, err := s.svc.Importer.Prepare(r.Context(), sheet)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Import preparation failed",
			log.FieldError, err.Error(), log.FieldErrorKind, core.KindOf(err))
		ErrorFor(err).Write(w)
		return
	}
	NewJSONResponse().Body(sessionResponse{
		SessionID:   sess.ID,
		Label:       sess.Label,
		Row:         sess.Row,
		Confirmed:   sess.Confirmed,
		SourceSheet: sess.SourceSheet,
		ExpiresAt:   sess.ExpiresAt,
	}).Write(w)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var body importBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	id, err := uuid.Parse(sanitizeInput(body.SessionID))
	if err != nil {
		BadRequestError("session_id must be a UUID").Write(w)
		return
	}
	req := body.ImportRequest
	req.Label = sanitizeInput(req.Label)
	req.SourceURL = sanitizeInput(req.SourceURL)

	ctx, cancel := s.stageContext(r)
	defer cancel()
	out := s.svc.Importer.Import(ctx, id, req)
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var body processBody
	if err := decodeJSON(w, r, &body); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	sheet := sanitizeInput(body.Sheet)
	if sheet == "" {
		BadRequestError("sheet is required").Write(w)
		return
	}

	ctx, cancel := s.stageContext(r)
	defer cancel()
	alert := s.svc.Processor.Process(ctx, sheet)
	NewJSONResponse().Body(alert).Write(w)
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	label, err := core.ParsePeriodLabel(r.PathValue("label"))
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	st, err := s.svc.Status.Inspect(r.Context(), label)
	if err != nil {
		log.FromContext(r.Context()).With(log.FieldLabel, label).
			LogError(r.Context(), "Period status failed", err, log.OpInspect)
		ErrorFor(err).Write(w)
		return
	}
	NewJSONResponse().Body(periodResponse{PeriodStatus: st, Consistent: st.Consistent()}).Write(w)
}
