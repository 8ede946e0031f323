// Package server exposes the pipeline over a thin JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	commonerrors "po-copilot/internal/common/errors"
	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
	"po-copilot/internal/pipeline/orchestrator"
	"po-copilot/internal/store"
)

type Server struct {
	orchestrator  *orchestrator.Orchestrator
	conversations *store.ConversationStore
	audit         *store.AuditLog
	logger        logger.Logger
}

func New(orch *orchestrator.Orchestrator, conversations *store.ConversationStore, audit *store.AuditLog, log logger.Logger) *Server {
	return &Server{
		orchestrator:  orch,
		conversations: conversations,
		audit:         audit,
		logger:        log.WithFields(map[string]interface{}{"component": "server"}),
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /conversations", s.createConversation)
	mux.HandleFunc("GET /conversations/{id}", s.getConversation)
	mux.HandleFunc("POST /conversations/{id}/messages", s.postMessage)
	mux.HandleFunc("GET /conversations/{id}/audit", s.getAudit)
	mux.HandleFunc("POST /plans/{id}/approve", s.approvePlan)
	mux.HandleFunc("POST /plans/{id}/reject", s.rejectPlan)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.Create(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.conversations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must carry a non-empty message"})
		return
	}

	resp := s.orchestrator.Handle(r.Context(), r.PathValue("id"), body.Message)
	s.writeJSON(w, statusForOutcome(resp), resp)
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audit.GetEntries(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) approvePlan(w http.ResponseWriter, r *http.Request) {
	resp := s.orchestrator.Approve(r.Context(), r.PathValue("id"))
	s.writeJSON(w, statusForOutcome(resp), resp)
}

func (s *Server) rejectPlan(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Reject(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("response encode failed", map[string]interface{}{})
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	std := commonerrors.Normalize(err)
	s.writeJSON(w, status, map[string]interface{}{
		"error": std.Message,
		"code":  string(std.Code),
	})
}

// statusForOutcome maps pipeline outcomes onto HTTP statuses. Clarification
// is a successful response; only hard pipeline errors leave the 2xx range.
func statusForOutcome(resp *models.Response) int {
	if resp.Outcome != models.OutcomeError {
		return http.StatusOK
	}
	switch commonerrors.ErrorCode(resp.ErrorCode) {
	case commonerrors.ErrCodeConversationError, commonerrors.ErrCodePlanNotFound:
		return http.StatusNotFound
	case commonerrors.ErrCodePlanStatusConflict:
		return http.StatusConflict
	case commonerrors.ErrCodeBackendUnavailable, commonerrors.ErrCodeBackendTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func statusForError(err error) int {
	switch commonerrors.CodeOf(err) {
	case commonerrors.ErrCodeConversationError, commonerrors.ErrCodePlanNotFound, commonerrors.ErrCodeRecordNotFound:
		return http.StatusNotFound
	case commonerrors.ErrCodePlanStatusConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts
// down within the given grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", map[string]interface{}{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
