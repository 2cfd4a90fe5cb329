// Package api exposes the run engine over REST. It is a thin call site:
// every route delegates to the orchestrator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rvergara/docflow/internal/engine"
	"github.com/rvergara/docflow/internal/logging"
	"github.com/rvergara/docflow/internal/streaming"
	"github.com/rvergara/docflow/pkg/schema"
)

// Server serves the flow execution REST API.
type Server struct {
	http.Server
	orchestrator *engine.Orchestrator
	hub          streaming.EventHub
	logger       *slog.Logger
}

func NewServer(port int, orchestrator *engine.Orchestrator, hub streaming.EventHub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Server:       http.Server{Addr: fmt.Sprintf(":%d", port)},
		orchestrator: orchestrator,
		hub:          hub,
		logger:       logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/executions/{documentId}", s.handleOpen).Methods(http.MethodGet)
	router.HandleFunc("/executions/{documentId}", s.handleStart).Methods(http.MethodPut)
	router.HandleFunc("/executions/{documentId}/events", s.handleEvents).Methods(http.MethodGet)
	router.HandleFunc("/executions/{documentId}/form-data", s.handleFormData).Methods(http.MethodPost)
	router.HandleFunc("/executions/{documentId}/nodes/{nodeId}/commit", s.handleCommit).Methods(http.MethodPost)
	router.HandleFunc("/executions/{documentId}/nodes/{nodeId}/editions/complete", s.handleCompleteEdition).Methods(http.MethodPost)
	router.HandleFunc("/transfers", s.handleTransfer).Methods(http.MethodPost)
	router.HandleFunc("/flow-actions/history", s.handleHistory).Methods(http.MethodGet)
	router.Use(s.requestMiddleware)
	s.Handler = router
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.Handler }

func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.Addr)
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	s.logger.Info("http server stopping")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// requestMiddleware tags every request with an id and logs it.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		ctx := r.Context()
		if documentID := mux.Vars(r)["documentId"]; documentID != "" {
			ctx = logging.WithDocumentID(ctx, documentID)
		}
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "request_id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondError maps FlowError codes onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	errorCode := schema.ErrCodeExecution

	var fe *schema.FlowError
	if errors.As(err, &fe) {
		errorCode = fe.Code
		switch fe.Code {
		case schema.ErrCodeNotFound:
			code = http.StatusNotFound
		case schema.ErrCodeValidation, schema.ErrCodeForm:
			code = http.StatusBadRequest
		case schema.ErrCodeConflict, schema.ErrCodeInvalidTransition:
			code = http.StatusConflict
		case schema.ErrCodeIntegration, schema.ErrCodeCollaborator, schema.ErrCodeTransfer:
			code = http.StatusBadGateway
		}
	}
	respondJSON(w, code, map[string]string{"error": err.Error(), "code": errorCode})
}
