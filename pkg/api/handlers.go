package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rvergara/docflow/pkg/schema"
)

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["documentId"]
	view, err := s.orchestrator.Open(r.Context(), documentID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type startRequest struct {
	TemplateID string `json:"templateId"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["documentId"]
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
		return
	}
	defer r.Body.Close()
	if req.TemplateID == "" {
		respondError(w, schema.NewError(schema.ErrCodeValidation, "templateId is required"))
		return
	}
	view, err := s.orchestrator.Start(r.Context(), documentID, req.TemplateID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

type formDataRequest struct {
	NodeID   string            `json:"nodeId"`
	FormData map[string]string `json:"formData"`
}

func (s *Server) handleFormData(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["documentId"]
	var req formDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
		return
	}
	defer r.Body.Close()
	if req.NodeID == "" {
		respondError(w, schema.NewError(schema.ErrCodeValidation, "nodeId is required"))
		return
	}
	if err := s.orchestrator.SaveFormData(r.Context(), documentID, req.NodeID, req.FormData); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "form data saved"})
}

type commitRequest struct {
	// Approval, when set, is staged before the commit: "approved",
	// "rejected" or the legacy "TRUE"/"FALSE" forms.
	Approval *schema.ApprovalStatus `json:"approval,omitempty"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	documentID, nodeID := vars["documentId"], vars["nodeId"]

	var req commitRequest
	if r.Body != nil {
		// An empty body is a plain commit with no staged approval.
		_ = json.NewDecoder(r.Body).Decode(&req)
		defer r.Body.Close()
	}
	if req.Approval != nil {
		s.orchestrator.StageApproval(documentID, nodeID, *req.Approval)
	}

	view, err := s.orchestrator.Commit(r.Context(), documentID, nodeID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleCompleteEdition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, err := s.orchestrator.CompleteEdition(r.Context(), vars["documentId"], vars["nodeId"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("documentId")
	if documentID == "" {
		respondError(w, schema.NewError(schema.ErrCodeValidation, "documentId is required"))
		return
	}
	nodeID := r.URL.Query().Get("flowNode")

	actions, err := s.orchestrator.History(r.Context(), documentID, nodeID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, actions)
}

type transferRequest struct {
	CurrentDocumentID string `json:"currentDocumentId"`
	TargetFlowID      string `json:"targetFlowId"`
}

type transferResponse struct {
	TargetFlowName string `json:"targetFlowName"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err))
		return
	}
	defer r.Body.Close()
	if req.CurrentDocumentID == "" || req.TargetFlowID == "" {
		respondError(w, schema.NewError(schema.ErrCodeValidation, "currentDocumentId and targetFlowId are required"))
		return
	}

	name, _, err := s.orchestrator.Transfer(r.Context(), req.CurrentDocumentID, req.TargetFlowID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transferResponse{TargetFlowName: name})
}
