package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rvergara/docflow/pkg/schema"
)

func TestDocumentsSetStatus(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewDocumentsClient(Config{BaseURL: srv.URL, Token: "tok-1"})
	if err := c.SetStatus(context.Background(), "doc-9", DocumentStatusConcluded); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/documents/doc-9" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody["status"] != "Concluido" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestDocumentsSetStatusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewDocumentsClient(Config{BaseURL: srv.URL})
	err := c.SetStatus(context.Background(), "doc-9", DocumentStatusInProcess)
	var fe *schema.FlowError
	if !errors.As(err, &fe) || fe.Code != schema.ErrCodeCollaborator {
		t.Fatalf("expected COLLABORATOR_ERROR, got %v", err)
	}
}

func TestEditionsOpen(t *testing.T) {
	var got EditionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/document-editions" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewEditionsClient(Config{BaseURL: srv.URL})
	if err := c.Open(context.Background(), "doc-1", "tpl-7", "node-3"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if got.DocumentID != "doc-1" || got.TemplateID != "tpl-7" || got.FluxNodeID != "node-3" {
		t.Errorf("payload = %+v", got)
	}
	if got.Status != "in_progress" {
		t.Errorf("status = %q, want in_progress", got.Status)
	}
}

func TestTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req TransferRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.TargetFlowID != "flow-b" {
			t.Errorf("target flow = %q", req.TargetFlowID)
		}
		_ = json.NewEncoder(w).Encode(TransferResponse{TargetFlowName: "Jurídico"})
	}))
	defer srv.Close()

	c := NewTransferClient(Config{BaseURL: srv.URL})
	resp, err := c.Transfer(context.Background(), TransferRequest{
		CurrentDocumentID: "doc-1",
		TargetFlowID:      "flow-b",
		FlowTasks:         schema.Graph{},
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if resp.TargetFlowName != "Jurídico" {
		t.Errorf("target flow name = %q", resp.TargetFlowName)
	}
}

func TestTransferFailureWrapsCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such flow", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewTransferClient(Config{BaseURL: srv.URL})
	_, err := c.Transfer(context.Background(), TransferRequest{CurrentDocumentID: "doc-1", TargetFlowID: "nope"})
	var fe *schema.FlowError
	if !errors.As(err, &fe) || fe.Code != schema.ErrCodeTransfer {
		t.Fatalf("expected TRANSFER_ERROR, got %v", err)
	}
}
