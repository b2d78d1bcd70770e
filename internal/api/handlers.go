// Copyright 2025 ChaosChain
//
// Thin HTTP surface over the workflow engine: plain http.HandlerFunc
// values registered on a ServeMux, no web framework. Carries none of the
// engine's invariants itself — it only translates requests/responses.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/chaoschain/gateway/internal/guard"
	"github.com/chaoschain/gateway/internal/store"
	"github.com/chaoschain/gateway/internal/workflow"
)

// Server wires the workflow engine to net/http handlers.
type Server struct {
	engine *workflow.Engine
	mux    *http.ServeMux
}

// NewServer builds a Server and registers its routes.
func NewServer(engine *workflow.Engine) *Server {
	s := &Server{engine: engine, mux: http.NewServeMux()}
	s.mux.HandleFunc("/workflows", s.handleWorkflows)
	s.mux.HandleFunc("/workflows/", s.handleWorkflowByID)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type submitRequest struct {
	Type   string          `json:"type"`
	Signer string          `json:"signer"`
	Input  json.RawMessage `json:"input"`
}

type submitResponse struct {
	WorkflowID string `json:"workflowId"`
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.submit(w, r)
	case http.MethodGet:
		s.list(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "unsupported method")
	}
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", err.Error())
		return
	}

	signerAddr, err := guard.NewSignerAddress(req.Signer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "SIGNER_NOT_FOUND", err.Error())
		return
	}

	var input interface{}
	if err := json.Unmarshal(req.Input, &input); err != nil {
		writeError(w, http.StatusBadRequest, "MALFORMED_REQUEST", err.Error())
		return
	}

	workflowID, err := s.engine.Submit(r.Context(), guard.WorkflowType(req.Type), signerAddr, req.Input)
	if err != nil {
		var ae *workflow.AdmissionError
		if errors.As(err, &ae) {
			writeError(w, http.StatusUnprocessableEntity, ae.Code, ae.Message)
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{WorkflowID: workflowID})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := workflow.ListFilter{
		State:  q.Get("state"),
		Type:   q.Get("type"),
		Signer: q.Get("signer"),
	}

	rows, err := s.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleWorkflowByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/workflows/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "workflow id required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.get(w, r, id)
	case action == "resume" && r.Method == http.MethodPost:
		s.resume(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "unsupported method or path")
	}
}

func (s *Server) get(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.engine.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "workflow not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.engine.Resume(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "workflow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
