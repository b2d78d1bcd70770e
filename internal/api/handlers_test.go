// Copyright 2025 ChaosChain
//
// Request-shape validation tests that never reach the workflow engine:
// handlers are constructed with a nil dependency and only the
// pre-engine validation paths are exercised.

package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandleWorkflowsMethodNotAllowed(t *testing.T) {
	s := NewServer(nil)
	req := httptest.NewRequest("DELETE", "/workflows", nil)
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)

	if rr.Code != 405 {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestSubmitRejectsMalformedJSON(t *testing.T) {
	s := NewServer(nil)
	req := httptest.NewRequest("POST", "/workflows", strings.NewReader("not json"))
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)

	if rr.Code != 400 {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Code != "MALFORMED_REQUEST" {
		t.Errorf("code = %s, want MALFORMED_REQUEST", body.Code)
	}
}

func TestSubmitRejectsInvalidSigner(t *testing.T) {
	s := NewServer(nil)
	reqBody := `{"type":"WorkSubmission","signer":"not-hex","input":{}}`
	req := httptest.NewRequest("POST", "/workflows", strings.NewReader(reqBody))
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)

	if rr.Code != 400 {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	var body errorBody
	json.NewDecoder(rr.Body).Decode(&body)
	if body.Code != "SIGNER_NOT_FOUND" {
		t.Errorf("code = %s, want SIGNER_NOT_FOUND", body.Code)
	}
}

func TestHandleWorkflowByIDRequiresID(t *testing.T) {
	s := NewServer(nil)
	req := httptest.NewRequest("GET", "/workflows/", nil)
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)

	if rr.Code != 404 {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestHandleWorkflowByIDRejectsUnsupportedAction(t *testing.T) {
	s := NewServer(nil)
	req := httptest.NewRequest("DELETE", "/workflows/abc-123", nil)
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)

	if rr.Code != 405 {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}
