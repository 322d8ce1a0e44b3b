package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// These tests exercise only the request-parsing branches that return
// before touching the underlying proofstore.Store, so a nil store is
// safe to construct the handler with.

func TestHandleL2RejectsNonGet(t *testing.T) {
	h := NewProofChainHandlers(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/proof_chain/0:aa/1", nil)
	rec := httptest.NewRecorder()
	h.HandleL2(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleL2RejectsMissingLT(t *testing.T) {
	h := NewProofChainHandlers(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/proof_chain/0:abcdef", nil)
	rec := httptest.NewRecorder()
	h.HandleL2(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when lt segment is missing", rec.Code)
	}
}

func TestHandleL2RejectsInvalidAddress(t *testing.T) {
	h := NewProofChainHandlers(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/proof_chain/not-an-address/123", nil)
	rec := httptest.NewRecorder()
	h.HandleL2(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an unparseable address", rec.Code)
	}
}

func TestHandleL2RejectsNonNumericLT(t *testing.T) {
	h := NewProofChainHandlers(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/proof_chain/0:0000000000000000000000000000000000000000000000000000000000000000/notanumber", nil)
	rec := httptest.NewRecorder()
	h.HandleL2(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a non-numeric lt", rec.Code)
	}
}
