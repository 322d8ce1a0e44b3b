package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVersionHandlerServesJSON(t *testing.T) {
	h := VersionHandler("1.2.3", "abc123")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want %q", got, "no-cache")
	}

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if info.Version != "1.2.3" || info.Build != "abc123" {
		t.Errorf("got %+v, want version=1.2.3 build=abc123", info)
	}
}

func TestVersionHandlerRejectsNonGet(t *testing.T) {
	h := VersionHandler("1.0.0", "deadbeef")
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405 for a non-GET request", rec.Code)
	}
}
