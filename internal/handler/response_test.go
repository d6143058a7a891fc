package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freeeve/polite-concession/internal/auth"
	"github.com/freeeve/polite-concession/internal/service"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name   string
		status int
		v      any
		want   string
	}{
		{"object", http.StatusOK, map[string]string{"status": "agreed"}, `{"status":"agreed"}`},
		{"created", http.StatusCreated, map[string]int{"rounds": 3}, `{"rounds":3}`},
		{"empty list", http.StatusOK, []struct{}{}, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeJSON(rec, tt.status, tt.v)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected Content-Type=application/json, got %s", ct)
			}
			if body := strings.TrimSpace(rec.Body.String()); body != tt.want {
				t.Errorf("expected %s, got %s", tt.want, body)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadRequest, "offer is required")

	var result map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.Code != http.StatusBadRequest || result["error"] != "offer is required" {
		t.Errorf("unexpected response %d %v", rec.Code, result)
	}
}

func TestDecodeJSON(t *testing.T) {
	body := `{"scenario":"holiday","agent_side":"b","params":{"e":0.5}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(body))

	var in service.CreateSessionInput
	if err := decodeJSON(req, &in); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if in.Scenario != "holiday" || in.AgentSide != "b" || in.Params["e"] != 0.5 {
		t.Errorf("unexpected input %+v", in)
	}

	for _, bad := range []string{"not json", ""} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(bad))
		if err := decodeJSON(req, &in); err == nil {
			t.Errorf("expected error for body %q", bad)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", service.ErrSessionNotActive), http.StatusConflict},
		{service.ErrNotYourTurn, http.StatusConflict},
		{service.ErrNothingToAccept, http.StatusConflict},
		{fmt.Errorf("%w: unknown issue", service.ErrInvalidOffer), http.StatusBadRequest},
		{service.ErrInvalidSession, http.StatusBadRequest},
		{service.ErrInvalidParams, http.StatusBadRequest},
		{auth.ErrMissingToken, http.StatusUnauthorized},
		{auth.ErrForbidden, http.StatusForbidden},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteServiceErrorHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	writeServiceError(rec, req, errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "pq") {
		t.Errorf("internal error leaked: %s", rec.Body.String())
	}
}
