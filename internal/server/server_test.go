package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"toolgate/internal/workspace"
)

func authedHandler(t *testing.T) http.Handler {
	t.Helper()
	return Middleware("sekrit", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
}

func TestAuthMatrix(t *testing.T) {
	t.Parallel()

	handler := authedHandler(t)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token sekrit", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"valid", "Bearer sekrit", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized {
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("401 body not JSON: %v", err)
				}
				if body["error"] == "" {
					t.Error("401 body missing error field")
				}
			}
		})
	}
}

func TestPreflightBypassesAuth(t *testing.T) {
	t.Parallel()

	handler := authedHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("preflight body must be empty, got %q", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS origin header missing")
	}
}

func TestCORSHeadersOnAllResponses(t *testing.T) {
	t.Parallel()

	handler := authedHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Even a 401 carries the CORS headers.
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS origin header missing on 401")
	}
	for _, want := range []string{"Authorization", "Mcp-Session-Id", "Execution-Id"} {
		if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), want) {
			t.Errorf("allow-headers missing %s", want)
		}
	}
}

func TestExecutionContext(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Execution-Id", "run-7")

	ctx := executionContext(context.Background(), req)
	if got := workspace.ExecutionID(ctx); got != "run-7" {
		t.Errorf("ExecutionID = %q", got)
	}

	// Absent header leaves the context unscoped.
	plain := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	ctx = executionContext(context.Background(), plain)
	if workspace.ExecutionID(ctx) != "" {
		t.Error("unexpected execution id")
	}
}

func TestCheckBearer(t *testing.T) {
	t.Parallel()

	if _, ok := checkBearer("Bearer tok", "tok"); !ok {
		t.Error("valid token rejected")
	}
	if msg, ok := checkBearer("", "tok"); ok || msg == "" {
		t.Error("missing header accepted")
	}
	if _, ok := checkBearer("bearer tok", "tok"); ok {
		t.Error("prefix is case-sensitive")
	}
}
