package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ps2assistant/mergetracker/telemetry"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantHeader string
	}{
		{"no origins configured allows all", nil, "https://any.example", "*"},
		{"exact match", []string{"https://merge.example"}, "https://merge.example", "https://merge.example"},
		{"wildcard subdomain", []string{"*.example.org"}, "https://stats.example.org", "https://stats.example.org"},
		{"not allowed", []string{"https://merge.example"}, "https://evil.example", ""},
		{"blank entries ignored", []string{" ", "https://merge.example"}, "https://merge.example", "https://merge.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}), newCORSConfig(tt.origins))

			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			req.Header.Set("Origin", tt.origin)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := withCORSConfig(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), newCORSConfig(nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/standings", nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rr.Code)
	}
	if called {
		t.Error("preflight reached the handler")
	}
}

func TestRequestMetricsUseRoutePattern(t *testing.T) {
	telemetry.Init()
	mux := NewMux(newTestHandlers(t, nil))

	before := testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues("GET", "/standings", "404"))
	do(t, mux, http.MethodGet, "/standings?group=nowhere")
	after := testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues("GET", "/standings", "404"))
	if after-before != 1 {
		t.Errorf("counter moved by %v, want 1", after-before)
	}

	before = testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	do(t, mux, http.MethodGet, "/unknown")
	after = testutil.ToFloat64(telemetry.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	if after-before != 1 {
		t.Errorf("unmatched counter moved by %v, want 1", after-before)
	}
}
