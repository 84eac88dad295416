package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProbe(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	if got := probe(srv.URL + "/healthz"); got != 0 {
		t.Errorf("healthy probe = %d, want 0", got)
	}
	status = http.StatusServiceUnavailable
	if got := probe(srv.URL + "/healthz"); got != 1 {
		t.Errorf("unhealthy probe = %d, want 1", got)
	}
	if got := probe("http://127.0.0.1:1/healthz"); got != 1 {
		t.Errorf("unreachable probe = %d, want 1", got)
	}
}
