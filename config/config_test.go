package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ps2assistant/mergetracker/tracker"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CENSUS_SERVICE_ID", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Window() != tracker.DefaultWindow {
		t.Errorf("window = %+v, want %+v", cfg.Window(), tracker.DefaultWindow)
	}
	if !cfg.CollectionDeadline.Equal(time.Unix(tracker.DefaultWindow.End, 0)) {
		t.Errorf("deadline = %v, want window end", cfg.CollectionDeadline)
	}
	if cfg.IgnoreDuration() != 2*time.Second {
		t.Errorf("ignore duration = %v, want 2s", cfg.IgnoreDuration())
	}
	if cfg.ReconnectMaxAttempts != 13 || cfg.ReconnectStep != 5*time.Second {
		t.Errorf("reconnect = %d/%v, want 13/5s", cfg.ReconnectMaxAttempts, cfg.ReconnectStep)
	}
	if cfg.JournalDir != "MergeTracker" {
		t.Errorf("journal dir = %q", cfg.JournalDir)
	}
	if cfg.ExportEnabled() {
		t.Error("export enabled without DB_DSN")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MERGE_WINDOW_START", "100")
	t.Setenv("MERGE_WINDOW_END", "200")
	t.Setenv("MERGE_COLLECTION_DEADLINE", "2025-03-31T12:00:00Z")
	t.Setenv("RECONNECT_STEP", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("DB_DSN", "postgres://localhost/merge")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Window() != (tracker.Window{Start: 100, End: 200}) {
		t.Errorf("window = %+v", cfg.Window())
	}
	want := time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)
	if !cfg.CollectionDeadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", cfg.CollectionDeadline, want)
	}
	if cfg.ReconnectStep != 250*time.Millisecond {
		t.Errorf("step = %v", cfg.ReconnectStep)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.ExportEnabled() {
		t.Error("export disabled with DB_DSN set")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name, key, value, field string
	}{
		{"window end before start", "MERGE_WINDOW_END", "1", "WindowEnd"},
		{"zero attempts", "RECONNECT_MAX_ATTEMPTS", "0", "ReconnectMaxAttempts"},
		{"bad push url", "CENSUS_PUSH_URL", "not a url", "CensusPushURL"},
		{"negative suppression", "SUPPRESSION_SECONDS", "-1", "SuppressionSeconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil {
				t.Fatal("Load() succeeded")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error = %v, want mention of %s", err, tc.field)
			}
		})
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("RECONNECT_STEP", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateStreamReady(t *testing.T) {
	t.Setenv("CENSUS_SERVICE_ID", "example")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ValidateStreamReady(); err != nil {
		t.Errorf("expected valid stream config, got %v", err)
	}
	u, err := cfg.StreamURL()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(u, "service-id=s%3Aexample") || !strings.Contains(u, "environment=ps2") {
		t.Errorf("stream url = %q", u)
	}

	t.Setenv("CENSUS_SERVICE_ID", "")
	cfg, _ = Load()
	if err := cfg.ValidateStreamReady(); err == nil {
		t.Error("expected error when CENSUS_SERVICE_ID is missing")
	}
}
