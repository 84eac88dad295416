// Package config loads environment variables and provides a typed Config used across the service.
// It applies the defaults of the server merge event so the binary can run locally with minimal setup.
// For the Census credential, use ValidateStreamReady.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/ps2assistant/mergetracker/census"
	"github.com/ps2assistant/mergetracker/tracker"
)

type Config struct {
	// Census
	CensusServiceID   string `env:"CENSUS_SERVICE_ID"`
	CensusPushURL     string `env:"CENSUS_PUSH_URL"     envDefault:"wss://push.planetside2.com/streaming" validate:"required,url"`
	CensusEnvironment string `env:"CENSUS_ENVIRONMENT"  envDefault:"ps2"                                  validate:"required"`

	// Collection window, unix seconds, inclusive
	WindowStart int64 `env:"MERGE_WINDOW_START" envDefault:"1743145200" validate:"gt=0"`
	WindowEnd   int64 `env:"MERGE_WINDOW_END"   envDefault:"1743400800" validate:"gtfield=WindowStart"`
	// CollectionDeadline stops the feed. Zero means the window end.
	CollectionDeadline time.Time `env:"MERGE_COLLECTION_DEADLINE"`

	SuppressionSeconds   int           `env:"SUPPRESSION_SECONDS"    envDefault:"2"  validate:"gte=0"`
	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS" envDefault:"13" validate:"gte=1"`
	ReconnectStep        time.Duration `env:"RECONNECT_STEP"         envDefault:"5s" validate:"gte=0s"`

	// Storage
	JournalDir      string `env:"JOURNAL_DIR"      envDefault:"MergeTracker" validate:"required"`
	CorrectionsFile string `env:"CORRECTIONS_FILE" envDefault:"corrections.yaml"`

	// Database
	DBDsn                   string        `env:"DB_DSN"`
	StandingsExportInterval time.Duration `env:"STANDINGS_EXPORT_INTERVAL" envDefault:"1m" validate:"gte=1s"`

	// HTTP
	HTTPAddr           string   `env:"HTTP_ADDR"            envDefault:":8080" validate:"required"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Tracing
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads environment variables and applies defaults. It doesn't fail if the Census service
// id is missing; use ValidateStreamReady() when live collection is required. A missing DB_DSN
// disables the standings export.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.CollectionDeadline.IsZero() {
		cfg.CollectionDeadline = time.Unix(cfg.WindowEnd, 0).UTC()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateStreamReady ensures the Census credential is present for live collection.
func (c *Config) ValidateStreamReady() error {
	if c.CensusServiceID == "" {
		return fmt.Errorf("missing required env: CENSUS_SERVICE_ID")
	}
	return nil
}

// StreamURL is the push endpoint with environment and service id applied.
func (c *Config) StreamURL() (string, error) {
	return census.StreamURL(c.CensusPushURL, c.CensusEnvironment, c.CensusServiceID)
}

// Window is the collection window events must fall in.
func (c *Config) Window() tracker.Window {
	return tracker.Window{Start: c.WindowStart, End: c.WindowEnd}
}

// IgnoreDuration is the capture suppression span after a bogus capture or an alert end.
func (c *Config) IgnoreDuration() time.Duration {
	return time.Duration(c.SuppressionSeconds) * time.Second
}

// ExportEnabled reports whether standings are persisted to Postgres.
func (c *Config) ExportEnabled() bool { return c.DBDsn != "" }
