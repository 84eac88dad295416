// Package export persists the standings read model to Postgres on a fixed interval so
// dashboards and the reporting bot can read them without talking to the tracker.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ps2assistant/mergetracker/census"
	"github.com/ps2assistant/mergetracker/db"
	"github.com/ps2assistant/mergetracker/telemetry"
	"github.com/ps2assistant/mergetracker/tracker"
)

const (
	// DefaultInterval is used when the configured interval is not positive.
	DefaultInterval = time.Minute
	// LastRunKey is the kv key holding the time of the last successful export.
	LastRunKey = "job_standings_last"
)

// Source is the read side of the aggregate store.
type Source interface {
	Standings(g tracker.Group, topN int) tracker.Standings
	Counts() (captures, alerts int)
}

// StartStandingsJob exports standings immediately and then every interval until ctx is done.
// It blocks; run it in its own goroutine.
func StartStandingsJob(ctx context.Context, dbc *sql.DB, src Source, groups []tracker.Group, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := slog.Default().With(slog.String("component", "standings_export"))
	logger.Info("standings export job starting",
		slog.Int("groups", len(groups)),
		slog.Duration("interval", interval))

	run := func() {
		if err := ExportOnce(ctx, dbc, src, groups); err != nil && ctx.Err() == nil {
			logger.Warn("standings export failed", slog.Any("err", err))
		}
	}
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("standings export job stopped")
			return
		case <-ticker.C:
			run()
		}
	}
}

// ExportOnce writes the current standings of every group and records the run time.
func ExportOnce(ctx context.Context, dbc *sql.DB, src Source, groups []tracker.Group) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "export.standings", attribute.Int("export.groups", len(groups)))
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		if telemetry.StandingsExports != nil {
			telemetry.StandingsExports.WithLabelValues(result).Inc()
		}
		telemetry.RecordError(span, err)
		span.End()
	}()

	telemetry.SetStoredEvents(src.Counts())

	var rows []db.StandingRow
	for _, g := range groups {
		rows = append(rows, Rows(g, src.Standings(g, 0))...)
	}
	if err := db.UpsertStandings(ctx, dbc, rows); err != nil {
		return err
	}
	if err := db.SetKV(ctx, dbc, LastRunKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record export time: %w", err)
	}
	return nil
}

// Rows flattens one group's standings into table rows keyed by the group slug.
func Rows(g tracker.Group, st tracker.Standings) []db.StandingRow {
	out := make([]db.StandingRow, 0, len(st.Factions))
	for _, fs := range st.Factions {
		out = append(out, db.StandingRow{
			Group:     g.Slug,
			Faction:   fs.Faction,
			AlertWins: fs.AlertWins,
			Captures:  fs.Captures,
			Leader:    st.Leader != census.NoFaction && st.Leader == fs.Faction,
		})
	}
	return out
}
