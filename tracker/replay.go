package tracker

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ps2assistant/mergetracker/telemetry"
)

// ReplayStats summarises a replay run.
type ReplayStats struct {
	Lines     int            `json:"lines"`
	Captures  int            `json:"captures"`
	Alerts    int            `json:"alerts"`
	Retracted int            `json:"retracted"`
	Rejected  map[Reason]int `json:"rejected"`
	Duration  time.Duration  `json:"duration_ns"`
}

// Replay feeds lines through Classify in order. It stops at the first read error or when ctx
// is cancelled, returning the stats gathered so far.
func (e *Engine) Replay(ctx context.Context, lines iter.Seq2[string, error]) (stats ReplayStats, err error) {
	ctx, span := telemetry.StartSpan(ctx, "tracker.replay")
	defer span.End()

	stats.Rejected = make(map[Reason]int)
	start := time.Now()
	defer func() {
		stats.Duration = time.Since(start)
		if telemetry.ReplayDuration != nil {
			telemetry.ReplayDuration.Observe(stats.Duration.Seconds())
		}
	}()

	for line, err := range lines {
		if err != nil {
			telemetry.RecordError(span, err)
			return stats, fmt.Errorf("replay after %d lines: %w", stats.Lines, err)
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.Lines++
		if telemetry.ReplayLines != nil {
			telemetry.ReplayLines.Inc()
		}
		res := e.Classify(line)
		if res.Retracted {
			stats.Retracted++
		}
		switch {
		case res.Accepted && res.Kind == KindCapture:
			stats.Captures++
		case res.Accepted && res.Kind == KindAlert:
			stats.Alerts++
		case !res.Accepted:
			stats.Rejected[res.Reason]++
		}
	}

	span.SetAttributes(
		attribute.Int("replay.lines", stats.Lines),
		attribute.Int("replay.captures", stats.Captures),
		attribute.Int("replay.alerts", stats.Alerts),
	)
	telemetry.SetSpanSuccess(span)
	e.logger.Info("journal replay complete",
		slog.Int("lines", stats.Lines),
		slog.Int("captures", stats.Captures),
		slog.Int("alerts", stats.Alerts),
		slog.Int("retracted", stats.Retracted))
	return stats, nil
}
