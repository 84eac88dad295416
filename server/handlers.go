// Package server exposes the HTTP API handlers.
package server

import (
	"database/sql"
	"sync"
	"sync/atomic"

	"github.com/ps2assistant/mergetracker/census"
	"github.com/ps2assistant/mergetracker/stream"
	"github.com/ps2assistant/mergetracker/tracker"
)

// StoreReader is the read side of the aggregate store.
type StoreReader interface {
	Worlds() []census.WorldID
	Captures() tracker.Captures
	Alerts() tracker.Alerts
	Counts() (captures, alerts int)
	SuppressedUntil(w census.WorldID) int64
	Standings(g tracker.Group, topN int) tracker.Standings
}

// StatusSource reports the live feed state.
type StatusSource interface {
	Status() stream.Status
}

// Options are the dependencies of the handlers. Store is required; the rest are optional.
type Options struct {
	Store StoreReader
	// Stream is nil when live collection is disabled.
	Stream      StatusSource
	Groups      []tracker.Group
	Window      tracker.Window
	JournalPath string
	Corrections int
	// DB is nil when the standings export is disabled.
	DB                 *sql.DB
	CORSAllowedOrigins []string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	opts Options

	replayed atomic.Bool
	mu       sync.RWMutex
	replay   *tracker.ReplayStats
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(opts Options) *Handlers {
	if opts.Groups == nil {
		opts.Groups = tracker.DefaultGroups()
	}
	return &Handlers{opts: opts}
}

// MarkReplayed records the startup replay result; /readyz reports ready from then on.
func (h *Handlers) MarkReplayed(stats tracker.ReplayStats) {
	h.mu.Lock()
	h.replay = &stats
	h.mu.Unlock()
	h.replayed.Store(true)
}

func (h *Handlers) replayStats() *tracker.ReplayStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.replay
}
