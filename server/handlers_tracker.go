package server

import (
	"net/http"
	"os"

	"github.com/ps2assistant/mergetracker/census"
	"github.com/ps2assistant/mergetracker/stream"
	"github.com/ps2assistant/mergetracker/tracker"
)

type statusResponse struct {
	StreamEnabled   bool                     `json:"stream_enabled"`
	Stream          *stream.Status           `json:"stream,omitempty"`
	Window          tracker.Window           `json:"window"`
	Captures        int                      `json:"captures"`
	Alerts          int                      `json:"alerts"`
	SuppressedUntil map[census.WorldID]int64 `json:"suppressed_until"`
	Corrections     int                      `json:"corrections"`
	Replay          *tracker.ReplayStats     `json:"replay,omitempty"`
	JournalPath     string                   `json:"journal_path"`
}

// HandleStatus reports the feed state and aggregate totals.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		StreamEnabled:   h.opts.Stream != nil,
		Window:          h.opts.Window,
		SuppressedUntil: make(map[census.WorldID]int64),
		Corrections:     h.opts.Corrections,
		Replay:          h.replayStats(),
		JournalPath:     h.opts.JournalPath,
	}
	if h.opts.Stream != nil {
		st := h.opts.Stream.Status()
		resp.Stream = &st
	}
	resp.Captures, resp.Alerts = h.opts.Store.Counts()
	for _, world := range h.opts.Store.Worlds() {
		resp.SuppressedUntil[world] = h.opts.Store.SuppressedUntil(world)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStandings returns the standings of every group, or of ?group= (slug or name).
// ?top= sets how many outfits are listed per faction.
func (h *Handlers) HandleStandings(w http.ResponseWriter, r *http.Request) {
	top := parseIntQuery(r, "top", tracker.DefaultTopOutfits)
	if key := r.URL.Query().Get("group"); key != "" {
		g, ok := tracker.FindGroup(h.opts.Groups, key)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown group "+key)
			return
		}
		writeJSON(w, http.StatusOK, h.opts.Store.Standings(g, top))
		return
	}
	out := make([]tracker.Standings, 0, len(h.opts.Groups))
	for _, g := range h.opts.Groups {
		out = append(out, h.opts.Store.Standings(g, top))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleCaptures returns stored captures keyed by world and faction, optionally for ?world=.
func (h *Handlers) HandleCaptures(w http.ResponseWriter, r *http.Request) {
	world, ok := h.worldFilter(w, r)
	if !ok {
		return
	}
	caps := h.opts.Store.Captures()
	if world != 0 {
		caps = tracker.Captures{world: caps[world]}
	}
	writeJSON(w, http.StatusOK, caps)
}

// HandleAlerts returns stored alert wins keyed by world and faction, optionally for ?world=.
func (h *Handlers) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	world, ok := h.worldFilter(w, r)
	if !ok {
		return
	}
	alerts := h.opts.Store.Alerts()
	if world != 0 {
		alerts = tracker.Alerts{world: alerts[world]}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *Handlers) worldFilter(w http.ResponseWriter, r *http.Request) (census.WorldID, bool) {
	world := census.WorldID(parseIntQuery(r, "world", 0))
	if world == 0 {
		return 0, true
	}
	for _, known := range h.opts.Store.Worlds() {
		if known == world {
			return world, true
		}
	}
	writeError(w, http.StatusNotFound, "unknown world "+world.String())
	return 0, false
}

// HandleJournal reports where the journal lives. With ?download=1 it streams the file.
func (h *Handlers) HandleJournal(w http.ResponseWriter, r *http.Request) {
	if h.opts.JournalPath == "" {
		writeError(w, http.StatusNotFound, "no journal configured")
		return
	}
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Type", "application/x-ndjson")
		http.ServeFile(w, r, h.opts.JournalPath)
		return
	}
	resp := map[string]any{"path": h.opts.JournalPath}
	if fi, err := os.Stat(h.opts.JournalPath); err == nil {
		resp["size_bytes"] = fi.Size()
		resp["modified_at"] = fi.ModTime().UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}
