package tracker

import (
	"maps"
	"slices"
	"sync"

	"github.com/ps2assistant/mergetracker/census"
)

// Captures maps world → faction → accepted facility captures in arrival order.
type Captures map[census.WorldID]map[census.FactionID][]census.FacilityControl

// Alerts maps world → faction → alert wins in arrival order.
type Alerts map[census.WorldID]map[census.FactionID][]census.MetagameEvent

// Snapshot is a deep copy of everything the engine has built, including the transient
// per-world state that affects how later messages are classified.
type Snapshot struct {
	Captures      Captures
	Alerts        Alerts
	SuppressUntil map[census.WorldID]int64
	LastWinner    map[census.WorldID]census.FactionID
}

// Store is the in-memory aggregate. Only the Engine mutates it; any number of readers may
// call the accessors concurrently, and each accessor returns a copy the caller owns.
type Store struct {
	mu            sync.RWMutex
	captures      Captures
	alerts        Alerts
	suppressUntil map[census.WorldID]int64
	lastWinner    map[census.WorldID]census.FactionID
}

// NewStore seeds every world with empty accumulators for the three factions. If worlds is
// empty the fixed census.Worlds set is used.
func NewStore(worlds ...census.WorldID) *Store {
	if len(worlds) == 0 {
		worlds = census.Worlds()
	}
	s := &Store{
		captures:      make(Captures, len(worlds)),
		alerts:        make(Alerts, len(worlds)),
		suppressUntil: make(map[census.WorldID]int64, len(worlds)),
		lastWinner:    make(map[census.WorldID]census.FactionID, len(worlds)),
	}
	for _, w := range worlds {
		s.captures[w] = make(map[census.FactionID][]census.FacilityControl, 3)
		s.alerts[w] = make(map[census.FactionID][]census.MetagameEvent, 3)
		for _, f := range census.Factions() {
			s.captures[w][f] = []census.FacilityControl{}
			s.alerts[w][f] = []census.MetagameEvent{}
		}
	}
	return s
}

// Worlds returns the seeded worlds in id order.
func (s *Store) Worlds() []census.WorldID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.captures))
}

// HasWorld reports whether w was seeded.
func (s *Store) HasWorld(w census.WorldID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.captures[w]
	return ok
}

// Captures returns a copy of the capture aggregate.
func (s *Store) Captures() Captures {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyNested(s.captures)
}

// Alerts returns a copy of the alert-win aggregate.
func (s *Store) Alerts() Alerts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyNested(s.alerts)
}

// Snapshot returns a copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Captures:      copyNested(s.captures),
		Alerts:        copyNested(s.alerts),
		SuppressUntil: maps.Clone(s.suppressUntil),
		LastWinner:    maps.Clone(s.lastWinner),
	}
}

// SuppressedUntil returns the unix time before which captures on w are ignored.
func (s *Store) SuppressedUntil(w census.WorldID) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suppressUntil[w]
}

// Counts returns the total number of stored captures and alert wins.
func (s *Store) Counts() (captures, alerts int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, byFaction := range s.captures {
		for _, evs := range byFaction {
			captures += len(evs)
		}
	}
	for _, byFaction := range s.alerts {
		for _, evs := range byFaction {
			alerts += len(evs)
		}
	}
	return captures, alerts
}

func (s *Store) suppress(w census.WorldID, until int64) {
	s.mu.Lock()
	s.suppressUntil[w] = until
	s.mu.Unlock()
}

func (s *Store) addCapture(ev census.FacilityControl) {
	s.mu.Lock()
	s.captures[ev.WorldID][ev.NewFactionID] = append(s.captures[ev.WorldID][ev.NewFactionID], ev)
	s.mu.Unlock()
}

func (s *Store) addAlertWin(w census.WorldID, winner census.FactionID, ev census.MetagameEvent) {
	s.mu.Lock()
	s.alerts[w][winner] = append(s.alerts[w][winner], ev)
	s.lastWinner[w] = winner
	s.mu.Unlock()
}

// retractLastWin removes the most recent alert win recorded for w. The last winner is
// cleared so a second sudden-death start cannot remove an older, genuine win.
func (s *Store) retractLastWin(w census.WorldID) (census.FactionID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lastWinner[w]
	if !ok {
		return census.NoFaction, false
	}
	wins := s.alerts[w][f]
	if len(wins) == 0 {
		delete(s.lastWinner, w)
		return f, false
	}
	s.alerts[w][f] = wins[:len(wins)-1]
	delete(s.lastWinner, w)
	return f, true
}

func copyNested[E any](src map[census.WorldID]map[census.FactionID][]E) map[census.WorldID]map[census.FactionID][]E {
	out := make(map[census.WorldID]map[census.FactionID][]E, len(src))
	for w, byFaction := range src {
		inner := make(map[census.FactionID][]E, len(byFaction))
		for f, evs := range byFaction {
			inner[f] = slices.Clone(evs)
		}
		out[w] = inner
	}
	return out
}
