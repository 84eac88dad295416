package tracker

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ps2assistant/mergetracker/census"
)

// Corrections are hand-entered results for events the feed missed during outages. They are
// applied to a fresh store before the journal is replayed and bypass validation.
type Corrections struct {
	Alerts   []AlertCorrection   `yaml:"alerts"`
	Captures []CaptureCorrection `yaml:"captures"`
}

// AlertCorrection credits Count copies of Event to Faction on World.
type AlertCorrection struct {
	World   census.WorldID       `yaml:"world"`
	Faction census.FactionID     `yaml:"faction"`
	Count   int                  `yaml:"count"`
	Note    string               `yaml:"note"`
	Event   census.MetagameEvent `yaml:"event"`
}

// CaptureCorrection credits Count copies of Event to its new faction on World.
type CaptureCorrection struct {
	World census.WorldID         `yaml:"world"`
	Count int                    `yaml:"count"`
	Note  string                 `yaml:"note"`
	Event census.FacilityControl `yaml:"event"`
}

// LoadCorrections reads a corrections file. A missing file yields no corrections.
func LoadCorrections(path string) (Corrections, error) {
	var c Corrections
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read corrections: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse corrections %s: %w", path, err)
	}
	return c, nil
}

// Len returns the number of events the corrections add.
func (c Corrections) Len() int {
	n := 0
	for _, a := range c.Alerts {
		n += max(a.Count, 1)
	}
	for _, cc := range c.Captures {
		n += max(cc.Count, 1)
	}
	return n
}

// Seed appends the corrections to the store. A zero Count means one. Entries naming an
// unseeded world or an invalid faction are rejected as a whole before anything is applied.
func (s *Store) Seed(c Corrections) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range c.Alerts {
		if _, ok := s.alerts[a.World]; !ok {
			return fmt.Errorf("alert correction %d: unknown world %d", i, a.World)
		}
		if !validFaction(a.Faction) {
			return fmt.Errorf("alert correction %d: invalid faction %d", i, a.Faction)
		}
	}
	for i, cc := range c.Captures {
		if _, ok := s.captures[cc.World]; !ok {
			return fmt.Errorf("capture correction %d: unknown world %d", i, cc.World)
		}
		if !validFaction(cc.Event.NewFactionID) {
			return fmt.Errorf("capture correction %d: invalid faction %d", i, cc.Event.NewFactionID)
		}
	}

	for _, a := range c.Alerts {
		for range max(a.Count, 1) {
			s.alerts[a.World][a.Faction] = append(s.alerts[a.World][a.Faction], a.Event)
		}
	}
	for _, cc := range c.Captures {
		f := cc.Event.NewFactionID
		for range max(cc.Count, 1) {
			s.captures[cc.World][f] = append(s.captures[cc.World][f], cc.Event)
		}
	}
	return nil
}

func validFaction(f census.FactionID) bool {
	return f == census.VS || f == census.NC || f == census.TR
}
