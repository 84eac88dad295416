package tracker

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/ps2assistant/mergetracker/census"
)

func TestNewStoreSeedsAllWorlds(t *testing.T) {
	s := NewStore()
	if got := s.Worlds(); !slices.Equal(got, census.Worlds()) {
		t.Errorf("Worlds() = %v, want %v", got, census.Worlds())
	}
	caps, alerts := s.Captures(), s.Alerts()
	for _, w := range census.Worlds() {
		for _, f := range census.Factions() {
			if evs, ok := caps[w][f]; !ok || evs == nil || len(evs) != 0 {
				t.Errorf("captures[%d][%d] = %v, want empty accumulator", w, f, evs)
			}
			if evs, ok := alerts[w][f]; !ok || evs == nil || len(evs) != 0 {
				t.Errorf("alerts[%d][%d] = %v, want empty accumulator", w, f, evs)
			}
		}
	}
	if s.HasWorld(census.WorldID(13)) {
		t.Error("HasWorld(13) = true")
	}
}

func TestStoreReadersGetCopies(t *testing.T) {
	e := newTestEngine(t, DefaultWindow)
	e.Classify(captureMsg(census.Miller, census.TR, census.VS, 100, t0, 1))

	caps := e.Store().Captures()
	caps[census.Miller][census.VS][0].FacilityID = -1
	caps[census.Miller][census.VS] = append(caps[census.Miller][census.VS], census.FacilityControl{})
	delete(caps, census.Connery)

	fresh := e.Store().Captures()
	if len(fresh[census.Miller][census.VS]) != 1 || fresh[census.Miller][census.VS][0].FacilityID == -1 {
		t.Error("mutating a read copy changed the store")
	}
	if _, ok := fresh[census.Connery]; !ok {
		t.Error("deleting from a read copy changed the store")
	}
}

func TestStoreConcurrentReadersDuringWrites(t *testing.T) {
	e := newTestEngine(t, DefaultWindow)
	groups := DefaultGroups()

	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				_ = e.Store().Captures()
				_ = e.Store().Alerts()
				_ = e.Store().Standings(groups[1], 3)
				_, _ = e.Store().Counts()
			}
		}()
	}
	for i := int64(0); i < 500; i++ {
		e.Classify(captureMsg(census.Miller, census.TR, census.VS, 100, t0+i*3, uint64(i%7)))
		if i%50 == 0 {
			e.Classify(metagameMsg(census.Miller, 148, census.StateEnded, 50, 20, 30, t0+i*3+1))
		}
	}
	close(done)
	wg.Wait()

	c, a := e.Store().Counts()
	if a != 10 {
		t.Errorf("alerts = %d, want 10", a)
	}
	if c == 0 {
		t.Error("no captures stored")
	}
}

func TestLoadCorrectionsShippedFile(t *testing.T) {
	c, err := LoadCorrections(filepath.Join("..", "corrections.yaml"))
	if err != nil {
		t.Fatalf("LoadCorrections() error: %v", err)
	}
	if c.Len() != 15 {
		t.Errorf("Len() = %d, want 15", c.Len())
	}

	s := NewStore()
	if err := s.Seed(c); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	alerts := s.Alerts()
	if got := len(alerts[census.Miller][census.VS]); got != 1 {
		t.Errorf("Miller VS = %d, want 1", got)
	}
	if got := len(alerts[census.Miller][census.TR]); got != 5 {
		t.Errorf("Miller TR = %d, want 5", got)
	}
	if got := len(alerts[census.Emerald][census.NC]); got != 9 {
		t.Errorf("Emerald NC = %d, want 9", got)
	}
	first := alerts[census.Miller][census.TR][0]
	if first.MetagameEventID != 239 || first.State != census.StateEnded || first.FactionTR != 1823 {
		t.Errorf("first Miller TR correction = %+v", first)
	}

	miller, _ := FindGroup(DefaultGroups(), "miller")
	st := s.Standings(miller, 3)
	if st.Leader != census.TR || st.ServerName != "Wainwright" {
		t.Errorf("Miller standings leader = %s (%q)", st.Leader, st.ServerName)
	}
}

func TestLoadCorrectionsMissingAndInvalid(t *testing.T) {
	c, err := LoadCorrections(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil || c.Len() != 0 {
		t.Errorf("missing file: %+v, %v", c, err)
	}
	if c, err := LoadCorrections(""); err != nil || c.Len() != 0 {
		t.Errorf("empty path: %+v, %v", c, err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("alerts: [::"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCorrections(bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestSeedRejectsUnknownWorldAtomically(t *testing.T) {
	s := NewStore()
	c := Corrections{
		Alerts: []AlertCorrection{
			{World: census.Miller, Faction: census.VS, Event: census.MetagameEvent{MetagameEventID: 148}},
			{World: census.WorldID(13), Faction: census.VS},
		},
	}
	if err := s.Seed(c); err == nil {
		t.Fatal("Seed() succeeded with unknown world")
	}
	if _, a := s.Counts(); a != 0 {
		t.Errorf("partial seed applied %d alerts", a)
	}

	if err := s.Seed(Corrections{Alerts: []AlertCorrection{{World: census.Miller, Faction: census.NoFaction}}}); err == nil {
		t.Error("Seed() succeeded with faction 0")
	}
}

func TestSeedCaptures(t *testing.T) {
	s := NewStore()
	c := Corrections{Captures: []CaptureCorrection{{
		World: census.Connery,
		Count: 3,
		Event: census.FacilityControl{OldFactionID: census.TR, NewFactionID: census.NC, OutfitID: 99, WorldID: census.Connery},
	}}}
	if err := s.Seed(c); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if got := len(s.Captures()[census.Connery][census.NC]); got != 3 {
		t.Errorf("captures = %d, want 3", got)
	}
}
