package export

import (
	"context"
	"testing"
	"time"

	"github.com/ps2assistant/mergetracker/census"
	"github.com/ps2assistant/mergetracker/db"
	"github.com/ps2assistant/mergetracker/testutil"
	"github.com/ps2assistant/mergetracker/tracker"
)

func seededStore(t *testing.T) *tracker.Store {
	t.Helper()
	s := tracker.NewStore()
	err := s.Seed(tracker.Corrections{
		Alerts: []tracker.AlertCorrection{
			{World: census.Miller, Faction: census.TR, Count: 5},
			{World: census.Miller, Faction: census.VS, Count: 1},
			{World: census.Emerald, Faction: census.NC, Count: 2},
			{World: census.Connery, Faction: census.TR, Count: 2},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRows(t *testing.T) {
	s := seededStore(t)
	groups := tracker.DefaultGroups()

	miller, _ := tracker.FindGroup(groups, "miller")
	rows := Rows(miller, s.Standings(miller, 0))
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for _, r := range rows {
		if r.Group != "miller" {
			t.Errorf("row group = %q, want slug", r.Group)
		}
		if r.Leader != (r.Faction == census.TR) {
			t.Errorf("%s leader = %v", r.Faction.Short(), r.Leader)
		}
	}

	// Connery and Emerald: NC 2, TR 2 is a tie, so nobody leads.
	ce, _ := tracker.FindGroup(groups, "connery-emerald")
	for _, r := range Rows(ce, s.Standings(ce, 0)) {
		if r.Leader {
			t.Errorf("%s marked leader in a tied group", r.Faction.Short())
		}
	}
}

func TestExportOnce(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	ctx := context.Background()
	s := seededStore(t)

	if err := ExportOnce(ctx, dbc, s, tracker.DefaultGroups()); err != nil {
		t.Fatalf("ExportOnce() error = %v", err)
	}
	rows, err := db.GetStandings(ctx, dbc, "miller")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[2].Faction != census.TR || rows[2].AlertWins != 5 || !rows[2].Leader {
		t.Errorf("miller rows = %+v", rows)
	}
	if _, ok, err := db.GetKV(ctx, dbc, LastRunKey); err != nil || !ok {
		t.Errorf("last run not recorded: ok=%v err=%v", ok, err)
	}
}

func TestStartStandingsJobStopsOnCancel(t *testing.T) {
	dbc := testutil.SetupTestDB(t)
	s := seededStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartStandingsJob(ctx, dbc, s, tracker.DefaultGroups(), 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop after cancel")
	}

	rows, err := db.GetStandings(context.Background(), dbc, "connery-emerald")
	if err != nil || len(rows) != 3 {
		t.Fatalf("rows = %+v, err = %v", rows, err)
	}
}
