package db

import (
	"context"
	"errors"
	"testing"

	"github.com/ps2assistant/mergetracker/census"
)

func TestConnectWithoutDSN(t *testing.T) {
	if _, err := Connect(context.Background(), ""); !errors.Is(err, ErrNoDSN) {
		t.Fatalf("Connect(\"\") error = %v, want ErrNoDSN", err)
	}
}

func TestUpsertStandings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := RunMigrations(db); err != nil {
		t.Fatal(err)
	}

	rows := []StandingRow{
		{Group: "miller", Faction: census.VS, AlertWins: 1, Captures: 10},
		{Group: "miller", Faction: census.NC, AlertWins: 2, Captures: 12},
		{Group: "miller", Faction: census.TR, AlertWins: 5, Captures: 9, Leader: true},
	}
	if err := UpsertStandings(ctx, db, rows); err != nil {
		t.Fatalf("UpsertStandings() error = %v", err)
	}
	rows[1].AlertWins = 3
	if err := UpsertStandings(ctx, db, rows); err != nil {
		t.Fatalf("second UpsertStandings() error = %v", err)
	}

	got, err := GetStandings(ctx, db, "miller")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	if got[1].Faction != census.NC || got[1].AlertWins != 3 {
		t.Errorf("NC row = %+v, want 3 wins after update", got[1])
	}
	if !got[2].Leader || got[2].UpdatedAt.IsZero() {
		t.Errorf("TR row = %+v", got[2])
	}
	if none, err := GetStandings(ctx, db, "connery-emerald"); err != nil || len(none) != 0 {
		t.Errorf("other group = %+v, %v", none, err)
	}
}

func TestKV(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := GetKV(ctx, db, "job_standings_last"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := SetKV(ctx, db, "job_standings_last", "a"); err != nil {
		t.Fatal(err)
	}
	if err := SetKV(ctx, db, "job_standings_last", "b"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := GetKV(ctx, db, "job_standings_last")
	if err != nil || !ok || v != "b" {
		t.Errorf("GetKV = %q, %v, %v; want b", v, ok, err)
	}
}
