package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const t0 = 1743200000

func capture(world, oldF, newF int, ts int64, outfit uint64) string {
	return fmt.Sprintf(`{"payload":{"duration_held":"600","event_name":"FacilityControl","facility_id":"222280","new_faction_id":"%d","old_faction_id":"%d","outfit_id":"%d","timestamp":"%d","world_id":"%d","zone_id":"2"},"service":"event","type":"serviceMessage"}`,
		newF, oldF, outfit, ts, world)
}

func alertEnd(world int, vs, nc, tr float64, ts int64) string {
	return fmt.Sprintf(`{"payload":{"event_name":"MetagameEvent","experience_bonus":"25.000000","faction_nc":"%f","faction_tr":"%f","faction_vs":"%f","instance_id":"1","metagame_event_id":"155","metagame_event_state":"138","timestamp":"%d","world_id":"%d","zone_id":"2"},"service":"event","type":"serviceMessage"}`,
		nc, tr, vs, ts, world)
}

func writeJournal(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "SocketDump.json")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CORRECTIONS_FILE", filepath.Join(t.TempDir(), "none.yaml"))
	var out bytes.Buffer
	root := rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestReplayPrintsStandings(t *testing.T) {
	path := writeJournal(t,
		`{"online":{"EventServerEndpoint_Miller_10":"true"},"service":"event","type":"heartbeat"}`,
		capture(10, 1, 3, t0, 77),
		capture(10, 2, 3, t0+60, 77),
		alertEnd(10, 20, 30, 50, t0+120),
	)
	out, err := run(t, "replay", "--group", "miller", path)
	if err != nil {
		t.Fatalf("replay: %v\n%s", err, out)
	}
	for _, want := range []string{"Miller: 1 alerts, 2 captures", "TR", "← leader", "outfit 77: 2", "merged server name: Wainwright"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Connery") {
		t.Errorf("group filter ignored:\n%s", out)
	}
}

func TestReplayHonoursWindowFlags(t *testing.T) {
	path := writeJournal(t, alertEnd(10, 20, 30, 50, t0))
	out, err := run(t, "replay", "--group", "miller", "--end", fmt.Sprint(t0-1), "--start", "1", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Miller: 0 alerts") {
		t.Errorf("alert outside window counted:\n%s", out)
	}
}

func TestReplayUnknownGroup(t *testing.T) {
	path := writeJournal(t, capture(10, 1, 3, t0, 0))
	if _, err := run(t, "replay", "--group", "cobalt", path); err == nil {
		t.Fatal("expected unknown group error")
	}
}

func TestStats(t *testing.T) {
	path := writeJournal(t,
		capture(10, 1, 3, t0, 0),
		capture(10, 3, 3, t0+5, 0),
		capture(99, 1, 2, t0, 0),
		alertEnd(10, 20, 30, 50, t0+120),
	)
	out, err := run(t, "stats", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"lines:     4", "captures:  1", "alerts:    1", "defense", "unknown_world"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatsMissingJournal(t *testing.T) {
	if _, err := run(t, "stats", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for a missing journal")
	}
}

func TestPath(t *testing.T) {
	t.Setenv("JOURNAL_DIR", "/var/lib/merge")
	out, err := run(t, "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != filepath.Join("/var/lib/merge", "SocketDump.json") {
		t.Errorf("path = %q", out)
	}
}
