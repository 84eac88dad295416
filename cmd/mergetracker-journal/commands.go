package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ps2assistant/mergetracker/census"
	"github.com/ps2assistant/mergetracker/config"
	"github.com/ps2assistant/mergetracker/journal"
	"github.com/ps2assistant/mergetracker/tracker"
)

type replayFlags struct {
	corrections string
	start, end  int64
	group       string
	top         int
}

func rootCmd() *cobra.Command {
	var noColor bool
	root := &cobra.Command{
		Use:   "mergetracker-journal",
		Short: "Inspect and replay merge tracker journals",
		Long: `Offline tools for the merge tracker journal (one raw push-feed message per line).
Defaults come from the same environment variables the service reads.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(pathCmd())
	root.AddCommand(replayCmd())
	root.AddCommand(statsCmd())
	return root
}

// pathCmd prints where the service writes its journal.
func pathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the journal path from JOURNAL_DIR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(cfg.JournalDir, journal.FileName))
			return nil
		},
	}
}

func replayCmd() *cobra.Command {
	var f replayFlags
	cmd := &cobra.Command{
		Use:   "replay [journal]",
		Short: "Replay a journal and print the standings",
		Long: `Replay a journal through the classifier on top of the corrections file and print
the alert wins, captures and top outfits of each server group.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := replay(cmd.Context(), args, f)
			if err != nil {
				return err
			}
			groups := tracker.DefaultGroups()
			if f.group != "" {
				g, ok := tracker.FindGroup(groups, f.group)
				if !ok {
					return fmt.Errorf("unknown group %q", f.group)
				}
				groups = []tracker.Group{g}
			}
			for i, g := range groups {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				printStandings(cmd.OutOrStdout(), store.Standings(g, f.top))
			}
			return nil
		},
	}
	addReplayFlags(cmd, &f)
	cmd.Flags().StringVar(&f.group, "group", "", "only print this group (slug or name)")
	cmd.Flags().IntVar(&f.top, "top", tracker.DefaultTopOutfits, "outfits listed per faction")
	return cmd
}

func statsCmd() *cobra.Command {
	var f replayFlags
	cmd := &cobra.Command{
		Use:   "stats [journal]",
		Short: "Replay a journal and print classification counters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stats, err := replay(cmd.Context(), args, f)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
	addReplayFlags(cmd, &f)
	return cmd
}

func addReplayFlags(cmd *cobra.Command, f *replayFlags) {
	cmd.Flags().StringVar(&f.corrections, "corrections", "", "corrections file (default CORRECTIONS_FILE)")
	cmd.Flags().Int64Var(&f.start, "start", 0, "window start, unix seconds (default MERGE_WINDOW_START)")
	cmd.Flags().Int64Var(&f.end, "end", 0, "window end, unix seconds (default MERGE_WINDOW_END)")
}

// replay builds a seeded store and feeds the journal at args[0] (or the configured one) into it.
func replay(ctx context.Context, args []string, f replayFlags) (*tracker.Store, tracker.ReplayStats, error) {
	var stats tracker.ReplayStats
	cfg, err := config.Load()
	if err != nil {
		return nil, stats, err
	}
	path := filepath.Join(cfg.JournalDir, journal.FileName)
	if len(args) == 1 {
		path = args[0]
	}
	correctionsFile := cfg.CorrectionsFile
	if f.corrections != "" {
		correctionsFile = f.corrections
	}
	window := cfg.Window()
	if f.start != 0 {
		window.Start = f.start
	}
	if f.end != 0 {
		window.End = f.end
	}

	store := tracker.NewStore()
	corrections, err := tracker.LoadCorrections(correctionsFile)
	if err != nil {
		return nil, stats, err
	}
	if err := store.Seed(corrections); err != nil {
		return nil, stats, err
	}
	engine, err := tracker.NewEngine(store, window,
		tracker.WithIgnoreDuration(cfg.IgnoreDuration()),
		tracker.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return nil, stats, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	stats, err = engine.Replay(ctx, journal.ReadFile(path))
	if err != nil {
		return nil, stats, err
	}
	return store, stats, nil
}

func factionColor(f census.FactionID) *color.Color {
	switch f {
	case census.VS:
		return color.New(color.FgMagenta)
	case census.NC:
		return color.New(color.FgHiBlue)
	case census.TR:
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

func printStandings(w io.Writer, st tracker.Standings) {
	fmt.Fprintf(w, "%s: %d alerts, %d captures\n", color.New(color.Bold).Sprint(st.Group), st.TotalAlerts, st.TotalCaptures)
	for _, fs := range st.Factions {
		marker := ""
		if fs.Faction == st.Leader {
			marker = color.New(color.FgHiGreen).Sprint(" ← leader")
		} else if slices.Contains(st.Tied, fs.Faction) {
			marker = color.New(color.FgYellow).Sprint(" = tied")
		}
		fmt.Fprintf(w, "  %s  %3d wins  %5d captures%s\n", factionColor(fs.Faction).Sprintf("%-2s", fs.Short), fs.AlertWins, fs.Captures, marker)
		for _, o := range fs.TopOutfits {
			fmt.Fprintf(w, "      outfit %d: %d\n", o.OutfitID, o.Captures)
		}
	}
	switch {
	case st.ServerName != "":
		fmt.Fprintf(w, "  merged server name: %s\n", st.ServerName)
	case len(st.Tied) > 0:
		names := make([]string, len(st.Tied))
		for i, f := range st.Tied {
			names[i] = f.Short()
		}
		fmt.Fprintf(w, "  tied: %s\n", strings.Join(names, ", "))
	}
}

func printStats(w io.Writer, s tracker.ReplayStats) {
	fmt.Fprintf(w, "lines:     %d\n", s.Lines)
	fmt.Fprintf(w, "captures:  %d\n", s.Captures)
	fmt.Fprintf(w, "alerts:    %d\n", s.Alerts)
	fmt.Fprintf(w, "retracted: %d\n", s.Retracted)
	if len(s.Rejected) == 0 {
		return
	}
	fmt.Fprintln(w, "rejected:")
	for _, reason := range slices.Sorted(maps.Keys(s.Rejected)) {
		fmt.Fprintf(w, "  %-16s %d\n", reason, s.Rejected[reason])
	}
}
