package tracker

import (
	"cmp"
	"slices"
	"strings"

	"github.com/ps2assistant/mergetracker/census"
)

// DefaultTopOutfits is how many outfits per faction a standings report lists.
const DefaultTopOutfits = 3

// Group is a set of worlds reported together because they merge into one server.
type Group struct {
	Slug   string
	Name   string
	Worlds []census.WorldID
	// ServerNames is the name the merged server takes if a faction leads at the end.
	ServerNames map[census.FactionID]string
}

// DefaultGroups returns the two merging servers: Connery with Emerald, and Miller alone.
func DefaultGroups() []Group {
	return []Group{
		{
			Slug:   "connery-emerald",
			Name:   "Connery and Emerald",
			Worlds: []census.WorldID{census.Connery, census.Emerald},
			ServerNames: map[census.FactionID]string{
				census.VS: "Helios",
				census.NC: "Osprey",
				census.TR: "LithCorp",
			},
		},
		{
			Slug:   "miller",
			Name:   "Miller",
			Worlds: []census.WorldID{census.Miller},
			ServerNames: map[census.FactionID]string{
				census.VS: "Erebus",
				census.NC: "Excavion",
				census.TR: "Wainwright",
			},
		},
	}
}

// FindGroup looks a group up by slug or display name, case-insensitively.
func FindGroup(groups []Group, key string) (Group, bool) {
	for _, g := range groups {
		if strings.EqualFold(g.Slug, key) || strings.EqualFold(g.Name, key) {
			return g, true
		}
	}
	return Group{}, false
}

// OutfitCaptures is one outfit's capture count.
type OutfitCaptures struct {
	OutfitID uint64 `json:"outfit_id"`
	Captures int    `json:"captures"`
}

// FactionStanding is one faction's results within a group.
type FactionStanding struct {
	Faction    census.FactionID `json:"faction_id"`
	Short      string           `json:"faction"`
	AlertWins  int              `json:"alert_wins"`
	Captures   int              `json:"captures"`
	TopOutfits []OutfitCaptures `json:"top_outfits"`
}

// Standings is the read model reporting code renders.
type Standings struct {
	Group         string            `json:"group"`
	Factions      []FactionStanding `json:"factions"`
	TotalAlerts   int               `json:"total_alerts"`
	TotalCaptures int               `json:"total_captures"`
	// Leader is NoFaction when first place is shared; Tied then lists the factions sharing it.
	Leader     census.FactionID   `json:"leader"`
	Tied       []census.FactionID `json:"tied,omitempty"`
	ServerName string             `json:"server_name,omitempty"`
}

// Standing returns the entry for f.
func (s Standings) Standing(f census.FactionID) (FactionStanding, bool) {
	for _, fs := range s.Factions {
		if fs.Faction == f {
			return fs, true
		}
	}
	return FactionStanding{}, false
}

// Standings aggregates the group's worlds. Outfit id 0 (no outfit) never appears in the top
// outfits; a topN of zero or less uses DefaultTopOutfits.
func (s *Store) Standings(g Group, topN int) Standings {
	if topN <= 0 {
		topN = DefaultTopOutfits
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Standings{Group: g.Name}
	for _, f := range census.Factions() {
		fs := FactionStanding{Faction: f, Short: f.Short()}
		perOutfit := make(map[uint64]int)
		for _, w := range g.Worlds {
			fs.AlertWins += len(s.alerts[w][f])
			for _, ev := range s.captures[w][f] {
				fs.Captures++
				if ev.OutfitID != 0 {
					perOutfit[ev.OutfitID]++
				}
			}
		}
		fs.TopOutfits = topOutfits(perOutfit, topN)
		out.TotalAlerts += fs.AlertWins
		out.TotalCaptures += fs.Captures
		out.Factions = append(out.Factions, fs)
	}

	order := slices.Clone(out.Factions)
	slices.SortStableFunc(order, func(a, b FactionStanding) int { return cmp.Compare(b.AlertWins, a.AlertWins) })
	switch {
	case order[0].AlertWins == order[1].AlertWins && order[1].AlertWins == order[2].AlertWins:
		out.Tied = []census.FactionID{order[0].Faction, order[1].Faction, order[2].Faction}
	case order[0].AlertWins == order[1].AlertWins:
		out.Tied = []census.FactionID{order[0].Faction, order[1].Faction}
	default:
		out.Leader = order[0].Faction
		out.ServerName = g.ServerNames[out.Leader]
	}
	return out
}

func topOutfits(counts map[uint64]int, n int) []OutfitCaptures {
	all := make([]OutfitCaptures, 0, len(counts))
	for id, c := range counts {
		all = append(all, OutfitCaptures{OutfitID: id, Captures: c})
	}
	slices.SortFunc(all, func(a, b OutfitCaptures) int {
		if c := cmp.Compare(b.Captures, a.Captures); c != 0 {
			return c
		}
		return cmp.Compare(a.OutfitID, b.OutfitID)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}
