// Package census describes the PlanetSide 2 Census push-feed messages the merge tracker
// consumes: the two event shapes it aggregates (FacilityControl and MetagameEvent), the
// subscription request sent after connecting, and the fixed game identifiers (worlds,
// factions, metagame states and alert ids) the tracker validates against.
//
// Census encodes most numeric payload fields as JSON strings ("world_id":"10"); the
// decoders here accept either representation.
package census

import "fmt"

// WorldID identifies a game server.
type WorldID int

// Worlds tracked for the merge event. Jaeger and SolTech are seeded so their traffic does not
// need special handling even though they do not take part.
const (
	Connery WorldID = 1
	Miller  WorldID = 10
	Emerald WorldID = 17
	Jaeger  WorldID = 19
	SolTech WorldID = 40
)

// Worlds returns the fixed set of worlds the store is seeded with, in id order.
func Worlds() []WorldID {
	return []WorldID{Connery, Miller, Emerald, Jaeger, SolTech}
}

func (w WorldID) String() string {
	switch w {
	case Connery:
		return "Connery"
	case Miller:
		return "Miller"
	case Emerald:
		return "Emerald"
	case Jaeger:
		return "Jaeger"
	case SolTech:
		return "SolTech"
	default:
		return fmt.Sprintf("world-%d", int(w))
	}
}

// FactionID identifies one of the playable empires. 0 means "none" and is never valid on a
// capture.
type FactionID int

const (
	NoFaction FactionID = 0
	VS        FactionID = 1
	NC        FactionID = 2
	TR        FactionID = 3
)

// Factions returns the three empires in id order.
func Factions() []FactionID {
	return []FactionID{VS, NC, TR}
}

// Short returns the usual two-letter abbreviation.
func (f FactionID) Short() string {
	switch f {
	case VS:
		return "VS"
	case NC:
		return "NC"
	case TR:
		return "TR"
	default:
		return "??"
	}
}

func (f FactionID) String() string { return f.Short() }

// MetagameState is the metagame_event_state field of a MetagameEvent.
type MetagameState int

const (
	StateStarted   MetagameState = 135
	StateRestarted MetagameState = 136
	StateCanceled  MetagameState = 137
	StateEnded     MetagameState = 138
	StateXPChange  MetagameState = 139
)

func (s MetagameState) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateRestarted:
		return "restarted"
	case StateCanceled:
		return "canceled"
	case StateEnded:
		return "ended"
	case StateXPChange:
		return "xp_change"
	default:
		return fmt.Sprintf("state-%d", int(s))
	}
}

// alertMetagameIDs are the territory, meltdown and high-pop alerts that count as an alert
// win when they end. Ids follow ps2alerts/constants metagameEventType.ts.
var alertMetagameIDs = map[int]struct{}{
	// VS triggered
	148: {}, 154: {}, 157: {}, 151: {}, 224: {},
	// NC triggered
	149: {}, 155: {}, 158: {}, 152: {}, 222: {},
	// TR triggered
	147: {}, 153: {}, 156: {}, 150: {}, 223: {},
	// unstable meltdowns
	179: {}, 177: {}, 178: {}, 176: {}, 248: {},
	189: {}, 187: {}, 188: {}, 186: {}, 249: {},
	193: {}, 191: {}, 192: {}, 190: {}, 250: {},
	// high population
	211: {}, 212: {}, 213: {}, 214: {}, 226: {},
}

// suddenDeathMetagameIDs continue an alert that ended in a tie.
var suddenDeathMetagameIDs = map[int]struct{}{
	236: {}, 237: {}, 238: {}, 239: {}, 240: {}, 241: {}, 260: {},
}

// IsAlert reports whether id is an ordinary alert.
func IsAlert(id int) bool {
	_, ok := alertMetagameIDs[id]
	return ok
}

// IsSuddenDeath reports whether id is a sudden-death continuation.
func IsSuddenDeath(id int) bool {
	_, ok := suddenDeathMetagameIDs[id]
	return ok
}
