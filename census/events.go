package census

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Message types found in the top-level "type" field.
const (
	TypeServiceMessage = "serviceMessage"
	TypeHeartbeat      = "heartbeat"
)

// Event names found in payload.event_name.
const (
	EventFacilityControl = "FacilityControl"
	EventMetagame        = "MetagameEvent"
)

// ErrMalformed is returned when a message is not JSON or lacks the fields needed to decode it.
var ErrMalformed = errors.New("census: malformed message")

// FacilityControl is one base changing hands (or being defended) on a world.
type FacilityControl struct {
	DurationHeld int64     `json:"duration_held" yaml:"duration_held"`
	FacilityID   int64     `json:"facility_id" yaml:"facility_id"`
	OldFactionID FactionID `json:"old_faction_id" yaml:"old_faction_id"`
	NewFactionID FactionID `json:"new_faction_id" yaml:"new_faction_id"`
	OutfitID     uint64    `json:"outfit_id" yaml:"outfit_id"`
	Timestamp    int64     `json:"timestamp" yaml:"timestamp"`
	WorldID      WorldID   `json:"world_id" yaml:"world_id"`
	ZoneID       int64     `json:"zone_id" yaml:"zone_id"`
}

// MetagameEvent is a state change of an alert (or sudden-death continuation) on a world.
type MetagameEvent struct {
	MetagameEventID int           `json:"metagame_event_id" yaml:"metagame_event_id"`
	State           MetagameState `json:"metagame_event_state" yaml:"metagame_event_state"`
	FactionVS       float64       `json:"faction_vs" yaml:"faction_vs"`
	FactionNC       float64       `json:"faction_nc" yaml:"faction_nc"`
	FactionTR       float64       `json:"faction_tr" yaml:"faction_tr"`
	ExperienceBonus float64       `json:"experience_bonus" yaml:"experience_bonus"`
	Timestamp       int64         `json:"timestamp" yaml:"timestamp"`
	ZoneID          int64         `json:"zone_id" yaml:"zone_id"`
	WorldID         WorldID       `json:"world_id" yaml:"world_id"`
}

// Envelope is the decoded outer shape of a push-feed message. The payload is kept lazily so
// irrelevant messages cost a single parse.
type Envelope struct {
	Type      string
	EventName string
	payload   gjson.Result
}

// ParseEnvelope reads the "type" discriminator and, when present, payload.event_name.
func ParseEnvelope(raw string) (Envelope, error) {
	if !gjson.Valid(raw) {
		return Envelope{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return Envelope{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	t := root.Get("type")
	if t.Type != gjson.String {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	payload := root.Get("payload")
	return Envelope{
		Type:      t.String(),
		EventName: payload.Get("event_name").String(),
		payload:   payload,
	}, nil
}

// FacilityControl decodes the payload as a FacilityControl event. Missing numeric fields
// decode as zero, which the tracker treats as a bogus record.
func (e Envelope) FacilityControl() (FacilityControl, error) {
	if !e.payload.IsObject() {
		return FacilityControl{}, fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	p := e.payload
	return FacilityControl{
		DurationHeld: p.Get("duration_held").Int(),
		FacilityID:   p.Get("facility_id").Int(),
		OldFactionID: FactionID(p.Get("old_faction_id").Int()),
		NewFactionID: FactionID(p.Get("new_faction_id").Int()),
		OutfitID:     p.Get("outfit_id").Uint(),
		Timestamp:    p.Get("timestamp").Int(),
		WorldID:      WorldID(p.Get("world_id").Int()),
		ZoneID:       p.Get("zone_id").Int(),
	}, nil
}

// MetagameEvent decodes the payload as a MetagameEvent.
func (e Envelope) MetagameEvent() (MetagameEvent, error) {
	if !e.payload.IsObject() {
		return MetagameEvent{}, fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	p := e.payload
	return MetagameEvent{
		MetagameEventID: int(p.Get("metagame_event_id").Int()),
		State:           MetagameState(p.Get("metagame_event_state").Int()),
		FactionVS:       p.Get("faction_vs").Float(),
		FactionNC:       p.Get("faction_nc").Float(),
		FactionTR:       p.Get("faction_tr").Float(),
		ExperienceBonus: p.Get("experience_bonus").Float(),
		Timestamp:       p.Get("timestamp").Int(),
		ZoneID:          p.Get("zone_id").Int(),
		WorldID:         WorldID(p.Get("world_id").Int()),
	}, nil
}
