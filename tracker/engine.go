// Package tracker turns raw push-feed messages into per-world, per-faction aggregates of
// facility captures and alert wins.
//
// The Engine is the only writer of a Store. It never fails on bad input: every message is
// either accepted into the store or rejected with a Reason, and some rejections arm a short
// per-world suppression window that absorbs the bursts of bogus captures Census emits when a
// continent opens or an alert ends.
package tracker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ps2assistant/mergetracker/census"
	"github.com/ps2assistant/mergetracker/telemetry"
)

// DefaultIgnoreDuration is how long captures on a world are ignored after a bogus capture or
// an alert end.
const DefaultIgnoreDuration = 2 * time.Second

// Kind is the kind of message a Result describes.
type Kind string

const (
	KindUnknown   Kind = "unknown"
	KindHeartbeat Kind = "heartbeat"
	KindCapture   Kind = "capture"
	KindAlert     Kind = "alert"
)

// Reason says why a message was or was not stored.
type Reason string

const (
	ReasonAccepted        Reason = "accepted"
	ReasonMalformed       Reason = "malformed"
	ReasonHeartbeat       Reason = "heartbeat"
	ReasonIgnoredType     Reason = "ignored_type"
	ReasonUnknownEvent    Reason = "unknown_event"
	ReasonUnknownWorld    Reason = "unknown_world"
	ReasonUnknownFaction  Reason = "unknown_faction"
	ReasonBogus           Reason = "bogus"
	ReasonSuppressed      Reason = "suppressed"
	ReasonDefense         Reason = "defense"
	ReasonOutsideWindow   Reason = "outside_window"
	ReasonUnknownMetagame Reason = "unknown_metagame"
	ReasonNotFinished     Reason = "not_finished"
)

// Result describes what Classify did with one message.
type Result struct {
	Kind     Kind
	Reason   Reason
	Accepted bool
	World    census.WorldID
	Faction  census.FactionID
	// Retracted is set when a sudden-death start removed an earlier alert win.
	Retracted bool
}

// Window is the inclusive range of unix timestamps events must fall in to be stored.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Contains reports whether ts is inside the window, bounds included.
func (w Window) Contains(ts int64) bool { return ts >= w.Start && ts <= w.End }

// DefaultWindow is the server naming event: midnight Friday 28 March 2025 until midnight
// Sunday 30 March 2025, Pacific time.
var DefaultWindow = Window{Start: 1743145200, End: 1743400800}

// ErrInvalidWindow is returned by NewEngine when Start is after End.
var ErrInvalidWindow = errors.New("tracker: window start after end")

// Engine validates and classifies messages into a Store.
type Engine struct {
	store     *Store
	window    Window
	ignoreFor int64
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIgnoreDuration overrides DefaultIgnoreDuration. Sub-second parts are dropped because
// event timestamps have one-second resolution.
func WithIgnoreDuration(d time.Duration) Option {
	return func(e *Engine) { e.ignoreFor = int64(d / time.Second) }
}

// WithLogger sets the logger rejections are reported on.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an Engine writing into store.
func NewEngine(store *Store, window Window, opts ...Option) (*Engine, error) {
	if window.Start > window.End {
		return nil, ErrInvalidWindow
	}
	e := &Engine{
		store:     store,
		window:    window,
		ignoreFor: int64(DefaultIgnoreDuration / time.Second),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "tracker"))
	return e, nil
}

// Store returns the store the engine writes to.
func (e *Engine) Store() *Store { return e.store }

// Window returns the collection window.
func (e *Engine) Window() Window { return e.window }

// Classify decodes raw and applies it to the store. It never panics on bad input.
func (e *Engine) Classify(raw string) Result {
	res := e.classify(raw)
	telemetry.RecordClassified(string(res.Kind), string(res.Reason))
	if res.Retracted && telemetry.AlertRetractions != nil {
		telemetry.AlertRetractions.Inc()
	}
	return res
}

func (e *Engine) classify(raw string) Result {
	env, err := census.ParseEnvelope(raw)
	if err != nil {
		e.logger.Debug("discarding malformed message", slog.Any("err", err))
		return Result{Kind: KindUnknown, Reason: ReasonMalformed}
	}
	switch env.Type {
	case census.TypeHeartbeat:
		return Result{Kind: KindHeartbeat, Reason: ReasonHeartbeat}
	case census.TypeServiceMessage:
	default:
		e.logger.Debug("ignoring message", slog.String("type", env.Type), slog.String("message", truncate(raw, 256)))
		return Result{Kind: KindUnknown, Reason: ReasonIgnoredType}
	}

	switch env.EventName {
	case census.EventFacilityControl:
		fc, err := env.FacilityControl()
		if err != nil {
			e.logger.Debug("discarding malformed capture", slog.Any("err", err))
			return Result{Kind: KindCapture, Reason: ReasonMalformed}
		}
		return e.capture(fc)
	case census.EventMetagame:
		me, err := env.MetagameEvent()
		if err != nil {
			e.logger.Debug("discarding malformed metagame event", slog.Any("err", err))
			return Result{Kind: KindAlert, Reason: ReasonMalformed}
		}
		return e.metagame(me)
	default:
		e.logger.Debug("ignoring service message", slog.String("event_name", env.EventName))
		return Result{Kind: KindUnknown, Reason: ReasonUnknownEvent}
	}
}

func (e *Engine) capture(fc census.FacilityControl) Result {
	res := Result{Kind: KindCapture, World: fc.WorldID, Faction: fc.NewFactionID}
	if !e.store.HasWorld(fc.WorldID) {
		res.Reason = ReasonUnknownWorld
		e.logger.Debug("capture on unknown world", slog.Int("world_id", int(fc.WorldID)))
		return res
	}
	if isBogus(fc) {
		e.store.suppress(fc.WorldID, fc.Timestamp+e.ignoreFor)
		res.Reason = ReasonBogus
		e.logger.Debug("bogus capture, suppressing world",
			slog.Int("world_id", int(fc.WorldID)),
			slog.Int64("timestamp", fc.Timestamp),
			slog.Int64("facility_id", fc.FacilityID))
		return res
	}
	if fc.Timestamp < e.store.SuppressedUntil(fc.WorldID) {
		res.Reason = ReasonSuppressed
		return res
	}
	if fc.NewFactionID == fc.OldFactionID {
		res.Reason = ReasonDefense
		return res
	}
	if !validFaction(fc.NewFactionID) {
		res.Reason = ReasonUnknownFaction
		e.logger.Debug("capture by unknown faction",
			slog.Int("world_id", int(fc.WorldID)),
			slog.Int("new_faction_id", int(fc.NewFactionID)))
		return res
	}
	if !e.window.Contains(fc.Timestamp) {
		res.Reason = ReasonOutsideWindow
		return res
	}
	e.store.addCapture(fc)
	res.Accepted = true
	res.Reason = ReasonAccepted
	return res
}

// isBogus matches the records Census is known to emit for a continent opening: a missing
// faction, a zero hold time, or a hold time equal to the timestamp.
func isBogus(fc census.FacilityControl) bool {
	return fc.OldFactionID == census.NoFaction ||
		fc.NewFactionID == census.NoFaction ||
		fc.DurationHeld == 0 ||
		fc.DurationHeld == fc.Timestamp
}

func (e *Engine) metagame(me census.MetagameEvent) Result {
	res := Result{Kind: KindAlert, World: me.WorldID}
	alert, suddenDeath := census.IsAlert(me.MetagameEventID), census.IsSuddenDeath(me.MetagameEventID)
	if !alert && !suddenDeath {
		res.Reason = ReasonUnknownMetagame
		return res
	}
	if !e.store.HasWorld(me.WorldID) {
		res.Reason = ReasonUnknownWorld
		e.logger.Debug("metagame event on unknown world", slog.Int("world_id", int(me.WorldID)))
		return res
	}
	if !e.window.Contains(me.Timestamp) {
		res.Reason = ReasonOutsideWindow
		return res
	}

	if suddenDeath && me.State == census.StateStarted {
		f, ok := e.store.retractLastWin(me.WorldID)
		if ok {
			res.Retracted = true
			res.Faction = f
			e.logger.Info("sudden death started, retracting previous alert win",
				slog.String("world", me.WorldID.String()),
				slog.String("faction", f.Short()),
				slog.Int("metagame_event_id", me.MetagameEventID))
		} else {
			e.logger.Warn("sudden death started with no alert win to retract",
				slog.String("world", me.WorldID.String()),
				slog.Int("metagame_event_id", me.MetagameEventID))
		}
	}

	if me.State != census.StateEnded {
		res.Reason = ReasonNotFinished
		return res
	}

	winner := Winner(me.FactionVS, me.FactionNC, me.FactionTR)
	e.store.addAlertWin(me.WorldID, winner, me)
	e.store.suppress(me.WorldID, me.Timestamp+e.ignoreFor)
	e.logger.Info("alert ended",
		slog.String("world", me.WorldID.String()),
		slog.String("winner", winner.Short()),
		slog.Int("metagame_event_id", me.MetagameEventID),
		slog.Float64("vs", me.FactionVS),
		slog.Float64("nc", me.FactionNC),
		slog.Float64("tr", me.FactionTR))
	res.Accepted = true
	res.Reason = ReasonAccepted
	res.Faction = winner
	return res
}

// Winner picks the alert winner from the three faction scores. VS is compared with NC
// first, then the leader with TR; every tie goes to the second operand, so TR wins any tie
// it is part of and NC beats VS on a tie only if it also beats TR.
func Winner(vs, nc, tr float64) census.FactionID {
	if vs > nc {
		if vs > tr {
			return census.VS
		}
		return census.TR
	}
	if nc > tr {
		return census.NC
	}
	return census.TR
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
