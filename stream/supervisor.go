// Package stream owns the live push-feed connection: connect, subscribe, receive, reconnect
// with linear backoff, and stop at the collection deadline.
//
// Every received message is appended to the journal before it is classified, so a crash
// between the two loses nothing: replaying the journal at the next start classifies it.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ps2assistant/mergetracker/telemetry"
	"github.com/ps2assistant/mergetracker/tracker"
)

const (
	// DefaultMaxAttempts is how many consecutive failures are retried before giving up.
	DefaultMaxAttempts = 13
	// DefaultBackoffStep is multiplied by the attempt number to get the reconnect delay.
	DefaultBackoffStep = 5 * time.Second
)

// State is a supervisor lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribed
	StateReceiving
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateReceiving:
		return "receiving"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Journal is the durable log messages are appended to before classification.
type Journal interface {
	Append(raw []byte) error
	Sync() error
}

// Classifier applies one raw message to the aggregate.
type Classifier interface {
	Classify(raw string) tracker.Result
}

// Config wires a Supervisor.
type Config struct {
	Dialer       Dialer
	Journal      Journal
	Classifier   Classifier
	Subscription []byte
	// Deadline is the end of the collection period. Zero means no deadline.
	Deadline time.Time
	// MaxAttempts is the consecutive failure cap; zero means DefaultMaxAttempts.
	MaxAttempts int
	// Backoff returns the delay before reconnect attempt n (1-based); nil means
	// n × DefaultBackoffStep.
	Backoff func(attempt int) time.Duration
	Now     func() time.Time
	Logger  *slog.Logger
}

// LinearBackoff returns a Backoff waiting step × attempt.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return time.Duration(attempt) * step }
}

// Status is a point-in-time view of the supervisor for health and status endpoints.
type Status struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	MaxAttempts         int       `json:"max_attempts"`
	Connections         int64     `json:"connections"`
	Messages            int64     `json:"messages"`
	LastMessageAt       time.Time `json:"last_message_at,omitzero"`
	Deadline            time.Time `json:"deadline,omitzero"`
	Error               string    `json:"error,omitempty"`
}

// Supervisor runs the receive loop. It is the only writer of the journal and, through the
// classifier, of the aggregate store.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	started     atomic.Bool
	state       atomic.Int32
	failures    atomic.Int32
	connections atomic.Int64
	messages    atomic.Int64
	lastMessage atomic.Int64 // unix nanos

	mu      sync.Mutex
	lastErr error
}

// New validates cfg and returns an idle Supervisor.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Dialer == nil || cfg.Journal == nil || cfg.Classifier == nil {
		return nil, errors.New("stream: dialer, journal and classifier are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = LinearBackoff(DefaultBackoffStep)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "stream")),
	}, nil
}

// Run connects and receives until ctx is cancelled, the deadline passes, the failure cap is
// reached, or the journal fails. Cancellation and the deadline are a clean stop and return
// nil; the cap returns ErrReconnectExhausted; a journal failure returns an error wrapping
// ErrJournal. The supervisor cannot be restarted.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	if s.started.Swap(true) {
		return ErrAlreadyRunning
	}
	defer func() {
		if syncErr := s.cfg.Journal.Sync(); syncErr != nil {
			s.logger.Error("journal sync on close failed", slog.Any("err", syncErr))
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrJournal, syncErr))
		}
		if err != nil {
			s.setErr(err)
		}
		s.setState(StateClosed)
	}()

	if !s.cfg.Deadline.IsZero() {
		if !s.cfg.Now().Before(s.cfg.Deadline) {
			s.logger.Info("collection deadline has passed, not connecting", slog.Time("deadline", s.cfg.Deadline))
			return nil
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, s.cfg.Deadline)
		defer cancel()
	}

	for {
		if ctx.Err() != nil {
			s.logStop(ctx)
			return nil
		}

		runErr := s.session(ctx)
		if ctx.Err() != nil {
			s.logStop(ctx)
			return nil
		}

		class := ClassifyError(runErr)
		if class == ErrorClassFatal {
			s.logger.Error("stopping collection", slog.Any("err", runErr))
			return runErr
		}

		failures := int(s.failures.Load())
		if failures >= s.cfg.MaxAttempts {
			s.logger.Error("failed to reconnect, giving up",
				slog.Int("attempts", failures),
				slog.Any("err", runErr))
			return fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, failures, runErr)
		}
		failures = int(s.failures.Add(1))
		telemetry.RecordReconnect(class.String())
		delay := s.cfg.Backoff(failures)

		s.setState(StateReconnecting)
		level := slog.LevelWarn
		if class == ErrorClassRejected {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "feed connection lost, reconnecting",
			slog.Int("attempt", failures),
			slog.Int("max_attempts", s.cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("class", class.String()),
			slog.Any("err", runErr))

		if !sleepCtx(ctx, delay) {
			s.logStop(ctx)
			return nil
		}
	}
}

// session runs one connection from dial to the first read failure.
func (s *Supervisor) session(ctx context.Context) (err error) {
	id := uuid.NewString()
	ctx = telemetry.WithCorrelation(ctx, id)
	ctx, span := telemetry.StartSpan(ctx, "stream.session",
		attribute.Int("stream.consecutive_failures", int(s.failures.Load())))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	log := s.logger.With(slog.String("session", id))

	s.setState(StateConnecting)
	conn, err := s.cfg.Dialer.Dial(ctx)
	if err != nil {
		return err
	}
	s.connections.Add(1)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		if cerr := conn.Close(); cerr != nil {
			log.Debug("closing feed connection", slog.Any("err", cerr))
		}
	}()

	if len(s.cfg.Subscription) > 0 {
		if err := conn.WriteMessage(s.cfg.Subscription); err != nil {
			return fmt.Errorf("send subscription: %w", err)
		}
	}
	s.setState(StateSubscribed)
	log.Info("subscribed to feed")

	first := true
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if first {
			s.setState(StateReceiving)
			first = false
		}
		s.failures.Store(0)
		now := s.cfg.Now()
		s.messages.Add(1)
		s.lastMessage.Store(now.UnixNano())
		telemetry.MarkMessage(now)

		if err := s.append(msg); err != nil {
			return err
		}
		res := s.cfg.Classifier.Classify(string(msg))
		if res.Accepted {
			log.Debug("event stored",
				slog.String("kind", string(res.Kind)),
				slog.String("world", res.World.String()),
				slog.String("faction", res.Faction.Short()))
		}
	}
}

func (s *Supervisor) append(msg []byte) error {
	var err error
	telemetry.TimeFunc(telemetry.JournalAppendDuration, func() { err = s.cfg.Journal.Append(msg) })
	if err != nil {
		if telemetry.JournalErrors != nil {
			telemetry.JournalErrors.Inc()
		}
		return fmt.Errorf("%w: %w", ErrJournal, err)
	}
	if telemetry.JournalAppends != nil {
		telemetry.JournalAppends.Inc()
	}
	return nil
}

func (s *Supervisor) logStop(ctx context.Context) {
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		s.logger.Info("collection deadline reached, closing feed")
		return
	}
	s.logger.Info("collection cancelled, closing feed")
}

// Status returns the current status. Safe for concurrent use.
func (s *Supervisor) Status() Status {
	st := Status{
		State:               s.State().String(),
		ConsecutiveFailures: int(s.failures.Load()),
		MaxAttempts:         s.cfg.MaxAttempts,
		Connections:         s.connections.Load(),
		Messages:            s.messages.Load(),
		Deadline:            s.cfg.Deadline,
	}
	if n := s.lastMessage.Load(); n != 0 {
		st.LastMessageAt = time.Unix(0, n).UTC()
	}
	s.mu.Lock()
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	s.mu.Unlock()
	return st
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	telemetry.SetSupervisorState(int(st))
}

func (s *Supervisor) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// sleepCtx waits d or until ctx is done; it reports whether the full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
