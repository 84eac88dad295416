package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// ErrorClass says how the supervisor treats a failure.
type ErrorClass int

const (
	// ErrorClassTransient failures (network drops, server restarts, 5xx handshakes) are retried
	// with backoff.
	ErrorClassTransient ErrorClass = iota
	// ErrorClassRejected failures mean the server refused us (bad service id, policy close).
	// They are retried like transient ones but logged louder.
	ErrorClassRejected
	// ErrorClassCancelled is deliberate shutdown: cancellation or the collection deadline.
	ErrorClassCancelled
	// ErrorClassFatal failures end the run immediately. Only journal I/O is fatal.
	ErrorClassFatal
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassRejected:
		return "rejected"
	case ErrorClassCancelled:
		return "cancelled"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	// ErrReconnectExhausted is returned by Run when the consecutive failure cap is reached.
	ErrReconnectExhausted = errors.New("stream: reconnect attempts exhausted")
	// ErrJournal wraps journal write failures; durability cannot be guaranteed after one.
	ErrJournal = errors.New("stream: journal write failed")
	// ErrAlreadyRunning is returned when Run is called twice on one Supervisor.
	ErrAlreadyRunning = errors.New("stream: supervisor already running")
)

// HandshakeError is a websocket upgrade the server answered with a non-101 status.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake: status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ClassifyError maps a dial, read or journal error to an ErrorClass.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassTransient
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassCancelled
	}
	if errors.Is(err, ErrJournal) {
		return ErrorClassFatal
	}
	var he *HandshakeError
	if errors.As(err, &he) {
		switch he.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return ErrorClassRejected
		}
		return ErrorClassTransient
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == websocket.ClosePolicyViolation {
		return ErrorClassRejected
	}
	return ErrorClassTransient
}
