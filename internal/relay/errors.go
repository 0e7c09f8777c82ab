package relay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfig       = errors.New("failed to create config")
	ErrConnect      = errors.New("failed to connect")
	ErrSessionStart = errors.New("failed to start session")
	ErrAudioStart   = errors.New("failed to start audio")
	ErrSend         = errors.New("failed to send audio")

	ErrAlreadyRunning = errors.New("relay: session already running")
	ErrShuttingDown   = errors.New("relay: manager is shutting down")
)

// StageError is a fatal session error. Kind is one of the Err* stage
// sentinels and Stage is the state the session was trying to reach.
type StageError struct {
	Stage State
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ClientMessage is the text sent to the client in its error frame.
func (e *StageError) ClientMessage() string {
	msg := e.Error()
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func stageError(stage State, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// Outcome names how a session ended, for metrics and session records.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrConfig):
		return "config_error"
	case errors.Is(err, ErrConnect):
		return "connect_error"
	case errors.Is(err, ErrSessionStart):
		return "session_start_error"
	case errors.Is(err, ErrAudioStart):
		return "audio_start_error"
	case errors.Is(err, ErrSend):
		return "send_error"
	default:
		return "error"
	}
}

// IsSetupFailure reports whether err ended the session before it reached
// the relaying state.
func IsSetupFailure(err error) bool {
	return errors.Is(err, ErrConfig) || errors.Is(err, ErrConnect) ||
		errors.Is(err, ErrSessionStart) || errors.Is(err, ErrAudioStart)
}
