package livespeech

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("livespeech: not connected")
	ErrAlreadyConnected = errors.New("livespeech: already connected")
	ErrClosed           = errors.New("livespeech: connection closed")
)

// ConfigError reports an invalid client configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("livespeech: invalid config: %s %s", e.Field, e.Reason)
}

// Error is an error reported by the upstream service, either in reply to a
// request or while establishing the connection.
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("livespeech: %s: %s", e.Code, e.Message)
	}
	return "livespeech: " + e.Message
}
