package relay

// State is a session's position in its lifecycle. States only move forward.
type State int32

const (
	StateInit State = iota
	StateConfigured
	StateConnected
	StateSessionStarted
	StateAudioStreaming
	StateRelaying
	StateClosing
	StateClosed
)

var stateNames = [...]string{
	StateInit:           "init",
	StateConfigured:     "configured",
	StateConnected:      "connected",
	StateSessionStarted: "session_started",
	StateAudioStreaming: "audio_streaming",
	StateRelaying:       "relaying",
	StateClosing:        "closing",
	StateClosed:         "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
