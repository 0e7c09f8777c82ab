package livespeech

import "encoding/base64"

// EventType identifies a server event delivered to subscribers.
type EventType string

const (
	EventReady          EventType = "ready"
	EventUserTranscript EventType = "user_transcript"
	EventResponse       EventType = "response"
	EventAudio          EventType = "audio"
	EventTurnComplete   EventType = "turn_complete"
	EventError          EventType = "error"
)

// Event is one server event. Which fields are set depends on Type:
// transcripts and responses carry Text and IsFinal, audio carries Audio,
// errors carry Code and Message. Unknown types are delivered as-is.
type Event struct {
	Type    EventType
	Text    string
	IsFinal bool
	Audio   []byte
	Code    string
	Message string
}

// SessionConfig is sent with session.start.
type SessionConfig struct {
	Prompt     string
	SpeakFirst bool
}

// Wire frame types.
const (
	FrameSessionStart = "session.start"
	FrameSessionEnd   = "session.end"
	FrameAudioStart   = "audio.start"
	FrameAudioChunk   = "audio.chunk"
	FrameAudioEnd     = "audio.end"

	FrameConnected = "connected"
	FrameAck       = "ack"
	FrameError     = "error"
)

// ClientFrame is a JSON frame sent from the client to the service.
type ClientFrame struct {
	Type       string `json:"type"`
	RequestID  string `json:"request_id,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	SpeakFirst bool   `json:"speak_first,omitempty"`
	Audio      string `json:"audio,omitempty"`
}

// ServerFrame is a JSON frame sent from the service to the client.
type ServerFrame struct {
	Type         string `json:"type"`
	RequestID    string `json:"request_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	Text         string `json:"text,omitempty"`
	IsFinal      bool   `json:"is_final,omitempty"`
	Audio        string `json:"audio,omitempty"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
}

func (f ServerFrame) event() (Event, error) {
	ev := Event{
		Type:    EventType(f.Type),
		Text:    f.Text,
		IsFinal: f.IsFinal,
		Code:    f.Code,
		Message: f.Message,
	}
	if f.Type == string(EventAudio) {
		data, err := base64.StdEncoding.DecodeString(f.Audio)
		if err != nil {
			return Event{}, err
		}
		ev.Audio = data
	}
	return ev, nil
}

// AudioFrame builds the server frame carrying an audio payload.
func AudioFrame(data []byte) ServerFrame {
	return ServerFrame{Type: string(EventAudio), Audio: base64.StdEncoding.EncodeToString(data)}
}
