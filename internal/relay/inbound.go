package relay

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
)

const controlStop = "stop"

type controlEnvelope struct {
	Type string `json:"type"`
}

// readLoop relays client frames until the client stops, disconnects or an
// audio chunk cannot be forwarded. It never tears down the upstream.
func (s *Session) readLoop(ctx context.Context) error {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("client read error", "error", err)
			} else {
				s.log.Debug("client closed", "error", err)
			}
			return nil
		}

		switch mt {
		case websocket.BinaryMessage:
			if err := s.upstream.SendAudioChunk(ctx, data); err != nil {
				s.log.Error("failed to send audio chunk", "error", err, "bytes", len(data))
				return stageError(StateRelaying, ErrSend, err)
			}
			s.observer.AudioRelayed(s.id, DirectionInbound, len(data))

		case websocket.TextMessage:
			var env controlEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				s.log.Debug("ignoring non-json text frame")
				continue
			}
			if env.Type == controlStop {
				s.log.Info("client requested stop")
				return nil
			}
			s.log.Debug("ignoring control message", "type", env.Type)
		}
	}
}
