package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

type Kind int

const (
	KindStatus Kind = iota
	KindError
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindError:
		return "error"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Outbound is one message queued for the client connection.
type Outbound struct {
	Kind  Kind
	Text  string
	Audio []byte
}

func Status(text string) Outbound {
	return Outbound{Kind: KindStatus, Text: text}
}

func ErrorMessage(text string) Outbound {
	return Outbound{Kind: KindError, Text: text}
}

func Audio(data []byte) Outbound {
	return Outbound{Kind: KindAudio, Audio: data}
}

// Frame encodes the message as a websocket message type and payload.
// Status and error messages become JSON text frames with a single key;
// audio is sent as a binary frame unchanged.
func (m Outbound) Frame() (int, []byte, error) {
	switch m.Kind {
	case KindAudio:
		return websocket.BinaryMessage, m.Audio, nil
	case KindError:
		data, err := json.Marshal(map[string]string{"error": m.Text})
		return websocket.TextMessage, data, err
	default:
		data, err := json.Marshal(map[string]string{"status": m.Text})
		return websocket.TextMessage, data, err
	}
}

const (
	StatusConnected    = "connected"
	StatusSessionReady = "session_ready"
)

type statusMessage struct {
	text    string
	isError bool
}

func forwardStatus(ctx context.Context, in <-chan statusMessage, out chan<- Outbound, sinkDone <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sinkDone:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			o := Status(msg.text)
			if msg.isError {
				o = ErrorMessage(msg.text)
			}
			select {
			case out <- o:
			case <-sinkDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

func forwardAudio(ctx context.Context, in <-chan []byte, out chan<- Outbound, sinkDone <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sinkDone:
			return
		case data, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- Audio(data):
			case <-sinkDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// writer is the only goroutine that writes to the client connection once
// the session is relaying.
type writer struct {
	conn         ClientConn
	writeTimeout time.Duration
	pingInterval time.Duration
	log          *slog.Logger
	onAudio      func(n int)
}

func (w *writer) run(ctx context.Context, in <-chan Outbound) {
	var tick <-chan time.Time
	if w.pingInterval > 0 {
		ticker := time.NewTicker(w.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-in:
			if ctx.Err() != nil {
				return
			}
			mt, data, err := msg.Frame()
			if err != nil {
				w.log.Error("failed to encode outbound message", "kind", msg.Kind, "error", err)
				continue
			}
			_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
			if err := w.conn.WriteMessage(mt, data); err != nil {
				w.log.Warn("websocket write error", "error", err)
				_ = w.conn.Close()
				return
			}
			if msg.Kind == KindAudio && w.onAudio != nil {
				w.onAudio(len(data))
			}

		case <-tick:
			if ctx.Err() != nil {
				return
			}
			_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.log.Debug("ping failed", "error", err)
				_ = w.conn.Close()
				return
			}
		}
	}
}
