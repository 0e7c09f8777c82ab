// Package livespeechtest provides an in-process LiveSpeech service that
// speaks the client wire protocol, for tests and local development.
package livespeechtest

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Options struct {
	// APIKey, when set, is required as a bearer token.
	APIKey string
	// HandshakeError makes the server answer the handshake with an error frame.
	HandshakeError string
	// FailRequests maps a client frame type to the error message it is
	// rejected with.
	FailRequests map[string]string
	// EchoAudio sends every received chunk back as an audio event.
	EchoAudio bool
	// Ready emits a ready event after audio.start is acknowledged.
	Ready bool
	// Transcribe emits a user transcript and an AI response after
	// audio.end, followed by turn_complete.
	Transcribe bool
	// FlushAudio is the number of audio events sent before audio.end is
	// acknowledged.
	FlushAudio int
	Logger     *slog.Logger
}

type Server struct {
	opts     Options
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]*sync.Mutex
	frames []livespeech.ClientFrame
	audio  [][]byte
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(map[*websocket.Conn]*sync.Mutex),
	}
}

// WebSocketURL converts an http:// test server URL into its ws:// form.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.opts.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+s.opts.APIKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	lock := &sync.Mutex{}
	s.mu.Lock()
	s.conns[conn] = lock
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	if s.opts.HandshakeError != "" {
		_ = s.send(conn, lock, livespeech.ServerFrame{Type: livespeech.FrameError, Code: "handshake_rejected", Message: s.opts.HandshakeError})
		return
	}
	if err := s.send(conn, lock, livespeech.ServerFrame{Type: livespeech.FrameConnected, ConnectionID: uuid.NewString()}); err != nil {
		return
	}

	for {
		var frame livespeech.ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		s.record(frame)

		if msg, ok := s.opts.FailRequests[frame.Type]; ok {
			_ = s.send(conn, lock, livespeech.ServerFrame{Type: livespeech.FrameError, RequestID: frame.RequestID, Code: "rejected", Message: msg})
			continue
		}

		if err := s.handle(conn, lock, frame); err != nil {
			s.opts.Logger.Debug("mock upstream write failed", "error", err)
			return
		}
	}
}

func (s *Server) handle(conn *websocket.Conn, lock *sync.Mutex, frame livespeech.ClientFrame) error {
	switch frame.Type {
	case livespeech.FrameAudioChunk:
		if !s.opts.EchoAudio {
			return nil
		}
		data, _ := base64.StdEncoding.DecodeString(frame.Audio)
		return s.send(conn, lock, livespeech.AudioFrame(data))

	case livespeech.FrameAudioStart:
		if err := s.ack(conn, lock, frame); err != nil {
			return err
		}
		if s.opts.Ready {
			return s.send(conn, lock, livespeech.ServerFrame{Type: string(livespeech.EventReady)})
		}
		return nil

	case livespeech.FrameAudioEnd:
		for range s.opts.FlushAudio {
			if err := s.send(conn, lock, livespeech.AudioFrame([]byte{0, 0})); err != nil {
				return err
			}
		}
		if err := s.ack(conn, lock, frame); err != nil {
			return err
		}
		if !s.opts.Transcribe {
			return nil
		}
		for _, f := range []livespeech.ServerFrame{
			{Type: string(livespeech.EventUserTranscript), Text: "hello", IsFinal: true},
			{Type: string(livespeech.EventResponse), Text: "안녕하세요", IsFinal: true},
			{Type: string(livespeech.EventTurnComplete)},
		} {
			if err := s.send(conn, lock, f); err != nil {
				return err
			}
		}
		return nil

	default:
		return s.ack(conn, lock, frame)
	}
}

func (s *Server) ack(conn *websocket.Conn, lock *sync.Mutex, frame livespeech.ClientFrame) error {
	return s.send(conn, lock, livespeech.ServerFrame{Type: livespeech.FrameAck, RequestID: frame.RequestID})
}

func (s *Server) send(conn *websocket.Conn, lock *sync.Mutex, frame livespeech.ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) record(frame livespeech.ClientFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	if frame.Type == livespeech.FrameAudioChunk {
		data, _ := base64.StdEncoding.DecodeString(frame.Audio)
		s.audio = append(s.audio, data)
	}
}

// Emit pushes a frame to every connected client.
func (s *Server) Emit(frame livespeech.ServerFrame) {
	s.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(s.conns))
	for c, l := range s.conns {
		conns[c] = l
	}
	s.mu.Unlock()

	for c, l := range conns {
		_ = s.send(c, l, frame)
	}
}

// CloseConnections drops every connected client without a close handshake.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// FrameTypes lists the type of every frame received, in order.
func (s *Server) FrameTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.frames))
	for i, f := range s.frames {
		types[i] = f.Type
	}
	return types
}

func (s *Server) Frames() []livespeech.ClientFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]livespeech.ClientFrame(nil), s.frames...)
}

// Audio returns the decoded payload of every audio chunk received.
func (s *Server) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}
