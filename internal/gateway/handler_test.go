package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
	"github.com/eleven-am/brivva-dataplane/internal/livespeech/livespeechtest"
	"github.com/eleven-am/brivva-dataplane/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockRelayer struct {
	mu    sync.Mutex
	flags []string
	err   error
}

func (m *mockRelayer) Serve(_ context.Context, conn relay.ClientConn, flag string) error {
	m.mu.Lock()
	m.flags = append(m.flags, flag)
	m.mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"connected"}`))
	return m.err
}

func (m *mockRelayer) Flags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.flags)
}

func startGateway(t *testing.T, relays Relayer) string {
	t.Helper()
	e := echo.New()
	NewRelayHandler(relays, time.Second, testLogger()).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	return ws
}

func TestRelayHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	NewRelayHandler(&mockRelayer{}, 0, testLogger()).RegisterRoutes(e)

	for _, r := range e.Routes() {
		if r.Path == "/ws" && r.Method == http.MethodGet {
			return
		}
	}
	t.Error("expected GET /ws to be registered")
}

func TestRelayHandler_FlagSources(t *testing.T) {
	relays := &mockRelayer{}
	url := startGateway(t, relays)

	tests := []struct {
		name   string
		query  string
		header string
		want   string
	}{
		{"query", "?flag=ko-en", "", "ko-en"},
		{"header fallback", "", "tutor", "tutor"},
		{"query wins", "?flag=en-ko", "tutor", "en-ko"},
		{"absent", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set(FlagHeader, tt.header)
			}
			ws := dial(t, url+tt.query, header)
			if _, _, err := ws.ReadMessage(); err != nil {
				t.Fatalf("read: %v", err)
			}
			_, _, err := ws.ReadMessage()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("expected normal close, got %v", err)
			}

			flags := relays.Flags()
			if got := flags[len(flags)-1]; got != tt.want {
				t.Errorf("expected flag %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRelayHandler_ShutdownCloseCode(t *testing.T) {
	url := startGateway(t, &mockRelayer{err: relay.ErrShuttingDown})
	ws := dial(t, url, nil)

	_, _, _ = ws.ReadMessage()
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Errorf("expected try-again-later close, got %v", err)
	}
}

func TestRelayHandler_RejectsPlainHTTP(t *testing.T) {
	e := echo.New()
	NewRelayHandler(&mockRelayer{}, time.Second, testLogger()).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-websocket request, got %d", rec.Code)
	}
}

func TestRelayHandler_EndToEnd(t *testing.T) {
	upstream := livespeechtest.New(livespeechtest.Options{
		APIKey:    "test-key",
		EchoAudio: true,
		Ready:     true,
		Logger:    testLogger(),
	})
	upstreamSrv := httptest.NewServer(upstream)
	t.Cleanup(upstreamSrv.Close)

	manager := relay.NewManager(relay.ManagerConfig{
		NewUpstream: func() (relay.Upstream, error) {
			cfg, err := livespeech.NewConfig(livespeech.RegionApNortheast2, "test-key",
				livespeech.WithEndpoint(livespeechtest.WebSocketURL(upstreamSrv.URL)),
				livespeech.WithTimeout(2*time.Second))
			if err != nil {
				return nil, err
			}
			return livespeech.NewClient(cfg, testLogger()), nil
		},
		Session: relay.Config{PingInterval: -1},
		Log:     testLogger(),
	})

	ws := dial(t, startGateway(t, manager)+"?flag=ko-en", nil)

	readJSON := func() map[string]string {
		t.Helper()
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if mt != websocket.TextMessage {
			t.Fatalf("expected text frame, got %d", mt)
		}
		var body map[string]string
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body
	}

	if got := readJSON(); got["status"] != relay.StatusConnected {
		t.Fatalf("expected connected first, got %v", got)
	}
	if got := readJSON(); got["status"] != relay.StatusSessionReady {
		t.Fatalf("expected session_ready, got %v", got)
	}

	chunk := []byte{0x10, 0x20, 0x30}
	if err := ws.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		t.Fatalf("write: %v", err)
	}
	mt, data, err := ws.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage || string(data) != string(chunk) {
		t.Fatalf("expected echoed audio, got type %d data %v err %v", mt, data, err)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	if _, _, err := ws.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close after stop, got %v", err)
	}

	want := []string{
		livespeech.FrameSessionStart,
		livespeech.FrameAudioStart,
		livespeech.FrameAudioChunk,
		livespeech.FrameAudioEnd,
		livespeech.FrameSessionEnd,
	}
	if got := upstream.FrameTypes(); !slices.Equal(got, want) {
		t.Errorf("expected upstream frames %v, got %v", want, got)
	}
	if frames := upstream.Frames(); frames[0].Prompt == "" {
		t.Error("expected session.start to carry a prompt")
	}
}
