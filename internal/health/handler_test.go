package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/relay"
	"github.com/labstack/echo/v4"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.err
}

type mockLister struct {
	sessions []relay.SessionInfo
}

func (m *mockLister) SessionCount() int {
	return len(m.sessions)
}

func (m *mockLister) ListSessions() []relay.SessionInfo {
	return m.sessions
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

var testUpstream = Upstream{Endpoint: "wss://ap-northeast-2.livespeech.brivva.io/v1/live"}

func TestHandler_Root(t *testing.T) {
	rec := serve(NewHandler(&mockPinger{}, &mockLister{}, testUpstream, "test"), "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != RootMessage {
		t.Errorf("expected %q, got %q", RootMessage, rec.Body.String())
	}
}

func TestHandler_Liveness(t *testing.T) {
	rec := serve(NewHandler(nil, &mockLister{}, Upstream{}, "test"), "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestHandler_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		upstream   Upstream
		wantCode   int
		wantStatus Status
	}{
		{"healthy", &mockPinger{}, testUpstream, http.StatusOK, StatusHealthy},
		{"redis down", &mockPinger{err: errors.New("refused")}, testUpstream, http.StatusOK, StatusDegraded},
		{"redis absent", nil, testUpstream, http.StatusOK, StatusDegraded},
		{"upstream misconfigured", &mockPinger{}, Upstream{Err: errors.New("api key is required")}, http.StatusServiceUnavailable, StatusUnhealthy},
		{"upstream missing", &mockPinger{}, Upstream{}, http.StatusServiceUnavailable, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &mockLister{sessions: []relay.SessionInfo{{SessionID: "s1"}}}
			rec := serve(NewHandler(tt.store, lister, tt.upstream, "1.2.3"), "/health/ready")

			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, resp.Status)
			}
			if resp.Version != "1.2.3" {
				t.Errorf("expected version 1.2.3, got %s", resp.Version)
			}
			if resp.Stats.ActiveSessions != 1 {
				t.Errorf("expected 1 active session, got %d", resp.Stats.ActiveSessions)
			}
			if _, ok := resp.Components["redis"]; !ok {
				t.Error("expected redis component")
			}
			if _, ok := resp.Components["upstream"]; !ok {
				t.Error("expected upstream component")
			}
		})
	}
}

func TestHandler_Sessions(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lister := &mockLister{sessions: []relay.SessionInfo{
		{SessionID: "s1", Flag: "ko-en", State: "relaying", StartedAt: started},
		{SessionID: "s2", Flag: "", State: "connected", StartedAt: started},
	}}

	rec := serve(NewHandler(&mockPinger{}, lister, testUpstream, "test"), "/health/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp SessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", resp.Total)
	}
	if resp.Sessions[0].Flag != "ko-en" || resp.Sessions[0].State != "relaying" {
		t.Errorf("unexpected first session: %+v", resp.Sessions[0])
	}
}

func TestComputeOverallStatus(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]ComponentStatus
		want       Status
	}{
		{"all healthy", map[string]ComponentStatus{"redis": {Status: StatusHealthy}, "upstream": {Status: StatusHealthy}}, StatusHealthy},
		{"redis unhealthy", map[string]ComponentStatus{"redis": {Status: StatusUnhealthy}, "upstream": {Status: StatusHealthy}}, StatusDegraded},
		{"upstream unhealthy", map[string]ComponentStatus{"redis": {Status: StatusHealthy}, "upstream": {Status: StatusUnhealthy}}, StatusUnhealthy},
		{"empty", map[string]ComponentStatus{}, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeOverallStatus(tt.components); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
