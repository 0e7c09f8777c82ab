package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager tracks the live relay sessions of this process.
type Manager struct {
	newUpstream UpstreamFactory
	cfg         Config
	observer    Observer
	sessions    map[string]*Session
	mu          sync.RWMutex
	log         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

type ManagerConfig struct {
	NewUpstream UpstreamFactory
	// Session is the template for every session; its Flag is ignored.
	Session  Config
	Observer Observer
	Log      *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		newUpstream: cfg.NewUpstream,
		cfg:         cfg.Session,
		observer:    cfg.Observer,
		sessions:    make(map[string]*Session),
		log:         cfg.Log.With("component", "relay_manager"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Serve runs a relay session for conn until it ends. The session is also
// ended when the manager shuts down.
func (m *Manager) Serve(ctx context.Context, conn ClientConn, flag string) error {
	cfg := m.cfg
	cfg.Flag = flag

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShuttingDown
	}
	session := NewSession(conn, m.newUpstream, cfg, m.observer, m.log)
	m.sessions[session.ID()] = session
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sessions, session.ID())
		m.mu.Unlock()
		m.wg.Done()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	m.log.Info("relay session accepted", "session_id", session.ID(), "flag", flag)
	return session.Run(ctx)
}

func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	return session, ok
}

type SessionInfo struct {
	SessionID string    `json:"session_id"`
	Flag      string    `json:"flag"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
}

func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) ListSessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, SessionInfo{
			SessionID: s.ID(),
			Flag:      s.Flag(),
			State:     s.State().String(),
			StartedAt: s.StartedAt(),
		})
	}
	return sessions
}

// Shutdown refuses new sessions, ends the live ones and waits for their
// closing sequences to finish or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	count := len(m.sessions)
	m.mu.Unlock()

	m.log.Info("shutting down relay sessions", "count", count)
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
