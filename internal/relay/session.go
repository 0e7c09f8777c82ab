package relay

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
	"github.com/eleven-am/brivva-dataplane/internal/prompt"
	"github.com/google/uuid"
)

const (
	DefaultTeardownTimeout = 5 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPingInterval    = 54 * time.Second

	outboundBuffer = 100
	statusBuffer   = 10
	audioBuffer    = 100
)

// Upstream is the speech session a relay drives. *livespeech.Client
// implements it.
type Upstream interface {
	Subscribe() <-chan livespeech.Event
	Connect(ctx context.Context) error
	StartSession(ctx context.Context, cfg livespeech.SessionConfig) error
	AudioStart(ctx context.Context) error
	SendAudioChunk(ctx context.Context, chunk []byte) error
	AudioEnd(ctx context.Context) error
	EndSession(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// UpstreamFactory builds the upstream for one session. An error is reported
// to the client as a configuration failure.
type UpstreamFactory func() (Upstream, error)

// ClientConn is the client side of a relay. *websocket.Conn implements it.
type ClientConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Config struct {
	Flag string
	// SettleDelay is waited between connect and session start.
	SettleDelay     time.Duration
	TeardownTimeout time.Duration
	WriteTimeout    time.Duration
	// PingInterval of zero uses DefaultPingInterval; negative disables pings.
	PingInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.TeardownTimeout <= 0 {
		c.TeardownTimeout = DefaultTeardownTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	return c
}

// Session relays one client connection to one upstream session.
type Session struct {
	id          string
	cfg         Config
	prompt      prompt.Config
	conn        ClientConn
	newUpstream UpstreamFactory
	upstream    Upstream
	observer    Observer
	log         *slog.Logger

	state     atomic.Int32
	running   atomic.Bool
	startedAt time.Time

	outbound   chan Outbound
	wg         sync.WaitGroup
	stopWriter context.CancelFunc
	stopTasks  context.CancelFunc
	writerDone chan struct{}
}

func NewSession(conn ClientConn, newUpstream UpstreamFactory, cfg Config, observer Observer, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if observer == nil {
		observer = NopObserver{}
	}

	id := uuid.New().String()
	return &Session{
		id:          id,
		cfg:         cfg.withDefaults(),
		prompt:      prompt.Select(cfg.Flag),
		conn:        conn,
		newUpstream: newUpstream,
		observer:    observer,
		log:         log.With("session_id", id, "flag", cfg.Flag),
		outbound:    make(chan Outbound, outboundBuffer),
		startedAt:   time.Now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Flag() string {
	return s.cfg.Flag
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.log.Debug("state transition", "state", st.String())
}

// Run drives the session to completion on the calling goroutine. It returns
// nil when the client stops or disconnects, or a *StageError for a fatal
// failure. Cancelling ctx closes the client connection, which ends the
// session through the normal closing sequence.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	s.observer.SessionStarted(s.id, s.cfg.Flag)
	reached, err := s.run(ctx)
	s.setState(StateClosed)

	res := Result{
		Flag:      s.cfg.Flag,
		Err:       err,
		Reached:   reached,
		StartedAt: s.startedAt,
		Duration:  time.Since(s.startedAt),
	}
	s.observer.SessionEnded(s.id, res)
	s.log.Info("relay session ended", "outcome", Outcome(err), "reached", reached.String(), "duration", res.Duration)
	return err
}

func (s *Session) run(ctx context.Context) (State, error) {
	upstream, err := s.newUpstream()
	if err != nil {
		return StateInit, s.fail(ctx, StateInit, stageError(StateConfigured, ErrConfig, err))
	}
	s.upstream = upstream
	s.setState(StateConfigured)

	events := upstream.Subscribe()
	if err := upstream.Connect(ctx); err != nil {
		return StateConfigured, s.fail(ctx, StateConfigured, stageError(StateConnected, ErrConnect, err))
	}
	s.setState(StateConnected)

	if err := s.settle(ctx); err != nil {
		s.release(ctx, StateConnected)
		return StateConnected, err
	}

	cfg := livespeech.SessionConfig{Prompt: s.prompt.Prompt, SpeakFirst: s.prompt.SpeakFirst}
	if err := upstream.StartSession(ctx, cfg); err != nil {
		return StateConnected, s.fail(ctx, StateConnected, stageError(StateSessionStarted, ErrSessionStart, err))
	}
	s.setState(StateSessionStarted)

	if err := upstream.AudioStart(ctx); err != nil {
		return StateSessionStarted, s.fail(ctx, StateSessionStarted, stageError(StateAudioStreaming, ErrAudioStart, err))
	}
	s.setState(StateAudioStreaming)

	s.outbound <- Status(StatusConnected)
	s.spawn(ctx, events)
	s.setState(StateRelaying)
	s.log.Info("relay session started", "speak_first", s.prompt.SpeakFirst)

	loopErr := s.readLoop(ctx)
	s.close(ctx)
	return StateRelaying, loopErr
}

func (s *Session) settle(ctx context.Context) error {
	if s.cfg.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fail reports a setup failure to the client with a single error frame and
// releases whatever the session had acquired by the reached state.
func (s *Session) fail(ctx context.Context, reached State, err *StageError) error {
	s.log.Error("relay setup failed", "stage", err.Stage.String(), "error", err.Err)

	mt, data, encErr := ErrorMessage(err.ClientMessage()).Frame()
	if encErr == nil {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		if werr := s.conn.WriteMessage(mt, data); werr != nil {
			s.log.Warn("failed to deliver error to client", "error", werr)
		}
	}

	s.release(ctx, reached)
	return err
}

func (s *Session) spawn(ctx context.Context, events <-chan livespeech.Event) {
	writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(ctx))
	tasksCtx, stopTasks := context.WithCancel(context.WithoutCancel(ctx))
	s.stopWriter = stopWriter
	s.stopTasks = stopTasks

	statusCh := make(chan statusMessage, statusBuffer)
	audioCh := make(chan []byte, audioBuffer)
	statusDone := make(chan struct{})
	audioDone := make(chan struct{})
	s.writerDone = make(chan struct{})

	w := &writer{
		conn:         s.conn,
		writeTimeout: s.cfg.WriteTimeout,
		pingInterval: s.cfg.PingInterval,
		log:          s.log,
		onAudio: func(n int) {
			s.observer.AudioRelayed(s.id, DirectionOutbound, n)
		},
	}

	s.wg.Add(4)
	go func() {
		defer s.wg.Done()
		defer close(s.writerDone)
		w.run(writerCtx, s.outbound)
	}()
	go func() {
		defer s.wg.Done()
		defer close(statusDone)
		forwardStatus(tasksCtx, statusCh, s.outbound, s.writerDone)
	}()
	go func() {
		defer s.wg.Done()
		defer close(audioDone)
		forwardAudio(tasksCtx, audioCh, s.outbound, s.writerDone)
	}()
	go func() {
		defer s.wg.Done()
		s.pump(tasksCtx, events, pumpSinks{
			status:     statusCh,
			audio:      audioCh,
			statusDone: statusDone,
			audioDone:  audioDone,
		})
	}()
}

// close stops the writer before touching the upstream so nothing reaches
// the client once closing has begun.
func (s *Session) close(ctx context.Context) {
	s.setState(StateClosing)

	s.stopWriter()
	s.interruptWrites()
	<-s.writerDone

	s.release(ctx, StateAudioStreaming)

	s.stopTasks()
	s.wg.Wait()
}

// interruptWrites expires the write deadline so a writer blocked on a slow
// client returns at once. *websocket.Conn only applies a new deadline to the
// next write, so the underlying net.Conn is expired as well.
func (s *Session) interruptWrites() {
	now := time.Now()
	_ = s.conn.SetWriteDeadline(now)
	if nc, ok := s.conn.(interface{ NetConn() net.Conn }); ok {
		_ = nc.NetConn().SetWriteDeadline(now)
	}
}

// release tears down the upstream resources held in the reached state.
// Every step is attempted regardless of earlier failures.
func (s *Session) release(ctx context.Context, reached State) {
	if reached >= StateAudioStreaming {
		s.teardownStep(ctx, "audio end", s.upstream.AudioEnd)
	}
	if reached >= StateSessionStarted {
		s.teardownStep(ctx, "end session", s.upstream.EndSession)
	}
	if reached >= StateConnected {
		s.teardownStep(ctx, "disconnect", s.upstream.Disconnect)
	}
}

func (s *Session) teardownStep(ctx context.Context, name string, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TeardownTimeout)
	defer cancel()

	if err := fn(stepCtx); err != nil {
		s.log.Warn("teardown step failed", "step", name, "error", err)
		return
	}
	s.log.Debug("teardown step done", "step", name)
}
