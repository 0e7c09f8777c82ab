package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
	"github.com/eleven-am/brivva-dataplane/internal/relay"
)

const (
	recorderBuffer  = 256
	recorderTimeout = 2 * time.Second
)

type op struct {
	name string
	fn   func(ctx context.Context) error
}

type traffic struct {
	transcripts    int64
	responses      int64
	turns          int64
	upstreamErrors int64
	audioIn        int64
	audioOut       int64
}

// Recorder persists relay sessions to the Store. It implements
// relay.Observer; writes happen on a single background worker so relay
// goroutines never wait on redis.
type Recorder struct {
	store *Store
	log   *slog.Logger
	ops   chan op

	mu       sync.Mutex
	sessions map[string]*traffic

	// qmu orders enqueue against Stop so nothing lands in ops after the
	// worker has drained it.
	qmu     sync.Mutex
	stopped bool
	quit    chan struct{}
	done    chan struct{}
}

func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    store,
		log:      logger.With("component", "session_recorder"),
		ops:      make(chan op, recorderBuffer),
		sessions: make(map[string]*traffic),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Recorder) Start() {
	go r.run()
}

// Stop flushes queued writes and stops the worker.
func (r *Recorder) Stop(ctx context.Context) error {
	r.qmu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.quit)
	}
	r.qmu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case o := <-r.ops:
			r.exec(o)
		case <-r.quit:
			for {
				select {
				case o := <-r.ops:
					r.exec(o)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) exec(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), recorderTimeout)
	defer cancel()
	if err := o.fn(ctx); err != nil {
		r.log.Error("session store write failed", "op", o.name, "error", err)
	}
}

func (r *Recorder) enqueue(name string, fn func(ctx context.Context) error) {
	r.qmu.Lock()
	defer r.qmu.Unlock()
	if r.stopped {
		r.log.Debug("recorder stopped, dropping write", "op", name)
		return
	}

	select {
	case r.ops <- op{name: name, fn: fn}:
	default:
		r.log.Warn("recorder buffer full, dropping write", "op", name)
	}
}

func (r *Recorder) SessionStarted(id, flag string) {
	r.mu.Lock()
	r.sessions[id] = &traffic{}
	r.mu.Unlock()

	rec := &Record{ID: id, Flag: flag, StartedAt: time.Now()}
	r.enqueue("create_session", func(ctx context.Context) error {
		if err := r.store.CreateSession(ctx, rec); err != nil {
			return err
		}
		return r.store.IncrementSessions(ctx)
	})
}

func (r *Recorder) UpstreamEvent(id string, kind livespeech.EventType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.sessions[id]
	if !ok {
		return
	}
	switch kind {
	case livespeech.EventUserTranscript:
		t.transcripts++
	case livespeech.EventResponse:
		t.responses++
	case livespeech.EventTurnComplete:
		t.turns++
	case livespeech.EventError:
		t.upstreamErrors++
	}
}

func (r *Recorder) AudioRelayed(id string, dir relay.Direction, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.sessions[id]
	if !ok {
		return
	}
	if dir == relay.DirectionInbound {
		t.audioIn += int64(n)
	} else {
		t.audioOut += int64(n)
	}
}

func (r *Recorder) SessionEnded(id string, res relay.Result) {
	r.mu.Lock()
	t, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		t = &traffic{}
	}

	sum := Summary{
		Outcome:        relay.Outcome(res.Err),
		Failed:         res.Err != nil,
		SetupFailed:    relay.IsSetupFailure(res.Err),
		Duration:       res.Duration,
		Transcripts:    t.transcripts,
		Responses:      t.responses,
		Turns:          t.turns,
		UpstreamErrors: t.upstreamErrors,
		AudioInBytes:   t.audioIn,
		AudioOutBytes:  t.audioOut,
	}
	var stageErr *relay.StageError
	if errors.As(res.Err, &stageErr) {
		sum.FailedStage = stageErr.Stage.String()
	}

	r.enqueue("end_session", func(ctx context.Context) error {
		return r.store.EndSession(ctx, id, sum)
	})
}
