package relay

import (
	"context"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
)

type pumpSinks struct {
	status     chan<- statusMessage
	audio      chan<- []byte
	statusDone <-chan struct{}
	audioDone  <-chan struct{}
}

// pump drains the upstream event stream until it closes or the context is
// cancelled. Once a forwarder goes away the remaining events are discarded,
// so the upstream client never blocks on a full subscription while its
// teardown acks are pending. Both sink channels are closed on exit.
func (s *Session) pump(ctx context.Context, events <-chan livespeech.Event, sinks pumpSinks) {
	defer close(sinks.status)
	defer close(sinks.audio)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				s.log.Debug("upstream event stream closed")
				return
			}
			if !s.dispatch(ctx, ev, sinks) {
				s.discard(ctx, events)
				return
			}
		}
	}
}

func (s *Session) discard(ctx context.Context, events <-chan livespeech.Event) {
	var dropped int
	defer func() {
		if dropped > 0 {
			s.log.Debug("discarded upstream events after client writer stopped", "count", dropped)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.observer.UpstreamEvent(s.id, ev.Type)
			dropped++
		}
	}
}

func (s *Session) dispatch(ctx context.Context, ev livespeech.Event, sinks pumpSinks) bool {
	s.observer.UpstreamEvent(s.id, ev.Type)

	switch ev.Type {
	case livespeech.EventReady:
		s.log.Info("upstream session ready")
		return s.sendStatus(ctx, sinks, statusMessage{text: StatusSessionReady})

	case livespeech.EventUserTranscript:
		s.log.Info("user transcript", "text", ev.Text, "is_final", ev.IsFinal)

	case livespeech.EventResponse:
		s.log.Info("ai response", "text", ev.Text, "is_final", ev.IsFinal)

	case livespeech.EventTurnComplete:
		s.log.Info("turn complete")

	case livespeech.EventAudio:
		select {
		case sinks.audio <- ev.Audio:
		case <-sinks.audioDone:
			return false
		case <-ctx.Done():
			return false
		}

	case livespeech.EventError:
		msg := ev.Message
		if msg == "" {
			msg = ev.Code
		}
		s.log.Error("upstream error", "code", ev.Code, "message", ev.Message)
		return s.sendStatus(ctx, sinks, statusMessage{text: msg, isError: true})

	default:
		s.log.Debug("ignoring upstream event", "type", ev.Type)
	}
	return true
}

func (s *Session) sendStatus(ctx context.Context, sinks pumpSinks, msg statusMessage) bool {
	select {
	case sinks.status <- msg:
		return true
	case <-sinks.statusDone:
		return false
	case <-ctx.Done():
		return false
	}
}
