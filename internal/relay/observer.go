package relay

import (
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Result summarizes a finished session.
type Result struct {
	Flag      string
	Err       error
	Reached   State
	StartedAt time.Time
	Duration  time.Duration
}

// Observer receives session lifecycle and traffic notifications. Calls are
// made from session goroutines and must not block.
type Observer interface {
	SessionStarted(id, flag string)
	UpstreamEvent(id string, kind livespeech.EventType)
	AudioRelayed(id string, dir Direction, n int)
	SessionEnded(id string, res Result)
}

type NopObserver struct{}

func (NopObserver) SessionStarted(string, string) {}
func (NopObserver) UpstreamEvent(string, livespeech.EventType) {}
func (NopObserver) AudioRelayed(string, Direction, int) {}
func (NopObserver) SessionEnded(string, Result) {}

// Observers fans every notification out to each element.
type Observers []Observer

func (o Observers) SessionStarted(id, flag string) {
	for _, obs := range o {
		obs.SessionStarted(id, flag)
	}
}

func (o Observers) UpstreamEvent(id string, kind livespeech.EventType) {
	for _, obs := range o {
		obs.UpstreamEvent(id, kind)
	}
}

func (o Observers) AudioRelayed(id string, dir Direction, n int) {
	for _, obs := range o {
		obs.AudioRelayed(id, dir, n)
	}
}

func (o Observers) SessionEnded(id string, res Result) {
	for _, obs := range o {
		obs.SessionEnded(id, res)
	}
}
