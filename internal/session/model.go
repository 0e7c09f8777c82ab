package session

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
	StatusError  Status = "error"
)

// Record is the stored summary of one relay session. Transcript text is
// never stored, only counts.
type Record struct {
	ID             string     `json:"id"`
	Flag           string     `json:"flag"`
	Status         Status     `json:"status"`
	Outcome        string     `json:"outcome,omitempty"`
	FailedStage    string     `json:"failed_stage,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	DurationMs     int64      `json:"duration_ms"`
	Transcripts    int64      `json:"transcripts"`
	Responses      int64      `json:"responses"`
	Turns          int64      `json:"turns"`
	UpstreamErrors int64      `json:"upstream_errors"`
	AudioInBytes   int64      `json:"audio_in_bytes"`
	AudioOutBytes  int64      `json:"audio_out_bytes"`
}

func (r *Record) RedisKey() string {
	return RedisKey(r.ID)
}

func RedisKey(id string) string {
	return "relay:session:" + id
}

// Summary is what is known about a session when it ends.
type Summary struct {
	Outcome        string
	FailedStage    string
	Failed         bool
	SetupFailed    bool
	Duration       time.Duration
	Transcripts    int64
	Responses      int64
	Turns          int64
	UpstreamErrors int64
	AudioInBytes   int64
	AudioOutBytes  int64
}

// Metrics are the relay counters of one UTC hour.
type Metrics struct {
	Date           string `json:"date"`
	Hour           int    `json:"hour"`
	Sessions       int64  `json:"sessions"`
	SetupFailures  int64  `json:"setup_failures"`
	SendErrors     int64  `json:"send_errors"`
	Transcripts    int64  `json:"transcripts"`
	Responses      int64  `json:"responses"`
	Turns          int64  `json:"turns"`
	UpstreamErrors int64  `json:"upstream_errors"`
	AvgDurationMs  int64  `json:"avg_duration_ms"`
}

func MetricsRedisKey(date string, hour int) string {
	return "relay:metrics:" + date + ":" + strconv.Itoa(hour)
}
