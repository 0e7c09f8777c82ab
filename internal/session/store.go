package session

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	sessionTTL = 24 * time.Hour
	metricsTTL = 7 * 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

func (s *Store) CreateSession(ctx context.Context, rec *Record) error {
	rec.Status = StatusActive
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	return s.save(ctx, rec)
}

func (s *Store) GetSession(ctx context.Context, id string) (*Record, error) {
	data, err := s.redis.Get(ctx, RedisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// EndSession stores the final state of a session and adds it to the hourly
// counters.
func (s *Store) EndSession(ctx context.Context, id string, sum Summary) error {
	rec, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	rec.Status = StatusEnded
	if sum.Failed {
		rec.Status = StatusError
	}
	rec.Outcome = sum.Outcome
	rec.FailedStage = sum.FailedStage
	rec.EndedAt = &now
	rec.DurationMs = sum.Duration.Milliseconds()
	rec.Transcripts = sum.Transcripts
	rec.Responses = sum.Responses
	rec.Turns = sum.Turns
	rec.UpstreamErrors = sum.UpstreamErrors
	rec.AudioInBytes = sum.AudioInBytes
	rec.AudioOutBytes = sum.AudioOutBytes

	if err := s.save(ctx, rec); err != nil {
		return err
	}
	return s.recordEnd(ctx, sum)
}

func (s *Store) save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, rec.RedisKey(), data, sessionTTL).Err()
}

func (s *Store) IncrementMetric(ctx context.Context, field string, value int64) error {
	now := time.Now().UTC()
	key := MetricsRedisKey(now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	pipe.HIncrBy(ctx, key, field, value)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) IncrementSessions(ctx context.Context) error {
	return s.IncrementMetric(ctx, "sessions", 1)
}

func (s *Store) recordEnd(ctx context.Context, sum Summary) error {
	now := time.Now().UTC()
	key := MetricsRedisKey(now.Format("2006-01-02"), now.Hour())

	pipe := s.redis.Pipeline()
	if sum.SetupFailed {
		pipe.HIncrBy(ctx, key, "setup_failures", 1)
	}
	if sum.Outcome == "send_error" {
		pipe.HIncrBy(ctx, key, "send_errors", 1)
	}
	pipe.HIncrBy(ctx, key, "transcripts", sum.Transcripts)
	pipe.HIncrBy(ctx, key, "responses", sum.Responses)
	pipe.HIncrBy(ctx, key, "turns", sum.Turns)
	pipe.HIncrBy(ctx, key, "upstream_errors", sum.UpstreamErrors)
	pipe.HIncrBy(ctx, key, "total_duration_ms", sum.Duration.Milliseconds())
	pipe.HIncrBy(ctx, key, "ended", 1)
	pipe.Expire(ctx, key, metricsTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) GetMetrics(ctx context.Context, hours int) ([]*Metrics, error) {
	now := time.Now().UTC()
	var metrics []*Metrics

	for i := 0; i < hours; i++ {
		t := now.Add(-time.Duration(i) * time.Hour)
		key := MetricsRedisKey(t.Format("2006-01-02"), t.Hour())

		data, err := s.redis.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			continue
		}

		m := &Metrics{
			Date: t.Format("2006-01-02"),
			Hour: t.Hour(),
		}
		m.Sessions = parseCount(data["sessions"])
		m.SetupFailures = parseCount(data["setup_failures"])
		m.SendErrors = parseCount(data["send_errors"])
		m.Transcripts = parseCount(data["transcripts"])
		m.Responses = parseCount(data["responses"])
		m.Turns = parseCount(data["turns"])
		m.UpstreamErrors = parseCount(data["upstream_errors"])

		if ended := parseCount(data["ended"]); ended > 0 {
			m.AvgDurationMs = parseCount(data["total_duration_ms"]) / ended
		}

		metrics = append(metrics, m)
	}

	return metrics, nil
}

func parseCount(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
