package metrics

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
	"github.com/eleven-am/brivva-dataplane/internal/prompt"
	"github.com/eleven-am/brivva-dataplane/internal/relay"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics of the dataplane. It implements
// relay.Observer.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Relay session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SetupFailures   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	UpstreamEvents  *prometheus.CounterVec
	AudioBytesTotal *prometheus.CounterVec
	RateLimitHits   prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "brivva"
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_sessions_active",
			Help:      "Number of active relay sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_sessions_total",
			Help:      "Total number of finished relay sessions",
		},
		[]string{"flag", "outcome"},
	)

	setupFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_setup_failures_total",
			Help:      "Relay sessions that failed before relaying, by stage",
		},
		[]string{"stage"},
	)

	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_session_duration_seconds",
			Help:      "Relay session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"flag"},
	)

	upstreamEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_events_total",
			Help:      "Upstream events received, by type",
		},
		[]string{"type"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_audio_bytes_total",
			Help:      "Audio bytes relayed, by direction",
		},
		[]string{"direction"},
	)

	rateLimitHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Websocket upgrades rejected by the rate limiter",
		},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		sessionsActive,
		sessionsTotal,
		setupFailures,
		sessionDuration,
		upstreamEvents,
		audioBytesTotal,
		rateLimitHits,
	)

	return &Metrics{
		registry:        registry,
		RequestsTotal:   requestsTotal,
		RequestDuration: requestDuration,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		SetupFailures:   setupFailures,
		SessionDuration: sessionDuration,
		UpstreamEvents:  upstreamEvents,
		AudioBytesTotal: audioBytesTotal,
		RateLimitHits:   rateLimitHits,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records every HTTP request by its route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) RecordRateLimitHit() {
	m.RateLimitHits.Inc()
}

func (m *Metrics) SessionStarted(_, _ string) {
	m.SessionsActive.Inc()
}

func (m *Metrics) UpstreamEvent(_ string, kind livespeech.EventType) {
	m.UpstreamEvents.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) AudioRelayed(_ string, dir relay.Direction, n int) {
	if n > 0 {
		m.AudioBytesTotal.WithLabelValues(string(dir)).Add(float64(n))
	}
}

func (m *Metrics) SessionEnded(_ string, res relay.Result) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(flagLabel(res.Flag), relay.Outcome(res.Err)).Inc()
	m.SessionDuration.WithLabelValues(flagLabel(res.Flag)).Observe(res.Duration.Seconds())

	var stageErr *relay.StageError
	if relay.IsSetupFailure(res.Err) && errors.As(res.Err, &stageErr) {
		m.SetupFailures.WithLabelValues(stageErr.Stage.String()).Inc()
	}
}

// flagLabel folds unrecognized flags into "default" to bound label
// cardinality.
func flagLabel(flag string) string {
	if slices.Contains(prompt.Flags(), flag) {
		return flag
	}
	return "default"
}
