package livespeech

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Region selects the LiveSpeech deployment a client talks to.
type Region string

const (
	RegionApNortheast2 Region = "ap-northeast-2"
	RegionApNortheast1 Region = "ap-northeast-1"
	RegionUsWest2      Region = "us-west-2"
	RegionEuCentral1   Region = "eu-central-1"
)

const (
	// DefaultTimeout bounds the dial, the connection handshake and every
	// acknowledged request.
	DefaultTimeout = 10 * time.Second

	endpointTemplate = "wss://%s.livespeech.brivva.io/v1/live"
)

var knownRegions = map[Region]struct{}{
	RegionApNortheast2: {},
	RegionApNortheast1: {},
	RegionUsWest2:      {},
	RegionEuCentral1:   {},
}

// Config is an immutable, validated client configuration. Build it with
// NewConfig.
type Config struct {
	region   Region
	apiKey   string
	endpoint string
	timeout  time.Duration
}

// Option customizes a Config.
type Option func(*Config)

// WithEndpoint overrides the regional endpoint, e.g. for a staging or mock
// upstream. The URL must use the ws or wss scheme.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.endpoint = endpoint
	}
}

// WithTimeout sets the dial, handshake and acknowledgement timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.timeout = d
	}
}

// NewConfig validates the region and credential and returns a Config. Any
// problem is reported as a *ConfigError.
func NewConfig(region Region, apiKey string, opts ...Option) (Config, error) {
	cfg := Config{
		region:  region,
		apiKey:  strings.TrimSpace(apiKey),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.apiKey == "" {
		return Config{}, &ConfigError{Field: "api_key", Reason: "must not be empty"}
	}
	if cfg.timeout <= 0 {
		return Config{}, &ConfigError{Field: "timeout", Reason: "must be positive"}
	}

	if cfg.endpoint != "" {
		u, err := url.Parse(cfg.endpoint)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return Config{}, &ConfigError{Field: "endpoint", Reason: "must be a ws:// or wss:// URL"}
		}
		return cfg, nil
	}

	if _, ok := knownRegions[region]; !ok {
		return Config{}, &ConfigError{Field: "region", Reason: "unknown region " + string(region)}
	}
	cfg.endpoint = fmt.Sprintf(endpointTemplate, region)
	return cfg, nil
}

func (c Config) Region() Region {
	return c.region
}

func (c Config) Endpoint() string {
	return c.endpoint
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}
