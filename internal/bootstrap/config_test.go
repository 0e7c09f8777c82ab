package bootstrap

import (
	"errors"
	"testing"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LIVESPEECH_API_KEY", "")
	t.Setenv("SERVER_ADDR", "")
	t.Setenv("RELAY_PING_INTERVAL", "")

	cfg := LoadConfig()

	if cfg.ServerAddr != "0.0.0.0:8080" {
		t.Errorf("expected default server addr, got %s", cfg.ServerAddr)
	}
	if cfg.LiveSpeechRegion != string(livespeech.RegionApNortheast2) {
		t.Errorf("expected default region, got %s", cfg.LiveSpeechRegion)
	}
	if cfg.RelayPingInterval != 54*time.Second {
		t.Errorf("expected 54s ping interval, got %v", cfg.RelayPingInterval)
	}
	if cfg.RelaySettleDelay != 0 {
		t.Errorf("expected no settle delay, got %v", cfg.RelaySettleDelay)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("LIVESPEECH_API_KEY", "secret")
	t.Setenv("LIVESPEECH_REGION", "us-west-2")
	t.Setenv("LIVESPEECH_TIMEOUT", "3s")
	t.Setenv("RELAY_SETTLE_DELAY", "2s")
	t.Setenv("WS_RATE_LIMIT", "7")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := LoadConfig()

	if cfg.LiveSpeechAPIKey != "secret" {
		t.Errorf("expected api key from env, got %q", cfg.LiveSpeechAPIKey)
	}
	if cfg.LiveSpeechTimeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", cfg.LiveSpeechTimeout)
	}
	if cfg.RelaySettleDelay != 2*time.Second {
		t.Errorf("expected 2s settle delay, got %v", cfg.RelaySettleDelay)
	}
	if cfg.WSRateLimit != 7 {
		t.Errorf("expected rate limit 7, got %d", cfg.WSRateLimit)
	}
	if cfg.RedisDB != 0 {
		t.Errorf("expected invalid int to fall back to 0, got %d", cfg.RedisDB)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestConfig_UpstreamConfig(t *testing.T) {
	cfg := &Config{
		LiveSpeechAPIKey:   "secret",
		LiveSpeechRegion:   "nowhere",
		LiveSpeechEndpoint: "ws://localhost:9090/v1/live",
		LiveSpeechTimeout:  time.Second,
	}

	up, err := cfg.UpstreamConfig()
	if err != nil {
		t.Fatalf("expected endpoint override to skip region check, got %v", err)
	}
	if up.Endpoint() != "ws://localhost:9090/v1/live" {
		t.Errorf("unexpected endpoint %s", up.Endpoint())
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerAddr:        ":8080",
			LiveSpeechAPIKey:  "secret",
			LiveSpeechRegion:  string(livespeech.RegionApNortheast2),
			LiveSpeechTimeout: time.Second,
			WSRateLimit:       5,
			WSRateBurst:       10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing key", func(c *Config) { c.LiveSpeechAPIKey = "" }, true},
		{"unknown region", func(c *Config) { c.LiveSpeechRegion = "mars-1" }, true},
		{"bad endpoint", func(c *Config) { c.LiveSpeechEndpoint = "http://example.com" }, true},
		{"zero rate", func(c *Config) { c.WSRateLimit = 0 }, true},
		{"empty addr", func(c *Config) { c.ServerAddr = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateWrapsConfigError(t *testing.T) {
	cfg := &Config{ServerAddr: ":8080", LiveSpeechRegion: "ap-northeast-2", LiveSpeechTimeout: time.Second, WSRateLimit: 1, WSRateBurst: 1}

	var cfgErr *livespeech.ConfigError
	if err := cfg.Validate(); !errors.As(err, &cfgErr) {
		t.Fatalf("expected *livespeech.ConfigError, got %v", err)
	}
	if cfgErr.Field != "api_key" {
		t.Errorf("expected api_key field, got %s", cfgErr.Field)
	}
}
