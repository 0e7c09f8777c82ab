package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/eleven-am/brivva-dataplane/internal/livespeech"
	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	LiveSpeechAPIKey   string
	LiveSpeechRegion   string
	LiveSpeechEndpoint string
	LiveSpeechTimeout  time.Duration

	RelaySettleDelay     time.Duration
	RelayTeardownTimeout time.Duration
	RelayWriteTimeout    time.Duration
	RelayPingInterval    time.Duration

	WSRateLimit int
	WSRateBurst int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MetricsNamespace string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0:8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		LiveSpeechAPIKey:   getEnv("LIVESPEECH_API_KEY", ""),
		LiveSpeechRegion:   getEnv("LIVESPEECH_REGION", string(livespeech.RegionApNortheast2)),
		LiveSpeechEndpoint: getEnv("LIVESPEECH_ENDPOINT", ""),
		LiveSpeechTimeout:  getEnvDuration("LIVESPEECH_TIMEOUT", livespeech.DefaultTimeout),

		RelaySettleDelay:     getEnvDuration("RELAY_SETTLE_DELAY", 0),
		RelayTeardownTimeout: getEnvDuration("RELAY_TEARDOWN_TIMEOUT", 5*time.Second),
		RelayWriteTimeout:    getEnvDuration("RELAY_WRITE_TIMEOUT", 10*time.Second),
		RelayPingInterval:    getEnvDuration("RELAY_PING_INTERVAL", 54*time.Second),

		WSRateLimit: getEnvInt("WS_RATE_LIMIT", 5),
		WSRateBurst: getEnvInt("WS_RATE_BURST", 10),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MetricsNamespace: getEnv("METRICS_NAMESPACE", "brivva"),
	}
}

// UpstreamConfig builds the LiveSpeech client configuration shared by every
// relay session.
func (c *Config) UpstreamConfig() (livespeech.Config, error) {
	opts := []livespeech.Option{livespeech.WithTimeout(c.LiveSpeechTimeout)}
	if c.LiveSpeechEndpoint != "" {
		opts = append(opts, livespeech.WithEndpoint(c.LiveSpeechEndpoint))
	}
	return livespeech.NewConfig(livespeech.Region(c.LiveSpeechRegion), c.LiveSpeechAPIKey, opts...)
}

func (c *Config) Validate() error {
	var errs []error
	if c.ServerAddr == "" {
		errs = append(errs, errors.New("SERVER_ADDR must not be empty"))
	}
	if c.WSRateLimit <= 0 || c.WSRateBurst <= 0 {
		errs = append(errs, errors.New("WS_RATE_LIMIT and WS_RATE_BURST must be positive"))
	}
	if _, err := c.UpstreamConfig(); err != nil {
		errs = append(errs, fmt.Errorf("livespeech: %w", err))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
