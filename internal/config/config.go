package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string
	LogLevel string

	ServiceBaseURL        string
	ServiceTimeout        time.Duration
	ServiceRateLimitRPS   float64
	ServiceRateLimitBurst int
	RetryMaxAttempts      int
	BreakerEnabled        bool

	PollMaxAttempts int
	PollInterval    time.Duration

	UploadMaxBytes int64

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration

	EventsEnabled bool
	NATSURL       string
	NATSSubject   string

	// ConfigFile is the YAML overlay that was applied, if any.
	ConfigFile string
}

// Load reads the configuration from the environment. When CONFIG_FILE names a
// YAML file its keys, spelled like the environment variables, fill in values
// the environment leaves unset.
func Load() (Config, error) {
	src := source{}
	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path != "" {
		file, err := readOverlay(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}

	return Config{
		APIPort:  src.mustEnv("API_PORT", "8080"),
		LogLevel: src.mustEnv("LOG_LEVEL", "info"),

		ServiceBaseURL:        src.mustEnv("SERVICE_BASE_URL", "http://localhost:8000/api"),
		ServiceTimeout:        src.mustEnvDuration("SERVICE_TIMEOUT", 120*time.Second),
		ServiceRateLimitRPS:   src.mustEnvFloat("SERVICE_RATE_LIMIT_RPS", 0),
		ServiceRateLimitBurst: src.mustEnvInt("SERVICE_RATE_LIMIT_BURST", 1),
		RetryMaxAttempts:      src.mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		BreakerEnabled:        src.mustEnvBool("BREAKER_ENABLED", true),

		PollMaxAttempts: src.mustEnvInt("POLL_MAX_ATTEMPTS", 20),
		PollInterval:    src.mustEnvDuration("POLL_INTERVAL", 3*time.Second),

		UploadMaxBytes: int64(src.mustEnvInt("UPLOAD_MAX_BYTES", 50<<20)),

		APIRateLimitRPS:     src.mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:   src.mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIMaxInFlight:      src.mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIBackpressureWait: src.mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),

		EventsEnabled: src.mustEnvBool("EVENTS_ENABLED", false),
		NATSURL:       src.mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubject:   src.mustEnv("NATS_SUBJECT", "workflow.events"),

		ConfigFile: path,
	}, nil
}

func readOverlay(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		out[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return out, nil
}

// source resolves a key from the environment first, then from the overlay.
type source struct {
	file map[string]string
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("3s") and bare integers as seconds.
func (s source) mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
