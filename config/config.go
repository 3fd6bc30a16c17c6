package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"lms-agent/model"
)

type Config struct {
	Server      ServerConfig                  `yaml:"server"`
	Logger      LoggerConfig                  `yaml:"logger"`
	Tracer      TracerConfig                  `yaml:"tracer"`
	Redis       RedisConfig                   `yaml:"redis"`
	Classifier  ClassifierConfig              `yaml:"classifier"`
	LMS         LMSConfig                     `yaml:"lms"`
	RateLimits  map[model.Role]RateLimitRule  `yaml:"rate_limits"`
	Limiter     LimiterConfig                 `yaml:"limiter"`
	Permissions map[model.Role][]model.Intent `yaml:"permissions"`
	Dispatch    DispatchConfig                `yaml:"dispatch"`
	Validation  ValidationConfig              `yaml:"validation"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	Debug          bool     `yaml:"debug"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

type ClassifierConfig struct {
	BaseURL             string        `yaml:"base_url"`
	Timeout             time.Duration `yaml:"timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	Breaker             BreakerConfig `yaml:"breaker"`
}

type LMSConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// RateLimitRule is one row of the per-role token bucket table.
type RateLimitRule struct {
	Capacity        int     `yaml:"capacity"`
	RefillPerSecond float64 `yaml:"refill_per_second"`
}

type LimiterConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type DispatchConfig struct {
	DestructiveIntents []model.Intent `yaml:"destructive_intents"`
	ConfirmationTTL    time.Duration  `yaml:"confirmation_ttl"`
	HistoryLimit       int            `yaml:"history_limit"`
	FuzzyThreshold     float64        `yaml:"fuzzy_threshold"`
	TieMargin          float64        `yaml:"tie_margin"`
	SweepInterval      time.Duration  `yaml:"sweep_interval"`
}

type ValidationConfig struct {
	MaxMessageLength int `yaml:"max_message_length"`
	MaxRepeatedRun   int `yaml:"max_repeated_run"`
}

// Default returns the built-in configuration. Files loaded by Load are merged over it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodyBytes: 16 << 10,
		},
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Exporter: "noop"},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "lms-agent:session:",
			TTL:       24 * time.Hour,
		},
		Classifier: ClassifierConfig{
			BaseURL:             "http://127.0.0.1:8000",
			Timeout:             10 * time.Second,
			ConfidenceThreshold: 0.6,
		},
		LMS: LMSConfig{
			BaseURL: "http://127.0.0.1:9000",
			Timeout: 15 * time.Second,
		},
		RateLimits: map[model.Role]RateLimitRule{
			model.RoleSuperAdmin:  {Capacity: 60, RefillPerSecond: 1},
			model.RolePowerUser:   {Capacity: 40, RefillPerSecond: 0.5},
			model.RoleUserManager: {Capacity: 30, RefillPerSecond: 0.5},
			model.RoleUser:        {Capacity: 20, RefillPerSecond: 0.2},
		},
		Limiter: LimiterConfig{
			IdleTTL:       10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Permissions: map[model.Role][]model.Intent{
			model.RoleSuperAdmin: {
				model.IntentGetUserEnrollments,
				model.IntentEnrollUsers,
				model.IntentEnrollGroups,
				model.IntentUnenrollUsers,
				model.IntentUpdateEnrollments,
				model.IntentGetEnrollmentStats,
				model.IntentSearchUsers,
				model.IntentSearchCourses,
				model.IntentSearchLearningPlans,
				model.IntentSearchSessions,
				model.IntentSearchGroups,
			},
			model.RolePowerUser: {
				model.IntentGetUserEnrollments,
				model.IntentEnrollUsers,
				model.IntentUpdateEnrollments,
				model.IntentGetEnrollmentStats,
				model.IntentSearchUsers,
				model.IntentSearchCourses,
				model.IntentSearchLearningPlans,
				model.IntentSearchSessions,
				model.IntentSearchGroups,
			},
			model.RoleUserManager: {
				model.IntentGetUserEnrollments,
				model.IntentGetEnrollmentStats,
				model.IntentSearchUsers,
				model.IntentSearchCourses,
				model.IntentSearchGroups,
			},
			model.RoleUser: {
				model.IntentGetUserEnrollments,
				model.IntentSearchCourses,
				model.IntentSearchLearningPlans,
				model.IntentSearchSessions,
			},
		},
		Dispatch: DispatchConfig{
			DestructiveIntents: []model.Intent{
				model.IntentEnrollUsers,
				model.IntentEnrollGroups,
				model.IntentUnenrollUsers,
				model.IntentUpdateEnrollments,
			},
			ConfirmationTTL: 5 * time.Minute,
			HistoryLimit:    10,
			FuzzyThreshold:  0.75,
			TieMargin:       0.05,
			SweepInterval:   time.Minute,
		},
		Validation: ValidationConfig{
			MaxMessageLength: 2000,
			MaxRepeatedRun:   40,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LMS_AGENT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LMS_AGENT_LMS_URL"); v != "" {
		cfg.LMS.BaseURL = v
	}
	if v := os.Getenv("LMS_AGENT_LMS_TOKEN"); v != "" {
		cfg.LMS.Token = v
	}
	if v := os.Getenv("LMS_AGENT_CLASSIFIER_URL"); v != "" {
		cfg.Classifier.BaseURL = v
	}
	if v := os.Getenv("LMS_AGENT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("LMS_AGENT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}
