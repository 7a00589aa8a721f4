package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/vango-go/mock-interview/pkg/interview/prompt"
	"github.com/vango-go/mock-interview/pkg/interview/score"
)

type Config struct {
	// ElevenLabs Conversational AI.
	AgentID             string        `env:"ELEVENLABS_AGENT_ID"`
	ElevenLabsAPIKey    string        `env:"ELEVENLABS_API_KEY"`
	ElevenLabsWSBaseURL string        `env:"ELEVENLABS_WS_BASE_URL"`
	ConnectTimeout      time.Duration `env:"MOCK_INTERVIEW_CONNECT_TIMEOUT" envDefault:"15s"`
	EndTimeout          time.Duration `env:"MOCK_INTERVIEW_END_TIMEOUT" envDefault:"5s"`

	// Interview policy.
	BaselineScore    int    `env:"MOCK_INTERVIEW_BASELINE_SCORE" envDefault:"50"`
	FirstMessage     string `env:"MOCK_INTERVIEW_FIRST_MESSAGE"`
	ScoringPolicy    string `env:"MOCK_INTERVIEW_SCORING_POLICY" envDefault:"mandatory"`
	FailingThreshold int    `env:"MOCK_INTERVIEW_FAILING_THRESHOLD" envDefault:"20"`
	PersonasFile     string `env:"MOCK_INTERVIEW_PERSONAS_FILE"`

	// Logging.
	LogLevel  string `env:"MOCK_INTERVIEW_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"MOCK_INTERVIEW_LOG_FORMAT" envDefault:"text"`

	// Gateway.
	Addr                string        `env:"MOCK_INTERVIEW_ADDR" envDefault:":8080"`
	APIKeys             []string      `env:"MOCK_INTERVIEW_API_KEYS" envSeparator:","`
	CORSAllowedOrigins  []string      `env:"MOCK_INTERVIEW_CORS_ORIGINS" envSeparator:","`
	ReadHeaderTimeout   time.Duration `env:"MOCK_INTERVIEW_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownGracePeriod time.Duration `env:"MOCK_INTERVIEW_SHUTDOWN_GRACE_PERIOD" envDefault:"30s"`
	WSWriteTimeout      time.Duration `env:"MOCK_INTERVIEW_WS_WRITE_TIMEOUT" envDefault:"5s"`
	WSMaxMessageBytes   int64         `env:"MOCK_INTERVIEW_WS_MAX_MESSAGE_BYTES" envDefault:"65536"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Existing variables win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.AgentID = strings.TrimSpace(cfg.AgentID)
	cfg.ElevenLabsAPIKey = strings.TrimSpace(cfg.ElevenLabsAPIKey)
	cfg.APIKeys = trimAll(cfg.APIKeys)
	cfg.CORSAllowedOrigins = trimAll(cfg.CORSAllowedOrigins)

	if cfg.BaselineScore < score.Min || cfg.BaselineScore > score.Max {
		return Config{}, fmt.Errorf("MOCK_INTERVIEW_BASELINE_SCORE must be between %d and %d", score.Min, score.Max)
	}
	if _, err := prompt.ParseScoringPolicy(cfg.ScoringPolicy); err != nil {
		return Config{}, fmt.Errorf("MOCK_INTERVIEW_SCORING_POLICY: %w", err)
	}
	if cfg.FailingThreshold < score.Min || cfg.FailingThreshold > score.Max {
		return Config{}, fmt.Errorf("MOCK_INTERVIEW_FAILING_THRESHOLD must be between %d and %d", score.Min, score.Max)
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("MOCK_INTERVIEW_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.EndTimeout <= 0 {
		return Config{}, fmt.Errorf("MOCK_INTERVIEW_END_TIMEOUT must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("MOCK_INTERVIEW_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("MOCK_INTERVIEW_LOG_FORMAT must be text or json")
	}
	return cfg, nil
}

// PromptPolicy returns the prompt constants selected by the environment.
func (c Config) PromptPolicy() prompt.Policy {
	scoring, err := prompt.ParseScoringPolicy(c.ScoringPolicy)
	if err != nil {
		scoring = prompt.ScoringMandatory
	}
	return prompt.Policy{
		Scoring:          scoring,
		FailingThreshold: c.FailingThreshold,
		ToolName:         prompt.DefaultPolicy.ToolName,
	}
}

// APIKeySet returns the gateway keys as a set. An empty set disables the gate.
func (c Config) APIKeySet() map[string]struct{} {
	out := make(map[string]struct{}, len(c.APIKeys))
	for _, k := range c.APIKeys {
		out[k] = struct{}{}
	}
	return out
}

func (c Config) OriginSet() map[string]struct{} {
	out := make(map[string]struct{}, len(c.CORSAllowedOrigins))
	for _, o := range c.CORSAllowedOrigins {
		out[o] = struct{}{}
	}
	return out
}

func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("MOCK_INTERVIEW_LOG_LEVEL must be debug, info, warn or error")
	}
	return level, nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
