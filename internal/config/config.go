// Package config resolves the runtime configuration from environment
// variables.
//
// Every collaborator except the language model is optional. A group of
// variables (Twilio, S3, the realtime database) is either fully set, which
// enables that integration, or fully unset. A half-configured group is a
// startup error rather than a surprise at the first request.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port   int
	DBPath string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	LLMTimeout    time.Duration

	CodeTTL  time.Duration
	RedisURL string

	Twilio   TwilioConfig
	Firebase FirebaseConfig
	S3       S3Config

	CORSAllowedOrigins   []string
	ExposeUpstreamErrors bool

	LogLevel  string
	LogFormat string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// Enabled reports whether SMS delivery is configured.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != ""
}

type FirebaseConfig struct {
	DatabaseURL string
	KeyPath     string // service-account JSON
}

// Enabled reports whether the realtime database is configured.
func (f FirebaseConfig) Enabled() bool {
	return f.DatabaseURL != "" && f.KeyPath != ""
}

type S3Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
}

// Enabled reports whether object storage is configured. Region, Bucket and
// PublicBaseURL have defaults and do not count.
func (s S3Config) Enabled() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != ""
}

// Defaults returns the configuration used when no variable is set.
func Defaults() Config {
	return Config{
		Port:               8080,
		DBPath:             "data/spanisami.db",
		OpenAIModel:        "gpt-5.1",
		LLMTimeout:         60 * time.Second,
		CodeTTL:            5 * time.Minute,
		S3:                 S3Config{Region: "us-east-1", Bucket: "uploads"},
		CORSAllowedOrigins: []string{"*"},
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads the configuration through getenv (os.Getenv in main, a map in
// tests) on top of Defaults and validates the result.
func Load(getenv func(string) string) (Config, error) {
	cfg := Defaults()
	env := envReader{getenv: getenv}

	cfg.Port = env.int("PORT", cfg.Port)
	cfg.DBPath = env.str("DB_PATH", cfg.DBPath)

	cfg.OpenAIAPIKey = env.str("OPENAI_API_KEY", "")
	cfg.OpenAIModel = env.str("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = env.str("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.LLMTimeout = env.duration("LLM_TIMEOUT", cfg.LLMTimeout)

	cfg.CodeTTL = env.duration("CODE_TTL", cfg.CodeTTL)
	cfg.RedisURL = env.str("REDIS_URL", "")

	cfg.Twilio = TwilioConfig{
		AccountSID: env.str("TWILIO_ACCOUNT_SID", ""),
		AuthToken:  env.str("TWILIO_AUTH_TOKEN", ""),
		FromNumber: env.str("TWILIO_FROM_NUMBER", ""),
	}
	cfg.Firebase = FirebaseConfig{
		DatabaseURL: env.str("FIREBASE_DATABASE_URL", ""),
		KeyPath:     env.str("FIREBASE_KEY_PATH", ""),
	}
	cfg.S3 = S3Config{
		Endpoint:      env.str("S3_ENDPOINT", ""),
		Region:        env.str("S3_REGION", cfg.S3.Region),
		AccessKey:     env.str("S3_ACCESS_KEY", ""),
		SecretKey:     env.str("S3_SECRET_KEY", ""),
		Bucket:        env.str("S3_BUCKET", cfg.S3.Bucket),
		PublicBaseURL: env.str("S3_PUBLIC_BASE_URL", ""),
	}

	cfg.CORSAllowedOrigins = env.csv("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.ExposeUpstreamErrors = env.bool("EXPOSE_UPSTREAM_ERRORS", false)
	cfg.LogLevel = strings.ToLower(env.str("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(env.str("LOG_FORMAT", cfg.LogFormat))

	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks required values and the all-or-nothing groups.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.CodeTTL <= 0 {
		return fmt.Errorf("CODE_TTL must be positive")
	}

	if err := allOrNothing("TWILIO_",
		c.Twilio.AccountSID, c.Twilio.AuthToken, c.Twilio.FromNumber); err != nil {
		return err
	}
	if err := allOrNothing("FIREBASE_",
		c.Firebase.DatabaseURL, c.Firebase.KeyPath); err != nil {
		return err
	}
	if err := allOrNothing("S3_",
		c.S3.Endpoint, c.S3.AccessKey, c.S3.SecretKey); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json; got %q", c.LogFormat)
	}
	return nil
}

func allOrNothing(prefix string, values ...string) error {
	set := 0
	for _, v := range values {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(values) {
		return fmt.Errorf("%s* variables are partially set: set all of them or none", prefix)
	}
	return nil
}

// envReader keeps the first parse error so Load can report it once.
type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) str(name, fallback string) string {
	if v := strings.TrimSpace(e.getenv(name)); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) int(name string, fallback int) int {
	raw := e.str(name, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(fmt.Errorf("%s: %q is not an integer", name, raw))
		return fallback
	}
	return v
}

// duration accepts Go durations ("90s", "2m") and bare seconds ("90").
func (e *envReader) duration(name string, fallback time.Duration) time.Duration {
	raw := e.str(name, "")
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(fmt.Errorf("%s: %q is not a duration", name, raw))
		return fallback
	}
	return d
}

func (e *envReader) bool(name string, fallback bool) bool {
	raw := e.str(name, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(fmt.Errorf("%s: %q is not a boolean", name, raw))
		return fallback
	}
	return v
}

func (e *envReader) csv(name string, fallback []string) []string {
	raw := e.str(name, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func (e *envReader) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
