package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultAdminPassword is accepted but logged as a warning at startup.
const DefaultAdminPassword = "admin123"

type Config struct {
	App           App           `toml:"app"`
	Auth          Auth          `toml:"auth"`
	Database      Database      `toml:"database"`
	Transcription Transcription `toml:"transcription"`
	LLM           LLM           `toml:"llm"`
	Dedup         Dedup         `toml:"dedup"`
	Sessions      Sessions      `toml:"sessions"`
}

type App struct {
	Env      string `toml:"env"`
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
}

type Auth struct {
	AdminPassword string `toml:"admin_password"`
	// AdminPasswordHash is a bcrypt hash; when set it replaces AdminPassword.
	AdminPasswordHash string   `toml:"admin_password_hash"`
	SessionSecret     string   `toml:"session_secret"`
	SessionTTL        Duration `toml:"session_ttl"`
}

type Database struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"driver"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `toml:"dsn"`
}

type Transcription struct {
	URL     string   `toml:"url"`
	APIKey  string   `toml:"api_key"`
	Model   string   `toml:"model"`
	Timeout Duration `toml:"timeout"`
	Retries int      `toml:"retries"`
	Mock    bool     `toml:"mock"`
}

type LLM struct {
	URL          string   `toml:"url"`
	APIKey       string   `toml:"api_key"`
	Model        string   `toml:"model"`
	Timeout      Duration `toml:"timeout"`
	MaxRetryTime Duration `toml:"max_retry_time"`
	Mock         bool     `toml:"mock"`
}

type Dedup struct {
	Threshold  float64  `toml:"threshold"`
	WindowSize int      `toml:"window_size"`
	MaxAge     Duration `toml:"window_max_age"`
}

type Sessions struct {
	TTL Duration `toml:"ttl"`
}

// Duration reads "90s" style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func dur(d time.Duration) Duration { return Duration{Duration: d} }

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		App: App{Env: "local", Port: 8080, LogLevel: "info"},
		Auth: Auth{
			AdminPassword: DefaultAdminPassword,
			SessionTTL:    dur(12 * time.Hour),
		},
		Database: Database{Driver: "sqlite", DSN: "calls.db"},
		Transcription: Transcription{
			URL:     "https://api.groq.com/openai/v1/audio/transcriptions",
			Model:   "whisper-large-v3",
			Timeout: dur(120 * time.Second),
			Retries: 2,
		},
		LLM: LLM{
			URL:          "https://api.groq.com/openai/v1/chat/completions",
			Model:        "llama-3.1-8b-instant",
			Timeout:      dur(25 * time.Second),
			MaxRetryTime: dur(45 * time.Second),
		},
		Dedup:    Dedup{Threshold: 0.6, WindowSize: 50},
		Sessions: Sessions{TTL: dur(2 * time.Hour)},
	}
}

// Load reads .env (if present), then the optional TOML file at path, then
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	setString(&c.App.Env, "ENVIRONMENT")
	setString(&c.App.LogLevel, "LOG_LEVEL")
	errs = appendErr(errs, setInt(&c.App.Port, "PORT"))

	setString(&c.Auth.AdminPassword, "APP_ADMIN_PASSWORD")
	setString(&c.Auth.AdminPasswordHash, "APP_ADMIN_PASSWORD_HASH")
	setString(&c.Auth.SessionSecret, "SESSION_SECRET")
	errs = appendErr(errs, setDuration(&c.Auth.SessionTTL.Duration, "SESSION_TTL"))

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DATABASE_URL")

	setString(&c.Transcription.URL, "TRANSCRIBE_URL")
	setString(&c.Transcription.APIKey, "TRANSCRIBE_API_KEY")
	setString(&c.Transcription.Model, "TRANSCRIBE_MODEL")
	errs = appendErr(errs, setDuration(&c.Transcription.Timeout.Duration, "TRANSCRIBE_TIMEOUT"))
	errs = appendErr(errs, setInt(&c.Transcription.Retries, "TRANSCRIBE_RETRIES"))
	errs = appendErr(errs, setBool(&c.Transcription.Mock, "USE_MOCK_TRANSCRIBE"))

	setString(&c.LLM.URL, "LLM_GATEWAY_URL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.Model, "LLM_MODEL")
	errs = appendErr(errs, setDuration(&c.LLM.Timeout.Duration, "LLM_TIMEOUT"))
	errs = appendErr(errs, setDuration(&c.LLM.MaxRetryTime.Duration, "LLM_MAX_RETRY_TIME"))
	errs = appendErr(errs, setBool(&c.LLM.Mock, "USE_MOCK_LLM"))

	// A shared Groq key serves both capabilities when the specific ones are unset.
	if groq := strings.TrimSpace(os.Getenv("GROQ_API_KEY")); groq != "" {
		if c.Transcription.APIKey == "" {
			c.Transcription.APIKey = groq
		}
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = groq
		}
	}

	errs = appendErr(errs, setFloat(&c.Dedup.Threshold, "DEDUP_THRESHOLD"))
	errs = appendErr(errs, setInt(&c.Dedup.WindowSize, "DEDUP_WINDOW_SIZE"))
	errs = appendErr(errs, setDuration(&c.Dedup.MaxAge.Duration, "DEDUP_WINDOW_MAX_AGE"))

	errs = appendErr(errs, setDuration(&c.Sessions.TTL.Duration, "REVIEW_SESSION_TTL"))

	return errors.Join(errs...)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid port, got %d", c.App.Port))
	}
	if c.Auth.AdminPassword == "" && c.Auth.AdminPasswordHash == "" {
		errs = append(errs, errors.New("APP_ADMIN_PASSWORD or APP_ADMIN_PASSWORD_HASH must be set"))
	}
	if c.Auth.SessionTTL.Duration <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if !c.Transcription.Mock && c.Transcription.URL == "" {
		errs = append(errs, errors.New("TRANSCRIBE_URL is required unless USE_MOCK_TRANSCRIBE=true"))
	}
	if !c.LLM.Mock && c.LLM.URL == "" {
		errs = append(errs, errors.New("LLM_GATEWAY_URL is required unless USE_MOCK_LLM=true"))
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		errs = append(errs, fmt.Errorf("DEDUP_THRESHOLD must be in (0,1], got %v", c.Dedup.Threshold))
	}
	if c.Dedup.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("DEDUP_WINDOW_SIZE must be positive, got %d", c.Dedup.WindowSize))
	}
	if c.Dedup.MaxAge.Duration < 0 {
		errs = append(errs, errors.New("DEDUP_WINDOW_MAX_AGE must not be negative"))
	}
	if c.Sessions.TTL.Duration <= 0 {
		errs = append(errs, errors.New("REVIEW_SESSION_TTL must be positive"))
	}

	return errors.Join(errs...)
}

// UsesDefaultPassword reports whether the gate still uses the shipped password.
func (c Config) UsesDefaultPassword() bool {
	return c.Auth.AdminPasswordHash == "" && c.Auth.AdminPassword == DefaultAdminPassword
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s must be a number: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s must be true or false: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be a duration: %w", key, err)
	}
	*dst = d
	return nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
