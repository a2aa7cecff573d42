// Package config provides application configuration loaded from an optional
// YAML file, a .env file and environment variables, with defaults and
// validation. It centralizes bot settings such as Discord identifiers,
// thread behavior, attachment storage, the database, the HTTP server and
// observability.
//
// Precedence (lowest to highest): defaults, YAML file, environment. The
// YAML file is decoded strictly; an unknown key is a startup error.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ThreadsConfig controls thread creation, relaying and scheduling.
type ThreadsConfig struct {
	// MentionRole lists what to ping when a thread opens: "here",
	// "everyone", or role ids. Empty disables the ping.
	MentionRole []string `yaml:"mention_role"`

	ResponseMessage string `yaml:"response_message"` // auto-response DM; empty disables
	CloseMessage    string `yaml:"close_message"`    // DM sent to the user on non-silent close
	BlockedReply    string `yaml:"blocked_reply"`    // DM sent to blocked users; empty = silent
	UpdateNotice    string `yaml:"update_notice"`    // posted in every new thread when set

	AlwaysReply      bool   `yaml:"always_reply"`       // relay any staff message as a reply
	AlwaysReplyAnon  bool   `yaml:"always_reply_anon"`  // ...anonymously
	UseNicknames     bool   `yaml:"use_nicknames"`      // staff display name = guild nickname
	FallbackRoleName string `yaml:"fallback_role_name"` // shown when staff has no hoisted role

	RequiredAccountAge        time.Duration `yaml:"required_account_age"`     // 0 disables
	AccountAgeDeniedMessage   string        `yaml:"account_age_denied_message"`
	RequiredTimeOnServer      time.Duration `yaml:"required_time_on_server"` // 0 disables
	TimeOnServerDeniedMessage string        `yaml:"time_on_server_denied_message"`

	MessageLimit                       int   `yaml:"message_limit"` // per-message character limit
	RelaySmallAttachmentsAsAttachments bool  `yaml:"relay_small_attachments_as_attachments"`
	SmallAttachmentLimit               int64 `yaml:"small_attachment_limit"` // bytes

	ChannelNameMaxLen int `yaml:"channel_name_max_len"`

	QueueTimeout  time.Duration `yaml:"queue_timeout"`  // per-task dispatch timeout
	SweepInterval time.Duration `yaml:"sweep_interval"` // scheduled action poll period
}

// AttachmentsConfig selects and configures the attachment backend.
type AttachmentsConfig struct {
	Storage          string `yaml:"storage"`            // local|discord|gcs
	Dir              string `yaml:"dir"`                // local backend directory
	StorageChannelID string `yaml:"storage_channel_id"` // discord backend channel
	MaxUploadBytes   int64  `yaml:"max_upload_bytes"`   // discord backend cap
	Attempts         int    `yaml:"attempts"`           // download/upload attempts

	GCSBucket          string `yaml:"gcs_bucket"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
	GCSPublicBaseURL   string `yaml:"gcs_public_base_url"`
}

// DBConfig selects the relational store.
type DBConfig struct {
	Driver string `yaml:"driver"` // sqlite|postgres
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres DSN
}

// HTTPConfig defines the log/attachment web server.
type HTTPConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Port              string        `yaml:"port"`
	URL               string        `yaml:"url"` // public base URL, no trailing slash
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	GinMode           string        `yaml:"gin_mode"`
	RateRPS           float64       `yaml:"rate_rps"`
	RateBurst         int           `yaml:"rate_burst"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	EnableHSTS        bool          `yaml:"enable_hsts"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `yaml:"enabled"`      // OTEL_ENABLED
	Endpoint    string  `yaml:"endpoint"`     // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    `yaml:"insecure"`     // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  `yaml:"service_name"` // OTEL_SERVICE_NAME
	SampleRatio float64 `yaml:"sample_ratio"` // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Discord
	Token        string   `yaml:"token"`
	MainGuildIDs []string `yaml:"main_guild_ids"`
	InboxGuildID string   `yaml:"inbox_guild_id"`
	CategoryID   string   `yaml:"category_id"`
	LogChannelID string   `yaml:"log_channel_id"`

	// Commands
	Prefix            string `yaml:"prefix"`
	SnippetPrefix     string `yaml:"snippet_prefix"`
	SnippetPrefixAnon string `yaml:"snippet_prefix_anon"`

	// Logging
	LogLevel  string `yaml:"log_level"`  // debug|info|warn|error|fatal|panic
	LogPretty bool   `yaml:"log_pretty"` // pretty console logs in dev

	Threads     ThreadsConfig     `yaml:"threads"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	DB          DBConfig          `yaml:"db"`
	HTTP        HTTPConfig        `yaml:"http"`
	OTEL        OTELConfig        `yaml:"otel"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Prefix:            "!",
		SnippetPrefix:     "!!",
		SnippetPrefixAnon: "!!!",
		LogLevel:          "info",

		Threads: ThreadsConfig{
			MentionRole:                        []string{"here"},
			ResponseMessage:                    "Thank you for your message! Our mod team will reply to you here as soon as possible.",
			FallbackRoleName:                   "Moderator",
			AccountAgeDeniedMessage:            "Your Discord account is not old enough to contact modmail.",
			TimeOnServerDeniedMessage:          "You haven't been a member of the server for long enough to contact modmail.",
			MessageLimit:                       2000,
			RelaySmallAttachmentsAsAttachments: true,
			SmallAttachmentLimit:               2 * 1024 * 1024,
			ChannelNameMaxLen:                  100,
			QueueTimeout:                       10 * time.Second,
			SweepInterval:                      2 * time.Second,
		},
		Attachments: AttachmentsConfig{
			Storage:        "local",
			Dir:            "attachments",
			MaxUploadBytes: 8 * 1024 * 1024,
			Attempts:       3,
		},
		DB: DBConfig{
			Driver: "sqlite",
			Path:   "modmail.db",
		},
		HTTP: HTTPConfig{
			Enabled:           true,
			Port:              "8890",
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      20 * time.Second,
			IdleTimeout:       60 * time.Second,
			GinMode:           "release",
			RateRPS:           5.0,
			RateBurst:         10,
		},
		OTEL: OTELConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "go-modmail",
			SampleRatio: 1.0,
		},
	}
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the YAML file at path (optional when empty), applies
// environment overrides, normalizes values, and validates the result.
func Load(path string) (Config, error) {
	// A missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeStrict(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)

	// --- normalization ---
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.HTTP.GinMode = strings.ToLower(cfg.HTTP.GinMode)
	switch cfg.HTTP.GinMode {
	case "debug", "release", "test":
	default:
		cfg.HTTP.GinMode = "release"
	}
	cfg.HTTP.URL = strings.TrimRight(strings.TrimSpace(cfg.HTTP.URL), "/")
	if cfg.HTTP.URL == "" {
		cfg.HTTP.URL = "http://localhost:" + cfg.HTTP.Port
	}
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	cfg.Attachments.Storage = strings.ToLower(strings.TrimSpace(cfg.Attachments.Storage))

	return cfg, validate(cfg)
}

func decodeStrict(raw []byte, cfg *Config) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func applyEnv(cfg *Config) {
	// Discord
	cfg.Token = getenv("DISCORD_TOKEN", cfg.Token)
	cfg.MainGuildIDs = getcsv("MAIN_GUILD_IDS", cfg.MainGuildIDs)
	cfg.InboxGuildID = getenv("INBOX_GUILD_ID", cfg.InboxGuildID)
	cfg.CategoryID = getenv("CATEGORY_ID", cfg.CategoryID)
	cfg.LogChannelID = getenv("LOG_CHANNEL_ID", cfg.LogChannelID)
	cfg.Prefix = getenv("PREFIX", cfg.Prefix)

	// Logging
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = getbool("LOG_PRETTY", cfg.LogPretty)

	// Threads
	cfg.Threads.MentionRole = getcsv("MENTION_ROLE", cfg.Threads.MentionRole)
	cfg.Threads.ResponseMessage = getenv("RESPONSE_MESSAGE", cfg.Threads.ResponseMessage)
	cfg.Threads.RequiredAccountAge = getdur("REQUIRED_ACCOUNT_AGE", cfg.Threads.RequiredAccountAge)
	cfg.Threads.RequiredTimeOnServer = getdur("REQUIRED_TIME_ON_SERVER", cfg.Threads.RequiredTimeOnServer)
	cfg.Threads.QueueTimeout = getdur("QUEUE_TIMEOUT", cfg.Threads.QueueTimeout)
	cfg.Threads.SweepInterval = getdur("SWEEP_INTERVAL", cfg.Threads.SweepInterval)

	// Attachments
	cfg.Attachments.Storage = getenv("ATTACHMENT_STORAGE", cfg.Attachments.Storage)
	cfg.Attachments.Dir = getenv("ATTACHMENT_DIR", cfg.Attachments.Dir)
	cfg.Attachments.StorageChannelID = getenv("ATTACHMENT_STORAGE_CHANNEL_ID", cfg.Attachments.StorageChannelID)
	cfg.Attachments.GCSBucket = getenv("GCS_BUCKET", cfg.Attachments.GCSBucket)
	cfg.Attachments.GCSCredentialsFile = getenv("GCS_CREDENTIALS_FILE", cfg.Attachments.GCSCredentialsFile)

	// Database
	cfg.DB.Driver = getenv("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Path = getenv("DB_PATH", cfg.DB.Path)
	cfg.DB.DSN = getenv("DB_DSN", cfg.DB.DSN)

	// HTTP
	cfg.HTTP.Enabled = getbool("HTTP_ENABLED", cfg.HTTP.Enabled)
	cfg.HTTP.Port = getenv("PORT", cfg.HTTP.Port)
	cfg.HTTP.URL = getenv("URL", cfg.HTTP.URL)
	cfg.HTTP.GinMode = getenv("GIN_MODE", cfg.HTTP.GinMode)
	cfg.HTTP.RateRPS = getfloat("RATE_RPS", cfg.HTTP.RateRPS)
	cfg.HTTP.RateBurst = getint("RATE_BURST", cfg.HTTP.RateBurst)
	cfg.HTTP.CORSOrigins = getcsv("CORS_ALLOWED_ORIGINS", cfg.HTTP.CORSOrigins)
	cfg.HTTP.EnableHSTS = getbool("ENABLE_HSTS", cfg.HTTP.EnableHSTS)

	// Observability (OpenTelemetry)
	cfg.OTEL.Enabled = getbool("OTEL_ENABLED", cfg.OTEL.Enabled)
	cfg.OTEL.Endpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTEL.Endpoint)
	cfg.OTEL.Insecure = getbool("OTEL_EXPORTER_OTLP_INSECURE", cfg.OTEL.Insecure)
	cfg.OTEL.ServiceName = getenv("OTEL_SERVICE_NAME", cfg.OTEL.ServiceName)
	cfg.OTEL.SampleRatio = getfloat("OTEL_TRACES_SAMPLER_ARG", cfg.OTEL.SampleRatio)
}

func validate(cfg Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return errors.New("DISCORD_TOKEN must not be empty")
	}
	if strings.TrimSpace(cfg.InboxGuildID) == "" {
		return errors.New("INBOX_GUILD_ID must not be empty")
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		return errors.New("PREFIX must not be empty")
	}
	if cfg.Threads.MessageLimit < 1 {
		return errors.New("threads.message_limit must be >= 1")
	}
	if cfg.Threads.ChannelNameMaxLen < 1 || cfg.Threads.ChannelNameMaxLen > 100 {
		return errors.New("threads.channel_name_max_len must be in [1,100]")
	}
	if cfg.Threads.RequiredAccountAge < 0 || cfg.Threads.RequiredTimeOnServer < 0 {
		return errors.New("admission requirements must be >= 0")
	}
	if cfg.Threads.QueueTimeout <= 0 || cfg.Threads.SweepInterval <= 0 {
		return errors.New("QUEUE_TIMEOUT and SWEEP_INTERVAL must be positive durations")
	}
	if cfg.Threads.SmallAttachmentLimit < 0 {
		return errors.New("threads.small_attachment_limit must be >= 0")
	}
	switch cfg.Attachments.Storage {
	case "local":
		if strings.TrimSpace(cfg.Attachments.Dir) == "" {
			return errors.New("ATTACHMENT_DIR must not be empty for local storage")
		}
	case "discord":
		if strings.TrimSpace(cfg.Attachments.StorageChannelID) == "" {
			return errors.New("ATTACHMENT_STORAGE_CHANNEL_ID must be set for discord storage")
		}
	case "gcs":
		if strings.TrimSpace(cfg.Attachments.GCSBucket) == "" {
			return errors.New("GCS_BUCKET must be set for gcs storage")
		}
	default:
		return errors.New("ATTACHMENT_STORAGE must be one of: local, discord, gcs")
	}
	if cfg.Attachments.Attempts < 1 {
		return errors.New("attachments.attempts must be >= 1")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return errors.New("DB_DSN must not be empty for postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.HTTP.ReadHeaderTimeout <= 0 || cfg.HTTP.WriteTimeout <= 0 || cfg.HTTP.IdleTimeout <= 0 {
		return errors.New("http timeouts must be positive durations")
	}
	if cfg.HTTP.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.HTTP.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// ---- helpers (def is the value already in effect) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getcsv(k string, def []string) []string {
	if v, ok := os.LookupEnv(k); ok {
		return splitCSV(v)
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
