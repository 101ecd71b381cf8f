// Package config provides configuration loading and validation for the evaluator.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jonathan/job-evaluator/internal/gatekeeper"
	"github.com/jonathan/job-evaluator/internal/llm"
	"github.com/jonathan/job-evaluator/internal/stages"
)

// AppName is the config file base name and the binary name
const AppName = "eval_agent"

// EnvPrefix prefixes environment overrides, e.g. EVAL_STORE_BACKEND
const EnvPrefix = "EVAL"

// Store backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the evaluator configuration. Values come from defaults, then the
// config file, then environment variables, then bound command flags.
type Config struct {
	Store      StoreConfig        `mapstructure:"store"`
	LLM        llm.Config         `mapstructure:"llm"`
	Retry      stages.RetryPolicy `mapstructure:"retry"`
	Gatekeeper gatekeeper.Config  `mapstructure:"gatekeeper"`
	Server     ServerConfig       `mapstructure:"server"`
	Auth       AuthConfig         `mapstructure:"auth"`
	Log        LogConfig          `mapstructure:"log"`

	// GeminiAPIKey is read from GEMINI_API_KEY
	GeminiAPIKey string `mapstructure:"gemini_api_key" json:"-"`
	// PipelineFile optionally points at a pipeline override (pipeline.json)
	PipelineFile string `mapstructure:"pipeline_file" validate:"omitempty,endswith=.json"`
	// UseBrowser renders job postings in a headless browser
	UseBrowser bool `mapstructure:"use_browser"`
}

// StoreConfig selects and configures the run state store
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=memory sqlite postgres"`
	// Path is the SQLite database file
	Path string `mapstructure:"path"`
	// DatabaseURL is the PostgreSQL connection URL, read from DATABASE_URL
	DatabaseURL string `mapstructure:"database_url" json:"-"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
	// Workers bounds how many runs the server continues concurrently
	Workers         int           `mapstructure:"workers" validate:"gte=1,lte=64"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// RecoverInterval is how often pending runs are swept up; 0 sweeps only at startup
	RecoverInterval time.Duration `mapstructure:"recover_interval" validate:"gte=0"`
}

// AuthConfig configures bearer-token authentication of mutating routes
type AuthConfig struct {
	// JWTSecret enables authentication when set
	JWTSecret       string `mapstructure:"jwt_secret" json:"-"`
	ExpirationHours int    `mapstructure:"expiration_hours" validate:"gte=1"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendSQLite,
			Path:    "eval_agent.db",
		},
		LLM:        *llm.DefaultConfig(),
		Retry:      stages.DefaultRetryPolicy(),
		Gatekeeper: gatekeeper.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8080",
			Workers:         4,
			ShutdownTimeout: 30 * time.Second,
			RecoverInterval: time.Minute,
		},
		Auth: AuthConfig{ExpirationHours: 24},
	}
}

// NewViper returns a viper instance with defaults and environment bindings
// registered. Callers may bind flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// conventional names win over the prefixed ones
	_ = v.BindEnv("store.database_url", "DATABASE_URL", EnvPrefix+"_STORE_DATABASE_URL")
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY", EnvPrefix+"_GEMINI_API_KEY")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET", EnvPrefix+"_AUTH_JWT_SECRET")
	return v
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.database_url", "")

	v.SetDefault("llm.provider", string(d.LLM.Provider))
	for tier, model := range d.LLM.Models {
		v.SetDefault("llm.models."+string(tier), model)
	}
	v.SetDefault("llm.temperature", d.LLM.Temperature)

	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.timeout", d.Retry.Timeout)
	v.SetDefault("retry.backoff_base", d.Retry.BackoffBase)
	v.SetDefault("retry.backoff_max", d.Retry.BackoffMax)

	g := d.Gatekeeper
	v.SetDefault("gatekeeper.weights.met", g.Weights.Met)
	v.SetDefault("gatekeeper.weights.partial", g.Weights.Partial)
	v.SetDefault("gatekeeper.weights.missing", g.Weights.Missing)
	v.SetDefault("gatekeeper.thresholds.excellent_floor", g.Thresholds.ExcellentFloor)
	v.SetDefault("gatekeeper.thresholds.good_floor", g.Thresholds.GoodFloor)
	v.SetDefault("gatekeeper.thresholds.reject_ceiling", g.Thresholds.RejectCeiling)
	v.SetDefault("gatekeeper.red_flag_limit", g.RedFlagLimit)
	v.SetDefault("gatekeeper.criteria.min_compensation", g.Criteria.MinCompensation)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.recover_interval", d.Server.RecoverInterval)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.expiration_hours", d.Auth.ExpirationHours)

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)

	v.SetDefault("gemini_api_key", "")
	v.SetDefault("pipeline_file", "")
	v.SetDefault("use_browser", false)
}

// Load reads the configuration. An explicit path must exist; without one,
// eval_agent.yaml is looked up in the working directory and is optional.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// lists have no per-key defaults; fall back only when the file omits them
	if !v.IsSet("gatekeeper.red_flag_patterns") {
		cfg.Gatekeeper.RedFlagPatterns = gatekeeper.DefaultPatterns()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks that the configuration has valid values. Credentials that
// only some commands need are checked by those commands.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := c.Gatekeeper.Validate(); err != nil {
		return fmt.Errorf("config error: gatekeeper: %w", err)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config error: 'llm.temperature' must be within [0, 2]")
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("config error: 'store.path' is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config error: DATABASE_URL is required for the postgres backend")
		}
	}
	return nil
}

// RequireAPIKey reports a helpful error when no Gemini key is configured
func (c *Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required but not set")
	}
	return nil
}
