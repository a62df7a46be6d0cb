package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"TutorChat/internal/backend"
)

const (
	ModeWeb     = "web"
	ModeConsole = "console"

	DefaultTitle        = "Chat with AI Tutor"
	DefaultGreeting     = "Hello! I'm your friendly AI Tutor. I can help answer your questions, provide information, or just chat. I'm also super fast! Let's start our conversation!"
	DefaultSystemPrompt = "You are a helpful AI assistant."
	DefaultMemoryLength = 10
)

// ErrMissingCredential means the selected backend needs an API key and none was supplied
var ErrMissingCredential = errors.New("missing provider credential")

// credentialEnv maps each backend to the environment variable holding its key
var credentialEnv = map[string]string{
	backend.BackendGroq:      "GROQ_API_KEY",
	backend.BackendOpenAI:    "OPENAI_API_KEY",
	backend.BackendGrok:      "GROK_API_KEY",
	backend.BackendAnthropic: "ANTHROPIC_API_KEY",
}

// Config holds application configuration
type Config struct {
	Mode         string `mapstructure:"mode"` // web | console
	Title        string `mapstructure:"title"`
	Greeting     string `mapstructure:"greeting"`
	SystemPrompt string `mapstructure:"system_prompt"`
	MemoryLength int    `mapstructure:"memory_length"` // turns replayed as model context

	Provider  ProviderConfig  `mapstructure:"provider"`
	Web       WebConfig       `mapstructure:"web"`
	Session   SessionConfig   `mapstructure:"session"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ProviderConfig selects the inference backend
type ProviderConfig struct {
	Backend string        `mapstructure:"backend"` // groq | openai | grok | anthropic | ollama
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WebConfig configures the HTTP presentation layer
type WebConfig struct {
	Addr         string  `mapstructure:"addr"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"` // 0 disables
}

// SessionConfig configures browser session lifetime
type SessionConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// CacheConfig configures the optional reply cache
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "" | memory | redis
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ArchiveConfig configures the optional SQLite transcript archive
type ArchiveConfig struct {
	Path string `mapstructure:"path"` // empty disables
}

// LogConfig configures structured logging
type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"` // debug | info | warn | error
}

// TelemetryConfig toggles OpenTelemetry export
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", ModeWeb)
	v.SetDefault("title", DefaultTitle)
	v.SetDefault("greeting", DefaultGreeting)
	v.SetDefault("system_prompt", DefaultSystemPrompt)
	v.SetDefault("memory_length", DefaultMemoryLength)

	v.SetDefault("provider.backend", backend.BackendGroq)
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.timeout", 60*time.Second)

	v.SetDefault("web.addr", ":8080")
	v.SetDefault("web.rate_limit_rps", 0)

	v.SetDefault("session.idle_timeout", 24*time.Hour)

	v.SetDefault("cache.type", "")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("archive.path", "")

	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")

	v.SetDefault("telemetry.enabled", true)
}

// Load reads configuration from defaults, an optional YAML file, TUTORCHAT_*
// environment variables and command-line flags, in increasing precedence.
// Flag names match config keys (e.g. "provider.backend").
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TUTORCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		if env, ok := credentialEnv[cfg.Provider.Backend]; ok {
			cfg.Provider.APIKey = os.Getenv(env)
		}
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = backend.DefaultModel(cfg.Provider.Backend)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the process must not start with
func (c *Config) Validate() error {
	if c.Mode != ModeWeb && c.Mode != ModeConsole {
		return fmt.Errorf("unknown mode: %s (web|console)", c.Mode)
	}
	if !backend.Supported(c.Provider.Backend) {
		return fmt.Errorf("unknown backend: %s (groq|openai|grok|anthropic|ollama)", c.Provider.Backend)
	}
	if backend.RequiresAPIKey(c.Provider.Backend) && c.Provider.APIKey == "" {
		return fmt.Errorf("%w: set %s", ErrMissingCredential, credentialEnv[c.Provider.Backend])
	}
	if c.MemoryLength < 1 {
		return fmt.Errorf("memory_length must be at least 1, got %d", c.MemoryLength)
	}
	return nil
}

// BackendOptions converts the provider section into client options
func (c *Config) BackendOptions() backend.Options {
	return backend.Options{
		Backend: c.Provider.Backend,
		Model:   c.Provider.Model,
		APIKey:  c.Provider.APIKey,
		BaseURL: c.Provider.BaseURL,
		Timeout: c.Provider.Timeout,
	}
}
