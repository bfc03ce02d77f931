// Package config loads the server configuration from an optional YAML file
// and the environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/johndosdos/claudespark/internal/reply"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// LLM selects and configures the reply provider.
type LLM struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"apiKey"`
	BaseURL   string `yaml:"baseURL"`
	Host      string `yaml:"host"`
	MaxTokens int    `yaml:"maxTokens"`
}

func (l *LLM) UnmarshalYAML(value *yaml.Node) error {
	type raw LLM
	r := raw(*l)
	if err := value.Decode(&r); err != nil {
		return err
	}

	r.Provider = strings.ToLower(r.Provider)
	switch r.Provider {
	case "", ProviderAnthropic, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider: %s", r.Provider)
	}

	*l = LLM(r)
	return nil
}

type Config struct {
	Port         string `yaml:"port"`
	SiteURL      string `yaml:"siteURL"`
	LogLevel     string `yaml:"logLevel"`
	CookieSecure bool   `yaml:"cookieSecure"`

	StoreDriver string `yaml:"storeDriver"`
	DatabaseURL string `yaml:"databaseURL"`
	BoltPath    string `yaml:"boltPath"`

	NatsURL      string `yaml:"natsURL"`
	NatsCred     string `yaml:"natsCred"`
	NatsUser     string `yaml:"natsUser"`
	NatsPassword string `yaml:"natsPassword"`

	AuthURL     string `yaml:"authURL"`
	AuthAnonKey string `yaml:"authAnonKey"`
	JWTSecret   string `yaml:"jwtSecret"`

	SystemPrompt string `yaml:"systemPrompt"`
	LLM          LLM    `yaml:"llm"`
	// ReplyURL points the chat view at a remote /api/chat. Empty means the
	// reply service of this process is called directly.
	ReplyURL    string        `yaml:"replyURL"`
	ReplyTimeout time.Duration `yaml:"-"`
	RevealDelay time.Duration `yaml:"-"`

	RateLimitRequests int           `yaml:"rateLimitRequests"`
	RateLimitWindow   time.Duration `yaml:"-"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:     "8080",
		LogLevel: "info",
		BoltPath: "claudespark.db",
		SystemPrompt: "You are Claude, a helpful AI assistant. " +
			"Answer concisely and format code with markdown.",
		LLM: LLM{
			Provider:  ProviderAnthropic,
			Model:     "claude-3-5-sonnet-latest",
			MaxTokens: 1024,
		},
		ReplyTimeout:       60 * time.Second,
		RevealDelay:       time.Second,
		RateLimitRequests: 5,
		RateLimitWindow:   10 * time.Second,
	}
}

// Load reads .env, then CONFIG_FILE if set, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", slog.Any("error", err))
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	if cfg.SiteURL == "" {
		cfg.SiteURL = "http://localhost:" + cfg.Port
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverBolt
		if cfg.DatabaseURL != "" {
			cfg.StoreDriver = DriverPostgres
		}
	}

	return cfg, nil
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envStr("PORT", c.Port)
	c.SiteURL = envStr("SITE_URL", c.SiteURL)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.CookieSecure = envBool("COOKIE_SECURE", c.CookieSecure)

	c.StoreDriver = strings.ToLower(envStr("STORE_DRIVER", c.StoreDriver))
	c.DatabaseURL = envStr("DB_URL", c.DatabaseURL)
	c.BoltPath = envStr("BOLT_PATH", c.BoltPath)

	c.NatsURL = envStr("NATS_URL", c.NatsURL)
	c.NatsCred = envStr("NATS_CRED", c.NatsCred)
	c.NatsUser = envStr("NATS_USER", c.NatsUser)
	c.NatsPassword = envStr("NATS_PASSWORD", c.NatsPassword)

	c.AuthURL = envStr("AUTH_URL", c.AuthURL)
	c.AuthAnonKey = envStr("AUTH_ANON_KEY", c.AuthAnonKey)
	c.JWTSecret = envStr("JWT_SECRET", c.JWTSecret)

	c.SystemPrompt = envStr("SYSTEM_PROMPT", c.SystemPrompt)
	c.LLM.Provider = strings.ToLower(envStr("LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = envStr("LLM_MODEL", c.LLM.Model)
	c.LLM.MaxTokens = envInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.BaseURL = envStr("LLM_BASE_URL", c.LLM.BaseURL)
	switch c.LLM.Provider {
	case ProviderAnthropic:
		c.LLM.APIKey = envStr("ANTHROPIC_API_KEY", c.LLM.APIKey)
	case ProviderOpenAI:
		c.LLM.APIKey = envStr("OPENAI_API_KEY", c.LLM.APIKey)
	case ProviderOllama:
		c.LLM.Host = envStr("OLLAMA_HOST", c.LLM.Host)
	}

	c.ReplyURL = envStr("REPLY_URL", c.ReplyURL)
	c.ReplyTimeout = envDuration("REPLY_TIMEOUT_MS", c.ReplyTimeout)
	c.RevealDelay = envDuration("REPLY_REVEAL_DELAY_MS", c.RevealDelay)
	c.RateLimitRequests = envInt("RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindow = envDuration("RATE_LIMIT_WINDOW_MS", c.RateLimitWindow)
}

// Validate reports every missing or invalid value at once.
func (c Config) Validate() error {
	var errs []error

	required := []struct{ name, value string }{
		{"AUTH_URL", c.AuthURL},
		{"AUTH_ANON_KEY", c.AuthAnonKey},
		{"JWT_SECRET", c.JWTSecret},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is not set", r.name))
		}
	}

	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DB_URL is not set"))
		}
	case DriverBolt:
		if c.BoltPath == "" {
			errs = append(errs, errors.New("BOLT_PATH is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}

	switch c.LLM.Provider {
	case ProviderAnthropic, ProviderOpenAI:
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("api key for %s is not set", c.LLM.Provider))
		}
		if c.LLM.MaxTokens <= 0 {
			errs = append(errs, errors.New("LLM_MAX_TOKENS must be positive"))
		}
	case ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("LLM_MODEL is not set"))
	}

	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}

	return errors.Join(errs...)
}

// Provider builds the reply provider selected by the llm block.
func (c Config) Provider(logger *slog.Logger) (reply.Provider, error) {
	switch c.LLM.Provider {
	case ProviderAnthropic:
		return reply.NewAnthropic(c.LLM.BaseURL, c.LLM.APIKey, c.LLM.Model, c.SystemPrompt, c.LLM.MaxTokens), nil
	case ProviderOpenAI:
		return reply.NewOpenAI(c.LLM.BaseURL, c.LLM.APIKey, c.LLM.Model, c.SystemPrompt, c.LLM.MaxTokens, logger), nil
	case ProviderOllama:
		o, err := reply.NewOllama(c.LLM.Host, c.LLM.Model, c.SystemPrompt)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
}

// Level maps LogLevel to a slog level. Unknown values mean info.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
