package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"wagtailgen/internal/llm/core"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const (
	defaultProviderName       = ProviderAnthropic
	defaultAnthropicModel     = "claude-3-5-sonnet-20240620"
	defaultAnthropicVersion   = "2023-06-01"
	defaultOpenAIModel        = "gpt-4o"
	defaultRequestTimeout     = "90s"
	defaultMaxTokens          = 2048
	defaultRetryMaxRetries    = 0
	defaultRetryBaseDelay     = "300ms"
	defaultRetryMaxDelay      = "5s"
	defaultFormatterTimeout   = "10s"
	defaultLineLength         = 76
	defaultServerAddr         = ":8000"
	defaultMaxUploadBytes     = 10 << 20
	defaultLogLevel           = "info"
	defaultLogFormat          = "console"
	defaultConfigRelativePath = ".config/wagtailgen/config.toml"
	defaultEnvFile            = ".env"

	envProviderDefault     = "WAGTAILGEN_PROVIDER_DEFAULT"
	envProviderImage       = "WAGTAILGEN_PROVIDER_IMAGE"
	envAnthropicAPIKey     = "ANTHROPIC_API_KEY"
	envAnthropicModel      = "WAGTAILGEN_ANTHROPIC_MODEL"
	envAnthropicImageModel = "WAGTAILGEN_ANTHROPIC_IMAGE_MODEL"
	envAnthropicBaseURL    = "WAGTAILGEN_ANTHROPIC_BASE_URL"
	envAnthropicRetries    = "WAGTAILGEN_ANTHROPIC_RETRY_MAX_RETRIES"
	envOpenAIAPIKey        = "OPENAI_API_KEY"
	envOpenAIModel         = "WAGTAILGEN_OPENAI_MODEL"
	envOpenAIBaseURL       = "WAGTAILGEN_OPENAI_BASE_URL"
	envOpenAIRetries       = "WAGTAILGEN_OPENAI_RETRY_MAX_RETRIES"
	envFormatterEnabled    = "WAGTAILGEN_FORMATTER_ENABLED"
	envServerAddr          = "WAGTAILGEN_SERVER_ADDR"
	envLogLevel            = "WAGTAILGEN_LOG_LEVEL"
	envLogFormat           = "WAGTAILGEN_LOG_FORMAT"
)

var (
	// ErrInvalidConfig indicates malformed configuration input.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the application configuration root.
type Config struct {
	Provider  ProviderConfig  `toml:"provider"`
	Formatter FormatterConfig `toml:"formatter"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Pricing   []PricingRow    `toml:"pricing"`
}

// ProviderConfig selects and configures model providers. Default serves text
// requests; Image serves screenshot requests.
type ProviderConfig struct {
	Default   string                  `toml:"default"`
	Image     string                  `toml:"image"`
	Anthropic AnthropicProviderConfig `toml:"anthropic"`
	OpenAI    OpenAIProviderConfig    `toml:"openai"`
}

// AnthropicProviderConfig configures Anthropic-specific runtime values.
type AnthropicProviderConfig struct {
	APIKey         string      `toml:"api_key"`
	Model          string      `toml:"model"`
	ImageModel     string      `toml:"image_model"`
	BaseURL        string      `toml:"base_url"`
	Version        string      `toml:"version"`
	RequestTimeout string      `toml:"request_timeout"`
	MaxTokens      int         `toml:"max_tokens"`
	Retry          RetryConfig `toml:"retry"`
}

// OpenAIProviderConfig configures OpenAI-specific runtime values.
type OpenAIProviderConfig struct {
	APIKey         string      `toml:"api_key"`
	Model          string      `toml:"model"`
	BaseURL        string      `toml:"base_url"`
	RequestTimeout string      `toml:"request_timeout"`
	MaxTokens      int         `toml:"max_tokens"`
	Retry          RetryConfig `toml:"retry"`
}

// RetryConfig stores retry policy as config-friendly values. Zero retries
// makes every provider failure terminal.
type RetryConfig struct {
	MaxRetries int    `toml:"max_retries"`
	BaseDelay  string `toml:"base_delay"`
	MaxDelay   string `toml:"max_delay"`
}

// FormatterConfig configures the external code formatter.
type FormatterConfig struct {
	Enabled    bool     `toml:"enabled"`
	Command    []string `toml:"command"`
	LineLength int      `toml:"line_length"`
	Timeout    string   `toml:"timeout"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	StaticDir      string   `toml:"static_dir"`
	UploadDir      string   `toml:"upload_dir"`
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
	CORSOrigins    []string `toml:"cors_origins"`
}

// LogConfig configures log output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// PricingRow adds or overrides one rate. Prices are USD per million tokens.
type PricingRow struct {
	Provider      string  `toml:"provider"`
	Model         string  `toml:"model"`
	InputPerMTok  float64 `toml:"input_per_mtok"`
	OutputPerMTok float64 `toml:"output_per_mtok"`
}

// LoadOptions controls config loading behavior.
type LoadOptions struct {
	Path string
	// EnvFile is loaded before environment overrides; variables already set
	// in the process win. Empty means ".env" in the working directory.
	EnvFile string
}

// ProviderSettings is a validated provider runtime settings snapshot.
type ProviderSettings struct {
	Name           string
	APIKey         string
	Model          string
	BaseURL        string
	Version        string
	RequestTimeout time.Duration
	MaxTokens      int
	Retry          core.RetryPolicy
}

// FormatterSettings is the parsed formatter configuration.
type FormatterSettings struct {
	Enabled    bool
	Command    []string
	LineLength int
	Timeout    time.Duration
}

// Default returns application defaults.
func Default() Config {
	retry := RetryConfig{
		MaxRetries: defaultRetryMaxRetries,
		BaseDelay:  defaultRetryBaseDelay,
		MaxDelay:   defaultRetryMaxDelay,
	}
	return Config{
		Provider: ProviderConfig{
			Default: defaultProviderName,
			Image:   ProviderAnthropic,
			Anthropic: AnthropicProviderConfig{
				Model:          defaultAnthropicModel,
				ImageModel:     defaultAnthropicModel,
				Version:        defaultAnthropicVersion,
				RequestTimeout: defaultRequestTimeout,
				MaxTokens:      defaultMaxTokens,
				Retry:          retry,
			},
			OpenAI: OpenAIProviderConfig{
				Model:          defaultOpenAIModel,
				RequestTimeout: defaultRequestTimeout,
				MaxTokens:      defaultMaxTokens,
				Retry:          retry,
			},
		},
		Formatter: FormatterConfig{
			Enabled:    true,
			Command:    []string{"ruff", "format"},
			LineLength: defaultLineLength,
			Timeout:    defaultFormatterTimeout,
		},
		Server: ServerConfig{
			Addr:           defaultServerAddr,
			MaxUploadBytes: defaultMaxUploadBytes,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// Load reads the .env file and config file, then applies environment
// variable overrides.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = defaultConfigPath()
	}

	if err := mergeConfigFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks provider selection, durations and limits.
func (c Config) Validate() error {
	switch c.Provider.Default {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: provider.default %q is not one of %s, %s", ErrInvalidConfig, c.Provider.Default, ProviderAnthropic, ProviderOpenAI)
	}
	if c.Provider.Image != ProviderAnthropic {
		return fmt.Errorf("%w: provider.image %q does not accept images", ErrInvalidConfig, c.Provider.Image)
	}
	if strings.TrimSpace(c.Provider.Anthropic.Model) == "" {
		return fmt.Errorf("%w: provider.anthropic.model is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Provider.OpenAI.Model) == "" {
		return fmt.Errorf("%w: provider.openai.model is required", ErrInvalidConfig)
	}
	if _, err := c.AnthropicSettings(); err != nil {
		return err
	}
	if _, err := c.OpenAISettings(); err != nil {
		return err
	}
	if _, err := c.FormatterSettings(); err != nil {
		return err
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: server.max_upload_bytes must be > 0", ErrInvalidConfig)
	}
	for i, row := range c.Pricing {
		if strings.TrimSpace(row.Provider) == "" || strings.TrimSpace(row.Model) == "" {
			return fmt.Errorf("%w: pricing[%d] needs provider and model", ErrInvalidConfig, i)
		}
		if row.InputPerMTok < 0 || row.OutputPerMTok < 0 {
			return fmt.Errorf("%w: pricing[%d] prices must be >= 0", ErrInvalidConfig, i)
		}
	}
	return nil
}

// AnthropicSettings returns validated settings for the text backend when
// Anthropic is the default, and for the image backend.
func (c Config) AnthropicSettings() (ProviderSettings, error) {
	a := c.Provider.Anthropic
	timeout, retry, err := parseTransport(ProviderAnthropic, a.RequestTimeout, a.Retry)
	if err != nil {
		return ProviderSettings{}, err
	}
	return ProviderSettings{
		Name:           ProviderAnthropic,
		APIKey:         strings.TrimSpace(a.APIKey),
		Model:          strings.TrimSpace(a.Model),
		BaseURL:        strings.TrimSpace(a.BaseURL),
		Version:        strings.TrimSpace(a.Version),
		RequestTimeout: timeout,
		MaxTokens:      a.MaxTokens,
		Retry:          retry,
	}, nil
}

// AnthropicImageSettings returns AnthropicSettings with the image model.
func (c Config) AnthropicImageSettings() (ProviderSettings, error) {
	settings, err := c.AnthropicSettings()
	if err != nil {
		return ProviderSettings{}, err
	}
	if model := strings.TrimSpace(c.Provider.Anthropic.ImageModel); model != "" {
		settings.Model = model
	}
	return settings, nil
}

// OpenAISettings returns validated OpenAI settings.
func (c Config) OpenAISettings() (ProviderSettings, error) {
	o := c.Provider.OpenAI
	timeout, retry, err := parseTransport(ProviderOpenAI, o.RequestTimeout, o.Retry)
	if err != nil {
		return ProviderSettings{}, err
	}
	return ProviderSettings{
		Name:           ProviderOpenAI,
		APIKey:         strings.TrimSpace(o.APIKey),
		Model:          strings.TrimSpace(o.Model),
		BaseURL:        strings.TrimSpace(o.BaseURL),
		RequestTimeout: timeout,
		MaxTokens:      o.MaxTokens,
		Retry:          retry,
	}, nil
}

// TextSettings returns the settings of the default provider.
func (c Config) TextSettings() (ProviderSettings, error) {
	if c.Provider.Default == ProviderOpenAI {
		return c.OpenAISettings()
	}
	return c.AnthropicSettings()
}

// FormatterSettings returns the parsed formatter configuration.
func (c Config) FormatterSettings() (FormatterSettings, error) {
	timeout, err := time.ParseDuration(strings.TrimSpace(c.Formatter.Timeout))
	if err != nil {
		return FormatterSettings{}, fmt.Errorf("%w: parse formatter timeout: %v", ErrInvalidConfig, err)
	}
	if c.Formatter.LineLength <= 0 {
		return FormatterSettings{}, fmt.Errorf("%w: formatter line_length must be > 0", ErrInvalidConfig)
	}
	if c.Formatter.Enabled && len(c.Formatter.Command) == 0 {
		return FormatterSettings{}, fmt.Errorf("%w: formatter command is required when enabled", ErrInvalidConfig)
	}
	return FormatterSettings{
		Enabled:    c.Formatter.Enabled,
		Command:    append([]string(nil), c.Formatter.Command...),
		LineLength: c.Formatter.LineLength,
		Timeout:    timeout,
	}, nil
}

// RateTable returns the built-in rates with configured rows applied on top.
func (c Config) RateTable() core.RateTable {
	rates := core.DefaultRates()
	for _, row := range c.Pricing {
		rates = rates.With(row.Provider, row.Model, core.RatePerMTok(row.InputPerMTok, row.OutputPerMTok))
	}
	return rates
}

func parseTransport(name, requestTimeout string, retry RetryConfig) (time.Duration, core.RetryPolicy, error) {
	timeout, err := time.ParseDuration(strings.TrimSpace(requestTimeout))
	if err != nil {
		return 0, core.RetryPolicy{}, fmt.Errorf("%w: parse %s request_timeout: %v", ErrInvalidConfig, name, err)
	}
	baseDelay, err := time.ParseDuration(strings.TrimSpace(retry.BaseDelay))
	if err != nil {
		return 0, core.RetryPolicy{}, fmt.Errorf("%w: parse %s retry base_delay: %v", ErrInvalidConfig, name, err)
	}
	maxDelay, err := time.ParseDuration(strings.TrimSpace(retry.MaxDelay))
	if err != nil {
		return 0, core.RetryPolicy{}, fmt.Errorf("%w: parse %s retry max_delay: %v", ErrInvalidConfig, name, err)
	}
	if retry.MaxRetries < 0 {
		return 0, core.RetryPolicy{}, fmt.Errorf("%w: %s retry max_retries must be >= 0", ErrInvalidConfig, name)
	}
	return timeout, core.RetryPolicy{
		MaxRetries: retry.MaxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   maxDelay,
	}, nil
}

func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func mergeConfigFile(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Provider.Default, envProviderDefault)
	setString(&cfg.Provider.Image, envProviderImage)

	if value, ok := os.LookupEnv(envAnthropicAPIKey); ok {
		cfg.Provider.Anthropic.APIKey = value
	}
	setString(&cfg.Provider.Anthropic.Model, envAnthropicModel)
	setString(&cfg.Provider.Anthropic.ImageModel, envAnthropicImageModel)
	setString(&cfg.Provider.Anthropic.BaseURL, envAnthropicBaseURL)
	if err := setInt(&cfg.Provider.Anthropic.Retry.MaxRetries, envAnthropicRetries); err != nil {
		return err
	}

	if value, ok := os.LookupEnv(envOpenAIAPIKey); ok {
		cfg.Provider.OpenAI.APIKey = value
	}
	setString(&cfg.Provider.OpenAI.Model, envOpenAIModel)
	setString(&cfg.Provider.OpenAI.BaseURL, envOpenAIBaseURL)
	if err := setInt(&cfg.Provider.OpenAI.Retry.MaxRetries, envOpenAIRetries); err != nil {
		return err
	}

	if value, ok := os.LookupEnv(envFormatterEnabled); ok && strings.TrimSpace(value) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, envFormatterEnabled, err)
		}
		cfg.Formatter.Enabled = enabled
	}

	setString(&cfg.Server.Addr, envServerAddr)
	setString(&cfg.Log.Level, envLogLevel)
	setString(&cfg.Log.Format, envLogFormat)
	return nil
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		*dst = strings.TrimSpace(value)
	}
}

func setInt(dst *int, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, key, err)
	}
	*dst = parsed
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultConfigRelativePath)
}
