package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppName is used for the configuration and cache directory names.
	AppName = "agentim"

	// FileName is the name of the configuration file inside Dir().
	FileName = "config.yaml"

	// ClientSecretFileName is the default name of the OAuth client-secret
	// descriptor downloaded from the Google Cloud console.
	ClientSecretFileName = "credentials.json"

	// TokenFileName is the default name of the persisted credential.
	TokenFileName = "google_token.json"

	DefaultModel         = "claude-sonnet-4-5"
	DefaultMaxTokens     = 1024
	DefaultMaxToolRounds = 4
	DefaultAPITimeout    = 30 * time.Second
	DefaultAuthTimeout   = 5 * time.Minute
	DefaultEngineTimeout = 2 * time.Minute
)

// Config is the persisted agent configuration. Values from the file are
// overridden by environment variables, which are in turn overridden by
// command flags.
type Config struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key,omitempty"`
	Model           string `yaml:"model,omitempty"`
	MaxTokens       int64  `yaml:"max_tokens,omitempty"`

	ClientSecretFile string `yaml:"client_secret_file,omitempty"`
	TokenFile        string `yaml:"token_file,omitempty"`

	// CredentialKey is an optional base64 encoded 32 byte key. When set the
	// persisted credential is encrypted with AES-256-GCM.
	CredentialKey string `yaml:"credential_key,omitempty"`

	Search SearchConfig `yaml:"search,omitempty"`

	MaxToolRounds int  `yaml:"max_tool_rounds,omitempty"`
	ParallelTools bool `yaml:"parallel_tools,omitempty"`

	Timeouts Timeouts `yaml:"timeouts,omitempty"`
}

// SearchConfig configures the Programmable Search Engine backing the
// generic search tool. Search falls back to a placeholder when unset.
type SearchConfig struct {
	APIKey   string `yaml:"api_key,omitempty"`
	EngineID string `yaml:"engine_id,omitempty"`
}

// Enabled reports whether both search credentials are present.
func (s SearchConfig) Enabled() bool {
	return s.APIKey != "" && s.EngineID != ""
}

// Timeouts bounds every blocking network interaction.
type Timeouts struct {
	API           time.Duration `yaml:"api,omitempty"`
	Authorization time.Duration `yaml:"authorization,omitempty"`
	Engine        time.Duration `yaml:"engine,omitempty"`
}

// Dir returns the configuration directory, honoring XDG_CONFIG_HOME.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DefaultPath returns the default location of the configuration file.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Default returns a configuration with every default filled in.
func Default() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cacheBase, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine cache directory: %w", err)
	}
	return &Config{
		Model:            DefaultModel,
		MaxTokens:        DefaultMaxTokens,
		ClientSecretFile: filepath.Join(dir, ClientSecretFileName),
		TokenFile:        filepath.Join(cacheBase, AppName, TokenFileName),
		MaxToolRounds:    DefaultMaxToolRounds,
		Timeouts: Timeouts{
			API:           DefaultAPITimeout,
			Authorization: DefaultAuthTimeout,
			Engine:        DefaultEngineTimeout,
		},
	}, nil
}

// Load reads the configuration file at path on top of the defaults and
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, &ConfigError{Field: "config", Message: fmt.Sprintf("cannot read %s", path), Err: err}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &ConfigError{Field: "config", Message: fmt.Sprintf("cannot parse %s", path), Err: err}
		}
	}

	cfg.ApplyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// Save writes the configuration to path with owner-only permissions,
// creating the parent directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	c.AnthropicAPIKey = getEnvOrDefault("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.Model = getEnvOrDefault("AGENTIM_MODEL", c.Model)
	c.ClientSecretFile = getEnvOrDefault("AGENTIM_CLIENT_SECRET_FILE", c.ClientSecretFile)
	c.TokenFile = getEnvOrDefault("AGENTIM_TOKEN_FILE", c.TokenFile)
	c.CredentialKey = getEnvOrDefault("AGENTIM_CREDENTIAL_KEY", c.CredentialKey)
	c.Search.APIKey = getEnvOrDefault("GOOGLE_SEARCH_API_KEY", c.Search.APIKey)
	c.Search.EngineID = getEnvOrDefault("GOOGLE_SEARCH_ENGINE_ID", c.Search.EngineID)
	c.MaxToolRounds = getEnvIntOrDefault("AGENTIM_MAX_TOOL_ROUNDS", c.MaxToolRounds)
}

func (c *Config) fillDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.Timeouts.API <= 0 {
		c.Timeouts.API = DefaultAPITimeout
	}
	if c.Timeouts.Authorization <= 0 {
		c.Timeouts.Authorization = DefaultAuthTimeout
	}
	if c.Timeouts.Engine <= 0 {
		c.Timeouts.Engine = DefaultEngineTimeout
	}
}

// Validate checks the settings needed to talk to Google.
func (c *Config) Validate() error {
	if c.ClientSecretFile == "" {
		return &ConfigError{Field: "client_secret_file", Message: "path to the OAuth client-secret descriptor is not set"}
	}
	if _, err := os.Stat(c.ClientSecretFile); err != nil {
		return &ConfigError{
			Field: "client_secret_file",
			Message: fmt.Sprintf("OAuth client-secret descriptor not found at %s; create an OAuth client of type "+
				"\"Desktop app\" in the Google Cloud console and download it to that path", c.ClientSecretFile),
			Err: err,
		}
	}
	if c.TokenFile == "" {
		return &ConfigError{Field: "token_file", Message: "credential store path is not set"}
	}
	if _, err := c.CredentialKeyBytes(); err != nil {
		return err
	}
	return nil
}

// ValidateForRun additionally requires the reasoning engine API key.
func (c *Config) ValidateForRun() error {
	if c.AnthropicAPIKey == "" {
		return &ConfigError{Field: "anthropic_api_key", Message: "Anthropic API key is not set; run 'agentim setup' or set ANTHROPIC_API_KEY"}
	}
	return c.Validate()
}

// CredentialKeyBytes decodes the credential encryption key. It returns nil
// when no key is configured.
func (c *Config) CredentialKeyBytes() ([]byte, error) {
	if c.CredentialKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.CredentialKey)
	if err != nil {
		return nil, &ConfigError{Field: "credential_key", Message: "credential key is not valid base64", Err: err}
	}
	if len(key) != 32 {
		return nil, &ConfigError{Field: "credential_key", Message: fmt.Sprintf("credential key must be 32 bytes, got %d", len(key))}
	}
	return key, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
