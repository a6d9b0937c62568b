package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service and the client.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Logging     LoggingConfig             `json:"logging" yaml:"logging"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Media       MediaConfig               `json:"media" yaml:"media"`
	Client      ClientConfig              `json:"client" yaml:"client"`
}

// ProviderConfig configures one text generation provider. Models lists the
// entries offered by the model listing.
type ProviderConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model" yaml:"model"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Models  []ModelConfig `json:"models" yaml:"models"`
}

type ModelConfig struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address" yaml:"server_address"`
	DatabasePath      string `json:"database_path" yaml:"database_path"`
	DatabaseType      string `json:"database_type" yaml:"database_type"`
	MinWorkers        int    `json:"min_workers" yaml:"min_workers"`
	MaxWorkers        int    `json:"max_workers" yaml:"max_workers"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout" yaml:"worker_idle_timeout"` // minutes
	HistoryLimit      int    `json:"history_limit" yaml:"history_limit"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"dbname" yaml:"dbname"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	TTL      int    `json:"ttl" yaml:"ttl"` // minutes
}

// MediaConfig configures image and speech synthesis.
type MediaConfig struct {
	APIKey       string `json:"api_key" yaml:"api_key"`
	BaseURL      string `json:"base_url" yaml:"base_url"`
	ImageModel   string `json:"image_model" yaml:"image_model"`
	ImageSize    string `json:"image_size" yaml:"image_size"`
	ImageQuality string `json:"image_quality" yaml:"image_quality"`
	SpeechModel  string `json:"speech_model" yaml:"speech_model"`
}

// ClientConfig configures the command line client.
type ClientConfig struct {
	ServerURL  string `json:"server_url" yaml:"server_url"`
	Model      string `json:"model" yaml:"model"`
	Genre      string `json:"genre" yaml:"genre"`
	Voice      string `json:"voice" yaml:"voice"`
	ImageStyle string `json:"image_style" yaml:"image_style"`
	Timeout    int    `json:"timeout" yaml:"timeout"` // seconds, applied by the transport
}

// Provider names used as keys of Providers.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

var providerKeyEnv = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGemini:    "GOOGLE_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
}

// Load reads configuration from the provided path (defaults to config.json).
// Files ending in .yaml or .yml are decoded as YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	if cfg.BasicConfig.DatabasePath == "" {
		return nil, fmt.Errorf("database_path must be configured")
	}

	if !filepath.IsAbs(cfg.BasicConfig.DatabasePath) {
		cfg.BasicConfig.DatabasePath = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.DatabasePath)
	}

	cfg.applyEnv()
	return &cfg, nil
}

// Default is the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		BasicConfig: BasicConfig{DatabasePath: "stories.db"},
	}
	cfg.applyEnv()
	return cfg
}

// applyEnv fills API keys from the environment when the file leaves them
// empty, and defaults the sqlite DSN to database_path.
func (c *Config) applyEnv() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for name, env := range providerKeyEnv {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		p := c.Providers[name]
		if p.APIKey == "" {
			p.APIKey = key
			c.Providers[name] = p
		}
	}
	if c.Media.APIKey == "" {
		c.Media.APIKey = c.Providers[ProviderOpenAI].APIKey
	}

	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if db := c.Databases["sqlite3"]; db.DSN == "" && c.BasicConfig.DatabasePath != "" {
		db.DSN = c.BasicConfig.DatabasePath
		c.Databases["sqlite3"] = db
	}
}

// DatabaseType returns the configured driver, sqlite3 by default.
func (c *Config) DatabaseType() string {
	if c.BasicConfig.DatabaseType == "" {
		return "sqlite3"
	}
	return c.BasicConfig.DatabaseType
}
