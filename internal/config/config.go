package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultConfigName is the config file name looked up without extension.
	DefaultConfigName = "vecstash"
	// DefaultEnvFile is the dotenv file loaded before the environment is read.
	DefaultEnvFile = ".env"
	// DefaultDataDir is where the veclite backend keeps its files.
	DefaultDataDir = ".vecstash"

	// BackendPostgres stores items in PostgreSQL with the pgvector extension.
	BackendPostgres = "postgres"
	// BackendVecLite stores items in a local veclite file.
	BackendVecLite = "veclite"
)

// ErrInvalidConfig is returned when the resolved configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// DatabaseConfig holds store settings
type DatabaseConfig struct {
	// Backend is "postgres" or "veclite"
	Backend string `mapstructure:"backend" yaml:"backend"`
	// URL is a full connection string; it wins over the individual fields
	URL      string `mapstructure:"url" yaml:"url,omitempty"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Name     string `mapstructure:"name" yaml:"name"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
	// MaxConns bounds the pool used by serve
	MaxConns int32 `mapstructure:"max_conns" yaml:"max_conns"`
	// Timeout bounds a single store operation; zero means no timeout
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// DataDir is the directory for the veclite backend
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// ConfirmInit asks before init drops the items table
	ConfirmInit bool `mapstructure:"confirm_init" yaml:"confirm_init"`
}

// EmbeddingConfig holds embedding provider settings
type EmbeddingConfig struct {
	// Provider is the embedding provider: "openai" or "ollama"
	Provider string `mapstructure:"provider" yaml:"provider"`
	// Model is the embedding model name
	Model string `mapstructure:"model" yaml:"model"`
	// Dimensions is the embedding vector dimensions, fixed per table
	Dimensions int `mapstructure:"dimensions" yaml:"dimensions"`
	// OpenAIAPIKey can also be set via OPENAI_API_KEY
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	// OpenAIBaseURL can also be set via OPENAI_BASE_URL
	OpenAIBaseURL string `mapstructure:"openai_base_url" yaml:"openai_base_url,omitempty"`
	// OllamaURL is the Ollama API URL
	OllamaURL string `mapstructure:"ollama_url" yaml:"ollama_url,omitempty"`
	// Timeout bounds a single provider request
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MaxRetries is the number of extra attempts on rate limiting
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// SearchConfig holds search settings
type SearchConfig struct {
	// Limit is the number of nearest items returned
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// ServerConfig holds serve settings
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// CacheSize is the number of query embeddings kept in memory
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
	// CacheTTL expires cached embeddings; zero keeps them until evicted
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// LogConfig holds logger settings
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `mapstructure:"level" yaml:"level"`
	// Format is text, json or logfmt
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Backend:  BackendPostgres,
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Name:     "postgres",
			SSLMode:  "disable",
			MaxConns: 4,
			DataDir:  DefaultDataDir,
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			OllamaURL:  "http://localhost:11434",
			Timeout:    60 * time.Second,
		},
		Search: SearchConfig{
			Limit: 5,
		},
		Server: ServerConfig{
			Host:      "localhost",
			Port:      8080,
			CacheSize: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

// Validate checks that the configuration can drive a command.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendPostgres:
		if c.Database.URL == "" && (c.Database.Host == "" || c.Database.Port <= 0) {
			return fmt.Errorf("%w: database.host and database.port are required", ErrInvalidConfig)
		}
	case BackendVecLite:
		if c.Database.DataDir == "" {
			return fmt.Errorf("%w: database.data_dir is required for the veclite backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database backend %q", ErrInvalidConfig, c.Database.Backend)
	}

	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: embedding.dimensions must be positive", ErrInvalidConfig)
	}
	if c.Embedding.MaxRetries < 0 {
		return fmt.Errorf("%w: embedding.max_retries cannot be negative", ErrInvalidConfig)
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("%w: search.limit must be positive", ErrInvalidConfig)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json", "logfmt":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Database.Password != "" {
		out.Database.Password = "[set]"
	}
	if out.Database.URL != "" {
		if u, err := url.Parse(out.Database.URL); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "xxxxx")
				out.Database.URL = u.String()
			}
		}
	}
	if out.Embedding.OpenAIAPIKey != "" {
		out.Embedding.OpenAIAPIKey = "[set]"
	}
	return &out
}
