package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envAliases maps config keys to the unprefixed variables used by
// docker-compose setups. VECSTASH_* variables always win.
var envAliases = map[string][]string{
	"database.host":             {"POSTGRES_HOST"},
	"database.port":             {"POSTGRES_PORT"},
	"database.user":             {"POSTGRES_USER"},
	"database.password":         {"POSTGRES_PASSWORD"},
	"database.name":             {"POSTGRES_DB"},
	"database.url":              {"DATABASE_URL"},
	"embedding.openai_api_key":  {"OPENAI_API_KEY"},
	"embedding.openai_base_url": {"OPENAI_BASE_URL"},
	"embedding.ollama_url":      {"OLLAMA_HOST"},
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is an explicit config file; it must exist when set
	ConfigFile string
	// EnvFile is a dotenv file; a missing file is ignored
	EnvFile string
	// SearchPaths are directories searched for vecstash.yaml when ConfigFile is empty
	SearchPaths []string
}

// DefaultLoadOptions looks in the working directory and ~/.config/vecstash.
func DefaultLoadOptions() LoadOptions {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "vecstash"))
	}
	return LoadOptions{
		EnvFile:     DefaultEnvFile,
		SearchPaths: paths,
	}
}

// Loader resolves configuration from, lowest to highest priority:
// built-in defaults, the config file, the dotenv file, the environment.
type Loader struct {
	opts LoadOptions
	v    *viper.Viper

	mu  sync.Mutex
	cfg *Config
}

// NewLoader creates a Loader.
func NewLoader(opts LoadOptions) *Loader {
	return &Loader{opts: opts}
}

// Load loads configuration with the default options.
func Load(configFile string) (*Config, error) {
	opts := DefaultLoadOptions()
	opts.ConfigFile = configFile
	return NewLoader(opts).Load()
}

// Load resolves and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	// godotenv never overrides variables already present in the process
	if l.opts.EnvFile != "" {
		if err := godotenv.Load(l.opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, l.opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if l.opts.ConfigFile != "" {
		v.SetConfigFile(l.opts.ConfigFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		for _, p := range l.opts.SearchPaths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix("VECSTASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{key, envName(key)}, aliases...)
		_ = v.BindEnv(names...)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %v", ErrInvalidConfig, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.v = v
	l.cfg = cfg
	l.mu.Unlock()

	return cfg, nil
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.v == nil {
		return ""
	}
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the re-decoded configuration whenever the
// config file changes. Invalid edits are reported through onError and the
// previous configuration stays in effect. Load must be called first.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) error {
	l.mu.Lock()
	v := l.v
	l.mu.Unlock()

	if v == nil {
		return fmt.Errorf("config not loaded")
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrInvalidConfig, err)
	}
	cfg.Database.DataDir = ExpandPath(cfg.Database.DataDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.backend", d.Database.Backend)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.timeout", d.Database.Timeout)
	v.SetDefault("database.data_dir", d.Database.DataDir)
	v.SetDefault("database.confirm_init", d.Database.ConfirmInit)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.openai_api_key", d.Embedding.OpenAIAPIKey)
	v.SetDefault("embedding.openai_base_url", d.Embedding.OpenAIBaseURL)
	v.SetDefault("embedding.ollama_url", d.Embedding.OllamaURL)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("embedding.max_retries", d.Embedding.MaxRetries)

	v.SetDefault("search.limit", d.Search.Limit)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cache_size", d.Server.CacheSize)
	v.SetDefault("server.cache_ttl", d.Server.CacheTTL)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

func envName(key string) string {
	return "VECSTASH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ShowResolvedConfig returns the configuration as YAML with secrets redacted.
func ShowResolvedConfig(cfg *Config, source string) (string, error) {
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	var sb strings.Builder
	if source != "" {
		fmt.Fprintf(&sb, "# source: %s\n", source)
	} else {
		sb.WriteString("# source: defaults and environment\n")
	}
	sb.Write(out)
	return sb.String(), nil
}
