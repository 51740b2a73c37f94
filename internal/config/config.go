package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader reads configuration from a YAML file and SENTINEL_ environment
// variables. Each Loader owns its viper instance so tests and tools can
// load several configurations in one process.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader. An empty path searches the default locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/prompt-shield/")
	v.AddConfigPath("$HOME/.prompt-shield/")

	// Environment variable overrides
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	setDefaults(v, GetDefaults())

	return &Loader{v: v, path: configPath}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads, decodes and validates the configuration
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

// ConfigFile returns the file viper resolved, or "" when running on defaults
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) decode() (*Config, error) {
	config := GetDefaults()
	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Watch starts watching the configuration file for changes. Invalid
// reloads are reported to onError and the previous configuration stays in
// effect.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		newConfig, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		callback(newConfig)
	})
	l.v.WatchConfig()
}

// setDefaults registers every key that should be overridable from the
// environment; viper only consults AutomaticEnv for keys it knows about.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)

	v.SetDefault("privacy.enabled", d.Privacy.Enabled)
	v.SetDefault("privacy.detectors", d.Privacy.Detectors)
	v.SetDefault("privacy.rules_file", d.Privacy.RulesFile)
	v.SetDefault("privacy.heuristics.min_length", d.Privacy.Heuristics.MinLength)
	v.SetDefault("privacy.heuristics.distinct_ratio", *d.Privacy.Heuristics.DistinctRatio)
	v.SetDefault("privacy.entities.enabled", d.Privacy.Entities.Enabled)
	v.SetDefault("privacy.entities.model_path", d.Privacy.Entities.ModelPath)
	v.SetDefault("privacy.entities.vocab_path", d.Privacy.Entities.VocabPath)
	v.SetDefault("privacy.entities.max_length", d.Privacy.Entities.MaxLength)
	v.SetDefault("privacy.header_scrubbing.enabled", d.Privacy.HeaderScrubbing.Enabled)
	v.SetDefault("privacy.header_scrubbing.preserve_upstream_auth", d.Privacy.HeaderScrubbing.PreserveUpstreamAuth)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)

	v.SetDefault("upstream.openai", d.Upstream.OpenAI)
	v.SetDefault("upstream.anthropic", d.Upstream.Anthropic)
	v.SetDefault("upstream.ollama", d.Upstream.Ollama)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.prefix", d.Cache.Prefix)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("websocket.enabled", d.WebSocket.Enabled)
	v.SetDefault("websocket.path", d.WebSocket.Path)
	v.SetDefault("websocket.max_connections", d.WebSocket.MaxConnections)
	v.SetDefault("websocket.username", d.WebSocket.Username)
	v.SetDefault("websocket.password", d.WebSocket.Password)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid server max_body_bytes: %d", config.Server.MaxBodyBytes)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	h := config.Privacy.Heuristics
	if h.MinLength < 0 {
		return fmt.Errorf("invalid heuristics min_length: %d", h.MinLength)
	}
	if r := h.DistinctRatio; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("invalid heuristics distinct_ratio: %v (must be between 0 and 1)", *r)
	}

	if e := config.Privacy.Entities; e.Enabled {
		if e.ModelPath == "" || e.VocabPath == "" {
			return fmt.Errorf("entities enabled but model_path or vocab_path is empty")
		}
		if e.MaxLength <= 2 {
			return fmt.Errorf("invalid entities max_length: %d", e.MaxLength)
		}
	}

	if config.Cache.Enabled {
		if config.Cache.RedisURL == "" {
			return fmt.Errorf("cache enabled but redis_url is empty")
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl: %s", config.Cache.TTL)
		}
	}

	if config.WebSocket.Enabled && !strings.HasPrefix(config.WebSocket.Path, "/") {
		return fmt.Errorf("invalid websocket path: %q", config.WebSocket.Path)
	}
	if config.Metrics.Enabled && !strings.HasPrefix(config.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics path: %q", config.Metrics.Path)
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: %v rps, burst %d", config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	return nil
}
