package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".batch-transcriber"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for transcriber settings.
const envPrefix = "TRANSCRIBER"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

const (
	DefaultAPIURL        = "https://api.deepgram.com/v1/listen"
	DefaultAPITimeout    = 10 * time.Minute
	DefaultMaxRetries    = 1
	DefaultRetryDelay    = 2 * time.Second
	DefaultWriteInterval = time.Second
	DefaultFlushTimeout  = 5 * time.Second
	DefaultRetentionDays = 30
	DefaultFFmpegTimeout = 600 * time.Second
	DefaultLogLevel      = "info"
)

var (
	// ErrInvalidMaxRetries indicates a negative retry count.
	ErrInvalidMaxRetries = errors.New("batch.max_retries must be non-negative")
	// ErrInvalidInterval indicates a non-positive duration knob.
	ErrInvalidInterval = errors.New("duration must be positive")
	// ErrInvalidRetention indicates a non-positive retention window.
	ErrInvalidRetention = errors.New("batch.retention_days must be positive")
	// ErrInvalidLogLevel indicates an unrecognised log level.
	ErrInvalidLogLevel = errors.New("log.level must be one of debug, info, warn, error")
)

// AppConfig is the process-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type AppConfig struct {
	DataDir string        `mapstructure:"data_dir"`
	API     APIConfig     `mapstructure:"api"`
	Batch   BatchConfig   `mapstructure:"batch"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// APIConfig holds the hosted speech API connection.
type APIConfig struct {
	Key     string        `mapstructure:"key"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BatchConfig holds batch execution knobs.
type BatchConfig struct {
	Workers       int           `mapstructure:"workers"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	WriteInterval time.Duration `mapstructure:"write_interval"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
	RetentionDays int           `mapstructure:"retention_days"`
}

type FFmpegConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig selects level and handler format.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// MetricsConfig enables the scrape endpoint when Addr is non-empty.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func Load(configPath string) (*AppConfig, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg AppConfig

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("data_dir", DefaultDataDir())

	viperCfg.SetDefault("api.key", "")
	viperCfg.SetDefault("api.url", DefaultAPIURL)
	viperCfg.SetDefault("api.timeout", DefaultAPITimeout)

	viperCfg.SetDefault("batch.workers", DefaultWorkers)
	viperCfg.SetDefault("batch.max_retries", DefaultMaxRetries)
	viperCfg.SetDefault("batch.retry_delay", DefaultRetryDelay)
	viperCfg.SetDefault("batch.write_interval", DefaultWriteInterval)
	viperCfg.SetDefault("batch.flush_timeout", DefaultFlushTimeout)
	viperCfg.SetDefault("batch.retention_days", DefaultRetentionDays)

	viperCfg.SetDefault("ffmpeg.timeout", DefaultFFmpegTimeout)

	viperCfg.SetDefault("log.level", DefaultLogLevel)
	viperCfg.SetDefault("log.json", false)

	viperCfg.SetDefault("metrics.addr", "")
}

// Validate checks the loaded configuration.
func (c *AppConfig) Validate() error {
	if c.Batch.Workers < MinWorkers || c.Batch.Workers > MaxWorkers {
		return fmt.Errorf("batch.workers: %w: got %d", ErrWorkersOutOfRange, c.Batch.Workers)
	}
	if c.Batch.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"api.timeout", c.API.Timeout},
		{"batch.retry_delay", c.Batch.RetryDelay},
		{"batch.write_interval", c.Batch.WriteInterval},
		{"batch.flush_timeout", c.Batch.FlushTimeout},
		{"ffmpeg.timeout", c.FFmpeg.Timeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s: %w", d.key, ErrInvalidInterval)
		}
	}

	if c.Batch.RetentionDays <= 0 {
		return ErrInvalidRetention
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidLogLevel, c.Log.Level)
	}

	return nil
}
