package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shootingstick/ss"
)

const (
	envPrefix                = "SHOOTINGSTICK"
	defaultDataDir           = "data"
	defaultViewRoot          = "couch"
	defaultHTTPAddress       = "0.0.0.0:5984"
	defaultLogLevel          = "info"
	defaultBatchSize         = 100
	defaultUpdateParallelism = 4
	defaultScriptTimeout     = 5 * time.Second
	defaultCompression       = "zstd"
	defaultCompressThreshold = 1024
)

// AppConfig captures runtime configuration for the server and the CLI.
type AppConfig struct {
	DataDir           string
	ViewRoot          string
	HTTPAddress       string
	CORSOrigins       []string
	LogLevel          string
	BatchSize         int
	UpdateParallelism int
	ScriptTimeout     time.Duration
	Compression       ss.Compression
	CompressThreshold int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("data.dir", defaultDataDir)
	configViper.SetDefault("views.root", defaultViewRoot)
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.cors_origins", []string{"*"})
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("update.batch_size", defaultBatchSize)
	configViper.SetDefault("update.parallelism", defaultUpdateParallelism)
	configViper.SetDefault("script.timeout", defaultScriptTimeout)
	configViper.SetDefault("store.compression", defaultCompression)
	configViper.SetDefault("store.compress_threshold", defaultCompressThreshold)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	comp, err := ss.ParseCompression(configViper.GetString("store.compression"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("store.compression: %w", err)
	}
	cfg := AppConfig{
		DataDir:           configViper.GetString("data.dir"),
		ViewRoot:          configViper.GetString("views.root"),
		HTTPAddress:       configViper.GetString("http.address"),
		CORSOrigins:       configViper.GetStringSlice("http.cors_origins"),
		LogLevel:          configViper.GetString("log.level"),
		BatchSize:         configViper.GetInt("update.batch_size"),
		UpdateParallelism: configViper.GetInt("update.parallelism"),
		ScriptTimeout:     configViper.GetDuration("script.timeout"),
		Compression:       comp,
		CompressThreshold: configViper.GetInt("store.compress_threshold"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data.dir is required")
	}
	if strings.TrimSpace(c.ViewRoot) == "" {
		return fmt.Errorf("views.root is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("update.batch_size must be positive")
	}
	if c.UpdateParallelism <= 0 {
		return fmt.Errorf("update.parallelism must be positive")
	}
	if c.ScriptTimeout <= 0 {
		return fmt.Errorf("script.timeout must be positive")
	}
	if c.CompressThreshold < 0 {
		return fmt.Errorf("store.compress_threshold must not be negative")
	}
	return nil
}

// StoreOptions returns the library options implied by the configuration.
func (c AppConfig) StoreOptions() ss.Options {
	return ss.Options{
		ViewRoot:          c.ViewRoot,
		BatchSize:         c.BatchSize,
		ScriptTimeout:     c.ScriptTimeout,
		Compression:       c.Compression,
		CompressThreshold: c.CompressThreshold,
	}
}
