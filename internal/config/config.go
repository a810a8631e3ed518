package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Controller ControllerConfig `mapstructure:"controller"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	Sequence   SequenceConfig   `mapstructure:"sequence"`
	Templates  TemplatesConfig  `mapstructure:"templates"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Device controller that executes dispatched sequences.
type ControllerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DirectoryConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SequenceConfig struct {
	DefaultLoggingEnabled bool          `mapstructure:"default_logging_enabled"`
	DefaultFilename       string        `mapstructure:"default_filename"`
	DefaultPollingRate    int           `mapstructure:"default_polling_rate"`
	MaxFilenameLength     int           `mapstructure:"max_filename_length"`
	SessionTTL            time.Duration `mapstructure:"session_ttl"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval"`
}

type TemplatesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "opencellbench")
	v.SetDefault("database.user", "opencellbench")
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("controller.base_url", "http://localhost:21216")
	v.SetDefault("controller.timeout", "10s")
	v.SetDefault("directory.base_url", "http://localhost:21216")
	v.SetDefault("directory.timeout", "5s")

	v.SetDefault("sequence.default_logging_enabled", true)
	v.SetDefault("sequence.default_filename", "discharge_log")
	v.SetDefault("sequence.default_polling_rate", 5)
	v.SetDefault("sequence.max_filename_length", 64)
	v.SetDefault("sequence.session_ttl", "12h")
	v.SetDefault("sequence.sweep_interval", "1m")

	v.SetDefault("templates.search_paths", []string{"templates"})
}

// Load reads the YAML file at path. A missing file is not an error; defaults
// and OCB_ environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("OCB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Sequence.DefaultPollingRate < 1 || c.Sequence.DefaultPollingRate > 60 {
		return fmt.Errorf("sequence.default_polling_rate must be between 1 and 60, got %d", c.Sequence.DefaultPollingRate)
	}
	if c.Sequence.DefaultLoggingEnabled && c.Sequence.DefaultFilename == "" {
		return fmt.Errorf("sequence.default_filename is required when default logging is enabled")
	}
	if c.Controller.BaseURL == "" {
		return fmt.Errorf("controller.base_url is required")
	}
	if c.Directory.BaseURL == "" {
		return fmt.Errorf("directory.base_url is required")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}
