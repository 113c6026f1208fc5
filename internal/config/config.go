package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/michaelbrown/pyrun/internal/sandbox"
)

type ServerConfig struct {
	Port      int     `mapstructure:"port"`
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst     int     `mapstructure:"burst"`
}

type SandboxConfig struct {
	Launcher     string        `mapstructure:"launcher"` // "local" or "docker"
	Python       string        `mapstructure:"python"`
	Workers      int           `mapstructure:"workers"`
	Timeout      time.Duration `mapstructure:"timeout"`
	StartTimeout time.Duration `mapstructure:"start_timeout"`
	MaxOutput    int           `mapstructure:"max_output"`
	Memory       string        `mapstructure:"memory"`
	Network      bool          `mapstructure:"network"`
	Image        string        `mapstructure:"image"`
	Images       []string      `mapstructure:"images"`
}

type AnalysisConfig struct {
	Python    string        `mapstructure:"python"`
	Timeout   time.Duration `mapstructure:"timeout"`
	LineWidth int           `mapstructure:"line_width"`
	CacheSize int           `mapstructure:"cache_size"`
}

type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	History bool   `mapstructure:"history"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// Load reads pyrun.yaml from the working directory or $HOME/.pyrun, applies
// PYRUN_* environment overrides and fills in defaults. A missing config file
// is not an error. A .env file in the working directory is loaded first.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pyrun")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pyrun")
	}

	v.SetEnvPrefix("pyrun")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	policy := sandbox.DefaultPolicy()

	v.SetDefault("server.port", 5001)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.burst", 10)

	v.SetDefault("sandbox.launcher", "local")
	v.SetDefault("sandbox.python", "python3")
	v.SetDefault("sandbox.workers", 2)
	v.SetDefault("sandbox.timeout", policy.MaxTimeout)
	v.SetDefault("sandbox.start_timeout", policy.StartTimeout)
	v.SetDefault("sandbox.max_output", policy.MaxOutput)
	v.SetDefault("sandbox.memory", policy.MaxMemory)
	v.SetDefault("sandbox.network", policy.Network)
	v.SetDefault("sandbox.image", policy.Images[len(policy.Images)-1])
	v.SetDefault("sandbox.images", policy.Images)

	v.SetDefault("analysis.python", "python3")
	v.SetDefault("analysis.timeout", 10*time.Second)
	v.SetDefault("analysis.line_width", 80)
	v.SetDefault("analysis.cache_size", 256)

	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".pyrun", "pyrun.db"))
	v.SetDefault("storage.history", true)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Sandbox.Launcher {
	case "local", "docker":
	default:
		return fmt.Errorf("unknown sandbox launcher: %s", c.Sandbox.Launcher)
	}
	if c.Sandbox.Workers < 1 {
		return fmt.Errorf("sandbox.workers must be at least 1, got %d", c.Sandbox.Workers)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}

// Policy returns the sandbox policy described by the config.
func (c *Config) Policy() sandbox.Policy {
	return sandbox.Policy{
		MaxMemory:    c.Sandbox.Memory,
		MaxTimeout:   c.Sandbox.Timeout,
		StartTimeout: c.Sandbox.StartTimeout,
		MaxOutput:    c.Sandbox.MaxOutput,
		Network:      c.Sandbox.Network,
		Images:       c.Sandbox.Images,
	}
}

// Launcher returns the interpreter launcher selected by sandbox.launcher.
func (c *Config) Launcher() sandbox.Launcher {
	if c.Sandbox.Launcher == "docker" {
		return sandbox.NewDockerLauncher(c.Sandbox.Image, c.Policy())
	}
	return sandbox.LocalLauncher{Python: c.Sandbox.Python}
}
