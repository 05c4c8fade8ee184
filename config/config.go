/*
Package config loads the settings shared by every command from the
environment.
*/
package config

import (
	"errors"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Config holds environment-backed settings. Command line flags override
// them.
type Config struct {
	WorldDir  string `env:"MCMAP_WORLD"      envDefault:"../minecraft/saves/world"`
	OutputDir string `env:"MCMAP_OUTPUT_DIR"`
	DB        string `env:"MCMAP_DB"         envDefault:"mcmap.db"`

	Workers      int `env:"MCMAP_WORKERS"`
	QueueDepth   int `env:"MCMAP_QUEUE_DEPTH"    envDefault:"4"`
	Retries      int `env:"MCMAP_RETRIES"        envDefault:"3"`
	RetryDelayMs int `env:"MCMAP_RETRY_DELAY_MS" envDefault:"500"`

	FFmpeg  string `env:"MCMAP_FFMPEG"  envDefault:"ffmpeg"`
	FFprobe string `env:"MCMAP_FFPROBE" envDefault:"ffprobe"`

	DataVersion int    `env:"MCMAP_DATA_VERSION" envDefault:"3465"`
	Resampling  string `env:"MCMAP_RESAMPLING"   envDefault:"box"`

	LogLevel    string `env:"MCMAP_LOG_LEVEL"    envDefault:"info"`
	MetricsAddr string `env:"MCMAP_METRICS_ADDR"`
}

// Load parses the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg, nil
}

// MapDir returns the directory map files are written to.
func (c *Config) MapDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.WorldDir, "data", "video", "maps")
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return errors.New("config: workers must be positive")
	case c.QueueDepth <= 0:
		return errors.New("config: queue depth must be positive")
	case c.Retries < 0:
		return errors.New("config: retries must not be negative")
	case c.RetryDelayMs < 0:
		return errors.New("config: retry delay must not be negative")
	case c.DataVersion <= 0:
		return errors.New("config: data version must be positive")
	case c.MapDir() == "":
		return errors.New("config: no output directory")
	}
	return nil
}
