// Package config loads runtime settings from an optional YAML file, a .env
// file and AGENTFLOW_ environment variables, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agentflow/agentflow/pkg/serialization"
	"github.com/agentflow/agentflow/pkg/validation"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "AGENTFLOW_"

// Journal backends
const (
	JournalNone     = "none"
	JournalMemory   = "memory"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

// Config holds all configuration for the binaries
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Journal  JournalConfig  `yaml:"journal"`
	Canvas   CanvasConfig   `yaml:"canvas"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	EventBuffer     int           `yaml:"event_buffer" validate:"gt=0"`
	MaxSubscribers  int           `yaml:"max_subscribers" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// PipelineConfig selects what to animate. File wins over Name.
type PipelineConfig struct {
	Name string `yaml:"name" validate:"omitempty,pipeline_name"`
	File string `yaml:"file"`
	// Seed fixes the random source; nil seeds from the clock.
	Seed *int64 `yaml:"seed"`
}

type JournalConfig struct {
	Backend     string        `yaml:"backend" validate:"oneof=none memory sqlite postgres"`
	SQLitePath  string        `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
	PostgresDSN string        `yaml:"postgres_dsn" validate:"required_if=Backend postgres"`
	Codec       string        `yaml:"codec" validate:"oneof=json msgpack"`
	Compression string        `yaml:"compression" validate:"oneof=none gzip zstd"`
	TTL         time.Duration `yaml:"ttl" validate:"gte=0"`
	MaxBytes    int64         `yaml:"max_bytes" validate:"gte=0"`
	QueueSize   int           `yaml:"queue_size" validate:"gt=0"`
	SaveTimeout time.Duration `yaml:"save_timeout" validate:"gte=0"`
}

// CanvasConfig sizes the canvas used by the CLI and TUI
type CanvasConfig struct {
	Width  float64 `yaml:"width" validate:"gt=0"`
	Height float64 `yaml:"height" validate:"gt=0"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "localhost:8080",
			ShutdownTimeout: 10 * time.Second,
			EventBuffer:     64,
		},
		Log:      LogConfig{Level: "info", Format: "json"},
		Pipeline: PipelineConfig{Name: "classic"},
		Journal: JournalConfig{
			Backend:     JournalMemory,
			SQLitePath:  "agentflow.db",
			Codec:       "msgpack",
			Compression: "zstd",
			TTL:         24 * time.Hour,
			MaxBytes:    64 << 20,
			QueueSize:   256,
			SaveTimeout: 5 * time.Second,
		},
		Canvas: CanvasConfig{Width: 1200, Height: 700},
	}
}

// Load builds the configuration. path names an optional YAML file; envFiles
// are loaded with godotenv and default to ".env". Missing .env files are
// ignored; a missing YAML file is an error.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every field
func (c *Config) Validate() error {
	return validation.ValidateWithPlayground(c)
}

// Serializer builds the journal serializer
func (c *Config) Serializer() (*serialization.Serializer, error) {
	codec, err := serialization.CodecByName(c.Journal.Codec)
	if err != nil {
		return nil, err
	}
	compression, err := serialization.ParseCompression(c.Journal.Compression)
	if err != nil {
		return nil, err
	}
	return serialization.New(serialization.SerializationConfig{Codec: codec, Compression: compression})
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := getenv(EnvPrefix + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &c.Server.Addr)
	duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	integer("EVENT_BUFFER", &c.Server.EventBuffer)
	integer("MAX_SUBSCRIBERS", &c.Server.MaxSubscribers)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("PIPELINE", &c.Pipeline.Name)
	str("PIPELINE_FILE", &c.Pipeline.File)
	if v := getenv(EnvPrefix + "SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			c.Pipeline.Seed = &seed
		}
	}
	str("JOURNAL", &c.Journal.Backend)
	str("SQLITE_PATH", &c.Journal.SQLitePath)
	str("POSTGRES_DSN", &c.Journal.PostgresDSN)
	str("JOURNAL_CODEC", &c.Journal.Codec)
	str("JOURNAL_COMPRESSION", &c.Journal.Compression)
	duration("JOURNAL_TTL", &c.Journal.TTL)
	integer("JOURNAL_QUEUE", &c.Journal.QueueSize)
	duration("JOURNAL_SAVE_TIMEOUT", &c.Journal.SaveTimeout)
	if v := getenv(EnvPrefix + "JOURNAL_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sJOURNAL_MAX_BYTES: %w", EnvPrefix, err))
		} else {
			c.Journal.MaxBytes = n
		}
	}
	float("CANVAS_WIDTH", &c.Canvas.Width)
	float("CANVAS_HEIGHT", &c.Canvas.Height)

	return errors.Join(errs...)
}
