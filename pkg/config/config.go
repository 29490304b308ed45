package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"avaneesh/datalink-go/pkg/channel"
	"avaneesh/datalink-go/pkg/internal/logger"
	"avaneesh/datalink-go/pkg/link"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the resolved configuration of one link endpoint
type Config struct {
	Channel    string // Channel id, see datalink.OpenChannel
	Link       link.Config
	Serial     SerialConfig
	LogLevel   logger.Level
	FrameDebug bool
	Metrics    MetricsConfig
	Fault      channel.FaultConfig
}

// SerialConfig holds the serial line settings used for device channels
type SerialConfig struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool
	Listen  string
	Path    string
}

// fileConfig is the on-disk layout shared by TOML and YAML
type fileConfig struct {
	Channel        string `toml:"channel" yaml:"channel"`
	Role           string `toml:"role" yaml:"role"`
	Timeout        string `toml:"timeout" yaml:"timeout"`
	TimeoutMS      int64  `toml:"timeout_ms" yaml:"timeout_ms"`
	MaxRetries     int    `toml:"max_retries" yaml:"max_retries"`
	MaxPayloadSize int    `toml:"max_payload_size" yaml:"max_payload_size"`
	LogLevel       string `toml:"log_level" yaml:"log_level"`
	FrameDebug     bool   `toml:"frame_debug" yaml:"frame_debug"`

	Serial struct {
		BaudRate    int    `toml:"baud_rate" yaml:"baud_rate"`
		ReadTimeout string `toml:"read_timeout" yaml:"read_timeout"`
	} `toml:"serial" yaml:"serial"`

	Metrics struct {
		Enabled bool   `toml:"enabled" yaml:"enabled"`
		Listen  string `toml:"listen" yaml:"listen"`
		Path    string `toml:"path" yaml:"path"`
	} `toml:"metrics" yaml:"metrics"`

	Fault struct {
		DropRate    float64 `toml:"drop_rate" yaml:"drop_rate"`
		CorruptRate float64 `toml:"corrupt_rate" yaml:"corrupt_rate"`
		Seed        int64   `toml:"seed" yaml:"seed"`
	} `toml:"fault" yaml:"fault"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	serial := channel.DefaultSerialConfig("")
	return &Config{
		Channel:  "/dev/ttyS0",
		Link:     link.DefaultConfig(link.RoleInitiator),
		LogLevel: logger.LevelInfo,
		Serial: SerialConfig{
			BaudRate:    serial.BaudRate,
			ReadTimeout: serial.ReadTimeout,
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
			Path:   "/metrics",
		},
	}
}

// Load reads a TOML or YAML file, chosen by extension, on top of the
// defaults and validates the result
func Load(path string) (*Config, error) {
	raw := toFile(DefaultConfig())

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.DecodeFile(path, raw)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
		}
		if meta.IsDefined("timeout") && meta.IsDefined("timeout_ms") {
			return nil, fmt.Errorf("load config: set only one of timeout and timeout_ms")
		}

	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("load config: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}

	cfg, err := raw.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// toFile renders cfg in file form so that decoding overrides only the keys
// present in the file
func toFile(cfg *Config) *fileConfig {
	raw := &fileConfig{
		Channel:        cfg.Channel,
		Role:           cfg.Link.Role.String(),
		Timeout:        cfg.Link.Timeout.String(),
		MaxRetries:     cfg.Link.MaxRetries,
		MaxPayloadSize: cfg.Link.MaxPayloadSize,
		LogLevel:       strings.ToLower(cfg.LogLevel.String()),
		FrameDebug:     cfg.FrameDebug,
	}
	raw.Serial.BaudRate = cfg.Serial.BaudRate
	raw.Serial.ReadTimeout = cfg.Serial.ReadTimeout.String()
	raw.Metrics.Enabled = cfg.Metrics.Enabled
	raw.Metrics.Listen = cfg.Metrics.Listen
	raw.Metrics.Path = cfg.Metrics.Path
	raw.Fault.DropRate = cfg.Fault.DropRate
	raw.Fault.CorruptRate = cfg.Fault.CorruptRate
	raw.Fault.Seed = cfg.Fault.Seed
	return raw
}

func (raw *fileConfig) resolve() (*Config, error) {
	cfg := DefaultConfig()
	cfg.Channel = strings.TrimSpace(raw.Channel)

	role, err := link.ParseRole(strings.ToLower(strings.TrimSpace(raw.Role)))
	if err != nil {
		return nil, fmt.Errorf("parse role %q: %w", raw.Role, err)
	}
	cfg.Link.Role = role

	timeout, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
	if err != nil {
		return nil, fmt.Errorf("parse timeout: %w", err)
	}
	if raw.TimeoutMS != 0 {
		timeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}
	cfg.Link.Timeout = timeout
	cfg.Link.MaxRetries = raw.MaxRetries
	cfg.Link.MaxPayloadSize = raw.MaxPayloadSize

	level, err := logger.ParseLevel(strings.TrimSpace(raw.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("parse log_level: %w", err)
	}
	cfg.LogLevel = level
	cfg.FrameDebug = raw.FrameDebug

	cfg.Serial.BaudRate = raw.Serial.BaudRate
	readTimeout, err := time.ParseDuration(strings.TrimSpace(raw.Serial.ReadTimeout))
	if err != nil {
		return nil, fmt.Errorf("parse serial.read_timeout: %w", err)
	}
	cfg.Serial.ReadTimeout = readTimeout

	cfg.Metrics = MetricsConfig{
		Enabled: raw.Metrics.Enabled,
		Listen:  strings.TrimSpace(raw.Metrics.Listen),
		Path:    strings.TrimSpace(raw.Metrics.Path),
	}
	cfg.Fault = channel.FaultConfig{
		DropRate:    raw.Fault.DropRate,
		CorruptRate: raw.Fault.CorruptRate,
		Seed:        raw.Fault.Seed,
	}
	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if err := c.Link.Validate(); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate)
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("serial.read_timeout must be positive, got %v", c.Serial.ReadTimeout)
	}
	if c.Metrics.Enabled {
		if c.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
		}
	}
	if c.Fault.DropRate < 0 || c.Fault.DropRate > 1 {
		return fmt.Errorf("fault.drop_rate must be within [0, 1], got %v", c.Fault.DropRate)
	}
	if c.Fault.CorruptRate < 0 || c.Fault.CorruptRate > 1 {
		return fmt.Errorf("fault.corrupt_rate must be within [0, 1], got %v", c.Fault.CorruptRate)
	}
	return nil
}

// Faulty reports whether fault injection is configured
func (c *Config) Faulty() bool {
	return c.Fault.DropRate > 0 || c.Fault.CorruptRate > 0
}
