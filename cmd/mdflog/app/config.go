package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robotlogs/mdflog/internal/dbc"
	"github.com/robotlogs/mdflog/internal/mdf"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Storage  StorageConfig `yaml:"storage"`
	Parser   ParserConfig  `yaml:"parser"`
	CAN      CANConfig     `yaml:"can"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
	RobotID  string `yaml:"robotId"`
}

// Level parses the configured log level, defaulting to info.
func (s Settings) Level() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`

	// ImageBlobs writes image payloads as files next to the database
	// instead of inline blobs.
	ImageBlobs bool `yaml:"imageBlobs"`
}

// ParserConfig represents reader backend settings
type ParserConfig struct {
	Preference  []string `yaml:"preference"`
	Subgrouping bool     `yaml:"subgrouping"`
}

// Order maps the configured preference to backend names.
func (p ParserConfig) Order() ([]mdf.Backend, error) {
	if len(p.Preference) == 0 {
		return mdf.DefaultOrder, nil
	}

	order := make([]mdf.Backend, 0, len(p.Preference))
	for _, name := range p.Preference {
		switch backend := mdf.Backend(name); backend {
		case mdf.BackendRow, mdf.BackendBlock:
			order = append(order, backend)
		default:
			return nil, fmt.Errorf("unknown parser backend '%s'", name)
		}
	}
	return order, nil
}

// CANConfig represents CAN database settings
type CANConfig struct {
	Database string   `yaml:"database"`
	Backends []string `yaml:"backends"`
}

// Order maps the configured preference to DBC backend names.
func (c CANConfig) Order() ([]dbc.Backend, error) {
	if len(c.Backends) == 0 {
		return dbc.DefaultOrder, nil
	}

	order := make([]dbc.Backend, 0, len(c.Backends))
	for _, name := range c.Backends {
		switch backend := dbc.Backend(name); backend {
		case dbc.BackendCanGo, dbc.BackendFallback:
			order = append(order, backend)
		default:
			return nil, fmt.Errorf("unknown DBC backend '%s'", name)
		}
	}
	return order, nil
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening configuration: %w", err)
	}
	defer f.Close()

	var config Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if _, err := config.Parser.Order(); err != nil {
		return nil, err
	}
	if _, err := config.CAN.Order(); err != nil {
		return nil, err
	}
	return &config, nil
}
