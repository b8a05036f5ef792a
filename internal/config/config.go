package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Ingestion IngestionConfig `yaml:"ingestion" envconfig:"INGESTION"`
	Grading   GradingConfig   `yaml:"grading" envconfig:"GRADING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	UploadRPS       float64       `yaml:"upload_rps" envconfig:"UPLOAD_RPS"`
	UploadBurst     int           `yaml:"upload_burst" envconfig:"UPLOAD_BURST"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// IngestionConfig bounds spreadsheet batches
type IngestionConfig struct {
	MaxFiles       int `yaml:"max_files" envconfig:"MAX_FILES"`
	HeaderScanRows int `yaml:"header_scan_rows" envconfig:"HEADER_SCAN_ROWS"`
	DecodeWorkers  int `yaml:"decode_workers" envconfig:"DECODE_WORKERS"`
}

// GradeEntry is one row of the grade table
type GradeEntry struct {
	Symbol  string  `yaml:"symbol"`
	Points  float64 `yaml:"points"`
	Passing bool    `yaml:"passing"`
}

// GradingConfig drives the grade-point engine
type GradingConfig struct {
	Scale         []GradeEntry `yaml:"scale" ignored:"true"`
	FailPolicy    string       `yaml:"fail_policy" envconfig:"FAIL_POLICY"`
	Precision     int          `yaml:"precision" envconfig:"PRECISION"`
	TopPerformers int          `yaml:"top_performers" envconfig:"TOP_PERFORMERS"`
}

// TelemetryConfig toggles OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TracesEnabled  bool   `yaml:"traces_enabled" envconfig:"TRACES_ENABLED"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// Load resolves configuration from defaults, an optional YAML file and the
// environment. An empty path searches the default locations and tolerates
// a missing file; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if c.Server.UploadRPS <= 0 || c.Server.UploadBurst <= 0 {
		return fmt.Errorf("upload rate limit must be positive")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("log output %q needs a file path", c.Logging.Output)
		}
	default:
		return fmt.Errorf("unknown log output %q", c.Logging.Output)
	}

	if c.Ingestion.MaxFiles < 1 {
		return fmt.Errorf("ingestion max files must be at least 1, got %d", c.Ingestion.MaxFiles)
	}
	if c.Ingestion.HeaderScanRows < 1 {
		return fmt.Errorf("header scan rows must be at least 1, got %d", c.Ingestion.HeaderScanRows)
	}
	if c.Ingestion.DecodeWorkers < 1 {
		return fmt.Errorf("decode workers must be at least 1, got %d", c.Ingestion.DecodeWorkers)
	}

	switch strings.ToLower(c.Grading.FailPolicy) {
	case "exclude", "zero":
	default:
		return fmt.Errorf("unknown fail policy %q (want exclude or zero)", c.Grading.FailPolicy)
	}
	if c.Grading.Precision < 0 || c.Grading.Precision > MaxPrecision {
		return fmt.Errorf("grading precision must be within 0..%d, got %d", MaxPrecision, c.Grading.Precision)
	}
	if c.Grading.TopPerformers < 0 {
		return fmt.Errorf("top performers must not be negative")
	}
	seen := make(map[string]bool, len(c.Grading.Scale))
	for _, g := range c.Grading.Scale {
		sym := strings.ToUpper(strings.TrimSpace(g.Symbol))
		if sym == "" {
			return fmt.Errorf("grade table has an entry without a symbol")
		}
		if seen[sym] {
			return fmt.Errorf("grade table lists %q twice", sym)
		}
		if g.Points < 0 {
			return fmt.Errorf("grade %q has negative points", sym)
		}
		seen[sym] = true
	}

	return nil
}

// findConfigFile returns the first default config location that exists
func findConfigFile() string {
	locations := []string{
		DefaultConfigFile,
		filepath.Join("configs", DefaultConfigFile),
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxUploadBytes:  DefaultMaxUploadBytes,
			UploadRPS:       DefaultUploadRPS,
			UploadBurst:     DefaultUploadBurst,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Ingestion: IngestionConfig{
			MaxFiles:       DefaultMaxFiles,
			HeaderScanRows: DefaultHeaderScanRows,
			DecodeWorkers:  DefaultDecodeWorkers,
		},
		Grading: GradingConfig{
			FailPolicy:    DefaultFailPolicy,
			Precision:     DefaultPrecision,
			TopPerformers: DefaultTopPerformers,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "datapulse",
			MetricsEnabled: true,
		},
	}
}
