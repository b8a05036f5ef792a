package config

import "time"

// Application constants
const (
	AppName = "DataPulse"

	// EnvPrefix namespaces every environment override, e.g. DATAPULSE_SERVER_PORT
	EnvPrefix = "DATAPULSE"

	// DefaultConfigFile is looked up in the working directory and configs/
	DefaultConfigFile = "datapulse.yaml"
)

// Ingestion limits
const (
	DefaultMaxFiles       = 10
	DefaultHeaderScanRows = 20
	DefaultDecodeWorkers  = 4
	DefaultMaxUploadBytes = 32 << 20
)

// Grading defaults
const (
	DefaultFailPolicy    = "exclude"
	DefaultPrecision     = 2
	DefaultTopPerformers = 10
	MaxPrecision         = 6
)

// Server defaults
const (
	DefaultPort            = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultUploadRPS       = 2.0
	DefaultUploadBurst     = 4
)
