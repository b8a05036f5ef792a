// Package config loads DataPulse configuration.
//
// # Configuration Sources
//
// Values are resolved in this order, later sources winning:
//
//	1. Default() values
//	2. A YAML file (datapulse.yaml, configs/datapulse.yaml, or an explicit path)
//	3. Environment variables prefixed with DATAPULSE_
//
// # Environment Variables
//
//	DATAPULSE_SERVER_PORT=9090
//	DATAPULSE_LOGGING_LEVEL=debug
//	DATAPULSE_INGESTION_MAX_FILES=5
//	DATAPULSE_GRADING_FAIL_POLICY=zero
//	DATAPULSE_TELEMETRY_TRACES_ENABLED=true
//
// # Grade Table
//
// The grade table can only be set from the YAML file:
//
//	grading:
//	  fail_policy: exclude
//	  precision: 2
//	  scale:
//	    - {symbol: "O", points: 10, passing: true}
//	    - {symbol: "A+", points: 9, passing: true}
//	    - {symbol: "U", points: 0, passing: false}
//
// An empty scale keeps the built-in 10-point table.
package config
