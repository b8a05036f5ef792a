// Package app wires DataPulse together: configuration, the logger,
// OpenTelemetry, the in-memory session store and the chi router, and owns
// the HTTP server lifecycle.
//
// # Initialization Flow
//
//	1. Build the logger from the logging config
//	2. Initialize tracing and the Prometheus-backed meter
//	3. Translate grading and ingestion config into session options
//	4. Mount handlers behind RequestID, RealIP, OTel, error and security middleware
//	5. Create the HTTP server
//
// # Usage
//
//	cfg, err := config.Load("")
//	a, err := app.New(cfg, nil)
//	if err := a.Run(ctx); err != nil {
//	    return err
//	}
//
// Run returns after SIGINT, SIGTERM or cancellation of ctx, once in-flight
// requests have drained and telemetry has been flushed. The package never
// calls os.Exit.
package app
