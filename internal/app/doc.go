// Package app assembles and runs the voxd daemon: configuration,
// logging, telemetry, license verification and the status API wired
// together behind one lifecycle.
//
// # Initialization Flow
//
// The typical startup sequence:
//
//	1. Load configuration from file and environment
//	2. Initialize logging and OpenTelemetry
//	3. Derive the machine identity and open the time state store
//	4. Build the license verifier and its verdict cache
//	5. Set up the chi router and middleware stack
//	6. Gate startup on the license verdict (in main)
//	7. Construct the selected providers and serve until cancelled
//
// # Usage
//
// The main entry point is typically:
//
//	application, err := app.New(cfg)
//	if err != nil {
//	    return err
//	}
//	if verdict := application.CheckLicense(ctx); !verdict.Valid {
//	    return fmt.Errorf("license check failed: %s", verdict.Message)
//	}
//	return application.Run(ctx)
//
// # Graceful Shutdown
//
// Run serves until its context is cancelled, then drains in-flight
// requests under the configured shutdown timeout, stops the metrics
// collector, closes constructed providers and flushes telemetry.
//
// # Error Handling
//
// Initialization errors are returned to the caller. The package never
// calls os.Exit, so main controls the exit code; an invalid license is
// reported through the verdict rather than an error.
package app
