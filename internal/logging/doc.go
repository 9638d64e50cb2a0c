// Package logging provides structured logging for airscout.
//
// This package wraps a process-wide zap logger with convenience functions.
// Logging is silent by default so that terminal commands (scan, watch) are
// not interleaved with log lines; set AIRSCOUT_LOG_LEVEL or pass --log-level
// to turn it on.
//
// # Log Levels
//
//   - Debug: Browser announcements, successful fetches
//   - Info: Resolved services, server lifecycle
//   - Warn: Resolve and fetch failures (non-fatal, per device)
//   - Error: Discovery failures, sink failures
//
// # Structured Logging
//
//	logging.Info("Service resolved",
//	    zap.String("service", "airRohr-1234567"),
//	    zap.String("address", "192.168.1.40"),
//	)
//
// Domain helpers keep field names consistent across packages:
//
//	logging.LogServiceEvent("found", name, "_http._tcp")
//	logging.LogResolve(name, address, elapsed, err)
//	logging.LogFetch(name, address, len(values), err)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr in console format.
package logging
