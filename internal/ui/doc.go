// Package ui provides terminal output components for the airscout CLI.
//
// These components use Lipgloss to render one-shot command output. They
// render once and return strings; the interactive watch screen lives in
// the tui package and reuses them.
//
// # Components
//
//   - Header: Command banner showing operation name and parameters
//   - DeviceTable: One row per discovered sensor with status and readings
//   - ScanProgress: Progress bar and status counts for a timed scan
//   - Result: Success/failure boxes with details and troubleshooting hints
//
// # Usage Pattern
//
//	p := ui.NewPrinter(os.Stdout)
//	p.PrintHeader(ui.NewHeader("Sensor Scan", "airscout scan",
//	    ui.Param{Key: "Duration", Value: "30s"}))
//	p.PrintDevices(ui.NewDeviceTable(snapshot))
//
// Failures are printed with hints chosen from the error type:
//
//	p.PrintError("airRohr-1234567", err)
//
// # Logging Integration
//
// Logging is controlled by AIRSCOUT_LOG_LEVEL. When unset, zap logging is
// silent so that the styled output is displayed cleanly.
package ui
