// Package tui implements the interactive airscout screens with Bubble Tea.
//
// Both screens are driven by snapshots from a running coordinator:
//
//	updates, cancel := coord.Subscribe()
//	defer cancel()
//	p := tea.NewProgram(tui.NewWatchModel(coord, updates), tea.WithAltScreen())
//	_, err := p.Run()
//
// WatchModel lists every device live and lets the user request a resolve
// or a readings fetch for the selected one. ScanModel runs for a fixed
// window and quits, leaving the caller to print the final table.
//
// Key presses never block the UI; coordinator commands run as tea.Cmds and
// report back with a status line.
package tui
