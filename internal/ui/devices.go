package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/airscout/internal/airrohr"
	"github.com/muurk/airscout/internal/coordinator"
)

// NameFunc maps a service name to the label shown for it
type NameFunc func(name string) string

// DeviceTable renders a snapshot as a table of devices
type DeviceTable struct {
	Snapshot *coordinator.Snapshot
	Names    NameFunc // optional, e.g. registry nicknames
	Selected int      // highlighted row, -1 for none
	Width    int
}

// NewDeviceTable creates a table for snap with no row selected
func NewDeviceTable(snap *coordinator.Snapshot) *DeviceTable {
	return &DeviceTable{
		Snapshot: snap,
		Selected: -1,
		Width:    GetTerminalWidth(),
	}
}

const (
	colMarker  = 2
	colName    = 24
	colAddress = 22
)

// Render returns the table, or a placeholder when no device is known
func (t *DeviceTable) Render() string {
	if t.Snapshot == nil || t.Snapshot.Len() == 0 {
		return TableMutedStyle.Render("  No sensors found yet")
	}

	width := t.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	colReadings := width - colMarker - colName - colAddress - 4
	if colReadings < 10 {
		colReadings = 10
	}

	lines := []string{
		"  " + pad(TableHeaderStyle.Render("SENSOR"), colName) +
			pad(TableHeaderStyle.Render("ADDRESS"), colAddress) +
			TableHeaderStyle.Render("READINGS"),
	}

	for i, rec := range t.Snapshot.Devices() {
		status := rec.Status()
		marker := StatusStyle(status).Render(StatusMarker(status))

		label := rec.Name
		if t.Names != nil {
			label = t.Names(rec.Name)
		}
		nameStyle := TableCellStyle
		if i == t.Selected {
			nameStyle = nameStyle.Foreground(PrimaryColor).Bold(true)
			marker = lipgloss.NewStyle().Foreground(PrimaryColor).Render("→")
		}

		line := pad(marker, colMarker) +
			pad(nameStyle.Render(truncate(label, colName-1)), colName) +
			pad(addressCell(rec), colAddress) +
			readingsCell(rec, colReadings)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// String implements fmt.Stringer
func (t *DeviceTable) String() string {
	return t.Render()
}

func addressCell(rec coordinator.DeviceRecord) string {
	switch rec.Status() {
	case coordinator.StatusResolving:
		return StatusStyle(coordinator.StatusResolving).Render("resolving…")
	case coordinator.StatusUnresolved:
		if rec.ResolveError != "" {
			return ErrorMessageStyle.Render("unresolved")
		}
		return TableMutedStyle.Render("-")
	}
	return TableCellStyle.Render(rec.Service.HostAddress())
}

func readingsCell(rec coordinator.DeviceRecord, width int) string {
	if rec.FetchError != "" {
		return ErrorMessageStyle.Render(truncate(rec.FetchError, width))
	}
	if rec.Readings == nil {
		return TableMutedStyle.Render("-")
	}
	summary := rec.Readings.Summary()
	if len(rec.Readings.Known()) == 0 {
		return TableMutedStyle.Render(truncate(summary, width))
	}
	return TableCellStyle.Render(truncate(summary, width))
}

// ReadingsDetails lists every known reading as result details, followed by
// the firmware version
func ReadingsDetails(r *airrohr.Readings) []Param {
	if r == nil {
		return nil
	}
	var details []Param
	for _, v := range r.Known() {
		details = append(details, Param{Key: v.Kind().String(), Value: v.Format()})
	}
	if r.SoftwareVersion != "" {
		details = append(details, Param{Key: "Firmware", Value: r.SoftwareVersion})
	}
	if r.Age != "" {
		details = append(details, Param{Key: "Measured", Value: r.Age + "s ago"})
	}
	return details
}

// pad right-pads s to width visible cells
func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// truncate shortens s to at most width runes, marking the cut with "…"
func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(runes[:width-1]) + "…"
}
