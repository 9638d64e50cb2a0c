package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/airscout/internal/coordinator"
)

// ScanProgress renders a timed scan: a bar for the elapsed share of the
// scan window and a count of devices per status
type ScanProgress struct {
	Label    string        // e.g., "Scanning for sensors..."
	Duration time.Duration // Length of the scan window
	Width    int
	bar      progress.Model
}

// NewScanProgress creates a progress display for a scan lasting d
func NewScanProgress(label string, d time.Duration) *ScanProgress {
	p := &ScanProgress{Label: label, Duration: d}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sets the terminal width for responsive rendering
func (p *ScanProgress) SetWidth(width int) *ScanProgress {
	p.Width = width
	barWidth := width - 20
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
	return p
}

// Percent returns the elapsed share of the scan window, capped at 1
func (p *ScanProgress) Percent(elapsed time.Duration) float64 {
	if p.Duration <= 0 || elapsed >= p.Duration {
		return 1
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) / float64(p.Duration)
}

// Render returns the styled progress display
func (p *ScanProgress) Render(elapsed time.Duration, snap *coordinator.Snapshot) string {
	var b strings.Builder

	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}

	remaining := (p.Duration - elapsed).Round(time.Second)
	if remaining < 0 {
		remaining = 0
	}
	b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(
		fmt.Sprintf("%s  %s left", p.bar.ViewAs(p.Percent(elapsed)), remaining)))
	b.WriteString("\n\n")
	b.WriteString(ProgressLabelStyle.Render(StatusCounts(snap)))

	return b.String()
}

// StatusCounts summarizes a snapshot, e.g. "3 found • 2 ready • 1 resolving"
func StatusCounts(snap *coordinator.Snapshot) string {
	if snap == nil || snap.Len() == 0 {
		return TableMutedStyle.Render("0 found")
	}

	counts := make(map[coordinator.Status]int)
	for _, rec := range snap.Devices() {
		counts[rec.Status()]++
	}

	parts := []string{fmt.Sprintf("%d found", snap.Len())}
	for _, s := range []coordinator.Status{
		coordinator.StatusReady,
		coordinator.StatusResolved,
		coordinator.StatusResolving,
		coordinator.StatusUnresolved,
	} {
		if n := counts[s]; n > 0 {
			parts = append(parts, StatusStyle(s).Render(fmt.Sprintf("%d %s", n, s)))
		}
	}
	return strings.Join(parts, " • ")
}
