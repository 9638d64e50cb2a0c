package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/airscout/internal/coordinator"
	"github.com/muurk/airscout/internal/ui"
)

// scanTickInterval is how often the progress bar advances
const scanTickInterval = 250 * time.Millisecond

type scanTickMsg time.Time

func scanTick() tea.Cmd {
	return tea.Tick(scanTickInterval, func(t time.Time) tea.Msg { return scanTickMsg(t) })
}

// ScanModel shows a timed scan: a progress bar, live status counts, and the
// device table as it fills in. It quits when the window elapses.
type ScanModel struct {
	updates <-chan *coordinator.Snapshot
	now     func() time.Time

	Snapshot *coordinator.Snapshot
	Started  time.Time
	Progress *ui.ScanProgress
	Aborted  bool
	Done     bool

	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Keys    scanKeyMap
}

// NewScanModel creates a scan screen lasting duration
func NewScanModel(updates <-chan *coordinator.Snapshot, duration time.Duration) ScanModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return ScanModel{
		updates:  updates,
		now:      time.Now,
		Started:  time.Now(),
		Progress: ui.NewScanProgress("Scanning your network for airRohr sensors...", duration),
		Spinner:  s,
		Help:     help.New(),
		Keys:     newScanKeyMap(),
	}
}

// Init starts the countdown
func (m ScanModel) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.updates), m.Spinner.Tick, scanTick())
}

// Update handles messages and updates the model
func (m ScanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			m.Aborted = true
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Stop):
			m.Done = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.SetWidth(msg.Width - 4)

	case snapshotMsg:
		m.Snapshot = msg.snap
		return m, waitForSnapshot(m.updates)

	case updatesClosedMsg:
		m.Done = true
		return m, tea.Quit

	case scanTickMsg:
		if m.now().Sub(m.Started) >= m.Progress.Duration {
			m.Done = true
			return m, tea.Quit
		}
		return m, scanTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the scan screen
func (m ScanModel) View() string {
	width := m.Width
	if width == 0 {
		width = 80
	}

	table := ui.NewDeviceTable(m.Snapshot)
	table.Width = width - 4

	content := "\n  " + TitleStyle.Render(m.Spinner.View()+" SEARCHING FOR SENSORS") + "\n\n" +
		m.Progress.Render(m.now().Sub(m.Started), m.Snapshot) + "\n\n" +
		table.Render() + "\n"

	return renderContainer(content, m.Help.View(m.Keys), m.Width, m.Height)
}
