package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/airscout/internal/coordinator"
	"github.com/muurk/airscout/internal/ui"
)

// commandTimeout bounds how long a key press waits for the coordinator
const commandTimeout = 5 * time.Second

// Devices is the part of the coordinator the screens drive
type Devices interface {
	Snapshot() *coordinator.Snapshot
	Resolve(ctx context.Context, name string) error
	Refresh(ctx context.Context, name string) error
}

// Messages for async operations
type snapshotMsg struct {
	snap *coordinator.Snapshot
}

type updatesClosedMsg struct{}

type commandDoneMsg struct {
	action string
	name   string
	err    error
}

// waitForSnapshot blocks on the next published snapshot
func waitForSnapshot(updates <-chan *coordinator.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return snapshotMsg{snap: snap}
	}
}

// WatchModel is the live device list
type WatchModel struct {
	devices Devices
	updates <-chan *coordinator.Snapshot

	// Names maps service names to display labels
	Names ui.NameFunc

	Snapshot    *coordinator.Snapshot
	Cursor      int
	ShowDetails bool
	Status      string
	Closed      bool

	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Keys    watchKeyMap
}

// NewWatchModel creates a watch screen fed by updates, which is normally
// the channel returned by Coordinator.Subscribe
func NewWatchModel(devices Devices, updates <-chan *coordinator.Snapshot) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return WatchModel{
		devices:  devices,
		updates:  updates,
		Snapshot: devices.Snapshot(),
		Spinner:  s,
		Help:     help.New(),
		Keys:     newWatchKeyMap(),
	}
}

// Init starts listening for snapshots
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.updates), m.Spinner.Tick)
}

// Update handles messages and updates the model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width - 4

	case snapshotMsg:
		m.Snapshot = msg.snap
		m.clampCursor()
		return m, waitForSnapshot(m.updates)

	case updatesClosedMsg:
		m.Closed = true
		m.Status = "Discovery stopped"

	case commandDoneMsg:
		if msg.err != nil {
			m.Status = fmt.Sprintf("%s %s failed: %v", msg.action, msg.name, msg.err)
		} else {
			m.Status = fmt.Sprintf("%s %s requested", msg.action, msg.name)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m WatchModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Up):
		if m.Cursor > 0 {
			m.Cursor--
		}

	case key.Matches(msg, m.Keys.Down):
		if m.Snapshot != nil && m.Cursor < m.Snapshot.Len()-1 {
			m.Cursor++
		}

	case key.Matches(msg, m.Keys.Details):
		m.ShowDetails = !m.ShowDetails

	case key.Matches(msg, m.Keys.Resolve):
		if name, ok := m.selected(); ok {
			return m, m.command("Resolve", name, m.devices.Resolve)
		}

	case key.Matches(msg, m.Keys.Refresh):
		if name, ok := m.selected(); ok {
			return m, m.command("Fetch", name, m.devices.Refresh)
		}

	case key.Matches(msg, m.Keys.Help):
		m.Help.ShowAll = !m.Help.ShowAll
	}
	return m, nil
}

func (m WatchModel) command(action, name string, fn func(context.Context, string) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return commandDoneMsg{action: action, name: name, err: fn(ctx, name)}
	}
}

func (m *WatchModel) clampCursor() {
	n := 0
	if m.Snapshot != nil {
		n = m.Snapshot.Len()
	}
	if m.Cursor >= n {
		m.Cursor = n - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
}

// selected returns the name of the device under the cursor
func (m WatchModel) selected() (string, bool) {
	if m.Snapshot == nil {
		return "", false
	}
	names := m.Snapshot.Names()
	if m.Cursor < 0 || m.Cursor >= len(names) {
		return "", false
	}
	return names[m.Cursor], true
}

// View renders the watch screen
func (m WatchModel) View() string {
	width := m.Width
	if width == 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString("\n")

	title := fmt.Sprintf("%s WATCHING FOR SENSORS", m.Spinner.View())
	if m.Closed {
		title = "DISCOVERY STOPPED"
	}
	b.WriteString("  " + TitleStyle.Render(title) + "  " + ui.StatusCounts(m.Snapshot))
	b.WriteString("\n\n")

	table := ui.NewDeviceTable(m.Snapshot)
	table.Names = m.Names
	table.Width = width - 4
	if m.Snapshot != nil && m.Snapshot.Len() > 0 {
		table.Selected = m.Cursor
	}
	b.WriteString(table.Render())
	b.WriteString("\n")

	if m.ShowDetails {
		if details := m.renderDetails(width - 8); details != "" {
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().MarginLeft(2).Render(details))
			b.WriteString("\n")
		}
	}

	if m.Status != "" {
		b.WriteString("\n  " + StatusLineStyle.Render(m.Status) + "\n")
	}

	return renderContainer(b.String(), m.Help.View(m.Keys), m.Width, m.Height)
}

// renderDetails renders the selected device's full record
func (m WatchModel) renderDetails(width int) string {
	name, ok := m.selected()
	if !ok {
		return ""
	}
	rec, _ := m.Snapshot.Get(name)

	lines := []string{TitleStyle.Render(rec.Name), ""}
	add := func(k, v string) {
		lines = append(lines, ui.ResultKeyStyle.Render(k+":")+" "+ui.ResultValueStyle.Render(v))
	}

	add("Status", string(rec.Status()))
	if url := rec.URL(); url != "" {
		add("URL", url)
	}
	if rec.Service.HostName != "" {
		add("Host", rec.Service.HostName)
	}
	if rec.ResolveError != "" {
		add("Resolve error", rec.ResolveError)
	}
	if rec.FetchError != "" {
		add("Fetch error", rec.FetchError)
	}
	for _, d := range ui.ReadingsDetails(rec.Readings) {
		add(d.Key, d.Value)
	}
	if rec.Readings != nil && !rec.Readings.FetchedAt.IsZero() {
		add("Fetched", rec.Readings.FetchedAt.Format(time.TimeOnly))
	}

	if width < 30 {
		width = 30
	}
	return DetailBoxStyle.Width(width).Render(strings.Join(lines, "\n"))
}
