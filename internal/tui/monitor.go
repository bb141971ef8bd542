// internal/tui/monitor.go
//
// Playback monitor for `choreo play`. It uses bubbletea, which follows The
// Elm Architecture: player events arrive as messages, Update folds them into
// the row states, and View renders the table.

package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/choreo/internal/backend"
	"github.com/kingrea/choreo/internal/logbook"
	"github.com/kingrea/choreo/internal/timeline"
)

type rowState int

const (
	rowPending rowState = iota
	rowRunning
	rowFinished
	rowStopped
)

func (s rowState) String() string {
	switch s {
	case rowRunning:
		return "running"
	case rowFinished:
		return "done"
	case rowStopped:
		return "stopped"
	default:
		return "pending"
	}
}

// playerEventMsg wraps one backend event.
type playerEventMsg struct {
	event backend.Event
	ok    bool
}

// MonitorOption customizes the monitor.
type MonitorOption func(*Monitor)

// WithLogbook shows the tail of the commit journal under the table.
func WithLogbook(book *logbook.Logbook) MonitorOption {
	return func(m *Monitor) {
		m.logbook = book
	}
}

// WithStop is called when the user quits before playback finishes.
func WithStop(stop func()) MonitorOption {
	return func(m *Monitor) {
		m.stop = stop
	}
}

// Monitor follows a committed schedule while a Player runs it.
type Monitor struct {
	schedule timeline.Schedule
	events   <-chan backend.Event
	logbook  *logbook.Logbook
	stop     func()

	table     table.Model
	states    []rowState
	handles   map[string]int
	finished  int
	done      bool
	statusMsg string
}

// NewMonitor builds the model for sched fed by events.
func NewMonitor(sched timeline.Schedule, events <-chan backend.Event, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		schedule:  sched,
		events:    events,
		states:    make([]rowState, len(sched.Entries)),
		handles:   make(map[string]int, len(sched.Entries)),
		statusMsg: "Playing… q to stop",
	}
	for i, entry := range sched.Entries {
		if entry.Handle != "" {
			m.handles[entry.Handle] = i
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	columns := []table.Column{
		{Title: "#", Width: 3},
		{Title: "Effect", Width: 14},
		{Title: "Subject", Width: 12},
		{Title: "Label", Width: 12},
		{Title: "Begin", Width: 9},
		{Title: "End", Width: 9},
		{Title: "State", Width: 8},
	}
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	m.table = table.New(
		table.WithColumns(columns),
		table.WithRows(m.rows()),
		table.WithFocused(true),
		table.WithHeight(min(len(sched.Entries)+1, 15)),
		table.WithStyles(styles),
	)
	return m
}

// row finds the schedule entry of an effect. Effects without a completion
// handle are matched by their position in the batch.
func (m *Monitor) row(effect backend.Effect) (int, bool) {
	if effect.Handle != "" {
		idx, ok := m.handles[effect.Handle]
		return idx, ok
	}
	if effect.Seq < 0 || effect.Seq >= len(m.schedule.Entries) {
		return 0, false
	}
	if m.schedule.Entries[effect.Seq].Handle != "" {
		return 0, false
	}
	return effect.Seq, true
}

// Init starts listening for player events.
func (m *Monitor) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m *Monitor) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		return playerEventMsg{event: ev, ok: ok}
	}
}

// Update folds events and key presses into the model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.done && m.stop != nil {
				m.stop()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.table.SetHeight(max(3, min(len(m.schedule.Entries)+1, msg.Height-10)))
		return m, nil
	case playerEventMsg:
		if !msg.ok {
			m.done = true
			return m, tea.Quit
		}
		m.apply(msg.event)
		m.table.SetRows(m.rows())
		if m.done {
			return m, tea.Quit
		}
		return m, m.waitForEvent()
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Monitor) apply(ev backend.Event) {
	switch ev.Kind {
	case backend.EventStarted, backend.EventFinished:
		idx, ok := m.row(ev.Effect)
		if !ok {
			return
		}
		if ev.Kind == backend.EventStarted {
			if m.states[idx] == rowPending {
				m.states[idx] = rowRunning
			}
			return
		}
		if m.states[idx] != rowFinished {
			m.states[idx] = rowFinished
			m.finished++
		}
		m.statusMsg = fmt.Sprintf("%s finished at %s", ev.Effect.Name, formatClock(ev.At))
	case backend.EventBatch:
		m.done = true
		m.statusMsg = fmt.Sprintf("Block finished at %s", formatClock(ev.At))
	case backend.EventStopped:
		for i, state := range m.states {
			if state != rowFinished {
				m.states[i] = rowStopped
			}
		}
		m.done = true
		m.statusMsg = "Playback stopped"
	}
}

func (m *Monitor) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.schedule.Entries))
	for i, entry := range m.schedule.Entries {
		cells := entryCells(i, entry)
		rows = append(rows, table.Row{cells[0], cells[1], cells[2], cells[3], cells[4], cells[5], m.states[i].String()})
	}
	return rows
}

// Finished returns how many effects have completed.
func (m *Monitor) Finished() int { return m.finished }

// Done reports whether playback ended.
func (m *Monitor) Done() bool { return m.done }

// View renders the monitor.
func (m *Monitor) View() string {
	header := headerStyle.Render("◆ CHOREO")
	progress := titleStyle.Render(fmt.Sprintf("%d/%d finished · span %s", m.finished, len(m.schedule.Entries), m.schedule.Span()))
	sections := []string{header, progress, boxStyle.Render(m.table.View()), Legend()}
	if panel := m.renderLogPanel(); panel != "" {
		sections = append(sections, panel)
	}
	sections = append(sections, footerStyle.Render(m.renderStatus()))
	return strings.Join(sections, "\n")
}

func (m *Monitor) renderStatus() string {
	switch {
	case m.done:
		return m.statusMsg
	case m.finished == 0:
		return statusPending.Render(m.statusMsg)
	default:
		return statusRunning.Render(m.statusMsg)
	}
}

func (m *Monitor) renderLogPanel() string {
	if m.logbook == nil {
		return ""
	}
	lines, total := m.logbook.Tail(6)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(m.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "journal"
	}
	head := titleStyle.Render(fmt.Sprintf("JOURNAL · %s (%d lines)", fileName, total))
	return boxStyle.Render(fmt.Sprintf("%s\n%s", head, logBodyStyle.Render(strings.Join(lines, "\n"))))
}

// Legend renders the row state colors for the help line.
func Legend() string {
	parts := []string{
		statusPending.Render(rowPending.String()),
		statusRunning.Render(rowRunning.String()),
		statusDone.Render(rowFinished.String()),
		statusStopped.Render(rowStopped.String()),
	}
	return hintStyle.Render(strings.Join(parts, " · "))
}
