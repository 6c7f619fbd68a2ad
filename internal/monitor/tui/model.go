package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/midealan/adapter"
	"github.com/muurk/midealan/discovery"
)

// StatusMsg is sent into the bubbletea program whenever a session's
// Observer fires; the caller bridges session callbacks to Program.Send.
type StatusMsg struct {
	DeviceID uint64
	Status   adapter.Status
}

type row struct {
	descriptor discovery.Descriptor
	status     adapter.Status
	updated    time.Time
}

type keyMap struct {
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Quit}} }

// Model is the top-level bubbletea model for the live device table.
type Model struct {
	rows  map[uint64]*row
	keys  keyMap
	help  help.Model
	width int
}

// NewModel seeds the table with the descriptors discovered before the
// TUI started; status cells are populated as StatusMsg values arrive.
func NewModel(descs []discovery.Descriptor) Model {
	rows := make(map[uint64]*row, len(descs))
	for _, d := range descs {
		rows[d.ID] = &row{descriptor: d}
	}
	return Model{
		rows: rows,
		keys: keyMap{
			Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		},
		help:  help.New(),
		width: terminalWidth(),
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.width < minTerminalWidth {
			m.width = minTerminalWidth
		}
		if m.width > maxContentWidth {
			m.width = maxContentWidth
		}
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
	case StatusMsg:
		if r, ok := m.rows[msg.DeviceID]; ok {
			r.status = msg.Status
			r.updated = time.Now()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("midea-probe monitor"))
	b.WriteString("\n\n")
	b.WriteString(headerRowStyle.Render(fmt.Sprintf("%-20s %-16s %-16s %-8s %s", "DEVICE ID", "TYPE", "ADDRESS", "AVAIL", "LAST STATUS")))
	b.WriteString("\n")

	ids := make([]uint64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		r := m.rows[id]
		avail := "?"
		if v, ok := r.status["available"].(bool); ok {
			if v {
				avail = "yes"
			} else {
				avail = "no"
			}
		}
		last := "-"
		if !r.updated.IsZero() {
			last = fmt.Sprintf("%v ago", time.Since(r.updated).Round(time.Second))
		}
		last = truncate(last, m.fixedColumnWidth())
		availCell := availabilityStyle(avail).Render(fmt.Sprintf("%-8s", avail))
		fmt.Fprintf(&b, "%-20d %-16s %-16s %s %s\n",
			id, adapter.Name(r.descriptor.ApplianceType), r.descriptor.TCPAddr(), availCell, last)
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// fixedColumnWidth returns the space left for the LAST STATUS column once
// the four fixed-width columns and their separators are accounted for,
// so the table never wraps past the terminal the way a raw %s would.
func (m Model) fixedColumnWidth() int {
	const fixedColumns = 20 + 1 + 16 + 1 + 16 + 1 + 8 + 1
	room := m.width - fixedColumns
	if room < 8 {
		room = 8
	}
	return room
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	if width <= 1 {
		return s[:width]
	}
	return s[:width-1] + "…"
}
