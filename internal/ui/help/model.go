package help

import (
	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/homenotify/internal/keys"
	"github.com/nhle/homenotify/internal/theme"
)

// stateLegend explains the pipeline state shown in the header.
var stateLegend = [][2]string{
	{"connected", "live updates are arriving"},
	{"connecting", "opening the live channel"},
	{"disconnected", "live channel lost, polling every interval"},
	{"degraded", "live channel refused, polling until it recovers"},
	{"idle", "not syncing"},
}

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	width  int
	height int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	h.ShowAll = true
	return Model{
		keys:   keys,
		help:   h,
		width:  width,
		height: height,
	}
}

// Update handles messages for the help view.
func (m Model) Update(tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the key bindings followed by the state legend.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	legend := []string{titleStyle.MarginTop(1).Render("Connection States")}
	for _, row := range stateLegend {
		legend = append(legend, lipgloss.JoinHorizontal(
			lipgloss.Top,
			theme.StateStyle(row[0]).Width(14).Render(row[0]),
			theme.DimmedStyle.Render(row[1]),
		))
	}

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Keyboard Shortcuts"),
		m.help.View(m.keys),
		lipgloss.JoinVertical(lipgloss.Left, legend...),
	)

	return theme.DetailPanelStyle.
		Width(max(m.width-4, 0)).
		Height(max(m.height-4, 0)).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
