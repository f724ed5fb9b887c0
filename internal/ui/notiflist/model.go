package notiflist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/homenotify/internal/keys"
	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/store"
	"github.com/nhle/homenotify/internal/theme"
)

// actionTimeout bounds a single explicit action against the backend.
const actionTimeout = 15 * time.Second

// Service is the part of the sync service the list view drives.
type Service interface {
	List(ctx context.Context, filter store.Filter) ([]store.Group, error)
	MarkStatus(ctx context.Context, id string, status model.Status) error
	Delete(ctx context.Context, id string) error
	Refresh(ctx context.Context) error
}

// LoadedMsg carries a fresh grouped list.
type LoadedMsg struct {
	Groups []store.Group
	Err    error
}

// ActionDoneMsg reports the result of an explicit action.
type ActionDoneMsg struct {
	Action string
	ID     string
	Err    error
}

// CopiedMsg reports the result of a copy to the clipboard.
type CopiedMsg struct {
	Err error
}

// Model is the grouped notification list.
type Model struct {
	svc      Service
	keys     *keys.KeyMap
	filter   store.Filter
	groups   []store.Group
	rows     []store.Row
	pages    int
	pageSize int
	cursor   int
	expanded string
	busy     bool
	spinner  spinner.Model
	errLine  string
	info     string
	width    int
	height   int

	now  func() time.Time
	copy func(string) error
}

// New creates a list view backed by svc.
func New(svc Service, k *keys.KeyMap, pageSize, width, height int) Model {
	if pageSize < 1 {
		pageSize = 10
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		svc:      svc,
		keys:     k,
		pages:    1,
		pageSize: pageSize,
		spinner:  sp,
		width:    width,
		height:   height,
		now:      time.Now,
		copy:     clipboard.WriteAll,
	}
}

// Init loads the first list.
func (m Model) Init() tea.Cmd {
	return m.Load()
}

// Load returns a command that reads the current list from the service.
func (m Model) Load() tea.Cmd {
	svc := m.svc
	filter := m.filter
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		groups, err := svc.List(ctx, filter)
		return LoadedMsg{Groups: groups, Err: err}
	}
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		if msg.Err != nil {
			m.errLine = msg.Err.Error()
			return m, nil
		}
		m.setGroups(msg.Groups)
		return m, nil

	case ActionDoneMsg:
		m.busy = false
		if msg.Err != nil {
			m.errLine = fmt.Sprintf("%s failed: %v", msg.Action, msg.Err)
			return m, nil
		}
		m.errLine = ""
		return m, m.Load()

	case CopiedMsg:
		if msg.Err != nil {
			m.errLine = fmt.Sprintf("copy failed: %v", msg.Err)
		} else {
			m.errLine = ""
			m.info = "copied to clipboard"
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	m.info = ""

	switch {
	case key.Matches(msg, m.keys.Down):
		m.move(1)
	case key.Matches(msg, m.keys.Up):
		m.move(-1)

	case key.Matches(msg, m.keys.Select):
		if n, ok := m.Selected(); ok {
			if m.expanded == n.ID {
				m.expanded = ""
			} else {
				m.expanded = n.ID
			}
		}

	case key.Matches(msg, m.keys.Back):
		m.expanded = ""

	case key.Matches(msg, m.keys.ToggleUnread):
		if m.filter == store.FilterAll {
			m.filter = store.FilterUnread
		} else {
			m.filter = store.FilterAll
		}
		m.pages = 1
		m.cursor = 0
		return m, m.Load()

	case key.Matches(msg, m.keys.LoadMore):
		if _, more := store.Paginate(m.rows, m.pages, m.pageSize); more {
			m.pages++
		}

	case key.Matches(msg, m.keys.Refresh):
		return m.run("refresh", "", func(ctx context.Context, svc Service) error {
			return svc.Refresh(ctx)
		})

	case key.Matches(msg, m.keys.MarkRead):
		if n, ok := m.Selected(); ok && n.IsUnread() {
			return m.run("mark read", n.ID, func(ctx context.Context, svc Service) error {
				return svc.MarkStatus(ctx, n.ID, model.StatusRead)
			})
		}

	case key.Matches(msg, m.keys.MarkUnread):
		if n, ok := m.Selected(); ok && !n.IsUnread() {
			return m.run("mark unread", n.ID, func(ctx context.Context, svc Service) error {
				return svc.MarkStatus(ctx, n.ID, model.StatusUnread)
			})
		}

	case key.Matches(msg, m.keys.Delete):
		if n, ok := m.Selected(); ok {
			return m.run("delete", n.ID, func(ctx context.Context, svc Service) error {
				return svc.Delete(ctx, n.ID)
			})
		}

	case key.Matches(msg, m.keys.Copy):
		if n, ok := m.Selected(); ok {
			text := n.Header
			if n.Description != "" {
				text += "\n" + n.Description
			}
			write := m.copy
			return m, func() tea.Msg {
				return CopiedMsg{Err: write(text)}
			}
		}
	}

	return m, nil
}

// run executes one explicit action off the UI goroutine.
func (m Model) run(action, id string, fn func(context.Context, Service) error) (Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.errLine = ""
	svc := m.svc
	do := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return ActionDoneMsg{Action: action, ID: id, Err: fn(ctx, svc)}
	}
	return m, tea.Batch(do, m.spinner.Tick)
}

// setGroups replaces the rows and keeps the cursor on the same
// notification when it is still present.
func (m *Model) setGroups(groups []store.Group) {
	var selected string
	if n, ok := m.Selected(); ok {
		selected = n.ID
	}

	m.groups = groups
	m.rows = store.DisplayRows(groups)

	visible := m.visible()
	m.cursor = m.firstItem(visible)
	for i, r := range visible {
		if !r.IsHeader() && r.Item.ID == selected {
			m.cursor = i
			break
		}
	}
}

func (m Model) visible() []store.Row {
	rows, _ := store.Paginate(m.rows, m.pages, m.pageSize)
	return rows
}

func (m Model) firstItem(rows []store.Row) int {
	for i, r := range rows {
		if !r.IsHeader() {
			return i
		}
	}
	return 0
}

// move steps the cursor by delta, skipping group headers.
func (m *Model) move(delta int) {
	rows := m.visible()
	for i := m.cursor + delta; i >= 0 && i < len(rows); i += delta {
		if !rows[i].IsHeader() {
			m.cursor = i
			return
		}
	}
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	rows := m.visible()
	if m.cursor < 0 || m.cursor >= len(rows) || rows[m.cursor].IsHeader() {
		return model.Notification{}, false
	}
	return *rows[m.cursor].Item, true
}

// Filter returns the active filter.
func (m Model) Filter() store.Filter {
	return m.filter
}

// ErrorLine returns the message from the last failed action, if any.
func (m Model) ErrorLine() string {
	return m.errLine
}

// SetPageSize changes the "load more" step.
func (m *Model) SetPageSize(n int) {
	if n > 0 {
		m.pageSize = n
	}
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// View renders the list.
func (m Model) View() string {
	rows, more := store.Paginate(m.rows, m.pages, m.pageSize)
	if len(rows) == 0 {
		return m.renderEmptyState()
	}

	now := m.now()
	var lines []string
	cursorLine := 0
	for i, r := range rows {
		if r.IsHeader() {
			lines = append(lines, theme.GroupHeaderStyle.Render(r.Header))
			continue
		}
		if i == m.cursor {
			cursorLine = len(lines)
		}
		lines = append(lines, m.renderItem(*r.Item, i == m.cursor, now)...)
	}
	if more {
		lines = append(lines, theme.HelpStyle.Render("  space: load more"))
	}

	lines = window(lines, cursorLine, m.height-1)
	lines = append(lines, m.footer())
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderItem(n model.Notification, selected bool, now time.Time) []string {
	marker := "○"
	if n.IsUnread() {
		marker = "●"
	}

	kind := theme.KindStyle(string(n.Kind)).Render(strings.ToUpper(string(n.Kind))[:min(4, len(n.Kind))])
	when := theme.DimmedStyle.Render(store.RelativeTime(n.CreatedAt, now))
	line := fmt.Sprintf("%s %s %s  %s", marker, kind, n.Header, when)

	if !n.IsUnread() {
		line = theme.DimmedStyle.Render(line)
	}
	if selected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	out := []string{line}
	if m.expanded == n.ID && n.Description != "" {
		body := lipgloss.NewStyle().
			PaddingLeft(6).
			Width(max(m.width-2, 10)).
			Foreground(theme.ColorWhite).
			Render(n.Description)
		out = append(out, body)
	}
	return out
}

func (m Model) footer() string {
	switch {
	case m.errLine != "":
		return theme.ErrorStyle.Render("✗ " + m.errLine)
	case m.busy:
		return m.spinner.View() + theme.DimmedStyle.Render(" working…")
	case m.info != "":
		return theme.DimmedStyle.Render(m.info)
	}
	return ""
}

// renderEmptyState shows guidance text when nothing is listed.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(max(m.height-1, 1)).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	msg := "No notifications yet."
	if m.filter == store.FilterUnread {
		msg = "No unread notifications.\nPress tab to show all."
	}
	return lipgloss.JoinVertical(lipgloss.Left, style.Render(msg), m.footer())
}

// window returns at most height lines of lines, keeping focus visible.
func window(lines []string, focus, height int) []string {
	if height < 1 || len(lines) <= height {
		return lines
	}
	start := focus - height/2
	if start < 0 {
		start = 0
	}
	if start+height > len(lines) {
		start = len(lines) - height
	}
	return lines[start : start+height]
}
