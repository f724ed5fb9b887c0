package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/homenotify/internal/keys"
	appsync "github.com/nhle/homenotify/internal/sync"
	"github.com/nhle/homenotify/internal/ui"
	helpview "github.com/nhle/homenotify/internal/ui/help"
	"github.com/nhle/homenotify/internal/ui/notiflist"
)

// Service is what the viewer needs from the sync service.
type Service interface {
	notiflist.Service
	Updates() <-chan appsync.Update
}

// updateMsg carries a state update from the sync service.
type updateMsg struct {
	update appsync.Update
	ok     bool
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewHelp
)

// Options configures the root model.
type Options struct {
	Service  Service
	Banner   *Banner
	PageSize int
}

// Model is the root Bubble Tea model that manages view routing and layout.
type Model struct {
	currentView ViewState
	layout      ui.Layout
	svc         Service
	banner      *Banner
	keys        *keys.KeyMap
	list        notiflist.Model
	helpView    helpview.Model
	state       appsync.Update
	bannerText  string
	bannerSeq   int
	ready       bool
}

// New creates a new root application model.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	b := opts.Banner
	if b == nil {
		b = NewBanner()
	}

	return Model{
		currentView: ViewList,
		svc:         opts.Service,
		banner:      b,
		keys:        k,
		list:        notiflist.New(opts.Service, k, opts.PageSize, 80, 24),
		helpView:    helpview.New(k, 80, 24),
	}
}

// Init loads the list and starts listening for updates and alerts.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.list.Init(),
		m.waitForUpdate(),
		m.banner.wait(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		return m, nil

	case updateMsg:
		if !msg.ok {
			return m, nil
		}
		m.state = msg.update
		return m, tea.Batch(m.list.Load(), m.waitForUpdate())

	case bannerMsg:
		m.bannerSeq++
		m.bannerText = msg.title
		if msg.body != "" {
			m.bannerText += ": " + firstLine(msg.body)
		}
		m.resize()
		seq := m.bannerSeq
		return m, tea.Batch(
			m.banner.wait(),
			tea.Tick(bannerTTL, func(_ time.Time) tea.Msg {
				return clearBannerMsg{seq: seq}
			}),
		)

	case clearBannerMsg:
		if msg.seq == m.bannerSeq {
			m.bannerText = ""
			m.resize()
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = ViewList
			} else {
				m.currentView = ViewHelp
			}
			return m, nil

		case m.currentView == ViewHelp && key.Matches(msg, m.keys.Back):
			m.currentView = ViewList
			return m, nil
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("homenotify", m.state.Unread, m.state.State.String())
	banner := ""
	if m.bannerText != "" {
		banner = m.layout.RenderBanner("🔔 " + m.bannerText)
	}
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, banner, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewHelp:
		return m.helpView.View()
	default:
		return m.list.View()
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.currentView == ViewHelp {
		return "? close help | esc back"
	}

	var hints []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	return fmt.Sprintf("[%s] %s", m.list.Filter(), strings.Join(hints, " | "))
}

// resize recomputes child view sizes from the layout.
func (m *Model) resize() {
	if !m.ready {
		return
	}
	height := m.layout.ContentHeight()
	if m.bannerText != "" {
		height--
	}
	m.list.SetSize(m.layout.ContentWidth(), height)
	m.helpView.SetSize(m.layout.ContentWidth(), height)
}

// waitForUpdate returns a command that blocks until the service publishes.
func (m Model) waitForUpdate() tea.Cmd {
	updates := m.svc.Updates()
	return func() tea.Msg {
		u, ok := <-updates
		return updateMsg{update: u, ok: ok}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
