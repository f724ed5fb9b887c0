package app

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// bannerTTL is how long an in-app alert stays on screen.
const bannerTTL = 6 * time.Second

// bannerMsg carries one alert from the sync service to the UI.
type bannerMsg struct {
	title string
	body  string
}

// clearBannerMsg hides the banner if it is still the one with seq.
type clearBannerMsg struct {
	seq int
}

// Banner is an alert displayer that shows alerts inside the TUI. Show is
// called from the sync loop and never blocks it; alerts beyond the buffer
// are dropped.
type Banner struct {
	ch chan bannerMsg
}

// NewBanner creates a banner displayer.
func NewBanner() *Banner {
	return &Banner{ch: make(chan bannerMsg, 8)}
}

// Show queues an alert for display.
func (b *Banner) Show(title, body, _ string) {
	select {
	case b.ch <- bannerMsg{title: title, body: body}:
	default:
	}
}

// wait returns a command that delivers the next queued alert.
func (b *Banner) wait() tea.Cmd {
	return func() tea.Msg {
		return <-b.ch
	}
}
