package app

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/store"
	appsync "github.com/nhle/homenotify/internal/sync"
)

type stubService struct {
	groups  []store.Group
	updates chan appsync.Update
}

func (s *stubService) List(context.Context, store.Filter) ([]store.Group, error) {
	return s.groups, nil
}
func (s *stubService) MarkStatus(context.Context, string, model.Status) error { return nil }
func (s *stubService) Delete(context.Context, string) error                   { return nil }
func (s *stubService) Refresh(context.Context) error                          { return nil }
func (s *stubService) Updates() <-chan appsync.Update                         { return s.updates }

func newTestModel() (Model, *stubService) {
	svc := &stubService{updates: make(chan appsync.Update, 1)}
	m := New(Options{Service: svc, PageSize: 10})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), svc
}

func TestHeaderShowsUnreadAndState(t *testing.T) {
	m, svc := newTestModel()

	svc.updates <- appsync.Update{State: appsync.StateConnected, Unread: 3, HasUnread: true}
	msg := m.waitForUpdate()()
	next, cmd := m.Update(msg)
	m = next.(Model)

	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "3 unread")
	assert.Contains(t, view, "connected")
}

func TestClosedUpdatesStopWaiting(t *testing.T) {
	m, svc := newTestModel()
	close(svc.updates)

	_, cmd := m.Update(m.waitForUpdate()())
	assert.Nil(t, cmd)
}

func TestBannerShowsAndExpires(t *testing.T) {
	m, _ := newTestModel()

	m.banner.Show("Door opened", "Front door\nat 10:00", "c1")
	next, _ := m.Update(m.banner.wait()())
	m = next.(Model)
	assert.Contains(t, m.View(), "Door opened: Front door")
	assert.NotContains(t, m.View(), "at 10:00")

	// A stale clear does not hide a newer banner.
	m.banner.Show("Smoke", "", "c2")
	next, _ = m.Update(m.banner.wait()())
	m = next.(Model)
	next, _ = m.Update(clearBannerMsg{seq: 1})
	m = next.(Model)
	assert.Contains(t, m.View(), "Smoke")

	next, _ = m.Update(clearBannerMsg{seq: 2})
	m = next.(Model)
	assert.NotContains(t, m.View(), "Smoke")
}

func TestBannerDropsWhenFull(t *testing.T) {
	b := NewBanner()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			b.Show("t", "b", "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Show blocked")
	}
}

func TestHelpToggle(t *testing.T) {
	m, _ := newTestModel()

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	m = next.(Model)
	require.Equal(t, ViewHelp, m.currentView)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)
	assert.Equal(t, ViewList, m.currentView)
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
