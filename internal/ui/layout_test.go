package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestContentHeight(t *testing.T) {
	l := NewLayout(80, 24)
	assert.Equal(t, 80, l.ContentWidth())
	assert.Equal(t, 22, l.ContentHeight())
}

func TestRenderHeader(t *testing.T) {
	l := NewLayout(60, 10)

	withBadge := l.RenderHeader("homenotify", 4, "degraded")
	assert.Contains(t, withBadge, "4 unread")
	assert.Contains(t, withBadge, "degraded")
	assert.Equal(t, 60, lipgloss.Width(withBadge))

	noBadge := l.RenderHeader("homenotify", 0, "connected")
	assert.NotContains(t, noBadge, "unread")
}

func TestRenderWithFrameSkipsEmptyBanner(t *testing.T) {
	l := NewLayout(40, 10)

	framed := l.RenderWithFrame("head", "", "body", "status")
	assert.Equal(t, 3, len(strings.Split(framed, "\n")))

	framed = l.RenderWithFrame("head", l.RenderBanner("alert"), "body", "status")
	assert.Equal(t, 4, len(strings.Split(framed, "\n")))
	assert.Contains(t, framed, "alert")
}
