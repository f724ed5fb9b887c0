// Package alert shows user-visible alerts for newly arrived notifications.
package alert

import (
	"fmt"
	"io"
	"sync"
)

// Displayer fires a user-visible alert. Show must return quickly; slow
// delivery belongs on a background goroutine.
type Displayer interface {
	Show(title, body, correlationID string)
}

// Logger is the subset of *log.Logger displayers use.
type Logger interface {
	Printf(format string, v ...any)
}

// Func adapts a plain function to Displayer.
type Func func(title, body, correlationID string)

// Show calls f.
func (f Func) Show(title, body, correlationID string) {
	f(title, body, correlationID)
}

// Log writes each alert to a logger.
type Log struct {
	logger Logger
}

// NewLog returns a displayer that logs alerts.
func NewLog(logger Logger) *Log {
	return &Log{logger: logger}
}

// Show logs the alert.
func (l *Log) Show(title, body, correlationID string) {
	l.logger.Printf("alert [%s] %s: %s", correlationID, title, body)
}

// Bell rings the terminal bell and prints the alert on w.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBell returns a displayer writing to w.
func NewBell(w io.Writer) *Bell {
	return &Bell{w: w}
}

// Show writes BEL followed by the alert line.
func (b *Bell) Show(title, body, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.w, "\a%s: %s\n", title, body) //nolint:errcheck
}

// Multi fans an alert out to several displayers in order.
type Multi []Displayer

// Show forwards to every non-nil displayer.
func (m Multi) Show(title, body, correlationID string) {
	for _, d := range m {
		if d != nil {
			d.Show(title, body, correlationID)
		}
	}
}

// Discard drops every alert.
var Discard Displayer = Func(func(string, string, string) {})
