package sync

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/homenotify/internal/alert"
	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/store"
)

const (
	defaultAlertWindow = 2 * time.Minute
	ledgerTimeout      = 2 * time.Second
)

// Logger is the subset of *log.Logger the sync pipeline uses.
type Logger interface {
	Printf(format string, v ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// Ledger persists alerted ids across sessions. RecordAlert reports false
// when the id was already recorded.
type Ledger interface {
	RecordAlert(ctx context.Context, rec store.AlertRecord) (bool, error)
}

// FullSetResult summarises one full-set reconciliation.
type FullSetResult struct {
	Added   []string
	Removed []string
	Skipped int
}

// Engine merges incoming records into the store and decides when to
// alert. It is owned by the service loop and is not safe for concurrent
// use.
type Engine struct {
	store   *store.NotificationStore
	display alert.Displayer
	ledger  Ledger
	logger  Logger
	now     func() time.Time

	window        time.Duration
	lastSync      time.Time
	lastAlertedID string
	lastAlertedAt time.Time
	recent        map[string]time.Time
}

// NewEngine wires an engine to st. display, ledger and logger may be nil.
func NewEngine(st *store.NotificationStore, display alert.Displayer, ledger Ledger, logger Logger, now func() time.Time) *Engine {
	if display == nil {
		display = alert.Discard
	}
	if logger == nil {
		logger = discardLogger{}
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:   st,
		display: display,
		ledger:  ledger,
		logger:  logger,
		now:     now,
		window:  defaultAlertWindow,
		recent:  make(map[string]time.Time),
	}
}

// SetAlertWindow changes how long an alerted id is suppressed.
func (e *Engine) SetAlertWindow(d time.Duration) {
	if d <= 0 {
		d = defaultAlertWindow
	}
	e.window = d
}

// LastSync returns when a record or full set was last merged successfully.
func (e *Engine) LastSync() time.Time {
	return e.lastSync
}

// ReconcileOne merges a single pushed record. An alert is shown when the
// id was unknown to the store. It reports whether the record was new.
func (e *Engine) ReconcileOne(rec model.Notification) bool {
	isNew, err := e.store.MergeOne(rec)
	if err != nil {
		e.logger.Printf("sync: dropping pushed record: %v", err)
		return false
	}
	e.lastSync = e.now()
	if isNew {
		e.alert(rec)
	}
	return isNew
}

// ReconcileFullSet merges an authoritative full set. It never alerts.
func (e *Engine) ReconcileFullSet(records []model.Notification) FullSetResult {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, model.NewerFirst)

	added, removed, skipped := e.store.ReplaceAll(sorted)
	e.lastSync = e.now()
	if skipped > 0 {
		e.logger.Printf("sync: dropped %d malformed records from full set", skipped)
	}
	return FullSetResult{Added: added, Removed: removed, Skipped: skipped}
}

// Reset forgets the last sync time. Alert history is kept so a quick
// re-login does not repeat alerts.
func (e *Engine) Reset() {
	e.lastSync = time.Time{}
}

func (e *Engine) alert(rec model.Notification) {
	now := e.now()
	e.pruneRecent(now)

	if rec.ID == e.lastAlertedID && now.Sub(e.lastAlertedAt) < e.window {
		return
	}
	if at, ok := e.recent[rec.ID]; ok && now.Sub(at) < e.window {
		return
	}

	correlationID := uuid.NewString()
	if e.ledger != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
		fresh, err := e.ledger.RecordAlert(ctx, store.AlertRecord{
			NotificationID: rec.ID,
			CorrelationID:  correlationID,
			Title:          rec.Header,
			AlertedAt:      now,
		})
		cancel()
		if err != nil {
			e.logger.Printf("sync: alert ledger unavailable: %v", err)
		} else if !fresh {
			e.recent[rec.ID] = now
			return
		}
	}

	e.display.Show(rec.Header, rec.Description, correlationID)
	e.recent[rec.ID] = now
	e.lastAlertedID = rec.ID
	e.lastAlertedAt = now
}

func (e *Engine) pruneRecent(now time.Time) {
	for id, at := range e.recent {
		if now.Sub(at) >= e.window {
			delete(e.recent, id)
		}
	}
}
