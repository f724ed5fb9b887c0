// Package sync keeps the in-memory notification list converged with the
// backend. A push listener and a poll fallback feed one reconciliation
// engine; all state is owned by a single event-loop goroutine.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/nhle/homenotify/internal/alert"
	"github.com/nhle/homenotify/internal/channel"
	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/payload"
	"github.com/nhle/homenotify/internal/source"
	"github.com/nhle/homenotify/internal/store"
)

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

var (
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("sync service closed")
	// ErrNoCredentials is returned when no access token is available.
	ErrNoCredentials = errors.New("no access token available")
)

// Credentials supplies bearer tokens. Refresh receives the token that was
// rejected.
type Credentials interface {
	CurrentToken() (string, bool)
	Refresh(ctx context.Context, stale string) (string, error)
}

// Channel is the live push connection. *channel.Client satisfies it.
type Channel interface {
	Subscriber
	Connect(ctx context.Context)
	Disconnect()
	Connected() bool
}

// Config holds the tunable timings.
type Config struct {
	PollInterval       time.Duration
	Grace              time.Duration
	AlertWindow        time.Duration
	RemovalAfterMisses int
}

// ConfigFrom converts the file configuration.
func ConfigFrom(c model.SyncConfig) Config {
	return Config{
		PollInterval:       c.PollInterval(),
		Grace:              c.Grace(),
		AlertWindow:        c.AlertWindow(),
		RemovalAfterMisses: c.RemovalAfterMisses,
	}
}

// Update is published after every state change or store mutation.
type Update struct {
	State     PipelineState
	Health    Health
	HasUnread bool
	Unread    int
	Total     int
	LastSync  time.Time
}

// Options wires a Service. Backend, Credentials and Channel are required.
type Options struct {
	Backend     source.Backend
	Credentials Credentials
	Channel     Channel
	Alerts      alert.Displayer
	Ledger      Ledger
	Logger      Logger
	Config      Config
	Now         func() time.Time
}

// Service runs the notification pipeline and is the surface the UI uses.
// Its methods are safe for concurrent use.
type Service struct {
	backend source.Backend
	creds   Credentials
	channel Channel
	logger  Logger
	now     func() time.Time

	// Owned by the loop goroutine.
	store       *store.NotificationStore
	health      *HealthMonitor
	engine      *Engine
	sched       *Scheduler
	listener    *PushListener
	session     uint64
	channelOpen bool
	refreshing  bool

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce gosync.Once

	ctx    context.Context
	cancel context.CancelFunc

	updates chan Update
	state   atomic.Int32
	unread  atomic.Bool
}

// NewService builds a service and starts its event loop. Call Start to
// begin syncing and Close to release it.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		backend: opts.Backend,
		creds:   opts.Credentials,
		channel: opts.Channel,
		logger:  logger,
		now:     now,
		store:   store.NewNotificationStore(opts.Config.RemovalAfterMisses),
		health:  NewHealthMonitor(),
		events:  make(chan func(), 64),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		updates: make(chan Update, 1),
	}

	s.engine = NewEngine(s.store, opts.Alerts, opts.Ledger, logger, now)
	if opts.Config.AlertWindow > 0 {
		s.engine.SetAlertWindow(opts.Config.AlertWindow)
	}

	grace := opts.Config.Grace
	if grace == 0 {
		grace = defaultGrace
	}
	s.sched = NewScheduler(
		opts.Config.PollInterval,
		grace,
		s.health.IsHealthy,
		s.engine.LastSync,
		func() { s.startFetch("poll", s.sched.FetchDone) },
		s.post,
		now,
	)

	s.listener = NewPushListener(opts.Channel, payload.MustDecoder(), s.post, PushHandlers{
		Record:       s.onRecord,
		Refetch:      func() { s.startFetch("notificationRead", nil) },
		Connect:      s.onConnect,
		Disconnect:   s.onDisconnect,
		ConnectError: s.onConnectError,
	}, logger)

	go s.loop()
	return s
}

func (s *Service) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post queues fn on the loop. It reports false once the service is
// closed. It must not be called from the loop itself.
func (s *Service) post(fn func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.events <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (s *Service) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrClosed
	}
}

// Start attaches the push listener, opens the channel if needed, starts
// the poll fallback and kicks off one full fetch. Calling Start again
// (e.g. on every screen focus) never registers duplicate listeners.
func (s *Service) Start(ctx context.Context) error {
	return s.call(ctx, func() {
		if s.listener.Attach() && s.channelOpen {
			// Lifecycle events may have been missed while detached.
			if s.channel.Connected() {
				s.health.OnConnect()
			} else {
				s.health.OnDisconnect()
			}
		}
		if !s.channelOpen {
			s.channelOpen = true
			s.health.Connecting()
			s.channel.Connect(s.ctx)
		}
		s.sched.Start()
		s.startFetch("initial", nil)
		s.publish()
	})
}

// Stop pauses syncing, as on screen teardown: the poll timer is stopped
// and the listener detached. The channel stays open.
func (s *Service) Stop(ctx context.Context) error {
	return s.call(ctx, func() {
		s.sched.Stop()
		s.listener.Detach()
	})
}

// Logout tears the session down: syncing stops, the channel is closed,
// the list is cleared and the pipeline returns to idle. Results of
// requests still in flight are discarded.
func (s *Service) Logout(ctx context.Context) error {
	err := s.call(ctx, func() {
		s.sched.Stop()
		s.listener.Detach()
		s.session++
		s.channelOpen = false
		s.store.Clear()
		s.engine.Reset()
		s.health.Reset()
		s.publish()
	})
	if err != nil {
		return err
	}
	s.channel.Disconnect()
	return nil
}

// Close stops everything and ends the loop. The Updates channel is closed.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		_ = s.call(context.Background(), func() {
			s.sched.Stop()
			s.listener.Detach()
		})
		s.channel.Disconnect()
		s.cancel()
		close(s.quit)
		<-s.done
		close(s.updates)
	})
}

// List returns the grouped notifications, newest first.
func (s *Service) List(ctx context.Context, filter store.Filter) ([]store.Group, error) {
	var groups []store.Group
	err := s.call(ctx, func() {
		groups = s.store.List(filter, s.now())
	})
	return groups, err
}

// Get returns one stored notification.
func (s *Service) Get(ctx context.Context, id string) (model.Notification, bool, error) {
	var (
		n  model.Notification
		ok bool
	)
	err := s.call(ctx, func() {
		n, ok = s.store.Get(id)
	})
	return n, ok, err
}

// MarkStatus sets a notification read or unread on the backend and, once
// the backend confirms, in the local list. On failure the list is left
// unchanged.
func (s *Service) MarkStatus(ctx context.Context, id string, status model.Status) error {
	session, err := s.requireKnown(ctx, id)
	if err != nil {
		return fmt.Errorf("marking %s %s: %w", id, status, err)
	}

	err = s.withToken(ctx, func(token string) error {
		return s.backend.SetStatus(ctx, token, id, status)
	})
	if err != nil {
		return fmt.Errorf("marking %s %s: %w", id, status, err)
	}

	return s.call(ctx, func() {
		if session != s.session {
			return
		}
		if err := s.store.SetStatus(id, status); err != nil {
			s.logger.Printf("sync: %s removed before status update applied", id)
		}
		s.publish()
	})
}

// Delete removes a notification on the backend and then locally. A
// notification the backend no longer knows is removed locally as well.
func (s *Service) Delete(ctx context.Context, id string) error {
	session, err := s.requireKnown(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}

	err = s.withToken(ctx, func(token string) error {
		return s.backend.Delete(ctx, token, id)
	})
	if err != nil && !errors.Is(err, source.ErrNotFound) {
		return fmt.Errorf("deleting %s: %w", id, err)
	}

	return s.call(ctx, func() {
		if session != s.session {
			return
		}
		s.store.Remove(id)
		s.publish()
	})
}

// Refresh fetches the full list now, bypassing the health gate and the
// grace period. Unlike background polls, failures are returned.
func (s *Service) Refresh(ctx context.Context) error {
	var session uint64
	if err := s.call(ctx, func() { session = s.session }); err != nil {
		return err
	}

	records, err := s.fetchAll(ctx)
	if err != nil {
		return fmt.Errorf("refreshing notifications: %w", err)
	}

	return s.call(ctx, func() {
		if session != s.session {
			return
		}
		s.engine.ReconcileFullSet(records)
		s.publish()
	})
}

// Snapshot returns the current state without waiting for an update.
func (s *Service) Snapshot(ctx context.Context) (Update, error) {
	var u Update
	err := s.call(ctx, func() { u = s.snapshot() })
	return u, err
}

// HasUnread reports whether any stored notification is unread.
func (s *Service) HasUnread() bool {
	return s.unread.Load()
}

// State returns the pipeline state.
func (s *Service) State() PipelineState {
	return PipelineState(s.state.Load())
}

// Updates delivers the latest state after each change. Only the newest
// update is kept; slow readers skip intermediate ones.
func (s *Service) Updates() <-chan Update {
	return s.updates
}

// ApplyConfig changes timings on a running service.
func (s *Service) ApplyConfig(cfg Config) {
	s.post(func() {
		grace := cfg.Grace
		if grace == 0 {
			grace = defaultGrace
		}
		s.sched.SetTiming(cfg.PollInterval, grace)
		s.engine.SetAlertWindow(cfg.AlertWindow)
		s.store.SetRemovalAfterMisses(cfg.RemovalAfterMisses)
	})
}

func (s *Service) requireKnown(ctx context.Context, id string) (uint64, error) {
	var (
		known   bool
		session uint64
	)
	if err := s.call(ctx, func() {
		_, known = s.store.Get(id)
		session = s.session
	}); err != nil {
		return 0, err
	}
	if !known {
		return 0, store.ErrNotFound
	}
	return session, nil
}

// withToken runs fn with the current token. An auth failure triggers one
// credential refresh and one retry.
func (s *Service) withToken(ctx context.Context, fn func(token string) error) error {
	token, ok := s.creds.CurrentToken()
	if !ok {
		return ErrNoCredentials
	}

	err := fn(token)
	if !source.IsAuthError(err) {
		return err
	}

	fresh, refreshErr := s.creds.Refresh(ctx, token)
	if refreshErr != nil {
		return fmt.Errorf("%w (refresh failed: %v)", err, refreshErr)
	}
	return fn(fresh)
}

func (s *Service) fetchAll(ctx context.Context) ([]model.Notification, error) {
	var records []model.Notification
	err := s.withToken(ctx, func(token string) error {
		var err error
		records, err = s.backend.FetchAll(ctx, token)
		return err
	})
	return records, err
}

// startFetch runs a background full fetch. Failures are logged only. done,
// if set, runs on the loop when the fetch finishes either way. Must be
// called on the loop.
func (s *Service) startFetch(reason string, done func()) {
	session := s.session
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, fetchTimeout)
		defer cancel()

		records, err := s.fetchAll(ctx)
		s.post(func() {
			if done != nil {
				done()
			}
			if session != s.session {
				return
			}
			if err != nil {
				s.logger.Printf("sync: %s fetch failed: %v", reason, err)
				return
			}
			res := s.engine.ReconcileFullSet(records)
			if len(res.Added) > 0 || len(res.Removed) > 0 {
				s.logger.Printf("sync: %s fetch added %d, removed %d", reason, len(res.Added), len(res.Removed))
			}
			s.publish()
		})
	}()
}

func (s *Service) onRecord(rec model.Notification) {
	s.engine.ReconcileOne(rec)
	s.publish()
}

func (s *Service) onConnect() {
	s.health.OnConnect()
	s.publish()
}

func (s *Service) onDisconnect() {
	s.health.OnDisconnect()
	s.publish()
}

func (s *Service) onConnectError(err error) {
	permanent := channel.IsPermanent(err)
	s.health.OnConnectError(permanent)
	s.logger.Printf("sync: channel connect error: %v", err)
	s.publish()

	if permanent {
		s.refreshCredentials()
	}
}

// refreshCredentials renews the token in the background after the channel
// refused it, so the next reconnect can succeed. Must be called on the
// loop.
func (s *Service) refreshCredentials() {
	if s.refreshing {
		return
	}
	s.refreshing = true
	go func() {
		var err error
		if token, ok := s.creds.CurrentToken(); ok {
			ctx, cancel := context.WithTimeout(s.ctx, fetchTimeout)
			_, err = s.creds.Refresh(ctx, token)
			cancel()
		}
		s.post(func() {
			s.refreshing = false
			if err != nil {
				s.logger.Printf("sync: token refresh after channel rejection failed: %v", err)
			}
		})
	}()
}

func (s *Service) snapshot() Update {
	u := Update{
		State:    s.health.State(),
		Health:   s.health.Snapshot(),
		Unread:   s.store.UnreadCount(),
		Total:    s.store.Len(),
		LastSync: s.engine.LastSync(),
	}
	u.HasUnread = u.Unread > 0
	return u
}

// publish refreshes the observable state. Must be called on the loop.
func (s *Service) publish() {
	u := s.snapshot()
	s.state.Store(int32(u.State))
	s.unread.Store(u.HasUnread)

	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- u:
	default:
	}
}
