package sync

import (
	"context"
	"encoding/json"
	gosync "sync"
	"time"

	"github.com/nhle/homenotify/internal/channel"
	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/payload"
	"github.com/nhle/homenotify/internal/source"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func note(id string, created time.Time, status model.Status) model.Notification {
	return model.Notification{
		ID:          id,
		Header:      "header " + id,
		Description: "body " + id,
		Kind:        model.KindInfo,
		Status:      status,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func wire(n model.Notification) json.RawMessage {
	raw, err := payload.Encode(n)
	if err != nil {
		panic(err)
	}
	return raw
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  gosync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeChannel records subscriptions and lets tests fire events.
type fakeChannel struct {
	mu          gosync.Mutex
	handlers    map[string]map[int]channel.Handler
	nextID      int
	connects    int
	disconnects int
	connected   bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string]map[int]channel.Handler)}
}

func (f *fakeChannel) On(event string, h channel.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]channel.Handler)
	}
	f.handlers[event][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[event], id)
	}
}

func (f *fakeChannel) Connect(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
}

func (f *fakeChannel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}

func (f *fakeChannel) fire(ev channel.Event) {
	f.mu.Lock()
	switch ev.Name {
	case channel.EventConnect:
		f.connected = true
	case channel.EventDisconnect, channel.EventConnectError:
		f.connected = false
	}
	hs := make([]channel.Handler, 0, len(f.handlers[ev.Name]))
	for _, h := range f.handlers[ev.Name] {
		hs = append(hs, h)
	}
	f.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

func (f *fakeChannel) push(event string, n model.Notification) {
	f.fire(channel.Event{Name: event, Payload: wire(n)})
}

// fakeBackend serves a settable full set. Tokens other than validToken
// are rejected with an AuthError.
type fakeBackend struct {
	mu         gosync.Mutex
	records    []model.Notification
	validToken string
	fetches    int
	fetchErr   error
	statusErr  error
	deleteErr  error
	statusSet  map[string]model.Status
	deleted    []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{validToken: "t1", statusSet: make(map[string]model.Status)}
}

func (b *fakeBackend) setRecords(records ...model.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = records
}

func (b *fakeBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

func (b *fakeBackend) auth(token string) error {
	if token != b.validToken {
		return &source.AuthError{Message: "expired"}
	}
	return nil
}

func (b *fakeBackend) FetchAll(_ context.Context, token string) ([]model.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.auth(token); err != nil {
		return nil, err
	}
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	b.fetches++
	out := make([]model.Notification, len(b.records))
	copy(out, b.records)
	return out, nil
}

func (b *fakeBackend) SetStatus(_ context.Context, token, id string, status model.Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.auth(token); err != nil {
		return err
	}
	if b.statusErr != nil {
		return b.statusErr
	}
	b.statusSet[id] = status
	return nil
}

func (b *fakeBackend) Delete(_ context.Context, token, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.auth(token); err != nil {
		return err
	}
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.deleted = append(b.deleted, id)
	return nil
}

// fakeCreds hands out a token and swaps it on refresh.
type fakeCreds struct {
	mu        gosync.Mutex
	token     string
	next      string
	refreshes int
}

func (c *fakeCreds) CurrentToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token != ""
}

func (c *fakeCreds) Refresh(_ context.Context, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	c.token = c.next
	return c.token, nil
}

func (c *fakeCreds) refreshCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// alertRecorder collects shown alerts.
type alertRecorder struct {
	mu    gosync.Mutex
	shown []string
	ids   []string
}

func (r *alertRecorder) Show(title, _, correlationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, title)
	r.ids = append(r.ids, correlationID)
}

func (r *alertRecorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.shown))
	copy(out, r.shown)
	return out
}
