// Package channel is a minimal Socket.IO v4 client over a WebSocket
// transport. It carries the live notification push channel: it keeps one
// physical connection, reconnects with backoff, and dispatches named
// events to subscribers.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	gosync "sync"
	"time"

	"nhooyr.io/websocket"
)

// Lifecycle event names delivered alongside server events.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

const (
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 30 * time.Second
	handshakeTimeout    = 10 * time.Second
	readLimit           = 1 << 20
)

// Event is delivered to handlers. Err is set on connect_error and on a
// disconnect caused by a failure.
type Event struct {
	Name    string
	Payload json.RawMessage
	Err     error
}

// Handler receives events. Handlers run on the connection's goroutine and
// must not block.
type Handler func(Event)

// ConnectError describes a failed connection attempt. Permanent failures
// (rejected credentials, unknown endpoint) will not be fixed by retrying
// with the same parameters.
type ConnectError struct {
	Message   string
	Permanent bool
	Err       error
}

func (e *ConnectError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s connect error: %s: %v", kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s connect error: %s", kind, e.Message)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a permanent ConnectError.
func IsPermanent(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce) && ce.Permanent
}

// TokenFunc supplies the bearer token for the auth handshake. It is called
// before every connection attempt.
type TokenFunc func() (string, bool)

// Logger is the subset of *log.Logger the client uses.
type Logger interface {
	Printf(format string, v ...any)
}

// Options configures a Client.
type Options struct {
	URL          string
	Token        TokenFunc
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	HTTPClient   *http.Client
	Logger       Logger
}

type subscription struct {
	id uint64
	h  Handler
}

// Client is a reconnecting Socket.IO client. The zero value is not usable;
// create one with New.
type Client struct {
	opts Options

	mu        gosync.Mutex
	handlers  map[string][]subscription
	nextID    uint64
	cancel    context.CancelFunc
	done      chan struct{}
	conn      *websocket.Conn
	connected bool
}

// New creates a client for the given options. It does not connect.
func New(opts Options) *Client {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = defaultReconnectMin
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = defaultReconnectMax
		if opts.ReconnectMax < opts.ReconnectMin {
			opts.ReconnectMax = opts.ReconnectMin
		}
	}
	if opts.Token == nil {
		opts.Token = func() (string, bool) { return "", false }
	}
	return &Client{
		opts:     opts,
		handlers: make(map[string][]subscription),
	}
}

// On registers h for the named event and returns a function that removes
// it. Removing twice is harmless.
func (c *Client) On(event string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], subscription{id: id, h: h})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.handlers[event]
		for i, s := range subs {
			if s.id == id {
				c.handlers[event] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(c.handlers[event]) == 0 {
			delete(c.handlers, event)
		}
	}
}

// HandlerCount returns how many handlers are registered for event.
func (c *Client) HandlerCount(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

// Connected reports whether the namespace handshake has completed on the
// current connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect starts the background connection loop. It returns immediately;
// outcomes are reported as connect, connect_error and disconnect events.
// Calling Connect while already running is a no-op.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
}

// Disconnect closes the connection and stops reconnecting. It waits for
// the background loop to exit. No disconnect event is emitted for a
// client-initiated close.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect") //nolint:errcheck
	}
	cancel()
	<-done
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		wasConnected, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		var delay time.Duration
		switch {
		case wasConnected:
			attempt = 0
			c.emit(Event{Name: EventDisconnect, Err: err})
			delay = c.opts.ReconnectMin
		case IsPermanent(err):
			c.emit(Event{Name: EventConnectError, Err: err})
			delay = c.opts.ReconnectMax
		default:
			c.emit(Event{Name: EventConnectError, Err: err})
			delay = c.backoff(attempt)
			attempt++
		}

		c.logf("channel: reconnecting in %s: %v", delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return c.opts.ReconnectMax
	}
	d := c.opts.ReconnectMin << uint(attempt)
	if d <= 0 || d > c.opts.ReconnectMax {
		d = c.opts.ReconnectMax
	}
	return d
}

// session runs one connection from dial to close. It reports whether the
// namespace handshake succeeded before the connection ended.
func (c *Client) session(ctx context.Context) (bool, error) {
	token, ok := c.opts.Token()
	if !ok || strings.TrimSpace(token) == "" {
		return false, &ConnectError{Message: "no access token", Permanent: true}
	}

	endpoint, err := socketURL(c.opts.URL)
	if err != nil {
		return false, &ConnectError{Message: "bad socket url", Permanent: true, Err: err}
	}

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return false, dialError(resp, err)
	}
	defer conn.CloseNow() //nolint:errcheck
	conn.SetReadLimit(readLimit)

	open, err := readFrame(dialCtx, conn)
	if err != nil {
		return false, &ConnectError{Message: "reading open packet", Err: err}
	}
	if open.Kind != FrameOpen {
		return false, &ConnectError{Message: fmt.Sprintf("expected open packet, got %s", open.Kind)}
	}
	var info OpenInfo
	if err := json.Unmarshal(open.Data, &info); err != nil {
		return false, &ConnectError{Message: "decoding open packet", Err: err}
	}

	auth, err := ConnectFrame(map[string]string{"token": token})
	if err != nil {
		return false, &ConnectError{Message: "encoding auth", Permanent: true, Err: err}
	}
	if err := writeFrame(dialCtx, conn, auth); err != nil {
		return false, &ConnectError{Message: "sending auth", Err: err}
	}

	for {
		f, err := readFrame(dialCtx, conn)
		if err != nil {
			return false, &ConnectError{Message: "awaiting namespace connect", Err: err}
		}
		switch f.Kind {
		case FrameConnect:
			c.setConn(conn, true)
			defer c.setConn(nil, false)
			c.emit(Event{Name: EventConnect, Payload: f.Data})
			return true, c.readLoop(ctx, conn, pingWindow(info))
		case FrameConnectError:
			return false, &ConnectError{Message: f.ErrorMessage(), Permanent: true}
		case FramePing:
			if err := writeFrame(dialCtx, conn, Frame{Kind: FramePong}); err != nil {
				return false, &ConnectError{Message: "sending pong", Err: err}
			}
		case FrameClose, FrameDisconnect:
			return false, &ConnectError{Message: "server closed during handshake"}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, window time.Duration) error {
	for {
		readCtx, cancel := context.WithTimeout(ctx, window)
		f, err := readFrame(readCtx, conn)
		cancel()
		if err != nil {
			if errors.Is(err, ErrBadFrame) {
				c.logf("channel: dropping frame: %v", err)
				continue
			}
			return err
		}

		switch f.Kind {
		case FramePing:
			if err := writeFrame(ctx, conn, Frame{Kind: FramePong}); err != nil {
				return err
			}
		case FrameEvent:
			c.emit(Event{Name: f.Event, Payload: f.Payload})
		case FrameDisconnect, FrameClose:
			return errors.New("server closed the connection")
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn, connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.connected = connected
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	subs := make([]subscription, len(c.handlers[ev.Name]))
	copy(subs, c.handlers[ev.Name])
	c.mu.Unlock()

	for _, s := range subs {
		s.h(ev)
	}
}

func (c *Client) logf(format string, v ...any) {
	if c.opts.Logger != nil {
		c.opts.Logger.Printf(format, v...)
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn) (Frame, error) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return Frame{}, err
	}
	if typ != websocket.MessageText {
		return Frame{}, fmt.Errorf("%w: binary message", ErrBadFrame)
	}
	return ParseFrame(string(data))
}

func writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	text, err := f.Encode()
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, []byte(text))
}

// dialError classifies a failed upgrade. Rejections that retrying cannot
// fix are permanent.
func dialError(resp *http.Response, err error) error {
	if resp == nil {
		return &ConnectError{Message: "dial failed", Err: err}
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusBadRequest:
		return &ConnectError{
			Message:   fmt.Sprintf("upgrade rejected with status %d", resp.StatusCode),
			Permanent: true,
			Err:       err,
		}
	}
	return &ConnectError{Message: fmt.Sprintf("upgrade failed with status %d", resp.StatusCode), Err: err}
}

// pingWindow is how long the connection may stay silent before it is
// considered dead.
func pingWindow(info OpenInfo) time.Duration {
	interval := time.Duration(info.PingInterval) * time.Millisecond
	timeout := time.Duration(info.PingTimeout) * time.Millisecond
	if interval <= 0 {
		interval = 25 * time.Second
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return interval + timeout
}

// socketURL appends the Engine.IO path and query to base unless base
// already names the socket.io path.
func socketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/socket.io") {
		u.Path = strings.TrimRight(u.Path, "/") + "/socket.io/"
	} else if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
