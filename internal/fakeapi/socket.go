package fakeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/nhle/homenotify/internal/channel"
	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/payload"
)

// socket is one connected client.
type socket struct {
	out    chan channel.Frame
	cancel context.CancelFunc
}

// RejectSockets makes new namespace connections fail with a
// connect_error packet.
func (s *Server) RejectSockets(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectSockets = reject
}

// FailUpgrades makes the websocket upgrade answer with status instead of
// switching protocols. Zero restores normal behaviour.
func (s *Server) FailUpgrades(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upgradeStatus = status
}

// SocketCount returns the number of clients past the namespace handshake.
func (s *Server) SocketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

// DropSockets closes every client connection, as a server restart would.
func (s *Server) DropSockets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sc := range s.sockets {
		sc.cancel()
	}
}

// Publish stores n and pushes it to every connected client under event.
// It returns the number of clients the event was queued for.
func (s *Server) Publish(event string, n model.Notification) int {
	s.Add(n)
	raw, err := payload.Encode(n)
	if err != nil {
		s.logf("fakeapi: encoding %s: %v", n.ID, err)
		return 0
	}
	return s.broadcast(channel.Frame{Kind: channel.FrameEvent, Event: event, Payload: raw})
}

// PublishRaw pushes an arbitrary event payload without touching stored
// records. A nil payload sends an event with no argument.
func (s *Server) PublishRaw(event string, v any) int {
	f, err := channel.EventFrame(event, v)
	if err != nil {
		s.logf("fakeapi: encoding %s event: %v", event, err)
		return 0
	}
	return s.broadcast(f)
}

func (s *Server) broadcast(f channel.Frame) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := 0
	for sc := range s.sockets {
		select {
		case sc.out <- f:
			sent++
		default:
			s.logf("fakeapi: client queue full, dropping %s", f.Event)
		}
	}
	return sent
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.upgradeStatus
	s.mu.Unlock()
	if status != 0 {
		writeError(w, status, http.StatusText(status))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logf("fakeapi: accept: %v", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	open, err := channel.OpenFrame(channel.OpenInfo{
		SID:          uuid.NewString(),
		PingInterval: int(s.opts.PingInterval / time.Millisecond),
		PingTimeout:  int(s.opts.PingTimeout / time.Millisecond),
		MaxPayload:   1000000,
	})
	if err != nil || send(ctx, conn, open) != nil {
		return
	}

	if !s.handshake(ctx, conn) {
		return
	}

	sc := &socket{out: make(chan channel.Frame, 64), cancel: cancel}
	s.mu.Lock()
	s.sockets[sc] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sockets, sc)
		s.mu.Unlock()
	}()

	go s.writeLoop(ctx, conn, sc)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		f, err := channel.ParseFrame(string(data))
		if err != nil {
			continue
		}
		if f.Kind == channel.FrameDisconnect || f.Kind == channel.FrameClose {
			conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck
			return
		}
	}
}

// handshake reads the client's namespace connect and answers it. It
// reports whether the client was accepted.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) bool {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return false
	}
	f, err := channel.ParseFrame(string(data))
	if err != nil || f.Kind != channel.FrameConnect {
		return false
	}

	var auth struct {
		Token string `json:"token"`
	}
	if len(f.Data) > 0 {
		_ = json.Unmarshal(f.Data, &auth)
	}

	s.mu.Lock()
	reject := s.rejectSockets || !s.access[auth.Token]
	s.mu.Unlock()

	if reject {
		refusal, err := channel.ConnectErrorFrame("not authorized")
		if err == nil {
			send(ctx, conn, refusal) //nolint:errcheck
		}
		conn.Close(websocket.StatusPolicyViolation, "not authorized") //nolint:errcheck
		return false
	}

	ack, err := channel.ConnectFrame(map[string]string{"sid": uuid.NewString()})
	if err != nil {
		return false
	}
	return send(ctx, conn, ack) == nil
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sc *socket) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		var f channel.Frame
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f = channel.Frame{Kind: channel.FramePing}
		case f = <-sc.out:
		}
		if err := send(ctx, conn, f); err != nil {
			sc.cancel()
			return
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, f channel.Frame) error {
	text, err := f.Encode()
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, []byte(text))
}
