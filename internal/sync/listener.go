package sync

import (
	"encoding/json"

	"github.com/nhle/homenotify/internal/channel"
	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/payload"
)

// Server event names on the live channel. The first two carry one record
// each and are handled identically.
const (
	EventNotification     = "notification"
	EventNewNotification  = "newNotification"
	EventNotificationRead = "notificationRead"
)

// Subscriber registers channel event handlers. *channel.Client satisfies
// it.
type Subscriber interface {
	On(event string, h channel.Handler) func()
}

// PushHandlers receive channel events on the service loop.
type PushHandlers struct {
	Record       func(model.Notification)
	Refetch      func()
	Connect      func()
	Disconnect   func()
	ConnectError func(err error)
}

// PushListener bridges channel events into the loop. Attach is guarded so
// repeated calls never register a second set of handlers. Attach and
// Detach must be called on the loop.
type PushListener struct {
	ch       Subscriber
	decoder  *payload.Decoder
	post     func(func()) bool
	handlers PushHandlers
	logger   Logger

	attached bool
	gen      uint64
	unsubs   []func()
}

// NewPushListener creates a detached listener.
func NewPushListener(ch Subscriber, decoder *payload.Decoder, post func(func()) bool, h PushHandlers, logger Logger) *PushListener {
	if logger == nil {
		logger = discardLogger{}
	}
	return &PushListener{
		ch:       ch,
		decoder:  decoder,
		post:     post,
		handlers: h,
		logger:   logger,
	}
}

// Attached reports whether handlers are registered.
func (l *PushListener) Attached() bool {
	return l.attached
}

// Attach registers the handlers. It reports false if already attached.
func (l *PushListener) Attach() bool {
	if l.attached {
		return false
	}
	l.attached = true
	l.gen++
	gen := l.gen

	onRecord := func(ev channel.Event) {
		rec, err := l.decodeRecord(ev.Payload)
		if err != nil {
			l.logger.Printf("sync: dropping %s event: %v", ev.Name, err)
			return
		}
		l.deliver(gen, func() {
			if l.handlers.Record != nil {
				l.handlers.Record(rec)
			}
		})
	}

	l.unsubs = []func(){
		l.ch.On(EventNotification, onRecord),
		l.ch.On(EventNewNotification, onRecord),
		l.ch.On(EventNotificationRead, func(channel.Event) {
			l.deliver(gen, func() {
				if l.handlers.Refetch != nil {
					l.handlers.Refetch()
				}
			})
		}),
		l.ch.On(channel.EventConnect, func(channel.Event) {
			l.deliver(gen, func() {
				if l.handlers.Connect != nil {
					l.handlers.Connect()
				}
			})
		}),
		l.ch.On(channel.EventDisconnect, func(channel.Event) {
			l.deliver(gen, func() {
				if l.handlers.Disconnect != nil {
					l.handlers.Disconnect()
				}
			})
		}),
		l.ch.On(channel.EventConnectError, func(ev channel.Event) {
			l.deliver(gen, func() {
				if l.handlers.ConnectError != nil {
					l.handlers.ConnectError(ev.Err)
				}
			})
		}),
	}
	return true
}

// Detach removes every handler. Detaching a detached listener is a no-op.
func (l *PushListener) Detach() {
	if !l.attached {
		return
	}
	for _, off := range l.unsubs {
		off()
	}
	l.unsubs = nil
	l.attached = false
}

// deliver posts fn to the loop. Events dispatched by the channel just
// before Detach are dropped once they reach the loop.
func (l *PushListener) deliver(gen uint64, fn func()) {
	l.post(func() {
		if !l.attached || l.gen != gen {
			return
		}
		fn()
	})
}

// decodeRecord accepts a bare record or one wrapped in {"data": ...}.
func (l *PushListener) decodeRecord(raw json.RawMessage) (model.Notification, error) {
	rec, err := l.decoder.DecodeOne(raw)
	if err == nil {
		return rec, nil
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(raw, &env) == nil && len(env.Data) > 0 {
		if inner, innerErr := l.decoder.DecodeOne(env.Data); innerErr == nil {
			return inner, nil
		}
	}
	return model.Notification{}, err
}
