package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FrameKind identifies an Engine.IO/Socket.IO packet on the default
// namespace.
type FrameKind int

const (
	FrameOpen FrameKind = iota
	FrameClose
	FramePing
	FramePong
	FrameNoop
	FrameConnect
	FrameDisconnect
	FrameEvent
	FrameConnectError
)

var frameNames = map[FrameKind]string{
	FrameOpen:         "open",
	FrameClose:        "close",
	FramePing:         "ping",
	FramePong:         "pong",
	FrameNoop:         "noop",
	FrameConnect:      "connect",
	FrameDisconnect:   "disconnect",
	FrameEvent:        "event",
	FrameConnectError: "connect_error",
}

func (k FrameKind) String() string {
	if name, ok := frameNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FrameKind(%d)", int(k))
}

// ErrBadFrame is returned for text that is not a recognised packet.
var ErrBadFrame = errors.New("malformed socket.io frame")

// Frame is one decoded packet. Data carries the JSON argument of open,
// connect and connect_error packets; Event and Payload are set for events.
type Frame struct {
	Kind    FrameKind
	Data    json.RawMessage
	Event   string
	Payload json.RawMessage
}

// OpenInfo is the handshake body of an Engine.IO open packet.
type OpenInfo struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// ParseFrame decodes a single websocket text message.
func ParseFrame(text string) (Frame, error) {
	if text == "" {
		return Frame{}, ErrBadFrame
	}

	switch text[0] {
	case '0':
		return Frame{Kind: FrameOpen, Data: json.RawMessage(text[1:])}, nil
	case '1':
		return Frame{Kind: FrameClose}, nil
	case '2':
		return Frame{Kind: FramePing}, nil
	case '3':
		return Frame{Kind: FramePong}, nil
	case '6':
		return Frame{Kind: FrameNoop}, nil
	case '4':
		return parseMessage(text[1:])
	}
	return Frame{}, fmt.Errorf("%w: engine type %q", ErrBadFrame, text[0])
}

func parseMessage(body string) (Frame, error) {
	if body == "" {
		return Frame{}, ErrBadFrame
	}
	kind := body[0]
	rest := stripNamespace(body[1:])

	switch kind {
	case '0':
		return Frame{Kind: FrameConnect, Data: rawOrNil(rest)}, nil
	case '1':
		return Frame{Kind: FrameDisconnect}, nil
	case '4':
		return Frame{Kind: FrameConnectError, Data: rawOrNil(rest)}, nil
	case '2':
		// An optional ack id precedes the argument array.
		rest = strings.TrimLeft(rest, "0123456789")
		var args []json.RawMessage
		if err := json.Unmarshal([]byte(rest), &args); err != nil || len(args) == 0 {
			return Frame{}, fmt.Errorf("%w: event body %q", ErrBadFrame, rest)
		}
		var name string
		if err := json.Unmarshal(args[0], &name); err != nil {
			return Frame{}, fmt.Errorf("%w: event name: %v", ErrBadFrame, err)
		}
		f := Frame{Kind: FrameEvent, Event: name}
		if len(args) > 1 {
			f.Payload = args[1]
		}
		return f, nil
	}
	return Frame{}, fmt.Errorf("%w: socket type %q", ErrBadFrame, kind)
}

// stripNamespace drops a "/nsp," prefix. Only the default namespace is
// used, so the name itself is ignored.
func stripNamespace(s string) string {
	if strings.HasPrefix(s, "/") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			return s[i+1:]
		}
		return ""
	}
	return s
}

func rawOrNil(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

// Encode renders the frame as websocket text.
func (f Frame) Encode() (string, error) {
	switch f.Kind {
	case FrameOpen:
		return "0" + string(f.Data), nil
	case FrameClose:
		return "1", nil
	case FramePing:
		return "2", nil
	case FramePong:
		return "3", nil
	case FrameNoop:
		return "6", nil
	case FrameConnect:
		return "40" + string(f.Data), nil
	case FrameDisconnect:
		return "41", nil
	case FrameConnectError:
		return "44" + string(f.Data), nil
	case FrameEvent:
		name, err := json.Marshal(f.Event)
		if err != nil {
			return "", err
		}
		args := []json.RawMessage{name}
		if len(f.Payload) > 0 {
			args = append(args, f.Payload)
		}
		body, err := json.Marshal(args)
		if err != nil {
			return "", err
		}
		return "42" + string(body), nil
	}
	return "", fmt.Errorf("encoding %s frame: %w", f.Kind, ErrBadFrame)
}

// OpenFrame builds the server's handshake packet.
func OpenFrame(info OpenInfo) (Frame, error) {
	if info.Upgrades == nil {
		info.Upgrades = []string{}
	}
	data, err := json.Marshal(info)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: FrameOpen, Data: data}, nil
}

// ConnectFrame builds a namespace connect packet. A client sends its auth
// payload; a server answers with {"sid": ...}.
func ConnectFrame(v any) (Frame, error) {
	if v == nil {
		return Frame{Kind: FrameConnect}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: FrameConnect, Data: data}, nil
}

// ConnectErrorFrame builds the packet a server sends when it refuses a
// namespace connection.
func ConnectErrorFrame(message string) (Frame, error) {
	data, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: FrameConnectError, Data: data}, nil
}

// EventFrame builds an event packet with one argument.
func EventFrame(name string, payload any) (Frame, error) {
	f := Frame{Kind: FrameEvent, Event: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}

// ErrorMessage extracts the message of a connect_error packet. Servers
// send either {"message": ...} or a bare string.
func (f Frame) ErrorMessage() string {
	if len(f.Data) == 0 {
		return "connection refused"
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(f.Data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(f.Data, &s); err == nil && s != "" {
		return s
	}
	return string(f.Data)
}
