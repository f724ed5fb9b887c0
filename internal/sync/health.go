package sync

// PipelineState is the session state of the notification pipeline.
type PipelineState int

const (
	// StateIdle means no channel has been opened yet, or the session was
	// logged out.
	StateIdle PipelineState = iota
	StateConnecting
	// StateConnected means push is healthy and polling is skipped.
	StateConnected
	// StateDisconnected means push is down and polling is active.
	StateDisconnected
	// StateDegraded means the channel hit a permanent negotiation failure.
	// Polling is active and reconnects are backed off.
	StateDegraded
)

func (s PipelineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateDegraded:
		return "degraded"
	}
	return "unknown"
}

// Health is a snapshot of the transport flags.
type Health struct {
	Connected bool
	Degraded  bool
}

// HealthMonitor decides whether the push channel can be trusted. It is
// driven only by channel lifecycle events and is not safe for concurrent
// use; the service loop owns it.
type HealthMonitor struct {
	connected bool
	degraded  bool
	state     PipelineState
}

// NewHealthMonitor returns a monitor in StateIdle.
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{}
}

// Connecting records that a connection attempt has started.
func (h *HealthMonitor) Connecting() {
	if h.state == StateIdle {
		h.state = StateConnecting
	}
}

// OnConnect handles the channel's connect event.
func (h *HealthMonitor) OnConnect() {
	h.connected = true
	h.degraded = false
	h.state = StateConnected
}

// OnDisconnect handles the channel's disconnect event. The degraded flag
// is left as is.
func (h *HealthMonitor) OnDisconnect() {
	h.connected = false
	h.settle()
}

// OnConnectError handles a failed connection attempt.
func (h *HealthMonitor) OnConnectError(permanent bool) {
	h.connected = false
	if permanent {
		h.degraded = true
	}
	h.settle()
}

func (h *HealthMonitor) settle() {
	if h.state == StateIdle {
		return
	}
	if h.degraded {
		h.state = StateDegraded
	} else {
		h.state = StateDisconnected
	}
}

// IsHealthy reports connected and not degraded.
func (h *HealthMonitor) IsHealthy() bool {
	return h.connected && !h.degraded
}

// State returns the pipeline state.
func (h *HealthMonitor) State() PipelineState {
	return h.state
}

// Snapshot returns the transport flags.
func (h *HealthMonitor) Snapshot() Health {
	return Health{Connected: h.connected, Degraded: h.degraded}
}

// Reset returns the monitor to StateIdle, as on logout.
func (h *HealthMonitor) Reset() {
	*h = HealthMonitor{}
}
