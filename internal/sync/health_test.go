package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthTransitions(t *testing.T) {
	h := NewHealthMonitor()
	assert.Equal(t, StateIdle, h.State())
	assert.False(t, h.IsHealthy())

	h.Connecting()
	assert.Equal(t, StateConnecting, h.State())

	h.OnConnectError(false)
	assert.Equal(t, StateDisconnected, h.State())
	assert.Equal(t, Health{}, h.Snapshot())

	h.OnConnect()
	assert.Equal(t, StateConnected, h.State())
	assert.True(t, h.IsHealthy())

	h.OnDisconnect()
	assert.Equal(t, StateDisconnected, h.State())
	assert.False(t, h.IsHealthy())

	h.OnConnectError(true)
	assert.Equal(t, StateDegraded, h.State())
	assert.Equal(t, Health{Degraded: true}, h.Snapshot())

	// A plain disconnect does not clear degradation.
	h.OnDisconnect()
	assert.Equal(t, StateDegraded, h.State())

	h.OnConnect()
	assert.Equal(t, StateConnected, h.State())
	assert.Equal(t, Health{Connected: true}, h.Snapshot())

	h.Reset()
	assert.Equal(t, StateIdle, h.State())
}

func TestHealthIgnoresEventsWhileIdle(t *testing.T) {
	h := NewHealthMonitor()
	h.OnDisconnect()
	h.OnConnectError(false)
	assert.Equal(t, StateIdle, h.State())
}

func TestPipelineStateString(t *testing.T) {
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "unknown", PipelineState(42).String())
}
