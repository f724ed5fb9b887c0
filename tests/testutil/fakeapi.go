package testutil

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nhle/homenotify/internal/fakeapi"
)

// NewFakeAPI starts a fake backend on a local listener with a short ping
// interval. Open sockets are dropped and the listener shut down when the
// test completes.
func NewFakeAPI(t *testing.T) (*fakeapi.Server, *httptest.Server) {
	t.Helper()

	api := fakeapi.New(fakeapi.Options{
		PingInterval: 200 * time.Millisecond,
		PingTimeout:  500 * time.Millisecond,
	})
	srv := httptest.NewServer(api)
	t.Cleanup(func() {
		api.DropSockets()
		srv.Close()
	})

	return api, srv
}
