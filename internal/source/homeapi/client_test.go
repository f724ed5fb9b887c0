package homeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/source"
)

func newTestClient(url string) *Client {
	c := NewClient(url, 2*time.Second)
	c.SetRetryDelays(time.Millisecond, 5*time.Millisecond)
	return c
}

func TestFetchAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notifications" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.NotEmpty(t, r.Header.Get("X-Correlation-Id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [
			{"id": 1, "header": "Light on", "status": "unread", "created_at": "2026-03-14T10:00:00Z"},
			{"id": 2, "header": "broken"},
			{"id": "x3", "header": "Fan off", "status": "read", "created_at": "2026-03-14T09:00:00Z"}
		]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	records, err := newTestClient(srv.URL).FetchAll(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, "x3", records[1].ID)
	assert.Equal(t, model.StatusRead, records[1].Status)
}

func TestFetchAllUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAll(context.Background(), "bad")
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))
}

func TestFetchAllRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data": []}`)) //nolint:errcheck
	}))
	defer srv.Close()

	records, err := newTestClient(srv.URL).FetchAll(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchAllGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAll(context.Background(), "tok")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, int32(4), calls.Load())
}

func TestSetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/notifications/n1", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "read", body["status"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).SetStatus(context.Background(), "tok", "n1", model.StatusRead)
	require.NoError(t, err)
}

func TestDeleteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "no such notification"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Delete(context.Background(), "tok", "gone")
	assert.ErrorIs(t, err, source.ErrNotFound)
	assert.Contains(t, err.Error(), "no such notification")
}

func TestLoginAndRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Path {
		case "/api/v1/access/login":
			if body["username"] != "alice" || body["password"] != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"data": {"access_token": "a1", "refresh_token": "r1"}}`)) //nolint:errcheck
		case "/api/v1/access/token/refresh":
			assert.Equal(t, "r1", body["refreshToken"])
			w.Write([]byte(`{"accessToken": "a2"}`)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	tok, err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)

	next, err := c.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", next.AccessToken)
	assert.Equal(t, "r1", next.RefreshToken)

	_, err = c.Login(context.Background(), "alice", "wrong")
	assert.True(t, source.IsAuthError(err))
}
