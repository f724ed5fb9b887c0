// Package fakeapi is an in-process stand-in for the smart-home backend. It
// serves the notification REST API and the Socket.IO push channel so the
// client can be developed and tested without the real service.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nhle/homenotify/internal/model"
	"github.com/nhle/homenotify/internal/payload"
)

// Logger is the subset of *log.Logger the server uses.
type Logger interface {
	Printf(format string, v ...any)
}

// Options configures a Server.
type Options struct {
	Username     string
	Password     string
	PingInterval time.Duration
	PingTimeout  time.Duration
	Logger       Logger
}

// Server holds the fake backend's state. All methods are safe for
// concurrent use.
type Server struct {
	opts   Options
	router *mux.Router

	mu            gosync.Mutex
	records       map[string]model.Notification
	access        map[string]bool
	refresh       map[string]bool
	sockets       map[*socket]struct{}
	rejectSockets bool
	upgradeStatus int
	failFetches   int
	fetches       int
}

// New builds a server with no records and no issued tokens.
func New(opts Options) *Server {
	if opts.Username == "" {
		opts.Username = "demo"
	}
	if opts.Password == "" {
		opts.Password = "demo"
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 20 * time.Second
	}

	s := &Server{
		opts:    opts,
		records: make(map[string]model.Notification),
		access:  make(map[string]bool),
		refresh: make(map[string]bool),
		sockets: make(map[*socket]struct{}),
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/v1/access/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/api/v1/access/token/refresh", s.handleRefresh).Methods("POST")
	r.HandleFunc("/api/v1/access/logout", s.handleLogout).Methods("POST")

	api := r.PathPrefix("/api/v1/notifications").Subrouter()
	api.Use(s.requireToken)
	api.HandleFunc("", s.handleList).Methods("GET")
	api.HandleFunc("/{id}", s.handlePatch).Methods("PATCH")
	api.HandleFunc("/{id}", s.handleDelete).Methods("DELETE")

	r.PathPrefix("/socket.io").HandlerFunc(s.handleSocket)
	return r
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// IssueToken mints a valid access/refresh pair without a login call.
func (s *Server) IssueToken() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked()
}

func (s *Server) issueLocked() (string, string) {
	access := "at-" + uuid.NewString()
	refresh := "rt-" + uuid.NewString()
	s.access[access] = true
	s.refresh[refresh] = true
	return access, refresh
}

// RevokeAccess invalidates an access token so the next request using it
// gets 401. The matching refresh token stays valid.
func (s *Server) RevokeAccess(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.access, token)
}

// Add stores n, replacing any record with the same id.
func (s *Server) Add(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[n.ID] = n
}

// Remove deletes a record server-side without notifying clients.
func (s *Server) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// Record returns the stored record for id.
func (s *Server) Record(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.records[id]
	return n, ok
}

// Records returns every stored record, newest first.
func (s *Server) Records() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, 0, len(s.records))
	for _, n := range s.records {
		out = append(out, n)
	}
	slices.SortFunc(out, model.NewerFirst)
	return out
}

// FailFetches makes the next n list requests answer 503.
func (s *Server) FailFetches(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFetches = n
}

// FetchCount returns how many list requests were served successfully.
func (s *Server) FetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *Server) logf(format string, v ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Printf(format, v...)
	}
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !s.validAccess(token) {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validAccess(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token != "" && s.access[token]
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	if s.failFetches > 0 {
		s.failFetches--
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
		return
	}
	s.fetches++
	s.mu.Unlock()

	records := s.Records()
	data := make([]json.RawMessage, 0, len(records))
	for _, n := range records {
		raw, err := payload.Encode(n)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		data = append(data, raw)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	status, err := model.ParseStatus(body.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	n, ok := s.records[id]
	if ok {
		n.Status = status
		n.UpdatedAt = time.Now().UTC()
		s.records[id] = n
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	_, ok := s.records[id]
	delete(s.records, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Username != s.opts.Username || body.Password != s.opts.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	access, refresh := s.IssueToken()
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]string{
			"access_token":  access,
			"refresh_token": refresh,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	valid := s.refresh[body.RefreshToken]
	var access string
	if valid {
		access = "at-" + uuid.NewString()
		s.access[access] = true
	}
	s.mu.Unlock()

	if !valid {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	delete(s.refresh, body.RefreshToken)
	delete(s.access, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
