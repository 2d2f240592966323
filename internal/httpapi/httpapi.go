// Package httpapi exposes the hub's auxiliary HTTP surface: login,
// health, status, stats, and read-only dumps of locks and events. The
// bidirectional sync protocol itself lives in internal/transport and
// internal/session; this package only serves the operator/tooling
// endpoints the spec lists alongside it.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/luxfi/posync-hub/internal/auth"
	"github.com/luxfi/posync-hub/internal/event"
	"github.com/luxfi/posync-hub/internal/lockmgr"
	"github.com/luxfi/posync-hub/internal/logging"
	"github.com/luxfi/posync-hub/internal/session"
	"github.com/luxfi/posync-hub/internal/store"
	"github.com/luxfi/posync-hub/internal/transport"
)

// Server bundles the dependencies the HTTP handlers read from. It does
// not own their lifetimes; cmd/hubd constructs all of it and passes
// the pieces in.
type Server struct {
	hub   *session.Hub
	store *store.Store
	locks *lockmgr.Manager
	auth  auth.Authenticator
	log   logging.Logger

	startedAt time.Time
}

// New wires a Server and returns its router, ready to be passed to
// http.ListenAndServe.
func New(hub *session.Hub, st *store.Store, locks *lockmgr.Manager, authenticator auth.Authenticator) *mux.Router {
	s := &Server{
		hub:       hub,
		store:     st,
		locks:     locks,
		auth:      authenticator,
		log:       logging.For("httpapi"),
		startedAt: time.Now(),
	}

	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))

	r.HandleFunc("/sync", s.handleWebsocket)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/locks", s.handleLocks).Methods(http.MethodGet)
	api.HandleFunc("/locks/{tenantId}/{storeId}", s.handleLocks).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	return r
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := transport.Upgrade(w, r)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	go s.hub.Serve(conn)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	LeaderID    string `json:"leaderId"`
	UptimeMS    int64  `json:"uptimeMs"`
	Connections int    `json:"connections"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snaps := s.hub.Snapshots()
	writeJSON(w, http.StatusOK, statusResponse{
		LeaderID:    s.hub.LeaderID(),
		UptimeMS:    time.Since(s.startedAt).Milliseconds(),
		Connections: len(snaps),
	})
}

type statsResponse struct {
	Events store.Stats   `json:"events"`
	Locks  lockmgr.Stats `json:"locks"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Events: s.store.Stats(),
		Locks:  s.locks.Stats(),
	})
}

func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, storeID := vars["tenantId"], vars["storeId"]
	if tenantID == "" || storeID == "" {
		tenantID = r.URL.Query().Get("tenantId")
		storeID = r.URL.Query().Get("storeId")
	}
	if tenantID == "" || storeID == "" {
		http.Error(w, "tenantId and storeId are required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.locks.GetActiveLocks(tenantID, storeID))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := event.Filter{
		TenantID:    q.Get("tenantId"),
		StoreID:     q.Get("storeId"),
		AggregateID: q.Get("aggregateId"),
	}
	if v := q.Get("fromLamport"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid fromLamport", http.StatusBadRequest)
			return
		}
		filter.FromLamport = n
	}
	writeJSON(w, http.StatusOK, s.store.GetEvents(filter))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenantId"`
}

type loginResponse struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := s.auth.Login(req.Email, req.Password, req.TenantID)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		UserName:  sess.UserName,
	})
}

func loggingMiddleware(log logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	}
}
