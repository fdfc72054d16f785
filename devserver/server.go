package devserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"sentinel/api"
	"sentinel/logger"
	"sentinel/models"
)

// User is one directory entry a direct message can resolve against.
type User struct {
	ID       string
	FullName string
	Email    string
	Handle   string
}

// Config configures a development backend.
type Config struct {
	Log logger.Logger

	// Token, when non-empty, is required as a bearer token on every
	// API route.
	Token string

	// SelfID is the directory id of the operator running the client.
	// Direct-message channel handles are derived from it.
	SelfID string

	// Users seeds the directory used by direct-message provisioning.
	Users []User

	now func() time.Time
}

// Server is an in-memory backend implementing the client wire contract:
// threat-intel scanning, channel message fetch, and direct-message
// provisioning. State lives for the process lifetime only.
type Server struct {
	log    logger.Logger
	token  string
	selfID string
	router *mux.Router
	now    func() time.Time

	mu       sync.Mutex
	channels map[string][]api.WireMessage
	users    []User
	bindings []models.DirectMessageBinding
}

// NewServer builds the server and its route table.
func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.NewNopLogger()
	}
	selfID := cfg.SelfID
	if selfID == "" {
		selfID = "1"
	}
	now := cfg.now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		log:      log,
		token:    cfg.Token,
		selfID:   selfID,
		now:      now,
		channels: make(map[string][]api.WireMessage),
		users:    append([]User(nil), cfg.Users...),
	}

	r := mux.NewRouter()
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(s.requireBearer)

	apiRouter.HandleFunc("/threat-intel/scan", s.handleScan).Methods("POST")
	apiRouter.HandleFunc("/chat/messages", s.handleMessages).Methods("GET")
	apiRouter.HandleFunc("/chat/dm", s.handleStartDM).Methods("POST")
	apiRouter.HandleFunc("/chat/dms", s.handleListDMs).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	s.router = r
	return s
}

// ServeHTTP dispatches through the route table.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || presented != s.token {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
