// Package stubapi is an in-memory stand-in for the remote booking API. It
// backs local development (cmd/stubapi) and end-to-end tests of the client.
package stubapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Ayaanthaher/ticket-booking/internal/model"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Server bundles the stub's layers and its router.
type Server struct {
	Store   *Store
	Service *Service
	Faults  *Faults
	Router  http.Handler
}

// New wires store → service → handler → router.
func New(secret []byte, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	store := NewStore()
	svc := NewService(store, NewTokens(secret, 0))
	h := NewHandler(svc, store)
	faults := NewFaults()

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(faults.Middleware)

	r.Get("/health", HealthCheck)

	r.Post("/auth/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		r.Get("/auth/validate", h.Validate)
		r.Get("/events", h.ListEvents)
		r.Post("/bookings", h.CreateBooking)
		r.Get("/bookings/my-bookings", h.MyBookings)
		r.Put("/user/profile", h.UpdateProfile)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireAdmin)
			r.Get("/events", h.ListEvents)
			r.Post("/events", h.CreateEvent)
			r.Put("/events/{id}", h.UpdateEvent)
			r.Delete("/events/{id}", h.DeleteEvent)
			r.Get("/bookings", h.AllBookings)
			r.Get("/stats", h.Stats)
		})
	})

	return &Server{Store: store, Service: svc, Faults: faults, Router: r}
}

// Seed loads demo accounts and events.
func (s *Server) Seed() {
	s.Store.AddUser("user@example.com", "Demo User", "password123", model.RoleUser)
	s.Store.AddUser("admin@example.com", "Demo Admin", "admin123", model.RoleAdmin)

	s.Store.CreateEvent(model.EventInput{
		Name:          "Summer Music Festival",
		Description:   "Three stages, one weekend.",
		Date:          "2026-07-18",
		Location:      "Riverside Park",
		TotalCapacity: 500,
		Price:         89.99,
	})
	s.Store.CreateEvent(model.EventInput{
		Name:          "Tech Conference",
		Description:   "Talks and workshops on distributed systems.",
		Date:          "2026-09-03",
		Location:      "Convention Center",
		TotalCapacity: 200,
		Price:         149,
	})
	s.Store.CreateEvent(model.EventInput{
		Name:          "Jazz Night",
		Description:   "An intimate evening with a local trio.",
		Date:          "2026-11-21",
		Location:      "Blue Room",
		TotalCapacity: 40,
		Price:         35,
	})
}

// RequestLogger logs one structured line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}

type fault struct {
	remaining int
	status    int
	message   string
}

// Faults makes the next n requests to a route fail, to exercise client retries.
type Faults struct {
	mu    sync.Mutex
	rules map[string]*fault
	hits  map[string]int
}

// NewFaults returns an empty fault table.
func NewFaults() *Faults {
	return &Faults{rules: make(map[string]*fault), hits: make(map[string]int)}
}

// Fail answers the next times requests to method+path with status and message.
func (f *Faults) Fail(method, path string, times, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[method+" "+path] = &fault{remaining: times, status: status, message: message}
}

// Hits reports how many requests reached method+path, failed or not.
func (f *Faults) Hits(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[method+" "+path]
}

// Middleware applies the fault table.
func (f *Faults) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.hits[key]++
		rule, ok := f.rules[key]
		inject := ok && rule.remaining > 0
		var status int
		var msg string
		if inject {
			rule.remaining--
			status, msg = rule.status, rule.message
		}
		f.mu.Unlock()

		if inject {
			writeError(w, status, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}
