package stubapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Ayaanthaher/ticket-booking/internal/model"
	"github.com/go-chi/chi/v5"
)

// IdempotencyHeader is read from POST /bookings to deduplicate retries.
const IdempotencyHeader = "Idempotency-Key"

type ctxKey struct{}

// Handler holds all HTTP handlers for the stub booking API.
type Handler struct {
	svc   *Service
	store *Store
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, store *Store) *Handler {
	return &Handler{svc: svc, store: store}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.MessageResponse{Message: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func validationMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")
}

func principalFrom(ctx context.Context) model.Principal {
	p, _ := ctx.Value(ctxKey{}).(model.Principal)
	return p
}

// ─── Middleware ───────────────────────────────────────────────────────────────

// RequireAuth resolves the bearer credential and rejects anonymous requests.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "No token provided")
			return
		}
		p, err := h.svc.Principal(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, p)))
	})
}

// RequireAdmin rejects principals without the admin role. Must run after RequireAuth.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principalFrom(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	resp, err := h.svc.Login(req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Validate handles GET /auth/validate
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ValidateResponse{User: principalFrom(r.Context())})
}

// ─── Events and bookings ──────────────────────────────────────────────────────

// ListEvents handles GET /events and GET /admin/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.EventsResponse{Events: h.store.Events()})
}

// CreateBooking handles POST /bookings
// A replayed Idempotency-Key answers with the original booking.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req model.ReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, replayed, err := h.svc.Book(principalFrom(r.Context()), req, r.Header.Get(IdempotencyHeader))
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			writeError(w, http.StatusBadRequest, validationMessage(err))
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "Event not found")
		case errors.Is(err, ErrSoldOut):
			writeError(w, http.StatusConflict, "Not enough tickets available")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create booking")
		}
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, model.BookingConfirmation{Message: "Booking successful", Booking: rec})
}

// MyBookings handles GET /bookings/my-bookings
func (h *Handler) MyBookings(w http.ResponseWriter, r *http.Request) {
	bookings := h.store.BookingsFor(principalFrom(r.Context()).ID)
	if bookings == nil {
		bookings = []model.BookingRecord{}
	}
	writeJSON(w, http.StatusOK, model.BookingsResponse{Bookings: bookings})
}

// ─── Admin ────────────────────────────────────────────────────────────────────

// CreateEvent handles POST /admin/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.EventInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ev, err := h.svc.CreateEvent(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	writeJSON(w, http.StatusCreated, model.EventResponse{Event: ev})
}

// UpdateEvent handles PUT /admin/events/{id}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.EventInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ev, err := h.svc.UpdateEvent(chi.URLParam(r, "id"), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "Event not found")
		case errors.Is(err, ErrCapacityBelowBooked):
			writeError(w, http.StatusConflict, "Capacity is below tickets already booked")
		default:
			writeError(w, http.StatusBadRequest, validationMessage(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, model.EventResponse{Event: ev})
}

// DeleteEvent handles DELETE /admin/events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteEvent(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Event deleted"})
}

// AllBookings handles GET /admin/bookings
func (h *Handler) AllBookings(w http.ResponseWriter, r *http.Request) {
	bookings := h.store.Bookings()
	if bookings == nil {
		bookings = []model.BookingRecord{}
	}
	writeJSON(w, http.StatusOK, model.BookingsResponse{Bookings: bookings})
}

// Stats handles GET /admin/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.StatsResponse{Stats: h.store.Stats()})
}

// UpdateProfile handles PUT /user/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in model.ProfileUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p, err := h.svc.UpdateProfile(principalFrom(r.Context()), in)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			writeError(w, http.StatusConflict, "Email already in use")
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			writeError(w, http.StatusBadRequest, validationMessage(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, model.ValidateResponse{User: p})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
