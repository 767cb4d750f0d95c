// Package model defines the core domain and wire types shared by the booking client.
package model

import (
	"errors"
	"strings"
)

// Role is the authorization level carried by a Principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is the authenticated identity derived from a live credential.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the principal may use the admin surface.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// EventListing is a possibly-stale snapshot of a bookable event's inventory.
type EventListing struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Date             string  `json:"date"`
	Location         string  `json:"location"`
	TotalCapacity    int     `json:"totalCapacity"`
	AvailableTickets int     `json:"availableTickets"`
	Price            float64 `json:"price"`
}

// Valid reports whether the snapshot satisfies 0 <= available <= total.
func (e EventListing) Valid() bool {
	return e.AvailableTickets >= 0 && e.AvailableTickets <= e.TotalCapacity
}

// SoldOut returns true when the snapshot shows no remaining tickets.
func (e EventListing) SoldOut() bool {
	return e.AvailableTickets <= 0
}

// ErrInvalidTicketCount is returned for a reservation with fewer than one ticket.
var ErrInvalidTicketCount = errors.New("ticket count must be at least 1")

// ErrMissingEventID is returned for a reservation without an event.
var ErrMissingEventID = errors.New("event id is required")

// ReservationRequest is the payload for POST /bookings.
type ReservationRequest struct {
	EventID     string `json:"eventId"`
	TicketCount int    `json:"ticketCount"`
}

// Validate checks the structural preconditions of a reservation.
func (r ReservationRequest) Validate() error {
	if strings.TrimSpace(r.EventID) == "" {
		return ErrMissingEventID
	}
	if r.TicketCount < 1 {
		return ErrInvalidTicketCount
	}
	return nil
}

// BookingRecord is an immutable booking as reported by the remote source.
type BookingRecord struct {
	ID          string  `json:"id"`
	EventID     string  `json:"eventId"`
	EventName   string  `json:"eventName"`
	UserID      string  `json:"userId"`
	UserName    string  `json:"userName"`
	TicketCount int     `json:"ticketCount"`
	BookingDate string  `json:"bookingDate"`
	TotalPrice  float64 `json:"totalPrice"`
}

// BookingConfirmation is the remote's answer to a successful reservation.
type BookingConfirmation struct {
	Message string        `json:"message"`
	Booking BookingRecord `json:"booking"`
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries a freshly issued credential.
type LoginResponse struct {
	Token string    `json:"token"`
	User  Principal `json:"user"`
}

// ValidateResponse is returned by GET /auth/validate.
type ValidateResponse struct {
	User Principal `json:"user"`
}

// EventsResponse wraps the event listing collection.
type EventsResponse struct {
	Events []EventListing `json:"events"`
}

// EventResponse wraps a single event returned by the admin surface.
type EventResponse struct {
	Event EventListing `json:"event"`
}

// BookingsResponse wraps a booking collection.
type BookingsResponse struct {
	Bookings []BookingRecord `json:"bookings"`
}

// EventInput is the admin payload for creating or updating an event.
type EventInput struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Date          string  `json:"date"`
	Location      string  `json:"location"`
	TotalCapacity int     `json:"totalCapacity"`
	Price         float64 `json:"price"`
}

// Stats summarises platform activity for the admin dashboard.
type Stats struct {
	TotalEvents   int     `json:"totalEvents"`
	TotalBookings int     `json:"totalBookings"`
	TotalUsers    int     `json:"totalUsers"`
	TotalRevenue  float64 `json:"totalRevenue"`
}

// StatsResponse wraps Stats.
type StatsResponse struct {
	Stats Stats `json:"stats"`
}

// ProfileUpdate is the payload for PUT /user/profile.
type ProfileUpdate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// MessageResponse is the generic {message} body used for acknowledgements and failures.
type MessageResponse struct {
	Message string `json:"message"`
}
