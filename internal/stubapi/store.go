package stubapi

import (
	"crypto/subtle"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Ayaanthaher/ticket-booking/internal/model"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrSoldOut is returned when an event cannot cover the requested tickets.
var ErrSoldOut = errors.New("not enough tickets available")

// ErrInvalidCredentials is returned for an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrCapacityBelowBooked is returned when an update would oversell an event.
var ErrCapacityBelowBooked = errors.New("capacity below tickets already booked")

// ErrEmailTaken is returned when a profile update collides with another user.
var ErrEmailTaken = errors.New("email already in use")

type account struct {
	principal model.Principal
	password  string
}

// Store is the in-memory inventory behind the stub API.
//
// Every capacity check and decrement happens under one mutex, so two
// concurrent bookings can never both see the same free seats. This is the
// in-process equivalent of locking the event row for the duration of the
// booking.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	accounts map[string]*account // by user id
	events   map[string]*model.EventListing
	order    []string
	bookings []model.BookingRecord
	byReqKey map[string]model.BookingRecord
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		now:      time.Now,
		accounts: make(map[string]*account),
		events:   make(map[string]*model.EventListing),
		byReqKey: make(map[string]model.BookingRecord),
	}
}

// AddUser registers an account and returns its principal.
func (s *Store) AddUser(email, name, password string, role model.Role) model.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := model.Principal{
		ID:    uuid.NewString(),
		Email: strings.ToLower(strings.TrimSpace(email)),
		Name:  name,
		Role:  role,
	}
	s.accounts[p.ID] = &account{principal: p, password: password}
	return p
}

// Authenticate checks an email and password pair.
func (s *Store) Authenticate(email, password string) (model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range s.accounts {
		if a.principal.Email != email {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(a.password), []byte(password)) != 1 {
			return model.Principal{}, ErrInvalidCredentials
		}
		return a.principal, nil
	}
	return model.Principal{}, ErrInvalidCredentials
}

// User returns the principal for id.
func (s *Store) User(id string) (model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.Principal{}, ErrNotFound
	}
	return a.principal, nil
}

// UpdateProfile changes a user's display name and email.
func (s *Store) UpdateProfile(id string, in model.ProfileUpdate) (model.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return model.Principal{}, ErrNotFound
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	for otherID, other := range s.accounts {
		if otherID != id && other.principal.Email == email {
			return model.Principal{}, ErrEmailTaken
		}
	}
	a.principal.Name = strings.TrimSpace(in.Name)
	a.principal.Email = email
	return a.principal, nil
}

// CreateEvent inserts an event with full availability.
func (s *Store) CreateEvent(in model.EventInput) model.EventListing {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &model.EventListing{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Description:      in.Description,
		Date:             in.Date,
		Location:         in.Location,
		TotalCapacity:    in.TotalCapacity,
		AvailableTickets: in.TotalCapacity,
		Price:            in.Price,
	}
	s.events[e.ID] = e
	s.order = append(s.order, e.ID)
	return *e
}

// UpdateEvent replaces an event's details, keeping already-booked seats.
func (s *Store) UpdateEvent(id string, in model.EventInput) (model.EventListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return model.EventListing{}, ErrNotFound
	}
	booked := e.TotalCapacity - e.AvailableTickets
	if in.TotalCapacity < booked {
		return model.EventListing{}, ErrCapacityBelowBooked
	}
	e.Name = in.Name
	e.Description = in.Description
	e.Date = in.Date
	e.Location = in.Location
	e.Price = in.Price
	e.TotalCapacity = in.TotalCapacity
	e.AvailableTickets = in.TotalCapacity - booked
	return *e, nil
}

// DeleteEvent removes an event. Existing bookings are kept.
func (s *Store) DeleteEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

// Events returns all events in creation order.
func (s *Store) Events() []model.EventListing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.EventListing, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.events[id])
	}
	return out
}

// Book reserves count tickets for user. A repeated idempotency key returns
// the booking created by the first request instead of booking again.
func (s *Store) Book(user model.Principal, eventID string, count int, key string) (model.BookingRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if prior, ok := s.byReqKey[user.ID+"/"+key]; ok {
			return prior, true, nil
		}
	}

	e, ok := s.events[eventID]
	if !ok {
		return model.BookingRecord{}, false, ErrNotFound
	}
	if count > e.AvailableTickets {
		return model.BookingRecord{}, false, ErrSoldOut
	}
	e.AvailableTickets -= count

	rec := model.BookingRecord{
		ID:          uuid.NewString(),
		EventID:     e.ID,
		EventName:   e.Name,
		UserID:      user.ID,
		UserName:    user.Name,
		TicketCount: count,
		BookingDate: s.now().UTC().Format(time.RFC3339),
		TotalPrice:  float64(count) * e.Price,
	}
	s.bookings = append(s.bookings, rec)
	if key != "" {
		s.byReqKey[user.ID+"/"+key] = rec
	}
	return rec, false, nil
}

// BookingsFor returns the bookings made by userID.
func (s *Store) BookingsFor(userID string) []model.BookingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BookingRecord
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out
}

// Bookings returns every booking.
func (s *Store) Bookings() []model.BookingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.bookings)
}

// Stats aggregates platform totals.
func (s *Store) Stats() model.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := model.Stats{
		TotalEvents:   len(s.events),
		TotalBookings: len(s.bookings),
		TotalUsers:    len(s.accounts),
	}
	for _, b := range s.bookings {
		st.TotalRevenue += b.TotalPrice
	}
	return st
}
