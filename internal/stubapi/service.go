package stubapi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Ayaanthaher/ticket-booking/internal/model"
)

// ErrValidation wraps request payload problems.
var ErrValidation = errors.New("validation failed")

// Service applies the stub API's business rules on top of Store.
type Service struct {
	store  *Store
	tokens *Tokens
}

// NewService constructs a Service with its dependencies.
func NewService(store *Store, tokens *Tokens) *Service {
	return &Service{store: store, tokens: tokens}
}

// Login checks credentials and issues a token.
func (s *Service) Login(req model.LoginRequest) (model.LoginResponse, error) {
	p, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		return model.LoginResponse{}, err
	}
	tok, err := s.tokens.Issue(p)
	if err != nil {
		return model.LoginResponse{}, err
	}
	return model.LoginResponse{Token: tok, User: p}, nil
}

// Principal resolves a bearer token to a live user.
func (s *Service) Principal(token string) (model.Principal, error) {
	id, err := s.tokens.Subject(token)
	if err != nil {
		return model.Principal{}, err
	}
	p, err := s.store.User(id)
	if err != nil {
		return model.Principal{}, ErrInvalidToken
	}
	return p, nil
}

// Book validates the reservation and delegates the capacity-safe booking to the store.
func (s *Service) Book(user model.Principal, req model.ReservationRequest, key string) (model.BookingRecord, bool, error) {
	if err := req.Validate(); err != nil {
		return model.BookingRecord{}, false, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.store.Book(user, req.EventID, req.TicketCount, key)
}

// CreateEvent validates the request and delegates to the store.
func (s *Service) CreateEvent(in model.EventInput) (model.EventListing, error) {
	in, err := validateEvent(in)
	if err != nil {
		return model.EventListing{}, err
	}
	return s.store.CreateEvent(in), nil
}

// UpdateEvent validates the request and delegates to the store.
func (s *Service) UpdateEvent(id string, in model.EventInput) (model.EventListing, error) {
	in, err := validateEvent(in)
	if err != nil {
		return model.EventListing{}, err
	}
	return s.store.UpdateEvent(id, in)
}

// UpdateProfile validates and applies a profile change.
func (s *Service) UpdateProfile(user model.Principal, in model.ProfileUpdate) (model.Principal, error) {
	if strings.TrimSpace(in.Name) == "" {
		return model.Principal{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !isValidEmail(strings.TrimSpace(in.Email)) {
		return model.Principal{}, fmt.Errorf("%w: email is not a valid email address", ErrValidation)
	}
	return s.store.UpdateProfile(user.ID, in)
}

func validateEvent(in model.EventInput) (model.EventInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, fmt.Errorf("%w: event name is required", ErrValidation)
	}
	if in.TotalCapacity <= 0 {
		return in, fmt.Errorf("%w: capacity must be a positive integer", ErrValidation)
	}
	if in.TotalCapacity > 100_000 {
		return in, fmt.Errorf("%w: capacity cannot exceed 100,000", ErrValidation)
	}
	if in.Price < 0 {
		return in, fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	return in, nil
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
