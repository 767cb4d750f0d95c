package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Ayaanthaher/ticket-booking/internal/model"
)

// TokenSource yields the current credential, or "" when anonymous.
type TokenSource interface {
	Token() string
}

// Client is a typed wrapper over Executor, one method per endpoint.
type Client struct {
	exec   *Executor
	tokens TokenSource
}

// NewClient constructs a Client without a credential source.
func NewClient(exec *Executor) *Client {
	return &Client{exec: exec}
}

// WithTokens returns a copy of c that authenticates with ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	return &Client{exec: c.exec, tokens: ts}
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// ─── Auth ─────────────────────────────────────────────────────────────────────

// Login handles POST /auth/login.
func (c *Client) Login(ctx context.Context, email, password string) (model.LoginResponse, error) {
	var resp model.LoginResponse
	err := c.exec.Execute(ctx, Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   model.LoginRequest{Email: email, Password: password},
	}, &resp)
	if err != nil {
		return model.LoginResponse{}, err
	}
	if resp.Token == "" {
		return model.LoginResponse{}, fmt.Errorf("login: %w: missing token", ErrMalformedResponse)
	}
	return resp, nil
}

// Validate handles GET /auth/validate for an explicit credential.
func (c *Client) Validate(ctx context.Context, token string) (model.Principal, error) {
	var resp model.ValidateResponse
	err := c.exec.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   "/auth/validate",
		Token:  token,
	}, &resp)
	if err != nil {
		return model.Principal{}, err
	}
	if resp.User.ID == "" {
		return model.Principal{}, fmt.Errorf("validate: %w: missing user", ErrMalformedResponse)
	}
	return resp.User, nil
}

// ─── Events and bookings ──────────────────────────────────────────────────────

// ListEvents handles GET /events.
func (c *Client) ListEvents(ctx context.Context) ([]model.EventListing, error) {
	var resp model.EventsResponse
	if err := c.get(ctx, "/events", &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// CreateBooking handles POST /bookings.
func (c *Client) CreateBooking(ctx context.Context, req model.ReservationRequest) (model.BookingConfirmation, error) {
	var resp model.BookingConfirmation
	err := c.exec.Execute(ctx, Request{
		Method: http.MethodPost,
		Path:   "/bookings",
		Body:   req,
		Token:  c.token(),
	}, &resp)
	if err != nil {
		return model.BookingConfirmation{}, err
	}
	return resp, nil
}

// MyBookings handles GET /bookings/my-bookings.
func (c *Client) MyBookings(ctx context.Context) ([]model.BookingRecord, error) {
	var resp model.BookingsResponse
	if err := c.get(ctx, "/bookings/my-bookings", &resp); err != nil {
		return nil, err
	}
	return resp.Bookings, nil
}

// ─── Admin ────────────────────────────────────────────────────────────────────

// AdminEvents handles GET /admin/events.
func (c *Client) AdminEvents(ctx context.Context) ([]model.EventListing, error) {
	var resp model.EventsResponse
	if err := c.get(ctx, "/admin/events", &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// CreateEvent handles POST /admin/events.
func (c *Client) CreateEvent(ctx context.Context, in model.EventInput) (model.EventListing, error) {
	var resp model.EventResponse
	err := c.exec.Execute(ctx, Request{
		Method: http.MethodPost,
		Path:   "/admin/events",
		Body:   in,
		Token:  c.token(),
	}, &resp)
	return resp.Event, err
}

// UpdateEvent handles PUT /admin/events/{id}.
func (c *Client) UpdateEvent(ctx context.Context, id string, in model.EventInput) (model.EventListing, error) {
	var resp model.EventResponse
	err := c.exec.Execute(ctx, Request{
		Method: http.MethodPut,
		Path:   "/admin/events/" + url.PathEscape(id),
		Body:   in,
		Token:  c.token(),
	}, &resp)
	return resp.Event, err
}

// DeleteEvent handles DELETE /admin/events/{id}.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	return c.exec.Execute(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/admin/events/" + url.PathEscape(id),
		Token:  c.token(),
	}, nil)
}

// AdminBookings handles GET /admin/bookings.
func (c *Client) AdminBookings(ctx context.Context) ([]model.BookingRecord, error) {
	var resp model.BookingsResponse
	if err := c.get(ctx, "/admin/bookings", &resp); err != nil {
		return nil, err
	}
	return resp.Bookings, nil
}

// Stats handles GET /admin/stats.
func (c *Client) Stats(ctx context.Context) (model.Stats, error) {
	var resp model.StatsResponse
	if err := c.get(ctx, "/admin/stats", &resp); err != nil {
		return model.Stats{}, err
	}
	return resp.Stats, nil
}

// UpdateProfile handles PUT /user/profile.
func (c *Client) UpdateProfile(ctx context.Context, in model.ProfileUpdate) (model.Principal, error) {
	var resp model.ValidateResponse
	err := c.exec.Execute(ctx, Request{
		Method: http.MethodPut,
		Path:   "/user/profile",
		Body:   in,
		Token:  c.token(),
	}, &resp)
	return resp.User, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.exec.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   path,
		Token:  c.token(),
	}, out)
}
