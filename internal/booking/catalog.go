package booking

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Ayaanthaher/ticket-booking/internal/model"
)

// ErrInvalidSnapshot is returned when the remote reports an event whose
// availability lies outside [0, totalCapacity].
var ErrInvalidSnapshot = errors.New("invalid event snapshot")

// EventSource fetches the authoritative event listing.
type EventSource interface {
	ListEvents(ctx context.Context) ([]model.EventListing, error)
}

// BookingSource fetches the caller's booking history.
type BookingSource interface {
	MyBookings(ctx context.Context) ([]model.BookingRecord, error)
}

// Catalog is the host view's cache of event listings. It is only ever
// replaced wholesale; entries are never patched in place.
type Catalog struct {
	src    EventSource
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	events    []model.EventListing
	fetchedAt time.Time
}

// NewCatalog constructs an empty Catalog.
func NewCatalog(src EventSource, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{src: src, logger: logger, now: time.Now}
}

// Refresh fetches a new snapshot and swaps it in. A snapshot containing an
// inconsistent entry is rejected whole and the previous one is kept.
func (c *Catalog) Refresh(ctx context.Context) ([]model.EventListing, error) {
	events, err := c.src.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if !e.Valid() {
			c.logger.Warn("rejecting event snapshot",
				"event_id", e.ID,
				"available", e.AvailableTickets,
				"total", e.TotalCapacity,
			)
			return nil, fmt.Errorf("%w: event %s has %d of %d available",
				ErrInvalidSnapshot, e.ID, e.AvailableTickets, e.TotalCapacity)
		}
	}

	fresh := slices.Clone(events)
	c.mu.Lock()
	c.events = fresh
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return slices.Clone(fresh), nil
}

// Events returns a copy of the current snapshot.
func (c *Catalog) Events() []model.EventListing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.events)
}

// Lookup returns the cached listing for id.
func (c *Catalog) Lookup(id string) (model.EventListing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.events {
		if e.ID == id {
			return e, true
		}
	}
	return model.EventListing{}, false
}

// FetchedAt reports when the current snapshot was taken; zero if never.
func (c *Catalog) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// History loads the caller's bookings, newest first.
func History(ctx context.Context, src BookingSource) ([]model.BookingRecord, error) {
	records, err := src.MyBookings(ctx)
	if err != nil {
		return nil, err
	}
	records = slices.Clone(records)
	slices.SortStableFunc(records, func(a, b model.BookingRecord) int {
		return cmp.Compare(b.BookingDate, a.BookingDate)
	})
	return records, nil
}
