package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ayaanthaher/ticket-booking/internal/model"
)

type fakeEvents struct {
	events []model.EventListing
	err    error
}

func (f *fakeEvents) ListEvents(ctx context.Context) ([]model.EventListing, error) {
	return f.events, f.err
}

func (f *fakeEvents) MyBookings(ctx context.Context) ([]model.BookingRecord, error) {
	return []model.BookingRecord{
		{ID: "b1", BookingDate: "2026-01-02T10:00:00Z"},
		{ID: "b2", BookingDate: "2026-03-01T10:00:00Z"},
		{ID: "b3", BookingDate: "2026-02-01T10:00:00Z"},
	}, f.err
}

func TestCatalogRefreshReplacesWholesale(t *testing.T) {
	t.Parallel()

	src := &fakeEvents{events: []model.EventListing{
		{ID: "e1", TotalCapacity: 10, AvailableTickets: 4},
		{ID: "e2", TotalCapacity: 5, AvailableTickets: 0},
	}}
	c := NewCatalog(src, nil)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	held := c.Events()
	if len(held) != 2 || !c.FetchedAt().Equal(fixed) {
		t.Fatalf("unexpected snapshot %+v", held)
	}

	// Mutating the caller's copy or the source must not leak into the cache.
	held[0].AvailableTickets = 0
	src.events[0].AvailableTickets = 1
	if e, ok := c.Lookup("e1"); !ok || e.AvailableTickets != 4 {
		t.Fatalf("cache was patched in place: %+v", e)
	}

	src.events = []model.EventListing{{ID: "e3", TotalCapacity: 1, AvailableTickets: 1}}
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if _, ok := c.Lookup("e1"); ok {
		t.Fatal("old entries survived a refresh")
	}
}

func TestCatalogRejectsInconsistentSnapshot(t *testing.T) {
	t.Parallel()

	src := &fakeEvents{events: []model.EventListing{{ID: "e1", TotalCapacity: 10, AvailableTickets: 3}}}
	c := NewCatalog(src, nil)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	for _, bad := range []model.EventListing{
		{ID: "over", TotalCapacity: 2, AvailableTickets: 3},
		{ID: "negative", TotalCapacity: 2, AvailableTickets: -1},
	} {
		src.events = []model.EventListing{bad}
		if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrInvalidSnapshot) {
			t.Fatalf("%s: expected ErrInvalidSnapshot, got %v", bad.ID, err)
		}
		if _, ok := c.Lookup("e1"); !ok {
			t.Fatalf("%s: previous snapshot discarded", bad.ID)
		}
	}
}

func TestCatalogRefreshError(t *testing.T) {
	t.Parallel()

	boom := errors.New("down")
	c := NewCatalog(&fakeEvents{err: boom}, nil)
	if _, err := c.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
	if len(c.Events()) != 0 || !c.FetchedAt().IsZero() {
		t.Fatal("failed refresh changed the cache")
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	t.Parallel()

	records, err := History(context.Background(), &fakeEvents{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	got := []string{records[0].ID, records[1].ID, records[2].ID}
	if got[0] != "b2" || got[1] != "b3" || got[2] != "b1" {
		t.Fatalf("unexpected order %v", got)
	}
}
