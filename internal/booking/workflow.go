// Package booking implements the reservation workflow: select an event, pick
// a ticket count, and confirm against the remote inventory.
//
// The capacity precheck runs against a cached, possibly stale snapshot and
// is advisory only. The remote decides; after a successful booking the
// workflow re-fetches listings instead of adjusting the cache.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ayaanthaher/ticket-booking/internal/apiclient"
	"github.com/Ayaanthaher/ticket-booking/internal/model"
	"github.com/Ayaanthaher/ticket-booking/internal/notify"
)

// State is the workflow stage.
type State int

const (
	Idle State = iota
	Selected
	Submitting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selected:
		return "selected"
	case Submitting:
		return "submitting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrNoSelection is returned when an operation needs a selected event.
	ErrNoSelection = errors.New("no event selected")
	// ErrInFlight is returned while a reservation is being submitted.
	ErrInFlight = errors.New("reservation already in flight")
)

const msgBooked = "Booking confirmed"

// ValidationError is a local precheck failure. It is never sent to the
// remote and never retried.
type ValidationError struct {
	Reason    string
	Requested int
	Available int
}

func (e *ValidationError) Error() string { return e.Reason }

// ReservationAPI submits reservations.
type ReservationAPI interface {
	CreateBooking(ctx context.Context, req model.ReservationRequest) (model.BookingConfirmation, error)
}

// Refresher re-fetches the authoritative event listing.
type Refresher interface {
	Refresh(ctx context.Context) ([]model.EventListing, error)
}

// Listings resolves an event against the last-fetched listing snapshot.
type Listings interface {
	Lookup(id string) (model.EventListing, bool)
}

// Scope supplies a context that ends with the current session.
type Scope interface {
	Context() context.Context
}

// Workflow is the reservation state machine. Safe for concurrent use; the
// lock is never held across a network call.
type Workflow struct {
	api       ReservationAPI
	refresher Refresher
	listings  Listings
	scope     Scope
	sink      notify.Sink
	loader    notify.Loader
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	selected *model.EventListing
	count    int
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithRefresher sets what is re-fetched after a successful booking.
func WithRefresher(r Refresher) Option {
	return func(w *Workflow) { w.refresher = r }
}

// WithListings makes Confirm check availability against the latest listing
// instead of the copy taken at selection time.
func WithListings(l Listings) Option {
	return func(w *Workflow) { w.listings = l }
}

// WithScope binds submissions to a session-scoped context.
func WithScope(s Scope) Option {
	return func(w *Workflow) { w.scope = s }
}

// WithNotifier sets the notification sink.
func WithNotifier(s notify.Sink) Option {
	return func(w *Workflow) {
		if s != nil {
			w.sink = s
		}
	}
}

// WithLoader sets the busy indicator toggled around submission.
func WithLoader(l notify.Loader) Option {
	return func(w *Workflow) {
		if l != nil {
			w.loader = l
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorkflow returns an Idle workflow.
func NewWorkflow(api ReservationAPI, opts ...Option) *Workflow {
	w := &Workflow{
		api:    api,
		sink:   notify.Discard,
		loader: notify.NoLoader,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current stage.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Selection returns the selected event snapshot.
func (w *Workflow) Selection() (model.EventListing, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected == nil {
		return model.EventListing{}, false
	}
	return *w.selected, true
}

// TicketCount returns the pending ticket count, 0 when nothing is selected.
func (w *Workflow) TicketCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// TotalPrice is ticketCount × price of the current selection.
func (w *Workflow) TotalPrice() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected == nil {
		return 0
	}
	return float64(w.count) * w.selected.Price
}

// SelectEvent selects ev with a ticket count of 1, replacing any previous selection.
func (w *Workflow) SelectEvent(ev model.EventListing) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Submitting {
		return ErrInFlight
	}
	w.selected = &ev
	w.count = 1
	w.state = Selected
	return nil
}

// SetTicketCount sets the count to max(1, n). There is no upper clamp; the
// capacity check happens at confirm time.
func (w *Workflow) SetTicketCount(n int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case Idle:
		return ErrNoSelection
	case Submitting:
		return ErrInFlight
	}
	w.count = max(1, n)
	return nil
}

// CancelSelection returns to Idle. It is refused while a submission is in flight.
func (w *Workflow) CancelSelection() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Submitting {
		return ErrInFlight
	}
	w.state = Idle
	w.selected = nil
	w.count = 0
	return nil
}

// Confirm submits the pending reservation.
//
// If the count exceeds the cached availability a *ValidationError is returned
// without any network call and the workflow stays Selected. On remote
// failure it returns to Selected with the selection intact. On success it
// goes Idle and triggers a refresh of the listings.
func (w *Workflow) Confirm(ctx context.Context) (model.BookingConfirmation, error) {
	w.mu.Lock()
	switch w.state {
	case Idle:
		w.mu.Unlock()
		return model.BookingConfirmation{}, ErrNoSelection
	case Submitting:
		w.mu.Unlock()
		return model.BookingConfirmation{}, ErrInFlight
	}
	ev := *w.selected
	if w.listings != nil {
		if latest, ok := w.listings.Lookup(ev.ID); ok {
			ev = latest
			w.selected = &latest
		}
	}
	req := model.ReservationRequest{EventID: ev.ID, TicketCount: w.count}

	if verr := precheck(ev, req); verr != nil {
		w.mu.Unlock()
		w.logger.Info("reservation rejected locally",
			"event_id", ev.ID,
			"requested", verr.Requested,
			"available", verr.Available,
		)
		w.sink.Notify(verr.Error(), notify.Failure)
		return model.BookingConfirmation{}, verr
	}
	w.state = Submitting
	w.mu.Unlock()

	callCtx, cancel := w.bind(ctx)
	w.loader.SetBusy(true)
	conf, err := w.api.CreateBooking(callCtx, req)
	w.loader.SetBusy(false)
	cancel()

	if err != nil {
		w.mu.Lock()
		w.state = Selected
		w.mu.Unlock()

		w.logger.Warn("reservation failed", "event_id", ev.ID, "tickets", req.TicketCount, "error", err)
		w.sink.Notify(apiclient.Message(err), notify.Failure)
		return model.BookingConfirmation{}, err
	}

	w.mu.Lock()
	w.state = Idle
	w.selected = nil
	w.count = 0
	w.mu.Unlock()

	w.logger.Info("reservation confirmed", "event_id", ev.ID, "tickets", req.TicketCount, "booking_id", conf.Booking.ID)
	msg := conf.Message
	if msg == "" {
		msg = msgBooked
	}
	w.sink.Notify(msg, notify.Success)

	if w.refresher != nil {
		if _, rerr := w.refresher.Refresh(ctx); rerr != nil {
			w.logger.Warn("refresh after booking failed", "error", rerr)
			w.sink.Notify(apiclient.Message(rerr), notify.Failure)
		}
	}
	return conf, nil
}

func precheck(ev model.EventListing, req model.ReservationRequest) *ValidationError {
	if err := req.Validate(); err != nil {
		return &ValidationError{Reason: err.Error(), Requested: req.TicketCount, Available: ev.AvailableTickets}
	}
	if req.TicketCount > ev.AvailableTickets {
		return &ValidationError{
			Reason:    fmt.Sprintf("Only %d tickets available", ev.AvailableTickets),
			Requested: req.TicketCount,
			Available: ev.AvailableTickets,
		}
	}
	return nil
}

// bind derives a context that also ends when the session scope ends.
func (w *Workflow) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if w.scope == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(w.scope.Context(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
