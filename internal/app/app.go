// Package app assembles one client instance: executor, typed API, session,
// event catalog and booking workflow, sharing a single credential owner.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Ayaanthaher/ticket-booking/internal/apiclient"
	"github.com/Ayaanthaher/ticket-booking/internal/booking"
	"github.com/Ayaanthaher/ticket-booking/internal/config"
	"github.com/Ayaanthaher/ticket-booking/internal/credstore"
	"github.com/Ayaanthaher/ticket-booking/internal/notify"
	"github.com/Ayaanthaher/ticket-booking/internal/session"
)

// App is the client context object handed to the view layer.
type App struct {
	API     *apiclient.Client
	Session *session.Manager
	Catalog *booking.Catalog
	Booking *booking.Workflow

	closeStore func() error
}

// Deps are the presentation-layer collaborators. A nil Notifier logs notices;
// other zero values are replaced with defaults.
type Deps struct {
	Notifier notify.Sink
	Loader   notify.Loader
	Logger   *slog.Logger
	// Store overrides the store named in the config.
	Store credstore.Store
	// HTTPClient overrides the default client built from AttemptTimeout.
	HTTPClient *http.Client
	// Sleep overrides the executor's backoff wait.
	Sleep apiclient.SleepFunc
}

// New wires an App from cfg.
func New(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogSink{Logger: deps.Logger}
	}
	if deps.Loader == nil {
		deps.Loader = notify.NoLoader
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: cfg.AttemptTimeout}
	}

	mode, err := apiclient.ParseRetryMode(cfg.RetryMode)
	if err != nil {
		return nil, err
	}
	exec, err := apiclient.NewExecutor(cfg.APIURL,
		apiclient.WithHTTPClient(deps.HTTPClient),
		apiclient.WithMaxAttempts(cfg.MaxAttempts),
		apiclient.WithBaseDelay(cfg.BaseDelay),
		apiclient.WithRetryMode(mode),
		apiclient.WithLogger(deps.Logger.With("component", "apiclient")),
		apiclient.WithSleep(deps.Sleep),
	)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}

	store := deps.Store
	closeStore := func() error { return nil }
	if store == nil {
		store, closeStore, err = credstore.Open(ctx, cfg.Store())
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
	}

	anon := apiclient.NewClient(exec)
	mgr := session.NewManager(anon, store,
		session.WithNotifier(deps.Notifier),
		session.WithLoader(deps.Loader),
		session.WithLogger(deps.Logger.With("component", "session")),
	)
	api := anon.WithTokens(mgr)

	catalog := booking.NewCatalog(api, deps.Logger.With("component", "catalog"))
	workflow := booking.NewWorkflow(api,
		booking.WithRefresher(catalog),
		booking.WithListings(catalog),
		booking.WithScope(mgr),
		booking.WithNotifier(deps.Notifier),
		booking.WithLoader(deps.Loader),
		booking.WithLogger(deps.Logger.With("component", "booking")),
	)

	return &App{
		API:        api,
		Session:    mgr,
		Catalog:    catalog,
		Booking:    workflow,
		closeStore: closeStore,
	}, nil
}

// Close releases the credential store.
func (a *App) Close() error {
	return a.closeStore()
}
