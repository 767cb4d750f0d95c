// Package session owns the credential and the current principal, and drives
// the Anonymous → Authenticating → Authenticated lifecycle.
//
// The Manager is the only writer of the credential. Every Login and Logout
// bumps a generation counter; an asynchronous result (Restore, Login) is
// applied only when the generation it started under is still current, so a
// slow validation can never resurrect a session the user has since left.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Ayaanthaher/ticket-booking/internal/apiclient"
	"github.com/Ayaanthaher/ticket-booking/internal/credstore"
	"github.com/Ayaanthaher/ticket-booking/internal/model"
	"github.com/Ayaanthaher/ticket-booking/internal/notify"
)

// State is the lifecycle stage of a session.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrSuperseded is returned when a Login or Logout overtook the call.
var ErrSuperseded = errors.New("session changed while request was in flight")

const (
	msgLoginOK  = "Login successful"
	msgLogoutOK = "Logged out successfully"
)

// AuthAPI is the slice of the remote API the session depends on.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (model.LoginResponse, error)
	Validate(ctx context.Context, token string) (model.Principal, error)
}

// Snapshot is a consistent view of the session for readers.
type Snapshot struct {
	State     State
	Principal *model.Principal
}

// Manager owns the session. Safe for concurrent use.
type Manager struct {
	api    AuthAPI
	store  credstore.Store
	sink   notify.Sink
	loader notify.Loader
	logger *slog.Logger

	// storeMu orders durable writes so an older operation's write can
	// never land after a newer one's.
	storeMu sync.Mutex

	mu          sync.Mutex
	state       State
	token       string
	principal   *model.Principal
	gen         uint64
	nextID      uint64
	pending     map[uint64]context.CancelFunc
	scope       context.Context
	endScope    context.CancelFunc
	subscribers map[uint64]func(Snapshot)
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier sets the notification sink.
func WithNotifier(s notify.Sink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// WithLoader sets the busy indicator toggled around login.
func WithLoader(l notify.Loader) Option {
	return func(m *Manager) {
		if l != nil {
			m.loader = l
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager returns an Anonymous session backed by store.
func NewManager(api AuthAPI, store credstore.Store, opts ...Option) *Manager {
	m := &Manager{
		api:         api,
		store:       store,
		sink:        notify.Discard,
		loader:      notify.NoLoader,
		logger:      slog.Default(),
		pending:     make(map[uint64]context.CancelFunc),
		subscribers: make(map[uint64]func(Snapshot)),
	}
	m.scope, m.endScope = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ─── Readers ──────────────────────────────────────────────────────────────────

// Token returns the live credential, or "" when there is none.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Snapshot returns the current state and a copy of the principal.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Context is cancelled when the current credential stops being current
// (logout, failed validation, or replacement by a new login). Work bound to
// it is abandoned on a best-effort basis.
func (m *Manager) Context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

// Subscribe registers fn to be called after every settled transition.
// The returned function removes the subscription.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subscribers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// ─── Transitions ──────────────────────────────────────────────────────────────

// Restore validates a persisted credential. With nothing stored it is a no-op.
// The session stays Anonymous until validation settles; on failure the stored
// credential is discarded. A result that arrives after a Login or Logout is
// dropped and ErrSuperseded returned.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	gen := m.gen
	callCtx, release := m.trackLocked(ctx)
	m.mu.Unlock()
	defer release()

	token, err := m.store.Load(callCtx)
	if m.superseded(gen) {
		m.logger.Info("discarding stale credential load", "generation", gen)
		return ErrSuperseded
	}
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if token == "" {
		return nil
	}

	principal, err := m.api.Validate(callCtx, token)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.logger.Info("discarding stale session validation", "generation", gen)
		return ErrSuperseded
	}
	if err != nil {
		m.clearLocked()
		snap := m.snapshotLocked()
		m.mu.Unlock()

		var remote *apiclient.RemoteError
		if errors.As(err, &remote) && remote.Unauthorized() {
			m.logger.Warn("stored credential rejected, session reset", "error", err)
		} else {
			m.logger.Warn("stored credential could not be validated, session reset", "error", err)
		}
		if perr := m.persist(context.WithoutCancel(ctx), gen, m.store.Clear); perr != nil {
			m.logger.Error("clear stored credential", "error", perr)
		}
		m.publish(snap)
		return fmt.Errorf("validate stored credential: %w", err)
	}
	m.installLocked(token, principal)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("session restored", "user_id", principal.ID, "role", principal.Role)
	m.publish(snap)
	return nil
}

// RestoreAsync runs Restore in the background so the caller can render
// Anonymous immediately. The channel yields Restore's result once.
func (m *Manager) RestoreAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- m.Restore(ctx)
		close(ch)
	}()
	return ch
}

// Login exchanges email and password for a credential. Input format is the
// server's business. On failure the session is Anonymous, a failure notice
// carrying the server's message is emitted and the error is returned.
func (m *Manager) Login(ctx context.Context, email, password string) (model.Principal, error) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.cancelPendingLocked()
	m.state = Authenticating
	m.principal = nil
	callCtx, release := m.trackLocked(ctx)
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap)

	m.loader.SetBusy(true)
	resp, err := m.api.Login(callCtx, email, password)
	m.loader.SetBusy(false)
	release()

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.logger.Info("discarding superseded login", "generation", gen)
		return model.Principal{}, ErrSuperseded
	}
	if err != nil {
		m.clearLocked()
		snap = m.snapshotLocked()
		m.mu.Unlock()

		if perr := m.persist(context.WithoutCancel(ctx), gen, m.store.Clear); perr != nil {
			m.logger.Error("clear stored credential", "error", perr)
		}
		m.logger.Warn("login failed", "email", email, "error", err)
		m.publish(snap)
		m.sink.Notify(apiclient.Message(err), notify.Failure)
		return model.Principal{}, err
	}
	m.installLocked(resp.Token, resp.User)
	snap = m.snapshotLocked()
	m.mu.Unlock()

	save := func(ctx context.Context) error { return m.store.Save(ctx, resp.Token) }
	if perr := m.persist(context.WithoutCancel(ctx), gen, save); perr != nil {
		m.logger.Error("persist credential", "error", perr)
	}
	m.logger.Info("logged in", "user_id", resp.User.ID, "role", resp.User.Role)
	m.publish(snap)
	m.sink.Notify(msgLoginOK, notify.Success)
	return resp.User, nil
}

// Logout clears the session unconditionally and cancels in-flight session
// work. Calling it while Anonymous only re-emits the notice.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.cancelPendingLocked()
	m.clearLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	err := m.persist(ctx, gen, m.store.Clear)
	if err != nil {
		m.logger.Error("clear stored credential", "error", err)
		err = fmt.Errorf("clear stored credential: %w", err)
	}
	m.publish(snap)
	m.sink.Notify(msgLogoutOK, notify.Success)
	return err
}

// ─── Internals (m.mu held unless noted) ───────────────────────────────────────

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{State: m.state}
	if m.principal != nil {
		p := *m.principal
		s.Principal = &p
	}
	return s
}

func (m *Manager) installLocked(token string, p model.Principal) {
	m.renewScopeLocked()
	m.token = token
	m.principal = &p
	m.state = Authenticated
}

func (m *Manager) clearLocked() {
	m.renewScopeLocked()
	m.token = ""
	m.principal = nil
	m.state = Anonymous
}

func (m *Manager) renewScopeLocked() {
	m.endScope()
	m.scope, m.endScope = context.WithCancel(context.Background())
}

func (m *Manager) trackLocked(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	m.nextID++
	id := m.nextID
	m.pending[id] = cancel
	return ctx, func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		cancel()
	}
}

func (m *Manager) cancelPendingLocked() {
	for id, cancel := range m.pending {
		cancel()
		delete(m.pending, id)
	}
}

// superseded reports whether a Login or Logout has run since gen was taken.
// Called without m.mu.
func (m *Manager) superseded(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen != gen
}

// persist runs fn against the store if gen is still current. Called without m.mu.
func (m *Manager) persist(ctx context.Context, gen uint64, fn func(context.Context) error) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	m.mu.Lock()
	current := m.gen == gen
	m.mu.Unlock()
	if !current {
		return nil
	}
	return fn(ctx)
}

// publish calls subscribers outside the lock. Called without m.mu.
func (m *Manager) publish(s Snapshot) {
	m.mu.Lock()
	subs := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}
