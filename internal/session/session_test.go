package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ayaanthaher/ticket-booking/internal/apiclient"
	"github.com/Ayaanthaher/ticket-booking/internal/credstore"
	"github.com/Ayaanthaher/ticket-booking/internal/model"
	"github.com/Ayaanthaher/ticket-booking/internal/notify"
)

var alice = model.Principal{ID: "u1", Email: "alice@example.com", Name: "Alice", Role: model.RoleUser}

type fakeAuth struct {
	mu            sync.Mutex
	loginResp     model.LoginResponse
	loginErr      error
	validateUser  model.Principal
	validateErr   error
	validateCalls int
	loginCalls    int

	// When set, Validate signals on called and waits for release.
	called  chan struct{}
	release chan struct{}
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (model.LoginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.loginResp, f.loginErr
}

func (f *fakeAuth) Validate(ctx context.Context, token string) (model.Principal, error) {
	if f.called != nil {
		f.called <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls++
	return f.validateUser, f.validateErr
}

func assertInvariant(t *testing.T, m *Manager) {
	t.Helper()
	s := m.Snapshot()
	if (s.Principal != nil) != (s.State == Authenticated) {
		t.Fatalf("invariant broken: state=%s principal=%v", s.State, s.Principal)
	}
	if s.State == Anonymous && m.Token() != "" {
		t.Fatalf("anonymous session still holds a credential")
	}
}

func storedToken(t *testing.T, s credstore.Store) string {
	t.Helper()
	tok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return tok
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()

	api := &fakeAuth{loginResp: model.LoginResponse{Token: "tok-1", User: alice}}
	store := credstore.NewMemory()
	rec := &notify.Recorder{}
	var busy []bool
	m := NewManager(api, store, WithNotifier(rec), WithLoader(notify.LoaderFunc(func(b bool) { busy = append(busy, b) })))

	var states []State
	m.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	p, err := m.Login(context.Background(), "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if p != alice {
		t.Fatalf("unexpected principal %+v", p)
	}
	assertInvariant(t, m)
	if s := m.Snapshot(); s.State != Authenticated || s.Principal.ID != "u1" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if m.Token() != "tok-1" || storedToken(t, store) != "tok-1" {
		t.Fatal("credential not installed and persisted")
	}
	if last, ok := rec.Last(); !ok || last.Kind != notify.Success || last.Message != msgLoginOK {
		t.Fatalf("unexpected notice %+v", last)
	}
	if len(states) != 2 || states[0] != Authenticating || states[1] != Authenticated {
		t.Fatalf("unexpected transitions %v", states)
	}
	if len(busy) != 2 || !busy[0] || busy[1] {
		t.Fatalf("unexpected busy toggles %v", busy)
	}
}

func TestLoginFailure(t *testing.T) {
	t.Parallel()

	remote := &apiclient.RemoteError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	api := &fakeAuth{loginErr: remote}
	store := credstore.NewMemory()
	_ = store.Save(context.Background(), "old")
	rec := &notify.Recorder{}
	m := NewManager(api, store, WithNotifier(rec))

	_, err := m.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, remote) || err.Error() != "Invalid credentials" {
		t.Fatalf("expected remote error, got %v", err)
	}
	assertInvariant(t, m)
	if m.Snapshot().State != Anonymous {
		t.Fatalf("expected anonymous, got %s", m.Snapshot().State)
	}
	if storedToken(t, store) != "" {
		t.Fatal("expected stored credential to be cleared")
	}
	last, _ := rec.Last()
	if last.Kind != notify.Failure || last.Message != "Invalid credentials" {
		t.Fatalf("unexpected notice %+v", last)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	t.Parallel()

	api := &fakeAuth{loginResp: model.LoginResponse{Token: "tok-1", User: alice}}
	store := credstore.NewMemory()
	rec := &notify.Recorder{}
	m := NewManager(api, store, WithNotifier(rec))

	if _, err := m.Login(context.Background(), "a", "b"); err != nil {
		t.Fatalf("login: %v", err)
	}
	scope := m.Context()

	for i := 0; i < 2; i++ {
		if err := m.Logout(context.Background()); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
		assertInvariant(t, m)
		if m.Snapshot().State != Anonymous || storedToken(t, store) != "" {
			t.Fatalf("logout %d left session behind", i)
		}
	}
	if scope.Err() == nil {
		t.Fatal("expected session context to be cancelled by logout")
	}
	if m.Context().Err() != nil {
		t.Fatal("expected a fresh session context after logout")
	}

	notices := rec.Notices()
	if len(notices) != 3 || notices[1].Message != msgLogoutOK || notices[2].Message != msgLogoutOK {
		t.Fatalf("unexpected notices %+v", notices)
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		stored      string
		validateErr error
		wantState   State
		wantStored  string
		wantErr     bool
		wantCalls   int
	}{
		{name: "nothing stored", wantState: Anonymous, wantCalls: 0},
		{name: "valid credential", stored: "tok-1", wantState: Authenticated, wantStored: "tok-1", wantCalls: 1},
		{
			name:        "rejected credential",
			stored:      "expired",
			validateErr: &apiclient.RemoteError{Status: http.StatusUnauthorized, Message: "Invalid token"},
			wantState:   Anonymous,
			wantErr:     true,
			wantCalls:   1,
		},
		{
			name:        "transport failure",
			stored:      "tok-1",
			validateErr: &apiclient.TransportError{Method: "GET", Path: "/auth/validate", Err: errors.New("refused")},
			wantState:   Anonymous,
			wantErr:     true,
			wantCalls:   1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			api := &fakeAuth{validateUser: alice, validateErr: tc.validateErr}
			store := credstore.NewMemory()
			if tc.stored != "" {
				_ = store.Save(context.Background(), tc.stored)
			}
			rec := &notify.Recorder{}
			m := NewManager(api, store, WithNotifier(rec))

			err := <-m.RestoreAsync(context.Background())
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error %v", err)
			}
			assertInvariant(t, m)
			if got := m.Snapshot().State; got != tc.wantState {
				t.Fatalf("state = %s, want %s", got, tc.wantState)
			}
			if got := storedToken(t, store); got != tc.wantStored {
				t.Fatalf("stored = %q, want %q", got, tc.wantStored)
			}
			if api.validateCalls != tc.wantCalls {
				t.Fatalf("validate calls = %d, want %d", api.validateCalls, tc.wantCalls)
			}
			if len(rec.Notices()) != 0 {
				t.Fatalf("restore should not notify, got %+v", rec.Notices())
			}
		})
	}
}

func TestRestoreDiscardedAfterLogout(t *testing.T) {
	t.Parallel()

	api := &fakeAuth{
		validateUser: alice,
		called:       make(chan struct{}),
		release:      make(chan struct{}),
	}
	store := credstore.NewMemory()
	_ = store.Save(context.Background(), "tok-1")
	m := NewManager(api, store)

	done := m.RestoreAsync(context.Background())
	<-api.called

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	close(api.release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("restore never settled")
	}
	assertInvariant(t, m)
	if m.Snapshot().State != Anonymous || m.Token() != "" {
		t.Fatal("stale restore re-authenticated the session")
	}
	if storedToken(t, store) != "" {
		t.Fatal("stale restore resurrected the stored credential")
	}
}

func TestStaleRestoreFailureKeepsFreshLogin(t *testing.T) {
	t.Parallel()

	api := &fakeAuth{
		validateErr: errors.New("expired"),
		loginResp:   model.LoginResponse{Token: "fresh", User: alice},
		called:      make(chan struct{}),
		release:     make(chan struct{}),
	}
	store := credstore.NewMemory()
	_ = store.Save(context.Background(), "stale")
	m := NewManager(api, store)

	done := m.RestoreAsync(context.Background())
	<-api.called

	if _, err := m.Login(context.Background(), "a", "b"); err != nil {
		t.Fatalf("login: %v", err)
	}
	close(api.release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	assertInvariant(t, m)
	if m.Snapshot().State != Authenticated || m.Token() != "fresh" || storedToken(t, store) != "fresh" {
		t.Fatal("stale restore failure clobbered the fresh login")
	}
}

// slowLoadStore reads the stored credential, then holds Load until released.
type slowLoadStore struct {
	*credstore.Memory
	loaded  chan struct{}
	release chan struct{}
}

func (s *slowLoadStore) Load(ctx context.Context) (string, error) {
	tok, err := s.Memory.Load(ctx)
	s.loaded <- struct{}{}
	<-s.release
	return tok, err
}

func TestRestoreDiscardedWhenLoginLandsDuringLoad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		validateUser model.Principal
		validateErr  error
	}{
		{name: "stale credential rejected", validateErr: errors.New("expired")},
		{name: "stale credential accepted", validateUser: model.Principal{ID: "u0", Email: "old@example.com", Role: model.RoleUser}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAuth{
				validateUser: tc.validateUser,
				validateErr:  tc.validateErr,
				loginResp:    model.LoginResponse{Token: "fresh", User: alice},
			}
			store := &slowLoadStore{
				Memory:  credstore.NewMemory(),
				loaded:  make(chan struct{}),
				release: make(chan struct{}),
			}
			_ = store.Memory.Save(context.Background(), "stale")
			m := NewManager(api, store)

			done := m.RestoreAsync(context.Background())
			<-store.loaded
			if _, err := m.Login(context.Background(), "alice@example.com", "pw"); err != nil {
				t.Fatalf("login: %v", err)
			}
			close(store.release)

			if err := <-done; !errors.Is(err, ErrSuperseded) {
				t.Fatalf("expected ErrSuperseded, got %v", err)
			}
			assertInvariant(t, m)
			s := m.Snapshot()
			if s.State != Authenticated || s.Principal.ID != alice.ID || m.Token() != "fresh" {
				t.Fatalf("stale restore replaced the fresh login: %+v token=%q", s, m.Token())
			}
			if got := storedToken(t, store.Memory); got != "fresh" {
				t.Fatalf("stored credential = %q, want fresh", got)
			}
			if api.validateCalls != 0 {
				t.Fatalf("stale credential was validated %d times", api.validateCalls)
			}
		})
	}
}

func TestRestoreLogDistinguishesRejection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "rejected", err: &apiclient.RemoteError{Status: http.StatusUnauthorized, Message: "Invalid token"}, want: "stored credential rejected"},
		{name: "unreachable", err: &apiclient.TransportError{Method: http.MethodGet, Path: "/auth/validate", Err: errors.New("dial tcp: refused")}, want: "stored credential could not be validated"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			store := credstore.NewMemory()
			_ = store.Save(context.Background(), "tok")
			m := NewManager(&fakeAuth{validateErr: tc.err}, store,
				WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

			if err := m.Restore(context.Background()); !errors.Is(err, tc.err) {
				t.Fatalf("expected wrapped %v, got %v", tc.err, err)
			}
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("log %q does not mention %q", buf.String(), tc.want)
			}
			if storedToken(t, store) != "" {
				t.Fatal("failed restore kept the stored credential")
			}
		})
	}
}

func TestLoginSupersededByLogout(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	api := &blockingLogin{started: started}
	store := credstore.NewMemory()
	m := NewManager(api, store)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), "a", "b")
		errc <- err
	}()
	<-started

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	assertInvariant(t, m)
	if m.Snapshot().State != Anonymous || storedToken(t, store) != "" {
		t.Fatal("superseded login installed a session")
	}
}

// blockingLogin succeeds only once its context is cancelled, mimicking a
// response that arrives after the caller moved on.
type blockingLogin struct {
	started chan struct{}
}

func (b *blockingLogin) Login(ctx context.Context, email, password string) (model.LoginResponse, error) {
	close(b.started)
	<-ctx.Done()
	return model.LoginResponse{Token: "late", User: alice}, nil
}

func (b *blockingLogin) Validate(ctx context.Context, token string) (model.Principal, error) {
	return model.Principal{}, errors.New("unused")
}

func TestInvariantAcrossSequences(t *testing.T) {
	t.Parallel()

	ok := &fakeAuth{loginResp: model.LoginResponse{Token: "t", User: alice}, validateUser: alice}
	bad := &fakeAuth{loginErr: errors.New("nope"), validateErr: errors.New("nope")}

	ops := []func(m *Manager){
		func(m *Manager) { _, _ = m.Login(context.Background(), "a", "b") },
		func(m *Manager) { _ = m.Logout(context.Background()) },
		func(m *Manager) { _ = m.Restore(context.Background()) },
	}

	// Every sequence of three operations, against both a healthy and a failing API.
	for _, api := range []*fakeAuth{ok, bad} {
		for i := range ops {
			for j := range ops {
				for k := range ops {
					m := NewManager(api, credstore.NewMemory())
					for _, op := range []int{i, j, k} {
						ops[op](m)
						assertInvariant(t, m)
					}
				}
			}
		}
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	if Anonymous.String() != "anonymous" || Authenticating.String() != "authenticating" || Authenticated.String() != "authenticated" {
		t.Fatal("unexpected state names")
	}
	if State(7).String() != "State(7)" {
		t.Fatalf("unexpected fallback %q", State(7).String())
	}
}
