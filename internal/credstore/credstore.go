// Package credstore persists the single opaque credential token across
// process restarts.
package credstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Key is the one storage key holding the credential.
const Key = "token"

// Store holds at most one credential. Load returns "" when none is stored.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Options selects and configures a backend for Open.
type Options struct {
	Kind        string
	Path        string
	DatabaseURL string
}

// Open builds the backend named by opts.Kind. The returned close function
// releases any handle the backend holds.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "memory":
		return NewMemory(), noop, nil
	case "", "file":
		if opts.Path == "" {
			return nil, noop, fmt.Errorf("file credential store requires a path")
		}
		return NewFile(opts.Path), noop, nil
	case "sqlite":
		s, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := OpenPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return nil, noop, fmt.Errorf("unknown credential store %q", opts.Kind)
	}
}

// Memory keeps the credential in process memory only.
type Memory struct {
	mu    sync.Mutex
	token string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *Memory) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	return m.Save(ctx, "")
}
