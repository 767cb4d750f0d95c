// Package notify defines the contracts the booking core uses to talk to the
// presentation layer: a notification sink and a busy indicator.
package notify

import (
	"log/slog"
	"sync"
)

// Kind classifies a notification.
type Kind int

const (
	Success Kind = iota
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Sink receives user-visible messages. Implementations must not block.
type Sink interface {
	Notify(message string, kind Kind)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(message string, kind Kind)

func (f SinkFunc) Notify(message string, kind Kind) { f(message, kind) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(string, Kind) {})

// Loader is the busy-indicator contract.
type Loader interface {
	SetBusy(busy bool)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(busy bool)

func (f LoaderFunc) SetBusy(busy bool) { f(busy) }

// NoLoader ignores busy transitions.
var NoLoader Loader = LoaderFunc(func(bool) {})

// LogSink writes notifications to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(message string, kind Kind) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if kind == Failure {
		logger.Warn(message, "kind", kind.String())
		return
	}
	logger.Info(message, "kind", kind.String())
}

// Notice is one recorded notification.
type Notice struct {
	Message string
	Kind    Kind
}

// Recorder keeps every notification it receives. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(message string, kind Kind) {
	r.mu.Lock()
	r.notices = append(r.notices, Notice{Message: message, Kind: kind})
	r.mu.Unlock()
}

// Notices returns a copy of what has been recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the most recent notice and whether one exists.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
