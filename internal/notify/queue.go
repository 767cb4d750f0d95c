package notify

import (
	"log/slog"
	"sync"
)

const defaultQueueSize = 32

// Queue decouples callers from a slow Sink. Notify never blocks: when the
// buffer is full the notice is dropped and logged.
type Queue struct {
	next   Sink
	logger *slog.Logger
	ch     chan Notice
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewQueue starts a delivery goroutine that forwards to next.
func NewQueue(next Sink, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		next:   next,
		logger: logger,
		ch:     make(chan Notice, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for n := range q.ch {
		q.next.Notify(n.Message, n.Kind)
	}
}

// Notify enqueues a notice without waiting for delivery.
func (q *Queue) Notify(message string, kind Kind) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- Notice{Message: message, Kind: kind}:
	default:
		q.logger.Warn("notification dropped, queue full", "message", message, "kind", kind.String())
	}
}

// Close stops accepting notices and waits for queued ones to be delivered.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
	<-q.done
}
