// Package apiclient executes requests against the booking API with bounded,
// linearly backed-off retries, and exposes a typed client for every endpoint.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second

	// IdempotencyHeader carries a key that stays stable across the attempts
	// of one logical request.
	IdempotencyHeader = "Idempotency-Key"

	maxResponseBytes = 4 << 20
	tracerName       = "github.com/Ayaanthaher/ticket-booking/internal/apiclient"
)

// RetryMode selects which requests are retried after a failure.
type RetryMode int

const (
	// RetryAll retries every request regardless of method or status.
	RetryAll RetryMode = iota
	// RetryIdempotent retries only idempotent methods and requests that carry
	// a caller-supplied idempotency key.
	RetryIdempotent
)

// ParseRetryMode maps a config value to a RetryMode.
func ParseRetryMode(s string) (RetryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return RetryAll, nil
	case "idempotent":
		return RetryIdempotent, nil
	default:
		return RetryAll, fmt.Errorf("unknown retry mode %q", s)
	}
}

// Request describes one logical call. The executor may send it several times.
type Request struct {
	Method         string
	Path           string
	Query          url.Values
	Body           any
	Token          string
	MaxAttempts    int
	IdempotencyKey string
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor performs requests with retry and linear backoff.
type Executor struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	mode        RetryMode
	sleep       SleepFunc
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// WithMaxAttempts overrides the default attempt budget.
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBaseDelay overrides the backoff unit.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) {
		if d >= 0 {
			e.baseDelay = d
		}
	}
}

// WithRetryMode selects the retry policy.
func WithRetryMode(m RetryMode) Option {
	return func(e *Executor) { e.mode = m }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithLogger sets the logger used for attempt failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewExecutor builds an Executor rooted at baseURL.
func NewExecutor(baseURL string, opts ...Option) (*Executor, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	e := &Executor{
		baseURL:     strings.TrimRight(u.String(), "/"),
		httpClient:  http.DefaultClient,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		mode:        RetryAll,
		sleep:       sleepContext,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute sends req and decodes a success body into out (when out is non-nil).
//
// After a failed attempt i (1-based) that is not the last, the executor waits
// i × baseDelay and resends the identical request. The error from the final
// attempt is returned unchanged. A done ctx stops the loop and returns ctx.Err().
func (e *Executor) Execute(ctx context.Context, req Request, out any) error {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	attempts := req.MaxAttempts
	if attempts <= 0 {
		attempts = e.maxAttempts
	}

	retryable := e.mode == RetryAll || idempotentMethod(req.Method) || req.IdempotencyKey != ""
	if req.IdempotencyKey == "" && !idempotentMethod(req.Method) {
		req.IdempotencyKey = uuid.NewString()
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	ctx, span := e.tracer.Start(ctx, "apiclient.Execute", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.Path),
		attribute.Int("retry.max_attempts", attempts),
	))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = e.do(ctx, req, body, out)
		if lastErr == nil {
			span.SetAttributes(attribute.Int("retry.attempts", attempt))
			return nil
		}
		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("retry.attempt", attempt),
			attribute.String("error", lastErr.Error()),
		))
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if attempt == attempts || !retryable {
			break
		}

		delay := time.Duration(attempt) * e.baseDelay
		e.logger.Warn("request attempt failed, retrying",
			"method", req.Method,
			"path", req.Path,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", lastErr,
		)
		if err := e.sleep(ctx, delay); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	return lastErr
}

func (e *Executor) do(ctx context.Context, req Request, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, e.url(req), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set(IdempotencyHeader, req.IdempotencyKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Method: req.Method, Path: req.Path, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{
			Method:  req.Method,
			Path:    req.Path,
			Status:  resp.StatusCode,
			Message: extractMessage(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

func (e *Executor) url(req Request) string {
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := e.baseURL + path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

func idempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
