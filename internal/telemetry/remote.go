package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shortclick/shortclick/internal/metrics"
)

const (
	// Stack is reported with every remote event.
	Stack = "backend"

	// DefaultTimeout bounds a single remote POST.
	DefaultTimeout = 2 * time.Second

	// DefaultQueueSize is the number of events buffered ahead of the sender.
	DefaultQueueSize = 256
)

// ErrDisabled is returned by Send when no token is configured.
var ErrDisabled = errors.New("telemetry disabled")

// Entry is the wire format of a remote log event.
type Entry struct {
	Stack   string `json:"stack"`
	Level   Level  `json:"level"`
	Package string `json:"package"`
	Message string `json:"message"`
}

// Remote posts events to a logging endpoint with bearer auth. Events are
// buffered in a bounded queue drained by a single sender goroutine.
type Remote struct {
	client    *http.Client
	endpoint  string
	token     string
	timeout   time.Duration
	queueSize int
	logger    *slog.Logger
	metrics   metrics.Recorder

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) RemoteOption {
	return func(r *Remote) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// NewRemote creates a remote sink posting to baseURL + "/logs".
// An empty token disables the sink and starts no sender.
func NewRemote(client *http.Client, baseURL, token string, timeout time.Duration, logger *slog.Logger, recorder metrics.Recorder, opts ...RemoteOption) *Remote {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Remote{
		client:    client,
		endpoint:  strings.TrimSuffix(baseURL, "/") + "/logs",
		token:     token,
		timeout:   timeout,
		queueSize: DefaultQueueSize,
		logger:    logger.With("component", "telemetry.remote"),
		metrics:   recorder,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if !r.Enabled() {
		close(r.done)
		return r
	}
	r.queue = make(chan Entry, r.queueSize)
	go r.run()
	return r
}

func (r *Remote) run() {
	defer close(r.done)

	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.Send(ctx, entry)
		cancel()

		if err != nil {
			r.logger.Debug("telemetry event dropped", "error", err)
			r.metrics.IncTelemetryEvent("dropped")
			continue
		}
		r.metrics.IncTelemetryEvent("sent")
	}
}

// Enabled reports whether events will be sent.
func (r *Remote) Enabled() bool {
	return r.token != ""
}

// Send posts one event synchronously.
func (r *Remote) Send(ctx context.Context, entry Entry) error {
	if !r.Enabled() {
		return ErrDisabled
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post log: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Log enqueues the event without blocking the caller. The event is dropped
// when the queue is full or the sink is closed.
func (r *Remote) Log(ctx context.Context, level Level, pkg Package, message string) {
	if !r.Enabled() {
		return
	}

	entry := Entry{Stack: Stack, Level: level, Package: string(pkg), Message: message}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.metrics.IncTelemetryEvent("dropped")
		return
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Debug("telemetry queue full, event dropped", "package", entry.Package)
		r.metrics.IncTelemetryEvent("dropped")
	}
}

// Close stops accepting events and waits for queued ones to be sent, or
// until ctx is done.
func (r *Remote) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		if r.queue != nil {
			close(r.queue)
		}
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
