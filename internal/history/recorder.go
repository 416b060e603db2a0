package history

import (
	"context"
	"sync"
	"time"

	"github.com/damaru/doorbell/internal/relay"
)

const (
	defaultBufferSize   = 256
	defaultWriteTimeout = 5 * time.Second
)

// Exporter mirrors events to an external time-series store.
// *influxdb.Client satisfies it.
type Exporter interface {
	WriteConnectionStatus(status string, at time.Time)
	WriteSensorEvent(kind string, at time.Time)
}

// Logger is the logging surface the recorder needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RecorderOptions configures a Recorder. Repository is required.
type RecorderOptions struct {
	Repository Repository

	// Exporter is optional.
	Exporter Exporter

	Logger Logger

	// BufferSize bounds entries waiting to be written. When the buffer
	// is full new entries are dropped and logged. Default 256.
	BufferSize int

	Now func() time.Time
}

// Recorder is a background observer of the coordinator. It turns every
// connection change and sensor event into a history entry, written to the
// repository by its own goroutine so coordinator delivery never waits on
// SQLite.
type Recorder struct {
	repo     Repository
	exporter Exporter
	logger   Logger
	now      func() time.Time

	mu      sync.Mutex
	closed  bool
	entries chan Entry
	done    chan struct{}
}

var _ relay.Sink = (*Recorder)(nil)

// NewRecorder starts a recorder. Call Close to drain and stop it.
func NewRecorder(opts RecorderOptions) *Recorder {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	r := &Recorder{
		repo:     opts.Repository,
		exporter: opts.Exporter,
		logger:   opts.Logger,
		now:      opts.Now,
		entries:  make(chan Entry, size),
		done:     make(chan struct{}),
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	if r.now == nil {
		r.now = time.Now
	}

	go r.run()
	return r
}

// ConnectionStatusChanged records a broker connection change.
func (r *Recorder) ConnectionStatusChanged(status relay.ConnectionStatus) {
	at := r.now()
	if r.exporter != nil {
		r.exporter.WriteConnectionStatus(status.String(), at)
	}
	r.enqueue(Entry{Kind: KindConnection, Value: status.String(), OccurredAt: at})
}

// SensorEvent records a classified sensor event.
func (r *Recorder) SensorEvent(kind relay.EventKind) {
	at := r.now()
	if r.exporter != nil {
		r.exporter.WriteSensorEvent(string(kind), at)
	}
	r.enqueue(Entry{Kind: KindSensor, Value: string(kind), OccurredAt: at})
}

func (r *Recorder) enqueue(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	select {
	case r.entries <- e:
	default:
		r.logger.Warn("history buffer full, entry dropped", "kind", e.Kind, "value", e.Value)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.entries {
		if r.repo == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
		if err := r.repo.Record(ctx, e); err != nil {
			r.logger.Error("recording history entry failed", "kind", e.Kind, "value", e.Value, "error", err)
		}
		cancel()
	}
}

// Close stops accepting entries and waits until buffered ones are written
// or ctx is done. Idempotent.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
