package journal

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-platform/internal/supervise"
)

const (
	// DefaultQueueSize is the number of records buffered before dropping.
	DefaultQueueSize = 256

	writeTimeout = 5 * time.Second

	// defaultSource attributes commands from services nobody claimed.
	defaultSource = "platform"
)

// Logger defines the logging interface for the journal writer.
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

type record struct {
	entry *Entry
	gate  *GateTransition
}

// Writer records journal entries from the event loop without blocking it.
// Records are written by a background goroutine; when the queue is full
// new records are dropped and counted.
type Writer struct {
	repo   Repository
	logger Logger

	// sources maps service names to the binding or gate that owns them.
	// Only touched from the event loop.
	sources map[string]string

	mu      sync.Mutex
	closed  bool
	dropped int
	queue   chan record
	done    chan struct{}
}

// NewWriter starts a writer on repo.
func NewWriter(repo Repository, queueSize int, logger Logger) *Writer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	w := &Writer{
		repo:    repo,
		logger:  logger,
		sources: make(map[string]string),
		queue:   make(chan record, queueSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// SetSource attributes future commands for service to source.
func (w *Writer) SetSource(service, source string) {
	w.sources[service] = source
}

// Source returns the binding or gate that owns service, or "platform"
// when nothing claimed it. Call it from the event loop.
func (w *Writer) Source(service string) string {
	if source, ok := w.sources[service]; ok {
		return source
	}
	return defaultSource
}

// Command records a supervisor command. It is a supervise.Observer.
func (w *Writer) Command(rec supervise.Record) {
	e := &Entry{
		Service:   rec.Service,
		Command:   string(rec.Command),
		Source:    w.Source(rec.Service),
		CreatedAt: rec.At,
	}
	if rec.Err != nil {
		e.Error = rec.Err.Error()
	}
	w.enqueue(record{entry: e})
}

// Gate records a gate edge.
func (w *Writer) Gate(name string, active bool, reasons []string) {
	w.enqueue(record{gate: &GateTransition{
		Gate:      name,
		Active:    active,
		Reasons:   reasons,
		CreatedAt: time.Now().UTC(),
	}})
}

// Dropped returns how many records were discarded because the queue was full.
func (w *Writer) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *Writer) enqueue(r record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- r:
	default:
		w.dropped++
		w.logger.Warn("journal queue full, record dropped", "dropped", w.dropped)
	}
}

func (w *Writer) run() {
	defer close(w.done)
	for r := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		var err error
		switch {
		case r.entry != nil:
			err = w.repo.Create(ctx, r.entry)
		case r.gate != nil:
			err = w.repo.CreateGateTransition(ctx, r.gate)
		}
		cancel()
		if err != nil {
			w.logger.Error("writing journal record", "error", err)
		}
	}
}

// Close flushes queued records and stops the writer.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}
