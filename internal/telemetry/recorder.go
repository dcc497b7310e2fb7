package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/iamyashm/pyRace/internal/channel"
	"github.com/iamyashm/pyRace/internal/queue"
)

const instrumentationName = "github.com/iamyashm/pyRace/internal/telemetry"

// ErrNotRunning is returned when stopping a recorder that was never started.
var ErrNotRunning = errors.New("recorder not running")

// RecorderConfig tunes buffering between the tick loop and the backend.
type RecorderConfig struct {
	Buffer        int
	FlushInterval time.Duration
	MaxPending    int
}

// Recorder accepts samples from the tick loop without ever blocking it and
// writes them to a backend in batches.
type Recorder struct {
	backend Backend
	cfg     RecorderConfig
	logger  *slog.Logger

	in      channel.Channel[Sample]
	pending *queue.Queue[Sample]

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup

	dropped      atomic.Uint64
	droppedCount metric.Int64Counter
	written      metric.Int64Counter
}

// NewRecorder creates a recorder for backend. The backend must already be
// initialized.
func NewRecorder(backend Backend, cfg RecorderConfig, logger *slog.Logger) (*Recorder, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := otel.Meter(instrumentationName)
	dropped, err := m.Int64Counter("telemetry.samples.dropped",
		metric.WithDescription("Samples discarded because the recorder could not keep up"))
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	written, err := m.Int64Counter("telemetry.samples.written",
		metric.WithDescription("Samples handed to the backend"))
	if err != nil {
		return nil, fmt.Errorf("creating written counter: %w", err)
	}

	return &Recorder{
		backend:      backend,
		cfg:          cfg,
		logger:       logger,
		in:           channel.New[Sample](cfg.Buffer),
		pending:      queue.New[Sample](cfg.MaxPending),
		stop:         make(chan struct{}),
		droppedCount: dropped,
		written:      written,
	}, nil
}

// Start opens the session on the backend and starts the flush loop.
func (r *Recorder) Start(info Info) error {
	if err := r.backend.StartSession(info); err != nil {
		return fmt.Errorf("starting telemetry session: %w", err)
	}
	r.running.Store(true)
	r.wg.Add(1)
	go r.run()
	return nil
}

// Offer queues a sample. It never blocks; a sample that does not fit is
// dropped and counted, and false is returned.
func (r *Recorder) Offer(s Sample) bool {
	if !r.running.Load() {
		return false
	}
	if r.in.TrySend(s) {
		return true
	}
	r.drop(1)
	return false
}

// Dropped returns the number of samples discarded so far.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Recorder) drop(n int) {
	if n <= 0 {
		return
	}
	r.dropped.Add(uint64(n))
	r.droppedCount.Add(context.Background(), int64(n))
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case s := <-r.in.Receive():
			r.drop(r.pending.Push(s))
		case <-ticker.C:
			r.flush()
		case <-r.stop:
			r.drain()
			r.flush()
			return
		}
	}
}

// drain moves everything buffered in the channel into the pending queue.
func (r *Recorder) drain() {
	for {
		select {
		case s := <-r.in.Receive():
			r.drop(r.pending.Push(s))
		default:
			return
		}
	}
}

func (r *Recorder) flush() {
	batch := r.pending.GetAndEmpty()
	if len(batch) == 0 {
		return
	}
	if err := r.backend.RecordSamples(batch); err != nil {
		r.logger.Warn("Failed to record telemetry batch", "samples", len(batch), "error", err)
		return
	}
	r.written.Add(context.Background(), int64(len(batch)))
}

// Stop flushes what is pending and ends the session on the backend.
func (r *Recorder) Stop() error {
	if !r.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	close(r.stop)
	r.wg.Wait()

	if n := r.Dropped(); n > 0 {
		r.logger.Warn("Telemetry samples dropped", "count", n)
	}
	if err := r.backend.EndSession(); err != nil {
		return fmt.Errorf("ending telemetry session: %w", err)
	}
	return nil
}
