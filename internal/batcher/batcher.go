package batcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dash0.com/otlp-json-emitter/internal/sink"
)

// Used by New in place of non-positive arguments.
const (
	DefaultWindow   = 10 * time.Second
	DefaultMaxBatch = 1000
)

// Batcher collects records into windowed batches and publishes them to a sink.
type Batcher struct {
	in       chan sink.Record
	inBatch  chan []sink.Record
	window   time.Duration
	maxBatch int
	sink     sink.Sink
	logger   *slog.Logger

	nowFn func() time.Time
	newID func() string

	// Single-goroutine owned fields
	pending []sink.Record
	dropped uint64
	failing bool

	// Drops recorded from producers when the queue is full
	externalDropped atomic.Uint64

	done chan struct{}

	// Optional metric callbacks provided by the owner (e.g., orchestrator).
	incrFlushes       func(int64)
	incrPublishFailed func(int64)
}

// New creates a Batcher that flushes every window, or earlier once maxBatch
// records are pending. maxQueue bounds each ingestion channel.
func New(window time.Duration, maxBatch int, s sink.Sink, logger *slog.Logger, maxQueue int) *Batcher {
	if maxQueue < 0 {
		maxQueue = 0
	}

	if window <= 0 {
		window = DefaultWindow
	}

	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}

	return &Batcher{
		in:       make(chan sink.Record, maxQueue),
		inBatch:  make(chan []sink.Record, maxQueue),
		window:   window,
		maxBatch: maxBatch,
		sink:     s,
		logger:   logger,
		nowFn:    time.Now,
		newID:    uuid.NewString,
		done:     make(chan struct{}),
	}
}

// SetMetricsCallbacks installs optional callbacks for metrics updates.
// If not provided, metrics are not recorded by the batcher.
func (b *Batcher) SetMetricsCallbacks(incrFlushes, incrPublishFailed func(int64)) {
	b.incrFlushes = incrFlushes
	b.incrPublishFailed = incrPublishFailed
}

// Enqueue attempts to add a record without blocking. Returns false if queue is full.
func (b *Batcher) Enqueue(r sink.Record) bool {
	select {
	case b.in <- r:
		return true
	default:
		return false
	}
}

// EnqueueBatch attempts to add records without blocking. Returns false if queue is full.
// The slice must not be modified by the caller afterwards.
func (b *Batcher) EnqueueBatch(recs []sink.Record) bool {
	if len(recs) == 0 {
		return true
	}

	select {
	case b.inBatch <- recs:
		return true
	default:
		return false
	}
}

// RecordDrop adds to the external drop counter, to be included in the next batch.
func (b *Batcher) RecordDrop(n uint64) { b.externalDropped.Add(n) }

// Start begins the batching loop. Cancelling ctx drains what is already queued,
// publishes a final batch and ends the loop.
func (b *Batcher) Start(ctx context.Context) {
	go func() {
		defer close(b.done)

		ticker := time.NewTicker(b.window)
		defer ticker.Stop()

		windowStart := b.nowFn().UnixMilli()

		for {
			select {
			case <-ctx.Done():
				b.drain()
				b.flush(windowStart, b.nowFn().UnixMilli())

				return
			case r := <-b.in:
				b.add(r)
			case recs := <-b.inBatch:
				b.add(recs...)
			case <-ticker.C:
				windowEnd := b.nowFn().UnixMilli()
				b.flush(windowStart, windowEnd)
				windowStart = windowEnd

				continue
			}

			// While the sink is failing only the ticker retries.
			if len(b.pending) >= b.maxBatch && !b.failing {
				windowEnd := b.nowFn().UnixMilli()
				b.flush(windowStart, windowEnd)
				windowStart = windowEnd
			}
		}
	}()
}

// Stop waits for the loop to finish; the caller should cancel the context passed to Start.
// It returns ctx.Err() if ctx ends first, in which case the loop may still be publishing.
func (b *Batcher) Stop(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// add appends to pending. While the sink is failing, pending holds at most
// maxBatch records and the oldest excess is counted as dropped.
func (b *Batcher) add(recs ...sink.Record) {
	b.pending = append(b.pending, recs...)

	if !b.failing {
		return
	}

	if excess := len(b.pending) - b.maxBatch; excess > 0 {
		b.pending = b.pending[excess:]
		b.dropped += uint64(excess)
	}
}

func (b *Batcher) drain() {
	for {
		select {
		case r := <-b.in:
			b.add(r)
		case recs := <-b.inBatch:
			b.add(recs...)
		default:
			return
		}
	}
}

func (b *Batcher) flush(windowStart, windowEnd int64) {
	b.dropped += b.externalDropped.Swap(0)
	if len(b.pending) == 0 && b.dropped == 0 {
		return
	}

	batch := sink.Batch{
		ID:          b.newID(),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Records:     b.pending,
		Dropped:     b.dropped,
	}

	if err := b.sink.Publish(context.Background(), batch); err != nil {
		b.logger.Error(
			"failed to publish batch",
			slog.String("err", err.Error()),
			slog.String("batch_id", batch.ID),
			slog.Int64("window_start", windowStart),
			slog.Int64("window_end", windowEnd),
			slog.Int("records", len(batch.Records)),
			slog.Uint64("dropped", batch.Dropped),
			slog.String("sink", fmt.Sprintf("%T", b.sink)),
		)

		if b.incrPublishFailed != nil {
			b.incrPublishFailed(1)
		}

		b.failing = true

		// Keep the newest maxBatch records for the next attempt.
		if excess := len(b.pending) - b.maxBatch; excess > 0 {
			b.pending = append([]sink.Record(nil), b.pending[excess:]...)
			b.dropped += uint64(excess)
		}

		return
	}

	if b.incrFlushes != nil {
		b.incrFlushes(1)
	}

	// The published slice now belongs to the sink.
	b.pending = nil
	b.dropped = 0
	b.failing = false
}

// QueueLen returns the number of queued, not yet collected, enqueue operations.
func (b *Batcher) QueueLen() int { return len(b.in) + len(b.inBatch) }
