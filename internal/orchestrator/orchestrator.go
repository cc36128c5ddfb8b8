package orchestrator

//go:generate mockgen -source=orchestrator.go -destination=./mocks/mock_orchestrator.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"dash0.com/otlp-json-emitter/internal/batcher"
	cfgpkg "dash0.com/otlp-json-emitter/internal/config"
	"dash0.com/otlp-json-emitter/internal/sink"
)

const instrumentationName = "dash0.com/otlp-json-emitter"

// Orchestrator is what the OTLP service needs from the instance.
type Orchestrator interface {
	EnqueueBatch(ctx context.Context, recs []sink.Record) bool
	RecordDrop(ctx context.Context, n uint64)
	IncrMetric(ctx context.Context, mt MetricType, n int64)
}

// Service holds all instance-scoped dependencies and metrics.
type Service struct {
	Cfg    cfgpkg.Config
	Logger *slog.Logger
	Tracer oteltrace.Tracer
	Meter  otelmetric.Meter

	// Metrics
	RecordsReceived otelmetric.Int64Counter
	RecordsAccepted otelmetric.Int64Counter
	RecordsDropped  otelmetric.Int64Counter
	Flushes         otelmetric.Int64Counter
	PublishFailed   otelmetric.Int64Counter

	Batcher *batcher.Batcher

	outSink sink.Sink

	cancel context.CancelFunc
	closed bool
}

// Option customizes a Service.
type Option func(*Service) error

// WithSink overrides the default stdout JSON sink. If the sink implements
// io.Closer it is closed by Service.Close after the final flush.
func WithSink(s sink.Sink) Option {
	return func(svc *Service) error {
		if s == nil {
			return errors.New("orchestrator: nil sink")
		}

		svc.outSink = s

		return nil
	}
}

// New constructs a Service with instance-level instruments.
func New(cfg cfgpkg.Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		Cfg:    cfg,
		Logger: logger,
		Tracer: otel.Tracer(instrumentationName),
		Meter:  otel.Meter(instrumentationName),
	}

	counters := []struct {
		dst  *otelmetric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&s.RecordsReceived, "com.dash0.jsonemitter.records.received", "The number of log records received", "{record}"},
		{&s.RecordsAccepted, "com.dash0.jsonemitter.records.accepted", "The number of log records queued for publishing", "{record}"},
		{&s.RecordsDropped, "com.dash0.jsonemitter.records.dropped", "The number of log records dropped because the queue was full", "{record}"},
		{&s.Flushes, "com.dash0.jsonemitter.flushes", "Number of published batches", "{flush}"},
		{&s.PublishFailed, "com.dash0.jsonemitter.publish.failed", "Number of failed batch publishes", "{failure}"},
	}

	for _, c := range counters {
		counter, err := s.Meter.Int64Counter(c.name, otelmetric.WithDescription(c.desc), otelmetric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}

		*c.dst = counter
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	// Default sink to stdout JSON if not set
	if s.outSink == nil {
		s.outSink = sink.NewStdoutJSON()
	}

	s.Batcher = batcher.New(cfg.Window, cfg.MaxBatch, s.outSink, logger, cfg.MaxQueue)
	s.Batcher.SetMetricsCallbacks(
		func(n int64) { s.IncrMetric(context.Background(), MetricFlushes, n) },
		func(n int64) { s.IncrMetric(context.Background(), MetricPublishFailed, n) },
	)

	return s, nil
}

// Start starts the batcher; cancelling ctx stops it after a final flush.
// It is safe to call more than once; subsequent calls are no-ops.
func (s *Service) Start(ctx context.Context) {
	if s.Batcher == nil || s.cancel != nil || s.closed {
		return
	}

	ctx, span := s.Tracer.Start(ctx, "orchestrator.Start")
	defer span.End()

	s.Logger.DebugContext(ctx, "orchestrator.Start: begin")

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.Batcher.Start(runCtx)
	s.Logger.DebugContext(ctx, "orchestrator.Start: started batcher", slog.Int("queue_len", s.Batcher.QueueLen()))
}

// Close stops the batcher, waits for its final flush (bounded by ctx) and closes
// the sink if it is an io.Closer. If ctx ends before the final flush does, the
// sink is not closed and the context error is returned. It is safe to call more
// than once.
func (s *Service) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}

	s.closed = true

	ctx, span := s.Tracer.Start(ctx, "orchestrator.Close")
	defer span.End()

	s.Logger.DebugContext(ctx, "orchestrator.Close: begin")

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil

		// The sink must not be closed while the loop may be inside Publish.
		if err := s.Batcher.Stop(ctx); err != nil {
			s.Logger.WarnContext(ctx, "orchestrator.Close: final flush did not finish; sink left open", slog.String("err", err.Error()))
			return fmt.Errorf("wait for final flush: %w", err)
		}
	}

	var err error
	if c, ok := s.outSink.(io.Closer); ok {
		err = c.Close()
	}

	s.Logger.DebugContext(ctx, "orchestrator.Close: end")

	return err
}

// EnqueueBatch forwards records to the batcher without blocking.
func (s *Service) EnqueueBatch(ctx context.Context, recs []sink.Record) bool {
	if s.Batcher == nil {
		return false
	}

	ctx, span := s.Tracer.Start(ctx, "orchestrator.EnqueueBatch")
	defer span.End()

	span.SetAttributes(attribute.Int("batch.size", len(recs)))
	s.Logger.DebugContext(ctx, "orchestrator.EnqueueBatch: begin", slog.Int("batch_size", len(recs)))
	ok := s.Batcher.EnqueueBatch(recs)
	s.Logger.DebugContext(ctx, "orchestrator.EnqueueBatch: end", slog.Bool("enqueued", ok), slog.Int("queue_len", s.Batcher.QueueLen()))

	return ok
}

// RecordDrop forwards a drop count to the batcher so it shows up in the next batch.
func (s *Service) RecordDrop(ctx context.Context, n uint64) {
	ctx, span := s.Tracer.Start(ctx, "orchestrator.RecordDrop")
	defer span.End()

	span.SetAttributes(attribute.Int64("dropped", int64(n)))
	s.Logger.DebugContext(ctx, "orchestrator.RecordDrop", slog.Uint64("n", n))

	if s.Batcher != nil {
		s.Batcher.RecordDrop(n)
	}
}

// MetricType enumerates orchestrator metric counters.
type MetricType int

const (
	MetricRecordsReceived MetricType = iota
	MetricRecordsAccepted
	MetricRecordsDropped
	MetricFlushes
	MetricPublishFailed
)

// IncrMetric increments the selected metric by n (if n > 0).
func (s *Service) IncrMetric(ctx context.Context, mt MetricType, n int64) {
	if n <= 0 {
		return
	}

	switch mt {
	case MetricRecordsReceived:
		s.RecordsReceived.Add(ctx, n)
	case MetricRecordsAccepted:
		s.RecordsAccepted.Add(ctx, n)
	case MetricRecordsDropped:
		s.RecordsDropped.Add(ctx, n)
	case MetricFlushes:
		s.Flushes.Add(ctx, n)
	case MetricPublishFailed:
		s.PublishFailed.Add(ctx, n)
	}
}
