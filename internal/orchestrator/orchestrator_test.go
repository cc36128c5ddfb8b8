package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	cfgpkg "dash0.com/otlp-json-emitter/internal/config"
	"dash0.com/otlp-json-emitter/internal/sink"
	"dash0.com/otlp-json-emitter/internal/sink/mocks"
)

func testConfig(window time.Duration, maxQueue int) cfgpkg.Config {
	return cfgpkg.Config{
		ListenAddr:            "",
		MaxReceiveMessageSize: 1024,
		Window:                window,
		MaxQueue:              maxQueue,
		MaxBatch:              100,
		LogLevel:              "info",
		GracefulTimeout:       time.Second,
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNew_ConstructsBatcher(t *testing.T) {
	s, err := New(testConfig(10*time.Millisecond, 2), quietLogger())
	require.NoError(t, err)
	require.NotNil(t, s.Batcher)

	// Start and stop quickly to ensure no panics and proper lifecycle.
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	// Idempotent start
	s.Start(ctx)
	cancel()
	require.NoError(t, s.Close(context.Background()))
	// Idempotent close
	require.NoError(t, s.Close(context.Background()))
	// No restart after close
	s.Start(context.Background())
	require.Nil(t, s.cancel)
}

func TestNew_RejectsNilSink(t *testing.T) {
	_, err := New(testConfig(time.Second, 1), quietLogger(), WithSink(nil))
	require.Error(t, err)
}

func TestNew_WithSink_PublishesBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mocks.NewMockSink(ctrl)

	got := make(chan sink.Batch, 1)

	ms.EXPECT().Publish(gomock.Any(), gomock.AssignableToTypeOf(sink.Batch{})).DoAndReturn(
		func(_ context.Context, b sink.Batch) error {
			select {
			case got <- b:
			default:
			}
			return nil
		},
	).MinTimes(1)

	s, err := New(testConfig(15*time.Millisecond, 4), quietLogger(), WithSink(ms))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)

	require.True(t, s.EnqueueBatch(context.Background(), []sink.Record{{Body: "v1"}, {Body: "v2"}}))

	select {
	case b := <-got:
		require.Len(t, b.Records, 2)
		require.GreaterOrEqual(t, b.WindowEnd, b.WindowStart)
	case <-time.After(time.Second):
		t.Fatal("no batch published")
	}

	require.NoError(t, s.Close(context.Background()))
}

func TestRecordDrop_ReachesNextBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mocks.NewMockSink(ctrl)
	got := make(chan sink.Batch, 1)

	ms.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, b sink.Batch) error { got <- b; return nil },
	).Times(1)

	s, err := New(testConfig(time.Hour, 4), quietLogger(), WithSink(ms))
	require.NoError(t, err)

	s.Start(context.Background())
	s.RecordDrop(context.Background(), 3)

	// Close triggers the final flush.
	require.NoError(t, s.Close(context.Background()))

	b := <-got
	require.EqualValues(t, 3, b.Dropped)
}

type closingSink struct {
	published int
	closed    bool
	err       error
}

func (c *closingSink) Publish(context.Context, sink.Batch) error { c.published++; return nil }

func (c *closingSink) Close() error { c.closed = true; return c.err }

func TestClose_FlushesThenClosesSink(t *testing.T) {
	cs := &closingSink{err: errors.New("close failed")}

	s, err := New(testConfig(time.Hour, 4), quietLogger(), WithSink(cs))
	require.NoError(t, err)

	s.Start(context.Background())
	require.True(t, s.EnqueueBatch(context.Background(), []sink.Record{{Body: "x"}}))

	err = s.Close(context.Background())
	require.ErrorIs(t, err, cs.err)
	require.True(t, cs.closed)
	require.Equal(t, 1, cs.published)
}

// stuckSink blocks in Publish until release is closed.
type stuckSink struct {
	release chan struct{}
	closed  atomic.Bool
}

func (s *stuckSink) Publish(context.Context, sink.Batch) error { <-s.release; return nil }

func (s *stuckSink) Close() error { s.closed.Store(true); return nil }

func TestClose_TimeoutLeavesSinkOpen(t *testing.T) {
	ss := &stuckSink{release: make(chan struct{})}

	s, err := New(testConfig(time.Hour, 4), quietLogger(), WithSink(ss))
	require.NoError(t, err)

	s.Start(context.Background())
	require.True(t, s.EnqueueBatch(context.Background(), []sink.Record{{Body: "x"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = s.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, ss.closed.Load())

	close(ss.release)
	require.NoError(t, s.Batcher.Stop(context.Background()))
	require.False(t, ss.closed.Load())
}

func TestIncrMetric_IgnoresNonPositive(t *testing.T) {
	s, err := New(testConfig(time.Hour, 1), quietLogger())
	require.NoError(t, err)

	// Must not panic for any metric or count.
	for mt := MetricRecordsReceived; mt <= MetricPublishFailed; mt++ {
		s.IncrMetric(context.Background(), mt, 0)
		s.IncrMetric(context.Background(), mt, -1)
		s.IncrMetric(context.Background(), mt, 1)
	}
}
