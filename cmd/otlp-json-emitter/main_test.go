package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	otellogs "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	cfgpkg "dash0.com/otlp-json-emitter/internal/config"
	"dash0.com/otlp-json-emitter/internal/orchestrator"
	"dash0.com/otlp-json-emitter/internal/sink"
	"dash0.com/otlp-json-emitter/internal/sink/mocks"
)

func testConfig() cfgpkg.Config {
	return cfgpkg.Config{
		ListenAddr:            "localhost:4317",
		MaxReceiveMessageSize: 16 * 1024 * 1024,
		Window:                time.Hour,
		MaxQueue:              10,
		MaxBatch:              1000,
		LogLevel:              "info",
		GracefulTimeout:       time.Second,
	}
}

func TestLogsServiceServer_Export_Basic(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mocks.NewMockSink(ctrl)
	published := make(chan sink.Batch, 1)
	ms.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, b sink.Batch) error { published <- b; return nil },
	).Times(1)

	svc, err := orchestrator.New(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), orchestrator.WithSink(ms))
	require.NoError(t, err)
	svc.Start(context.Background())

	client, srv, closer := startTestServer(t, svc)
	defer closer()

	in := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*otellogs.ResourceLogs{
			{ScopeLogs: []*otellogs.ScopeLogs{{LogRecords: []*otellogs.LogRecord{{SeverityText: "INFO"}, {}}}}},
		},
	}

	out, err := client.Export(context.Background(), in)
	require.NoError(t, err)
	require.Nil(t, out.GetPartialSuccess())

	require.NoError(t, shutdown(srv, svc, testConfig()))

	b := <-published
	require.Len(t, b.Records, 2)
	require.Equal(t, "INFO", b.Records[0].SeverityText)
}

// gatedOrchestrator holds EnqueueBatch until release is closed, keeping the
// Export RPC in flight.
type gatedOrchestrator struct {
	orchestrator.Orchestrator
	entered chan struct{}
	release chan struct{}
}

func (g *gatedOrchestrator) EnqueueBatch(ctx context.Context, recs []sink.Record) bool {
	close(g.entered)
	<-g.release

	return g.Orchestrator.EnqueueBatch(ctx, recs)
}

func TestServe_SignalDuringExportStillPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mocks.NewMockSink(ctrl)
	published := make(chan sink.Batch, 1)
	ms.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, b sink.Batch) error { published <- b; return nil },
	).Times(1)

	cfg := testConfig()
	svc, err := orchestrator.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), orchestrator.WithSink(ms))
	require.NoError(t, err)

	gate := &gatedOrchestrator{Orchestrator: svc, entered: make(chan struct{}), release: make(chan struct{})}
	lis := bufconn.Listen(1024 * 1024)

	sigCtx, sendSignal := context.WithCancel(context.Background())
	defer sendSignal()

	served := make(chan error, 1)

	go func() { served <- serve(sigCtx, lis, newGRPCServer(cfg, gate), svc, cfg) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	type result struct {
		out *collogspb.ExportLogsServiceResponse
		err error
	}

	exported := make(chan result, 1)

	go func() {
		out, err := collogspb.NewLogsServiceClient(conn).Export(context.Background(), &collogspb.ExportLogsServiceRequest{
			ResourceLogs: []*otellogs.ResourceLogs{
				{ScopeLogs: []*otellogs.ScopeLogs{{LogRecords: []*otellogs.LogRecord{{SeverityText: "WARN"}}}}},
			},
		})
		exported <- result{out: out, err: err}
	}()

	select {
	case <-gate.entered:
	case <-time.After(time.Second):
		t.Fatal("export never reached the orchestrator")
	}

	sendSignal()

	// Nothing may be published while the RPC is still in flight.
	require.Never(t, func() bool { return len(published) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(gate.release)

	res := <-exported
	require.NoError(t, res.err)
	require.Nil(t, res.out.GetPartialSuccess())

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after the signal")
	}

	select {
	case b := <-published:
		require.Len(t, b.Records, 1)
		require.Equal(t, "WARN", b.Records[0].SeverityText)
	default:
		t.Fatal("acknowledged record was not published")
	}
}

func TestNewSink_File(t *testing.T) {
	cfg := testConfig()
	cfg.OutputFile = filepath.Join(t.TempDir(), "out.jsonl")

	s, err := newSink(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &sink.FileSink{}, s)
	require.NoError(t, s.(io.Closer).Close())
	require.FileExists(t, cfg.OutputFile)
}

func TestNewSink_DefaultsToStdout(t *testing.T) {
	s, err := newSink(context.Background(), testConfig())
	require.NoError(t, err)
	require.IsType(t, &sink.JSONSink{}, s)
}

func TestNewSink_UnreachableURL(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	cfg := testConfig()
	cfg.OutputURL = "ws://" + addr + "/ingest"

	_, err = newSink(context.Background(), cfg)
	require.Error(t, err)
}

func startTestServer(t *testing.T, svc orchestrator.Orchestrator) (collogspb.LogsServiceClient, *grpc.Server, func()) {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)

	baseServer := newGRPCServer(testConfig(), svc)

	go func() {
		if err := baseServer.Serve(lis); err != nil {
			log.Printf("error serving test server: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	closer := func() {
		_ = conn.Close()
		_ = lis.Close()

		baseServer.Stop()
	}

	return collogspb.NewLogsServiceClient(conn), baseServer, closer
}
