package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	cfgpkg "dash0.com/otlp-json-emitter/internal/config"
	"dash0.com/otlp-json-emitter/internal/orchestrator"
	otelsetup "dash0.com/otlp-json-emitter/internal/otel"
	otlpsrv "dash0.com/otlp-json-emitter/internal/otlp"
	"dash0.com/otlp-json-emitter/internal/sink"
)

const name = "dash0.com/otlp-json-emitter"

func main() {
	if err := run(); err != nil {
		log.Fatalln(err)
	}
}

func run() (err error) {
	// Config
	readConfig := cfgpkg.RegisterFlags()

	flag.Parse()

	cfg, err := readConfig()
	if err != nil {
		return err
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}

	// Telemetry goes to stderr; stdout carries the batches.
	otelShutdown, err := otelsetup.Setup(context.Background(), os.Stderr)
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, otelShutdown(context.Background())) }()

	// Instance logger bridged to OTel.
	logger := otelsetup.NewLogger(name, level)
	slog.SetDefault(logger)
	logger.Info("Starting application")

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := newSink(sigCtx, cfg)
	if err != nil {
		return err
	}

	orchestratorSvc, err := orchestrator.New(cfg, logger, orchestrator.WithSink(out))
	if err != nil {
		return err
	}

	slog.Debug("Starting listener", slog.String("listenAddr", cfg.ListenAddr))

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return errors.Join(err, orchestratorSvc.Close(context.Background()))
	}

	return serve(sigCtx, listener, newGRPCServer(cfg, orchestratorSvc), orchestratorSvc, cfg)
}

// serve runs the gRPC server until it fails or sigCtx is canceled. The
// orchestrator runs on its own context and is stopped by shutdown, after the
// RPCs in flight at the signal have finished.
func serve(sigCtx context.Context, listener net.Listener, grpcServer *grpc.Server, svc *orchestrator.Service, cfg cfgpkg.Config) error {
	svc.Start(context.Background())

	slog.Debug("Starting gRPC server")

	serveErr := make(chan error, 1)

	go func() { serveErr <- grpcServer.Serve(listener) }()

	select {
	case err := <-serveErr:
		return errors.Join(err, svc.Close(context.Background()))
	case <-sigCtx.Done():
		slog.Info("Shutdown signal received; beginning graceful shutdown")

		return shutdown(grpcServer, svc, cfg)
	}
}

// newSink picks the output: a websocket endpoint, an append-only file or stdout.
func newSink(ctx context.Context, cfg cfgpkg.Config) (sink.Sink, error) {
	switch {
	case cfg.OutputURL != "":
		return sink.DialWebSocket(ctx, cfg.OutputURL)
	case cfg.OutputFile != "":
		return sink.OpenFile(cfg.OutputFile)
	default:
		return sink.NewStdoutJSON(), nil
	}
}

func newGRPCServer(cfg cfgpkg.Config, svc orchestrator.Orchestrator) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxRecvMsgSize(cfg.MaxReceiveMessageSize),
		grpc.Creds(insecure.NewCredentials()),
	)
	collogspb.RegisterLogsServiceServer(grpcServer, otlpsrv.NewServer(svc))

	return grpcServer
}

// shutdown drains in-flight RPCs, then flushes and closes the orchestrator,
// all within cfg.GracefulTimeout.
func shutdown(grpcServer *grpc.Server, svc *orchestrator.Service, cfg cfgpkg.Config) error {
	done := make(chan struct{})

	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		slog.Warn("Graceful stop timed out; forcing stop")
		grpcServer.Stop()
	}

	return svc.Close(shutdownCtx)
}
