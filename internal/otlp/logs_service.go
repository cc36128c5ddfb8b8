package otlp

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"

	"dash0.com/otlp-json-emitter/internal/orchestrator"
	"dash0.com/otlp-json-emitter/internal/sink"
)

type logsServiceServer struct {
	orchestratorSvc orchestrator.Orchestrator
	collogspb.UnimplementedLogsServiceServer
}

// NewServer returns a LogsServiceServer backed by the provided Orchestrator.
func NewServer(svc orchestrator.Orchestrator) collogspb.LogsServiceServer {
	return &logsServiceServer{orchestratorSvc: svc}
}

func (l *logsServiceServer) Export(ctx context.Context, request *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	// Use the span started by the gRPC OTel interceptor.
	span := oteltrace.SpanFromContext(ctx)

	slog.DebugContext(ctx, "Received ExportLogsServiceRequest")

	// Normalize every record of the request into a single batch.
	var batch []sink.Record

	for _, rl := range request.GetResourceLogs() {
		// Safe even if Resource is nil; GetAttributes() returns nil in that case.
		resAttrs := rl.GetResource().GetAttributes()

		for _, sl := range rl.GetScopeLogs() {
			for _, rec := range sl.GetLogRecords() {
				batch = append(batch, ToRecord(rec, sl.GetScope(), resAttrs))
			}
		}
	}

	received := int64(len(batch))

	var accepted, dropped int64

	// Enqueue non-blocking; on failure the whole request is rejected and counted as dropped.
	if l.orchestratorSvc.EnqueueBatch(ctx, batch) {
		accepted = received
	} else {
		dropped = received
		l.orchestratorSvc.RecordDrop(ctx, uint64(dropped))
	}

	// Update metrics once per request.
	l.orchestratorSvc.IncrMetric(ctx, orchestrator.MetricRecordsReceived, received)
	l.orchestratorSvc.IncrMetric(ctx, orchestrator.MetricRecordsAccepted, accepted)
	l.orchestratorSvc.IncrMetric(ctx, orchestrator.MetricRecordsDropped, dropped)

	resp := &collogspb.ExportLogsServiceResponse{}
	if dropped > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: dropped,
			ErrorMessage:       "ingestion queue full",
		}
	}

	span.SetAttributes(
		attribute.Int64("records.received", received),
		attribute.Int64("records.accepted", accepted),
		attribute.Int64("records.dropped", dropped),
	)
	slog.DebugContext(
		ctx,
		"Completed ExportLogsServiceRequest",
		slog.Int64("received", received),
		slog.Int64("accepted", accepted),
		slog.Int64("dropped", dropped),
	)

	return resp, nil
}
