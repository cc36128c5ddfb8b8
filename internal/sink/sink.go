package sink

import (
	"context"

	"dash0.com/otlp-json-emitter/internal/jsonout"
)

//go:generate mockgen -source=sink.go -destination=./mocks/mock_sink.go -package=mocks

// Record is a log record normalized from OTLP. Attributes hold the merged
// resource, scope and record attributes.
type Record struct {
	TimeUnixNano         uint64
	ObservedTimeUnixNano uint64
	SeverityNumber       int32
	SeverityText         string
	Body                 any
	Attributes           jsonout.Fields
	TraceID              []byte
	SpanID               []byte
	Scope                string
}

// Batch is the unit published at the end of a window.
type Batch struct {
	ID          string
	WindowStart int64
	WindowEnd   int64
	Records     []Record
	Dropped     uint64
}

// Sink publishes batches.
type Sink interface {
	Publish(ctx context.Context, b Batch) error
}
