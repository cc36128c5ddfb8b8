package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"dash0.com/otlp-json-emitter/internal/jsonout"
)

type flusher interface {
	Flush() error
}

// JSONSink writes each batch as a single JSON line to an io.Writer, one character
// at a time. If the writer can Flush (e.g. *bufio.Writer) it is flushed after
// every batch. The writer is owned by the caller.
//
// A failed Publish may leave a partial line behind; the error is the writer's own.
type JSONSink struct {
	w io.Writer
}

// NewJSONSink creates a JSON sink writing to the provided writer.
func NewJSONSink(w io.Writer) *JSONSink { return &JSONSink{w: w} }

// NewStdoutJSON returns a JSON sink that writes to a buffered os.Stdout.
func NewStdoutJSON() *JSONSink { return &JSONSink{w: bufio.NewWriter(os.Stdout)} }

// Publish emits the batch followed by a newline.
func (s *JSONSink) Publish(_ context.Context, b Batch) error {
	e := jsonout.NewEmitter(jsonout.NewStream(s.w))
	writeBatch(e, b)
	e.Newline()

	if err := e.Err(); err != nil {
		return err
	}

	if f, ok := s.w.(flusher); ok {
		return f.Flush()
	}

	return nil
}

// FileSink is a JSONSink that appends to a file it owns.
type FileSink struct {
	*JSONSink
	bw *bufio.Writer
	f  *os.File
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	bw := bufio.NewWriter(f)

	return &FileSink{JSONSink: NewJSONSink(bw), bw: bw, f: f}, nil
}

// Close flushes anything still buffered and closes the file.
func (s *FileSink) Close() error {
	return errors.Join(s.bw.Flush(), s.f.Close())
}
