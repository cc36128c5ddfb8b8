// Package jsonout emits JSON text one character at a time into an arbitrary byte sink.
package jsonout

// ByteSink is the only capability Stream needs from its destination: write len(p)
// bytes starting at p. Any io.Writer satisfies it.
type ByteSink interface {
	Write(p []byte) (n int, err error)
}

// Stream adapts a ByteSink to the single-character Put used by Emitter.
//
// A Stream does not own its sink. The caller keeps the sink alive for as long as
// the Stream is used and remains responsible for flushing and closing it.
// A Stream is not safe for concurrent use.
type Stream[S ByteSink] struct {
	sink S
}

// NewStream binds a Stream to sink. Nothing is written.
func NewStream[S ByteSink](sink S) Stream[S] {
	return Stream[S]{sink: sink}
}

// Put writes c to the sink as a single one-byte write. The sink's error, if any,
// is returned as is.
func (s Stream[S]) Put(c byte) error {
	b := [1]byte{c}
	_, err := s.sink.Write(b[:])

	return err
}
