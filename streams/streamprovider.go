package streams

import (
	"fmt"
	"io"
	"strings"

	"github.com/djherbis/stream"
	"github.com/reeveci/reeve-matrix/schema"
)

// NewMemCapture returns an in-memory log capture for one run.
func NewMemCapture() *StreamProvider {
	return NewStreamProvider(stream.NewMemStream())
}

func NewStreamProvider(stream *stream.Stream) *StreamProvider {
	return &StreamProvider{Stream: stream}
}

// StreamProvider captures a run log once and hands out independent readers.
type StreamProvider struct {
	*stream.Stream
}

func (s *StreamProvider) Available() bool {
	return s != nil && s.Stream != nil
}

func (s *StreamProvider) Reader() (schema.LogReader, error) {
	if !s.Available() {
		return nil, fmt.Errorf("no logs available")
	}

	return s.NextReader()
}

// Close ends the capture; readers see EOF once they reach the end.
func (s *StreamProvider) Close() error {
	if !s.Available() {
		return nil
	}

	return s.Stream.Close()
}

// Tail returns up to n trailing lines of a finished log.
func Tail(provider schema.LogReaderProvider, n int) (string, error) {
	if provider == nil || !provider.Available() || n <= 0 {
		return "", nil
	}

	reader, err := provider.Reader()
	if err != nil {
		return "", err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}
