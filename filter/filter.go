package filter

import (
	"bytes"
	"errors"
	"io"
)

// Lines longer than maxLineSize are filtered in parts so that memory stays bounded.
const maxLineSize = 1024 * 1024

const readSize = 32 * 1024

// Filter transforms output one line at a time. Lines are passed including their terminator.
type Filter interface {
	Filter(line string) string
}

// ChunkFilter is implemented by filters that need to see across the parts of an overlong
// line. FilterChunk returns the filtered output for a leading part of chunk and the number
// of bytes of chunk it consumed; the rest is handed back together with the following data.
type ChunkFilter interface {
	Filter
	FilterChunk(chunk string) (filtered string, consumed int)
}

// Func adapts a plain function to Filter.
type Func func(line string) string

func (f Func) Filter(line string) string {
	return f(line)
}

// LineFilter copies r to w line by line, passing every line through filter.
// Single carriage returns terminate a line as well. A last line without terminator gets one.
func LineFilter(r io.Reader, w io.Writer, filter Filter) error {
	l := &lineFilter{w: w, filter: filter}
	buffer := make([]byte, readSize)

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			if err := l.feed(buffer[:n]); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) {
			return l.finish()
		}
		if err != nil {
			return err
		}
	}
}

type lineFilter struct {
	w       io.Writer
	filter  Filter
	pending []byte
	// the head of the current line has already been written
	partial bool
	afterCR bool
}

func (l *lineFilter) feed(data []byte) error {
	for len(data) > 0 {
		if l.afterCR {
			l.afterCR = false
			if data[0] == '\n' {
				// \r\n split across reads
				data = data[1:]
				continue
			}
		}

		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			l.pending = append(l.pending, data...)
			return l.overflow()
		}

		l.pending = append(l.pending, data[:i]...)
		if data[i] == '\r' {
			if i+1 < len(data) && data[i+1] == '\n' {
				i++
			} else if i+1 == len(data) {
				l.afterCR = true
			}
		}
		data = data[i+1:]

		if err := l.line(); err != nil {
			return err
		}
	}
	return nil
}

func (l *lineFilter) line() error {
	line := string(l.pending) + "\n"
	l.pending = l.pending[:0]
	l.partial = false
	return l.write(l.filter.Filter(line))
}

// overflow writes the head of an overlong line.
func (l *lineFilter) overflow() error {
	if len(l.pending) < maxLineSize {
		return nil
	}

	chunk := string(l.pending)
	filtered, consumed := chunk, len(chunk)
	if chunked, ok := l.filter.(ChunkFilter); ok {
		filtered, consumed = chunked.FilterChunk(chunk)
	} else {
		filtered = l.filter.Filter(chunk)
	}

	l.pending = append(l.pending[:0], chunk[consumed:]...)
	if consumed > 0 {
		l.partial = true
	}
	return l.write(filtered)
}

func (l *lineFilter) finish() error {
	if len(l.pending) == 0 && !l.partial {
		return nil
	}
	return l.line()
}

func (l *lineFilter) write(s string) error {
	if s == "" {
		return nil
	}
	_, err := io.WriteString(l.w, s)
	return err
}

// Writer returns a writer that filters everything written to it line by line before
// forwarding it to w. Close flushes the last line and reports write errors of w.
func Writer(w io.Writer, filter Filter) io.WriteCloser {
	pr, pw := io.Pipe()
	fw := &filterWriter{pw: pw, done: make(chan struct{})}

	go func() {
		defer close(fw.done)
		fw.err = LineFilter(pr, w, filter)
		// keep the writing side unblocked after a failure
		_, _ = io.Copy(io.Discard, pr)
	}()

	return fw
}

type filterWriter struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

func (f *filterWriter) Write(b []byte) (int, error) {
	return f.pw.Write(b)
}

func (f *filterWriter) Close() error {
	_ = f.pw.Close()
	<-f.done
	return f.err
}
