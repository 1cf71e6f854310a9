package logs

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

func New(target io.Writer, name string) LogWriter {
	return NewDecorated(target, name, NewDefaultDecorator(""))
}

func NewDecorated(target io.Writer, name string, decorator Decorator) LogWriter {
	return NewTargets(name, Target{Writer: target, Decorator: decorator})
}

// Target is one destination of a LogWriter with its own line prefixes.
type Target struct {
	Writer    io.Writer
	Decorator Decorator
}

// NewTargets writes every line to all targets, each prefixed by its own decorator.
// Subsystem names come from the first target's decorator.
func NewTargets(name string, targets ...Target) LogWriter {
	root := &root{targets: targets}
	return newScopeWriter(root, name)
}

// LogWriter prefixes every line with its scope. Subsystems share the target of their
// parent; whole lines are never interleaved.
type LogWriter interface {
	io.Writer
	io.StringWriter
	Printer
	Subsystem(name string) LogWriter
	// Flush terminates and writes a pending partial line.
	Flush() error
}

type Printer interface {
	Print(a ...any) (int, error)
	Printf(format string, a ...any) (int, error)
	Println(a ...any) (int, error)
}

type Decorator interface {
	// Get the unique name for a subsystem for the specified scope
	Subsystem(scope, name string) string
	// Get the prefix for a line
	LinePrefix(scope string) string
}

type root struct {
	targets []Target
	lock    sync.Mutex
}

// writeLine keeps writing to the remaining targets after a failure and returns the first error.
func (r *root) writeLine(scope string, line []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	var result error
	for _, target := range r.targets {
		prefix := target.Decorator.LinePrefix(scope)
		buffer := make([]byte, 0, len(prefix)+len(line))
		buffer = append(buffer, prefix...)
		buffer = append(buffer, line...)
		if _, err := target.Writer.Write(buffer); err != nil && result == nil {
			result = err
		}
	}
	return result
}

func (r *root) subsystem(scope, name string) string {
	if len(r.targets) == 0 {
		return NewDefaultDecorator("").Subsystem(scope, name)
	}
	return r.targets[0].Decorator.Subsystem(scope, name)
}

type scopeWriter struct {
	root  *root
	scope string

	lock    sync.Mutex
	pending []byte
}

func newScopeWriter(r *root, scope string) *scopeWriter {
	return &scopeWriter{root: r, scope: scope}
}

func (w *scopeWriter) Write(b []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	data := b
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			w.pending = append(w.pending, data...)
			break
		}

		line := data[:i+1]
		if len(w.pending) > 0 {
			line = append(w.pending, line...)
			w.pending = nil
		}
		if err := w.root.writeLine(w.scope, line); err != nil {
			return len(b) - len(data), err
		}
		data = data[i+1:]
	}
	return len(b), nil
}

func (w *scopeWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *scopeWriter) Flush() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if len(w.pending) == 0 {
		return nil
	}
	line := append(w.pending, '\n')
	w.pending = nil
	return w.root.writeLine(w.scope, line)
}

func (w *scopeWriter) Subsystem(name string) LogWriter {
	return newScopeWriter(w.root, w.root.subsystem(w.scope, name))
}

func (w *scopeWriter) Print(a ...any) (int, error) {
	return fmt.Fprint(w, a...)
}

func (w *scopeWriter) Printf(format string, a ...any) (int, error) {
	return fmt.Fprintf(w, format, a...)
}

func (w *scopeWriter) Println(a ...any) (int, error) {
	return fmt.Fprintln(w, a...)
}

// NewDefaultDecorator joins scopes with ':' and prefixes lines with "[scope] ".
// A non-empty prefixTemplate wraps the bracketed scope, e.g. for colors.
func NewDefaultDecorator(prefixTemplate string) Decorator {
	return defaultDecorator{prefixTemplate: prefixTemplate}
}

type defaultDecorator struct {
	prefixTemplate string
}

func (d defaultDecorator) Subsystem(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + ":" + name
}

func (d defaultDecorator) LinePrefix(scope string) string {
	if scope == "" {
		return ""
	}

	prefix := "[" + scope + "]"
	if d.prefixTemplate != "" {
		prefix = fmt.Sprintf(d.prefixTemplate, prefix)
	}
	return prefix + " "
}
