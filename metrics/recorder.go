package metrics

import (
	"time"

	"github.com/reeveci/reeve-matrix/schema"
)

// Recorder receives outcome and duration observations. Implementations must be safe for
// concurrent use, since run configurations report in parallel.
type Recorder interface {
	ObserveStage(channel, stage string, status schema.Status, d time.Duration)
	ObserveRun(channel string, status schema.Status, d time.Duration)
	ObservePublish(action string, status schema.Status, d time.Duration)
	ObserveInvocation(status schema.Status, d time.Duration)
	IncNotification(sink string, delivered bool)
}

// NoopRecorder is the default when no metrics output is configured.
type NoopRecorder struct{}

func (NoopRecorder) ObserveStage(string, string, schema.Status, time.Duration) {}
func (NoopRecorder) ObserveRun(string, schema.Status, time.Duration)           {}
func (NoopRecorder) ObservePublish(string, schema.Status, time.Duration)       {}
func (NoopRecorder) ObserveInvocation(schema.Status, time.Duration)            {}
func (NoopRecorder) IncNotification(string, bool)                              {}
