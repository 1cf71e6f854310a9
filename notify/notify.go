package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/reeveci/reeve-matrix/metrics"
	"github.com/reeveci/reeve-matrix/schema"
	"github.com/reeveci/reeve-matrix/streams"
)

// Sink delivers a notification to one destination.
type Sink interface {
	Name() string
	Send(ctx context.Context, notification schema.Notification) error
}

// Notifier dispatches the final outcome of an invocation to its sinks.
type Notifier struct {
	OnSuccess string
	LogTail   int
	Sinks     []Sink
	Timeout   time.Duration
	Logger    hclog.Logger
	Metrics   metrics.Recorder
}

// ShouldNotify is false only for a successful outcome with notifications on success
// turned off. Failures always notify.
func ShouldNotify(status schema.Status, onSuccess string) bool {
	return !(status.Passed() && onSuccess == schema.NOTIFY_NEVER)
}

// Notify sends the report to every sink. Delivery failures are logged and swallowed.
// It reports whether a notification was emitted.
func (n *Notifier) Notify(ctx context.Context, report schema.InvocationReport) bool {
	logger := n.logger()

	if !ShouldNotify(report.Status, n.OnSuccess) {
		logger.Debug("notification suppressed", "status", report.Status, "on_success", n.OnSuccess)
		return false
	}

	notification := Build(report, n.LogTail)

	for _, sink := range n.Sinks {
		sinkCtx := ctx
		var cancel context.CancelFunc = func() {}
		if n.Timeout > 0 {
			sinkCtx, cancel = context.WithTimeout(ctx, n.Timeout)
		}
		err := sink.Send(sinkCtx, notification)
		cancel()

		n.recorder().IncNotification(sink.Name(), err == nil)
		if err != nil {
			logger.Warn("notification delivery failed", "sink", sink.Name(), "error", err)
			continue
		}
		logger.Debug("notification delivered", "sink", sink.Name())
	}
	return true
}

// Build assembles the notification for report, including the log tail of every run that
// did not pass.
func Build(report schema.InvocationReport, tail int) schema.Notification {
	notification := schema.Notification{
		Subject: Subject(report),
		Summary: Summary(report),
		Report:  report,
		Tails:   make(map[string]string),
	}

	for _, run := range report.Runs {
		if run.Status.Passed() {
			continue
		}
		text, err := streams.Tail(run.Logs, tail)
		if err == nil && text != "" {
			notification.Tails[run.Run.Channel] = text
		}
	}
	return notification
}

func Subject(report schema.InvocationReport) string {
	name := report.Name
	if name == "" {
		name = "pipeline"
	}
	return fmt.Sprintf("%s: %s", name, report.Status)
}

// Summary renders the report as markdown.
func Summary(report schema.InvocationReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", Subject(report))
	if branch := report.Facts["branch"]; len(branch) > 0 {
		fmt.Fprintf(&b, "Branch `%s`", branch[0])
		if commit := report.Facts["commit"]; len(commit) > 0 {
			fmt.Fprintf(&b, " at `%s`", commit[0])
		}
		b.WriteString("\n\n")
	}

	b.WriteString("| Channel | Status | Failed stage |\n")
	b.WriteString("|---|---|---|\n")
	for _, run := range report.Runs {
		failed := "-"
		if stage, ok := run.FailedStage(); ok {
			failed = stage.Stage
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", run.Run.Channel, run.Status, failed)
	}

	for _, run := range report.Runs {
		if len(run.Publish) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\nPublished from %s:\n\n", run.Run.Channel)
		for _, result := range run.Publish {
			fmt.Fprintf(&b, "- %s: %s\n", result.Action, result.Status)
		}
	}

	return b.String()
}

func (n *Notifier) logger() hclog.Logger {
	if n.Logger == nil {
		return hclog.NewNullLogger()
	}
	return n.Logger
}

func (n *Notifier) recorder() metrics.Recorder {
	if n.Metrics == nil {
		return metrics.NoopRecorder{}
	}
	return n.Metrics
}
