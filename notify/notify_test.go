package notify

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/reeveci/reeve-matrix/schema"
	"github.com/reeveci/reeve-matrix/streams"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name string
	err  error

	lock          sync.Mutex
	notifications []schema.Notification
}

func (s *recordingSink) Name() string {
	return s.name
}

func (s *recordingSink) Send(ctx context.Context, notification schema.Notification) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.notifications = append(s.notifications, notification)
	return s.err
}

func capture(t *testing.T, text string) schema.LogReaderProvider {
	t.Helper()
	logs := streams.NewMemCapture()
	_, err := io.WriteString(logs, text)
	require.NoError(t, err)
	require.NoError(t, logs.Close())
	return logs
}

func testReport(status schema.Status, runs ...schema.RunReport) schema.InvocationReport {
	return schema.InvocationReport{
		ID:     "8c0d9c3a",
		Name:   "my-crate",
		Status: status,
		Facts:  map[string]schema.Fact{"branch": {"main"}, "commit": {"1f2e3d"}},
		Runs:   runs,
	}
}

func TestShouldNotify(t *testing.T) {
	require.False(t, ShouldNotify(schema.STATUS_SUCCESS, schema.NOTIFY_NEVER))
	require.True(t, ShouldNotify(schema.STATUS_SUCCESS, schema.NOTIFY_ALWAYS))
	require.True(t, ShouldNotify(schema.STATUS_FAILED, schema.NOTIFY_NEVER))
	require.True(t, ShouldNotify(schema.STATUS_FAILED, schema.NOTIFY_ALWAYS))
}

func TestNotify_SuppressedOnSuccess(t *testing.T) {
	sink := &recordingSink{name: "test"}
	notifier := &Notifier{OnSuccess: schema.NOTIFY_NEVER, Sinks: []Sink{sink}}

	emitted := notifier.Notify(context.Background(), testReport(schema.STATUS_SUCCESS))

	require.False(t, emitted)
	require.Empty(t, sink.notifications)
}

func TestNotify_FailureAlwaysEmits(t *testing.T) {
	sink := &recordingSink{name: "test"}
	notifier := &Notifier{OnSuccess: schema.NOTIFY_NEVER, Sinks: []Sink{sink}}

	emitted := notifier.Notify(context.Background(), testReport(schema.STATUS_FAILED))

	require.True(t, emitted)
	require.Len(t, sink.notifications, 1)
	require.Equal(t, "my-crate: failed", sink.notifications[0].Subject)
}

func TestNotify_SinkFailureIsSwallowed(t *testing.T) {
	broken := &recordingSink{name: "broken", err: errors.New("connection refused")}
	working := &recordingSink{name: "working"}
	notifier := &Notifier{OnSuccess: schema.NOTIFY_ALWAYS, Sinks: []Sink{broken, working}}

	emitted := notifier.Notify(context.Background(), testReport(schema.STATUS_SUCCESS))

	require.True(t, emitted)
	require.Len(t, broken.notifications, 1)
	require.Len(t, working.notifications, 1)
}

func TestBuild_TailsOfRunsThatDidNotPass(t *testing.T) {
	report := testReport(schema.STATUS_FAILED,
		schema.RunReport{
			Run:    schema.RunConfiguration{Channel: "stable"},
			Status: schema.STATUS_FAILED,
			Stages: []schema.StageResult{
				{Stage: "build", Status: schema.STATUS_SUCCESS},
				{Stage: "bench", Status: schema.STATUS_FAILED},
				{Stage: "doc", Status: schema.STATUS_SKIPPED},
			},
			Logs: capture(t, "line 1\nline 2\nline 3\n"),
		},
		schema.RunReport{
			Run:    schema.RunConfiguration{Channel: "beta"},
			Status: schema.STATUS_SUCCESS,
			Logs:   capture(t, "fine\n"),
		},
		schema.RunReport{
			Run:    schema.RunConfiguration{Channel: "nightly", AllowFailure: true},
			Status: schema.STATUS_ALLOWED_FAILURE,
			Logs:   capture(t, "nightly broke\n"),
		},
	)

	notification := Build(report, 2)

	require.Equal(t, map[string]string{
		"stable":  "line 2\nline 3",
		"nightly": "nightly broke",
	}, notification.Tails)
	require.Contains(t, notification.Summary, "# my-crate: failed")
	require.Contains(t, notification.Summary, "Branch `main` at `1f2e3d`")
	require.Contains(t, notification.Summary, "| stable | failed | bench |")
	require.Contains(t, notification.Summary, "| beta | success | - |")
	require.Contains(t, notification.Summary, "| nightly | allowed failure | - |")
}

func TestSummary_Publish(t *testing.T) {
	report := testReport(schema.STATUS_SUCCESS, schema.RunReport{
		Run:    schema.RunConfiguration{Channel: "stable"},
		Status: schema.STATUS_SUCCESS,
		Publish: []schema.PublishResult{
			{Action: "doc", Status: schema.STATUS_FAILED},
			{Action: "coverage", Status: schema.STATUS_SUCCESS},
		},
	})

	summary := Summary(report)

	require.True(t, strings.Contains(summary, "Published from stable:\n\n- doc: failed\n- coverage: success\n"), summary)
}
