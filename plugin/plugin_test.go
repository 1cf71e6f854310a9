package plugin

import (
	"errors"
	"io"
	"testing"

	goplugin "github.com/hashicorp/go-plugin"
	"github.com/reeveci/reeve-matrix/schema"
	"github.com/reeveci/reeve-matrix/streams"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	err           error
	notifications []schema.Notification
}

func (f *fakeNotifier) Name() (string, error) {
	return "fake", nil
}

func (f *fakeNotifier) Notify(notification schema.Notification) error {
	f.notifications = append(f.notifications, notification)
	return f.err
}

func dispense(t *testing.T, impl Notifier) Notifier {
	t.Helper()
	client, _ := goplugin.TestPluginRPCConn(t, map[string]goplugin.Plugin{
		PLUGIN_NAME: &NotifierPlugin{Impl: impl},
	}, nil)
	t.Cleanup(func() { client.Close() })

	raw, err := client.Dispense(PLUGIN_NAME)
	require.NoError(t, err)
	notifier, ok := raw.(Notifier)
	require.True(t, ok)
	return notifier
}

func TestNotifierRPC(t *testing.T) {
	impl := &fakeNotifier{}
	notifier := dispense(t, impl)

	name, err := notifier.Name()
	require.NoError(t, err)
	require.Equal(t, "fake", name)

	logs := streams.NewMemCapture()
	_, _ = io.WriteString(logs, "output\n")
	_ = logs.Close()

	runs := []schema.RunReport{{
		Run:    schema.RunConfiguration{Channel: "stable"},
		Status: schema.STATUS_FAILED,
		Logs:   logs,
	}}
	err = notifier.Notify(schema.Notification{
		Subject: "my-crate: failed",
		Report:  schema.InvocationReport{Name: "my-crate", Status: schema.STATUS_FAILED, Runs: runs},
		Tails:   map[string]string{"stable": "output"},
	})
	require.NoError(t, err)

	require.Len(t, impl.notifications, 1)
	received := impl.notifications[0]
	require.Equal(t, "my-crate: failed", received.Subject)
	require.Equal(t, "stable", received.Report.Runs[0].Run.Channel)
	require.Nil(t, received.Report.Runs[0].Logs)
	require.Equal(t, "output", received.Tails["stable"])

	// the caller's report keeps its logs
	require.NotNil(t, runs[0].Logs)
}

func TestNotifierRPC_Error(t *testing.T) {
	notifier := dispense(t, &fakeNotifier{err: errors.New("slack is down")})

	err := notifier.Notify(schema.Notification{Subject: "x"})
	require.ErrorContains(t, err, "slack is down")
}
