package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStatus(t *testing.T) {
	require.True(t, STATUS_SUCCESS.Green())
	require.True(t, STATUS_ALLOWED_FAILURE.Green())
	require.False(t, STATUS_FAILED.Green())

	require.True(t, STATUS_SUCCESS.Passed())
	require.False(t, STATUS_ALLOWED_FAILURE.Passed())
}

func TestAggregate(t *testing.T) {
	runs := func(statuses ...Status) []RunReport {
		result := make([]RunReport, len(statuses))
		for i, status := range statuses {
			result[i] = RunReport{Status: status}
		}
		return result
	}

	require.Equal(t, STATUS_SUCCESS, Aggregate(runs(STATUS_SUCCESS, STATUS_SUCCESS)))
	require.Equal(t, STATUS_SUCCESS, Aggregate(runs(STATUS_SUCCESS, STATUS_ALLOWED_FAILURE)))
	require.Equal(t, STATUS_FAILED, Aggregate(runs(STATUS_SUCCESS, STATUS_FAILED, STATUS_ALLOWED_FAILURE)))
	require.Equal(t, STATUS_FAILED, Aggregate(runs(STATUS_PENDING)))
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, InvocationReport{Status: STATUS_SUCCESS}.ExitCode())
	require.Equal(t, 1, InvocationReport{Status: STATUS_FAILED}.ExitCode())
}

func TestFailedStage(t *testing.T) {
	report := RunReport{Stages: []StageResult{
		{Stage: "build", Status: STATUS_SUCCESS},
		{Stage: "test", Status: STATUS_FAILED},
		{Stage: "bench", Status: STATUS_FAILED},
	}}

	stage, ok := report.FailedStage()
	require.True(t, ok)
	require.Equal(t, "test", stage.Stage)

	_, ok = RunReport{}.FailedStage()
	require.False(t, ok)
}

func TestRunConfigurationString(t *testing.T) {
	require.Equal(t, "stable", RunConfiguration{Channel: "stable"}.String())
	require.Equal(t, "nightly (allow failure)", RunConfiguration{Channel: "nightly", AllowFailure: true}.String())
}

func TestDuration_YAML(t *testing.T) {
	var stage Stage
	require.NoError(t, yaml.Unmarshal([]byte("name: test\ntimeout: 90s\n"), &stage))
	require.Equal(t, Duration(90*time.Second), stage.Timeout)

	data, err := yaml.Marshal(stage)
	require.NoError(t, err)
	require.Contains(t, string(data), "timeout: 1m30s")

	require.Error(t, yaml.Unmarshal([]byte("timeout: later\n"), &stage))
}

func TestCondition_Empty(t *testing.T) {
	ok, err := Condition{}.Check("branch", map[string]Fact{"branch": {"main"}}, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCondition_EmptyFactPasses(t *testing.T) {
	ok, err := Condition{Include: []string{"main"}}.Check("branch", map[string]Fact{"branch": {""}}, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPublishAction_RequiredSecrets(t *testing.T) {
	action := PublishAction{Secrets: []string{"A"}, TokenSecret: "B"}
	require.Equal(t, []string{"A", "B"}, action.RequiredSecrets())
	require.Equal(t, []string{"A"}, action.Secrets)
}
