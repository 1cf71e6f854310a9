package matrix

import (
	"testing"

	"github.com/reeveci/reeve-matrix/schema"
	"github.com/stretchr/testify/require"
)

func TestExpand_KeepsChannelOrder(t *testing.T) {
	runs := Expand([]string{"stable", "beta", "nightly"}, []string{"nightly"})

	require.Equal(t, []schema.RunConfiguration{
		{Index: 0, Channel: "stable"},
		{Index: 1, Channel: "beta"},
		{Index: 2, Channel: "nightly", AllowFailure: true},
	}, runs)
}

func TestExpand_IgnoresUnknownAllowFailures(t *testing.T) {
	runs := Expand([]string{"stable"}, []string{"nightly"})

	require.Len(t, runs, 1)
	require.False(t, runs[0].AllowFailure)
}

func TestExpand_Empty(t *testing.T) {
	require.Empty(t, Expand(nil, nil))
}

func TestFind(t *testing.T) {
	runs := Expand([]string{"stable", "beta"}, []string{"beta"})

	run, ok := Find(runs, "beta")
	require.True(t, ok)
	require.Equal(t, 1, run.Index)
	require.True(t, run.AllowFailure)

	_, ok = Find(runs, "nightly")
	require.False(t, ok)
}
