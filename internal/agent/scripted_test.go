package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScriptedReplaysThenRepeatsLast(t *testing.T) {
	s := NewScripted(
		Result{ExitReason: ContextLimit, TokenCount: 10},
		Result{PromiseFound: true, Promise: "DONE"},
	)

	first, err := s.Run(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, ContextLimit, first.ExitReason)

	for i := 0; i < 3; i++ {
		res, err := s.Run(context.Background(), "b")
		require.NoError(t, err)
		require.True(t, res.PromiseFound)
	}
	require.Equal(t, 4, s.Calls())
	require.Equal(t, []string{"a", "b", "b", "b"}, s.Prompts())
}

func TestScriptedEmpty(t *testing.T) {
	res, err := NewScripted().Run(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, Natural, res.ExitReason)
	require.False(t, res.PromiseFound)
}

func TestScriptedCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewScripted(Result{TokenCount: 3}).Run(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, Shutdown, res.ExitReason)
	require.Equal(t, 3, res.TokenCount)
}

func TestFuncAdapter(t *testing.T) {
	var got string
	var a Agent = Func(func(ctx context.Context, prompt string) (*Result, error) {
		got = prompt
		return &Result{ExitCode: 7}, nil
	})
	res, err := a.Run(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", got)
	require.Equal(t, 7, res.ExitCode)
}

func TestExitReasonString(t *testing.T) {
	require.Equal(t, "natural", Natural.String())
	require.Equal(t, "context_limit", ContextLimit.String())
	require.Equal(t, "shutdown", Shutdown.String())
}
