package blockchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_NewFiniteStateMachine(t *testing.T) {
	ctx := context.Background()

	sm := NewFiniteStateMachine()
	require.NotNil(t, sm)
	require.Equal(t, StateLoading, sm.Current())
	require.True(t, sm.Can(EventLoaded))
	require.False(t, sm.Can(EventCaughtUp))

	t.Run("Transition from Loading to InitialDownload", func(t *testing.T) {
		require.NoError(t, sm.Event(ctx, EventLoaded))
		require.Equal(t, StateInitialDownload, sm.Current())
		require.True(t, sm.Can(EventCaughtUp))
		require.True(t, sm.Can(EventStop))
	})

	t.Run("Loaded twice", func(t *testing.T) {
		require.Error(t, sm.Event(ctx, EventLoaded))
		require.Equal(t, StateInitialDownload, sm.Current())
	})

	t.Run("Transition from InitialDownload to Running", func(t *testing.T) {
		require.NoError(t, sm.Event(ctx, EventCaughtUp))
		require.Equal(t, StateRunning, sm.Current())
		require.False(t, sm.Can(EventCaughtUp))
	})

	t.Run("Verifying can only abort", func(t *testing.T) {
		sm.SetState(StateVerifying)
		require.False(t, sm.Can(EventStop))
		require.True(t, sm.Can(EventAbort))
		sm.SetState(StateRunning)
	})

	t.Run("Transition from Running to Stopped", func(t *testing.T) {
		require.NoError(t, sm.Event(ctx, EventStop))
		require.Equal(t, StateStopped, sm.Current())
		require.False(t, sm.Can(EventLoaded))
	})
}

func Test_AbortIsFinal(t *testing.T) {
	ctx := context.Background()

	sm := NewFiniteStateMachine()
	require.NoError(t, sm.Event(ctx, EventLoaded))
	require.NoError(t, sm.Event(ctx, EventAbort))
	require.Equal(t, StateAborted, sm.Current())

	require.False(t, sm.Can(EventCaughtUp))
	require.False(t, sm.Can(EventStop))
	require.False(t, sm.Can(EventAbort))
}
