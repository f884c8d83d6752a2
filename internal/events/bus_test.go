package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/twinbuild/internal/bundler"
	foundationerrors "git.home.luguber.info/inful/twinbuild/internal/foundation/errors"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[RebuildStarted](b, 1)
	defer unsubscribe()

	require.NoError(t, b.Publish(t.Context(), RebuildStarted{Pipeline: "client", Round: 3}))

	select {
	case got := <-ch:
		require.Equal(t, "client", got.Pipeline)
		require.Equal(t, uint64(3), got.Round)
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_InterfaceSubscriptionReceivesAllEvents(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[Event](b, 2)
	defer unsubscribe()
	exact, unsubscribeExact := Subscribe[ManifestWritten](b, 2)
	defer unsubscribeExact()

	require.NoError(t, b.Publish(t.Context(), RebuildCompleted{Pipeline: "server", Result: &bundler.Result{}}))
	require.NoError(t, b.Publish(t.Context(), ManifestWritten{Version: "v1"}))

	require.Equal(t, "rebuild_completed", (<-ch).EventName())
	require.Equal(t, "manifest_written", (<-ch).EventName())
	require.Equal(t, "v1", (<-exact).Version)
	require.Empty(t, exact)
}

func TestBus_PipelineEventSubscriptionSkipsOtherEvents(t *testing.T) {
	b := NewBus()
	defer b.Close()

	ch, unsubscribe := Subscribe[PipelineEvent](b, 4)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	// No subscriber matches these, so they must not block.
	require.NoError(t, b.Publish(ctx, ManifestWritten{Version: "v1"}))
	require.NoError(t, b.Publish(ctx, ReloadBroadcast{Version: "v1"}))
	require.NoError(t, b.Publish(ctx, RebuildStarted{Pipeline: "server", Round: 1}))
	require.NoError(t, b.Publish(ctx, RebuildCompleted{Pipeline: "server", Round: 1}))

	first := <-ch
	second := <-ch
	require.Equal(t, "server", first.PipelineName())
	require.IsType(t, RebuildStarted{}, first)
	require.IsType(t, RebuildCompleted{}, second)
	require.Empty(t, ch)
}

func TestBus_PublishBackpressure(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, unsubscribe := Subscribe[RebuildStarted](b, 0)
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	err := b.Publish(ctx, RebuildStarted{})
	require.Error(t, err)

	classified, ok := foundationerrors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, foundationerrors.CategoryRuntime, classified.Category())
}

func TestBus_UnsubscribeUnblocksPublisher(t *testing.T) {
	b := NewBus()
	defer b.Close()

	_, unsubscribe := Subscribe[RebuildStarted](b, 0)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Publish(context.Background(), RebuildStarted{}) }()

	time.Sleep(20 * time.Millisecond)
	unsubscribe()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher stayed blocked after unsubscribe")
	}
	require.Equal(t, 0, b.Subscribers())
}

func TestBus_Close(t *testing.T) {
	b := NewBus()

	ch, _ := Subscribe[RebuildStarted](b, 1)
	b.Close()

	_, ok := <-ch
	require.False(t, ok)
	require.Error(t, b.Publish(t.Context(), RebuildStarted{}))

	late, _ := Subscribe[RebuildStarted](b, 1)
	_, ok = <-late
	require.False(t, ok)
}

func TestRebuildCompleted_Success(t *testing.T) {
	require.True(t, RebuildCompleted{Result: &bundler.Result{}}.Success())
	require.False(t, RebuildCompleted{Result: &bundler.Result{Errors: []bundler.Message{{Text: "x"}}}}.Success())
	require.False(t, RebuildCompleted{}.Success())
}
