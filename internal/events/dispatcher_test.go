package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// blockingEmitter blocks every delivery until release is closed.
type blockingEmitter struct {
	release chan struct{}
	inner   *recordingHandler
}

func (b *blockingEmitter) EmitEvent(ctx context.Context, event *Event) error {
	<-b.release
	return b.inner.HandleEvent(ctx, event)
}

func TestAsyncDispatcher_DeliversAndDrainsOnStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	emitter := NewInMemoryEventEmitter(logger)
	handler := &recordingHandler{}
	emitter.RegisterHandler(handler)

	d := NewAsyncDispatcher(emitter, 8, logger)
	d.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.EmitEvent(context.Background(), mustEvent(t, TypeAssignmentCompleted)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, 5, handler.count())

	assert.ErrorIs(t, d.EmitEvent(context.Background(), mustEvent(t, TypeAssignmentCompleted)), ErrDispatcherStopped)
	assert.NoError(t, d.Stop(ctx), "second stop is a no-op")
}

func TestAsyncDispatcher_DropsWhenFull(t *testing.T) {
	blocker := &blockingEmitter{release: make(chan struct{}), inner: &recordingHandler{}}
	d := NewAsyncDispatcher(blocker, 1, nil)
	d.Start()

	// The first event is picked up by the loop and blocks there; the second fills
	// the buffer. Retry until the loop has taken the first one.
	require.NoError(t, d.EmitEvent(context.Background(), mustEvent(t, TypeReferralSettled)))
	require.Eventually(t, func() bool {
		return d.EmitEvent(context.Background(), mustEvent(t, TypeReferralSettled)) == nil
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, d.EmitEvent(context.Background(), mustEvent(t, TypeReferralSettled)), ErrDispatcherFull)

	close(blocker.release)
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 2, blocker.inner.count())
}

func TestAsyncDispatcher_DeliveryOutlivesRequestContext(t *testing.T) {
	emitter := NewInMemoryEventEmitter(nil)
	handler := &recordingHandler{}
	emitter.RegisterHandler(handler)
	d := NewAsyncDispatcher(emitter, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.EmitEvent(ctx, mustEvent(t, TypeUserRegistered)))
	cancel()

	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 1, handler.count())
}

func TestAsyncDispatcher_StopWithoutStart(t *testing.T) {
	d := NewAsyncDispatcher(NopEmitter{}, 1, nil)
	assert.NoError(t, d.Stop(context.Background()))
}

func TestAsyncDispatcher_RecoversFromPanickingHandler(t *testing.T) {
	emitter := NewInMemoryEventEmitter(nil)
	emitter.RegisterHandler(HandlerFunc(func(context.Context, *Event) error {
		panic("boom")
	}), TypeUserRegistered)
	after := &recordingHandler{}
	emitter.RegisterHandler(after, TypeReferralSettled)

	d := NewAsyncDispatcher(emitter, 4, nil)
	d.Start()
	require.NoError(t, d.EmitEvent(context.Background(), mustEvent(t, TypeUserRegistered)))
	require.NoError(t, d.EmitEvent(context.Background(), mustEvent(t, TypeReferralSettled)))
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, 1, after.count())
}
