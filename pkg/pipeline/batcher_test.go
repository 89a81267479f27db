package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
)

func startBatcher(t *testing.T, size int, timeout time.Duration) (*batcher, context.CancelCauseFunc, chan error) {
	t.Helper()

	b := newBatcher(size, timeout, DefaultBoundedCapacity)
	ctx, cancel := context.WithCancelCause(context.Background())
	errc := make(chan error, 1)

	go func() { errc <- b.run(ctx) }()

	t.Cleanup(func() { cancel(nil) })

	return b, cancel, errc
}

func newAction() *action.Action {
	return action.New(action.Delete, uuid.New())
}

func receiveBatch(t *testing.T, out <-chan batch, within time.Duration) batch {
	t.Helper()

	select {
	case got, ok := <-out:
		require.True(t, ok, "output closed")

		return got
	case <-time.After(within):
		require.FailNow(t, "no batch emitted")

		return batch{}
	}
}

func assertNoBatch(t *testing.T, out <-chan batch, during time.Duration) {
	t.Helper()

	select {
	case got := <-out:
		assert.Failf(t, "unexpected batch", "got %d actions (%s)", len(got.actions), got.trigger)
	case <-time.After(during):
	}
}

func TestBatcher_EmitsOnSize(t *testing.T) {
	t.Parallel()

	b, _, _ := startBatcher(t, 3, time.Hour)

	acts := []*action.Action{newAction(), newAction(), newAction(), newAction()}
	for _, act := range acts {
		require.True(t, b.Submit(act))
	}

	got := receiveBatch(t, b.out, time.Second)
	assert.Equal(t, TriggerSize, got.trigger)
	assert.Equal(t, acts[:3], got.actions)
	assert.Equal(t, 1, b.Buffered())

	assertNoBatch(t, b.out, 50*time.Millisecond)
}

func TestBatcher_EmitsOnTimeout(t *testing.T) {
	t.Parallel()

	b, _, _ := startBatcher(t, 20, 30*time.Millisecond)

	act := newAction()
	require.True(t, b.Submit(act))

	got := receiveBatch(t, b.out, time.Second)
	assert.Equal(t, TriggerTimeout, got.trigger)
	assert.Equal(t, []*action.Action{act}, got.actions)
}

func TestBatcher_TimerResetOnSubmit(t *testing.T) {
	t.Parallel()

	const (
		timeout = 300 * time.Millisecond
		gap     = timeout / 5
	)

	b, _, _ := startBatcher(t, 100, timeout)

	var lastSubmit time.Time

	for range 5 {
		lastSubmit = time.Now()
		require.True(t, b.Submit(newAction()))
		time.Sleep(gap)
	}

	got := receiveBatch(t, b.out, 2*time.Second)

	assert.Len(t, got.actions, 5, "intermediate submissions must postpone the flush")
	assert.Equal(t, TriggerTimeout, got.trigger)
	assert.GreaterOrEqual(t, time.Since(lastSubmit), timeout)
}

func TestBatcher_EmptyTimeoutIsNoop(t *testing.T) {
	t.Parallel()

	b, _, _ := startBatcher(t, 2, 20*time.Millisecond)

	require.True(t, b.Submit(newAction()))
	require.True(t, b.Submit(newAction()))

	got := receiveBatch(t, b.out, time.Second)
	assert.Equal(t, TriggerSize, got.trigger)

	// The timer still fires after the size cut, on an empty buffer.
	assertNoBatch(t, b.out, 100*time.Millisecond)
}

func TestBatcher_CompleteFlushesRemainder(t *testing.T) {
	t.Parallel()

	b, _, errc := startBatcher(t, 10, time.Hour)

	acts := []*action.Action{newAction(), newAction()}
	for _, act := range acts {
		require.True(t, b.Submit(act))
	}

	b.Complete()
	assert.False(t, b.Submit(newAction()))

	got := receiveBatch(t, b.out, time.Second)
	assert.Equal(t, TriggerDrain, got.trigger)
	assert.Equal(t, acts, got.actions)

	_, open := <-b.out
	assert.False(t, open)
	require.NoError(t, <-errc)
}

func TestBatcher_PreservesSubmissionOrder(t *testing.T) {
	t.Parallel()

	b, _, _ := startBatcher(t, 2, time.Hour)

	var acts []*action.Action

	for range 10 {
		act := newAction()
		acts = append(acts, act)
		require.True(t, b.Submit(act))
	}

	b.Complete()

	var seen []*action.Action
	for got := range b.out {
		seen = append(seen, got.actions...)
	}

	assert.Equal(t, acts, seen)
}

func TestBatcher_CancelStopsAccepting(t *testing.T) {
	t.Parallel()

	b, cancel, errc := startBatcher(t, 10, time.Hour)

	require.True(t, b.Submit(newAction()))

	cancel(ErrCanceled)

	require.ErrorIs(t, <-errc, ErrCanceled)
	assert.False(t, b.Submit(newAction()))
}
