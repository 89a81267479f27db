package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
	"github.com/Sumatoshi-tech/analysisd/pkg/settings"
)

// slowStore blocks each Save until release receives, and tracks overlap.
type slowStore struct {
	mu       sync.Mutex
	saved    []settings.PendingActions
	release  chan struct{}
	entered  chan struct{}
	inFlight atomic.Int32
	overlap  atomic.Bool
	err      error
}

func newSlowStore() *slowStore {
	return &slowStore{release: make(chan struct{}), entered: make(chan struct{}, 16)}
}

func (s *slowStore) Load(context.Context) (settings.PendingActions, error) {
	return settings.PendingActions{}, nil
}

func (s *slowStore) Save(_ context.Context, v settings.PendingActions) error {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.inFlight.Add(-1)

	s.entered <- struct{}{}
	<-s.release

	s.mu.Lock()
	defer s.mu.Unlock()

	s.saved = append(s.saved, v)

	return s.err
}

func (s *slowStore) writes() []settings.PendingActions {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]settings.PendingActions(nil), s.saved...)
}

func newTestSidecar(store SettingsStore, snapshot func() []action.Record) *sidecar {
	sc := newSidecar(context.Background(), store, snapshot)
	sc.stats = &counters{}
	sc.logger = slog.New(slog.DiscardHandler)

	return sc
}

func TestSidecar_CoalescesBurst(t *testing.T) {
	t.Parallel()

	store := newSlowStore()
	sc := newTestSidecar(store, func() []action.Record { return nil })
	sc.start()

	require.True(t, sc.Request())
	<-store.entered

	// One write is executing; exactly one more can queue.
	accepted := 0

	for range 50 {
		if sc.Request() {
			accepted++
		}
	}

	assert.Equal(t, 1, accepted)
	assert.Equal(t, int64(49), sc.stats.coalesced.Load())

	close(store.release)
	sc.Close()
	sc.Wait()

	assert.Len(t, store.writes(), 2)
	assert.False(t, store.overlap.Load())
	assert.Equal(t, int64(2), sc.stats.writes.Load())
}

func TestSidecar_SnapshotTakenAtExecution(t *testing.T) {
	t.Parallel()

	store := newSlowStore()

	var (
		mu      sync.Mutex
		current []action.Record
	)

	sc := newTestSidecar(store, func() []action.Record {
		mu.Lock()
		defer mu.Unlock()

		return append([]action.Record(nil), current...)
	})
	sc.start()

	require.True(t, sc.Request())
	<-store.entered

	require.True(t, sc.Request())

	// State changes after the second request was queued.
	rec := action.Record{ID: uuid.New(), Type: action.Analyze, MediaItemID: uuid.New()}

	mu.Lock()
	current = []action.Record{rec}
	mu.Unlock()

	close(store.release)
	sc.Close()
	sc.Wait()

	writes := store.writes()
	require.Len(t, writes, 2)
	assert.Empty(t, writes[0].Actions)
	assert.Equal(t, []action.Record{rec}, writes[1].Actions)
}

func TestSidecar_FailedWriteIsCounted(t *testing.T) {
	t.Parallel()

	store := newSlowStore()
	store.err = errors.New("disk full")
	close(store.release)

	sc := newTestSidecar(store, func() []action.Record { return nil })
	sc.start()

	require.True(t, sc.Request())
	sc.Close()
	sc.Wait()

	assert.Equal(t, int64(1), sc.stats.writeFailures.Load())
	assert.Zero(t, sc.stats.writes.Load())
}

func TestSidecar_RequestAfterClose(t *testing.T) {
	t.Parallel()

	store := newSlowStore()
	close(store.release)

	sc := newTestSidecar(store, func() []action.Record { return nil })
	sc.start()
	sc.Close()
	sc.Close()

	assert.False(t, sc.Request())

	done := make(chan struct{})

	go func() {
		sc.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Wait did not return after Close")
	}

	assert.Empty(t, store.writes())
}
