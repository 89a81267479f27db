package pending_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
	"github.com/Sumatoshi-tech/analysisd/pkg/pending"
)

func TestRegistry_AddIfAbsent(t *testing.T) {
	t.Parallel()

	reg := pending.NewRegistry()
	act := action.New(action.Analyze, uuid.New())

	assert.True(t, reg.Add(act))
	assert.False(t, reg.Add(act))

	dup := &action.Action{ID: act.ID, Type: action.Delete, MediaItemID: uuid.New()}
	assert.False(t, reg.Add(dup))

	assert.Equal(t, 1, reg.Len())
	assert.True(t, reg.Contains(act.ID))
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()

	reg := pending.NewRegistry()
	act := action.New(action.Delete, uuid.New())

	assert.False(t, reg.Remove(act.ID))

	reg.Add(act)
	assert.True(t, reg.Remove(act.ID))
	assert.False(t, reg.Contains(act.ID))
	assert.Zero(t, reg.Len())

	// Re-adding after removal is allowed.
	assert.True(t, reg.Add(act))
}

func TestRegistry_SnapshotOrder(t *testing.T) {
	t.Parallel()

	reg := pending.NewRegistry()

	acts := make([]*action.Action, 5)
	for i := range acts {
		acts[i] = action.New(action.Analyze, uuid.New())
		reg.Add(acts[i])
	}

	reg.Remove(acts[2].ID)

	snap := reg.Snapshot()
	require.Len(t, snap, 4)

	assert.Equal(t, acts[0].ID, snap[0].ID)
	assert.Equal(t, acts[1].ID, snap[1].ID)
	assert.Equal(t, acts[3].ID, snap[2].ID)
	assert.Equal(t, acts[4].ID, snap[3].ID)
}

func TestRegistry_SnapshotIsPointInTime(t *testing.T) {
	t.Parallel()

	reg := pending.NewRegistry()
	act := action.New(action.Analyze, uuid.New())
	reg.Add(act)

	snap := reg.Snapshot()
	reg.Remove(act.ID)

	require.Len(t, snap, 1)
	assert.Equal(t, act.ID, snap[0].ID)
	assert.Empty(t, reg.Snapshot())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	reg := pending.NewRegistry()

	const workers = 8

	const perWorker = 200

	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range perWorker {
				act := action.New(action.Analyze, uuid.New())
				reg.Add(act)
				_ = reg.Snapshot()
				reg.Remove(act.ID)
			}
		}()
	}

	wg.Wait()

	assert.Zero(t, reg.Len())
}
