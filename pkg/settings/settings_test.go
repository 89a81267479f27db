package settings_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/analysisd/pkg/action"
	"github.com/Sumatoshi-tech/analysisd/pkg/persist"
	"github.com/Sumatoshi-tech/analysisd/pkg/settings"
)

func sampleActions() settings.PendingActions {
	return settings.PendingActions{Actions: []action.Record{
		{ID: uuid.New(), Type: action.Analyze, MediaItemID: uuid.New()},
		{ID: uuid.New(), Type: action.Delete, MediaItemID: uuid.New()},
	}}
}

func TestFileStore_MissingFileLoadsZero(t *testing.T) {
	t.Parallel()

	store := settings.NewFileStore[settings.PendingActions](t.TempDir(), settings.PendingActionsBasename, persist.NewJSONCodec())

	value, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, value.Actions)
}

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{persist.CodecJSON, persist.CodecGob, persist.CodecYAML} {
		for _, compress := range []bool{false, true} {
			codec, err := persist.CodecByName(name, compress)
			require.NoError(t, err)

			store := settings.NewFileStore[settings.PendingActions](t.TempDir(), settings.PendingActionsBasename, codec)
			want := sampleActions()

			require.NoError(t, store.Save(context.Background(), want))

			got, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, want, got, "codec %s compress=%v", name, compress)
		}
	}
}

func TestFileStore_JSONLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := settings.NewFileStore[settings.PendingActions](dir, settings.PendingActionsBasename, persist.NewJSONCodec())
	want := sampleActions()

	require.NoError(t, store.Save(context.Background(), want))
	assert.Equal(t, filepath.Join(dir, "pending-actions.json"), store.Path())

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	assert.Contains(t, string(data), `"actions"`)
	assert.Contains(t, string(data), `"action_id": "`+want.Actions[0].ID.String()+`"`)
	assert.Contains(t, string(data), `"type": "delete"`)
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := settings.NewFileStore[settings.PendingActions](dir, settings.PendingActionsBasename, persist.NewJSONCodec())

	require.NoError(t, os.WriteFile(store.Path(), []byte("{"), 0o600))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load settings")
}

func TestFileStore_CanceledContext(t *testing.T) {
	t.Parallel()

	store := settings.NewFileStore[settings.PendingActions](t.TempDir(), settings.PendingActionsBasename, persist.NewJSONCodec())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Save(ctx, sampleActions()), context.Canceled)

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
