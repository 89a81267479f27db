package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// persisterState is a struct for persister round-trip testing.
type persisterState struct {
	Label string `json:"label" yaml:"label"`
	Value int    `json:"value" yaml:"value"`
}

func TestPersister_SaveLoad_JSON(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState](t.TempDir(), "mystate", NewJSONCodec())

	original := persisterState{Label: "hello", Value: 42}

	require.NoError(t, p.Save(func() *persisterState { return &original }))

	var restored persisterState

	require.NoError(t, p.Load(func(s *persisterState) { restored = *s }))

	assert.Equal(t, original, restored)
}

func TestPersister_SaveLoad_CompressedYAML(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState](t.TempDir(), "yamlstate", NewLZ4Codec(NewYAMLCodec()))

	original := persisterState{Label: "yaml", Value: 99}

	require.NoError(t, p.Save(func() *persisterState { return &original }))

	var restored persisterState

	require.NoError(t, p.Load(func(s *persisterState) { restored = *s }))

	assert.Equal(t, original, restored)
}

func TestPersister_LoadMissingFile(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState](t.TempDir(), "missing", NewJSONCodec())

	called := false
	err := p.Load(func(_ *persisterState) { called = true })

	require.ErrorIs(t, err, ErrStateNotFound)
	assert.False(t, called)
}

func TestPersister_Stat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewPersister[persisterState](dir, "stat", NewGobCodec())

	_, err := p.Stat()
	require.Error(t, err)

	require.NoError(t, p.Save(func() *persisterState { return &persisterState{Label: "x"} }))

	info, err := p.Stat()
	require.NoError(t, err)

	assert.Equal(t, p.Path(), info.Path)
	assert.Positive(t, info.Size)
	assert.False(t, info.ModTime.IsZero())
}
