package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletion_ResolvesOnce(t *testing.T) {
	t.Parallel()

	c := newCompletion()
	assert.NoError(t, c.Err())

	first := errors.New("first")
	c.resolve(first)
	c.resolve(errors.New("second"))

	<-c.Done()
	assert.Equal(t, first, c.Err())
	assert.Equal(t, first, c.Wait(context.Background()))
}

func TestCompletion_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := newCompletion().Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnumStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "canceled", OutcomeCanceled.String())
	assert.Equal(t, "processing", StageProcessing.String())
	assert.Equal(t, "timeout", TriggerTimeout.String())
	assert.Equal(t, "stage(9)", Stage(9).String())
}
