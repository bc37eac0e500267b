package schedule

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/fluxor-io/fluxor/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadExpression(t *testing.T) {
	_, err := New("not a cron", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestSourceEmitsTicksUpToLimit(t *testing.T) {
	src, err := New("* * * * *", 2)
	require.NoError(t, err)

	// A clock in the past makes each computed boundary already due, so the
	// timer fires immediately.
	src.now = func() time.Time {
		return time.Now().Add(-2 * time.Minute)
	}

	run := pipeline.New()

	first, err := src.Next(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sequence)

	second, err := src.Next(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sequence)
	assert.False(t, second.At.Before(first.At))

	_, err = src.Next(context.Background(), run)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSourceHonorsCancellation(t *testing.T) {
	src, err := New("* * * * *", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = src.Next(ctx, pipeline.New())
	assert.ErrorIs(t, err, context.Canceled)
}
