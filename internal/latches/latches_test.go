package latches

import (
	"context"
	"testing"
	"time"

	"github.com/gomlx/gomlx/pkg/support/xsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait(t *testing.T) {
	l := xsync.NewLatch()
	go l.Trigger()
	require.NoError(t, Wait(context.Background(), l))
	assert.True(t, l.Test())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, xsync.NewLatch()), context.Canceled)
}

func TestWaitAll(t *testing.T) {
	l0, l1 := xsync.NewLatch(), xsync.NewLatch()
	l0.Trigger()
	go l1.Trigger()
	require.NoError(t, WaitAll(context.Background(), l0, l1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := WaitAll(ctx, l0, xsync.NewLatch())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
