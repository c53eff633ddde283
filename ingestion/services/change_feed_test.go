package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollingChangeFeedTicksUntilCancelled(t *testing.T) {
	feed := NewPollingChangeFeed(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	ticks, err := feed.Subscribe(ctx, uuid.New())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("expected a poll tick")
		}
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ticks:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestUploadChangedChannel(t *testing.T) {
	id := uuid.MustParse("6f1c2b8e-4f59-4d7e-9a77-1c1d3e5a9b10")
	assert.Equal(t, "uploads:changed:6f1c2b8e-4f59-4d7e-9a77-1c1d3e5a9b10", UploadChangedChannel(id))
}
