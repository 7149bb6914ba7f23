package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsync/internal/domain"
	"github.com/alanyoungcy/oddsync/internal/store/memory"
)

func TestAlertLogNewestFirstAndBounded(t *testing.T) {
	log := memory.NewAlertLog(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Deliver(context.Background(), domain.AlertRecord{ID: fmt.Sprint(i)}))
	}

	got := log.List(0)
	require.Len(t, got, 3)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "2", got[2].ID)
	assert.Len(t, log.List(1), 1)
}

func TestAlertLogDismiss(t *testing.T) {
	log := memory.NewAlertLog(10)
	require.NoError(t, log.Deliver(context.Background(), domain.AlertRecord{ID: "a"}))
	require.NoError(t, log.Deliver(context.Background(), domain.AlertRecord{ID: "b"}))

	require.NoError(t, log.Dismiss("a"))
	assert.Equal(t, 1, log.Undismissed())
	assert.ErrorIs(t, log.Dismiss("missing"), domain.ErrNotFound)
}
