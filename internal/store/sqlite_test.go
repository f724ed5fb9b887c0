package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/homenotify/internal/store"
	"github.com/nhle/homenotify/tests/testutil"
)

func TestRecordAlertOnlyOnce(t *testing.T) {
	ledger := testutil.NewTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	fresh, err := ledger.RecordAlert(ctx, store.AlertRecord{
		NotificationID: "n1",
		CorrelationID:  "c1",
		Title:          "Door opened",
		AlertedAt:      now,
	})
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = ledger.RecordAlert(ctx, store.AlertRecord{NotificationID: "n1", AlertedAt: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.False(t, fresh)

	got, err := store.GetAlert(ctx, ledger, "n1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Door opened", got.Title)
	assert.Equal(t, "c1", got.CorrelationID)
	assert.True(t, got.AlertedAt.Equal(now))
}

func TestGetAlertMissing(t *testing.T) {
	ledger := testutil.NewTestLedger(t)

	got, err := store.GetAlert(context.Background(), ledger, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPruneAlerts(t *testing.T) {
	ledger := testutil.NewTestLedger(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	_, err := ledger.RecordAlert(ctx, store.AlertRecord{NotificationID: "old", AlertedAt: now.AddDate(0, 0, -40)})
	require.NoError(t, err)
	_, err = ledger.RecordAlert(ctx, store.AlertRecord{NotificationID: "new", AlertedAt: now})
	require.NoError(t, err)

	n, err := ledger.PruneAlerts(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetAlert(ctx, ledger, "old")
	require.NoError(t, err)
	assert.Nil(t, got)
}
