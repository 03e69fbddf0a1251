package buffer

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "buffer.db"), "status")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func statusItem(t *testing.T, membershipID, status string, recordedAt time.Time) Item {
	t.Helper()
	data, err := json.Marshal(StatusPayload{Status: status})
	require.NoError(t, err)
	return Item{
		MembershipID: membershipID,
		Entity:       EntityMembershipStatus,
		Operation:    OperationRefresh,
		Data:         data,
		RecordedAt:   recordedAt,
	}
}

func payloadOf(t *testing.T, item Item) string {
	t.Helper()
	var p StatusPayload
	require.NoError(t, json.Unmarshal(item.Data, &p))
	return p.Status
}

func TestEnqueueKeepsLatestPerMembership(t *testing.T) {
	store := openStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Enqueue(statusItem(t, "m-1", "active", base)))
	require.NoError(t, store.Enqueue(statusItem(t, "m-1", "expiring", base.Add(time.Hour))))
	require.NoError(t, store.Enqueue(statusItem(t, "m-1", "active", base.Add(time.Minute))))
	require.NoError(t, store.Enqueue(statusItem(t, "m-2", "expired", base)))

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	items, err := store.GetBatch(10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	byMembership := map[string]string{}
	for _, item := range items {
		byMembership[item.MembershipID] = payloadOf(t, item)
	}
	assert.Equal(t, map[string]string{"m-1": "expiring", "m-2": "expired"}, byMembership)
}

func TestGetBatchOrdersByPriority(t *testing.T) {
	store := openStore(t)
	now := time.Now()

	low := statusItem(t, "m-low", "active", now)
	low.Priority = 5
	high := statusItem(t, "m-high", "expired", now.Add(time.Second))
	high.Priority = 1
	require.NoError(t, store.Enqueue(low))
	require.NoError(t, store.Enqueue(high))

	items, err := store.GetBatch(1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "m-high", items[0].MembershipID)
	assert.NotEmpty(t, items[0].ID)
}

func TestRemoveAndRequeue(t *testing.T) {
	store := openStore(t)
	recorded := time.Now().Add(-time.Hour)
	require.NoError(t, store.Enqueue(statusItem(t, "m-1", "expired", recorded)))

	items, err := store.GetBatch(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]

	require.NoError(t, store.Remove(item))
	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)

	item.Retries = 2
	require.NoError(t, store.Requeue(item))
	items, err = store.GetBatch(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Retries)
	assert.True(t, items[0].RecordedAt.Equal(recorded), "requeue keeps the recorded time")
	assert.True(t, items[0].Timestamp.After(recorded))

	require.NoError(t, store.Remove(Item{ID: items[0].ID}))
	size, err = store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestRequeueNeverOverwritesNewerValue(t *testing.T) {
	store := openStore(t)
	base := time.Now().Add(-time.Hour)
	require.NoError(t, store.Enqueue(statusItem(t, "m-1", "expiring", base)))

	items, err := store.GetBatch(0)
	require.NoError(t, err)
	stale := items[0]
	require.NoError(t, store.Remove(stale))

	require.NoError(t, store.Enqueue(statusItem(t, "m-1", "expired", base.Add(time.Minute))))
	require.NoError(t, store.Requeue(stale))

	items, err = store.GetBatch(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "expired", payloadOf(t, items[0]))
}

func TestCleanup(t *testing.T) {
	store := openStore(t)
	old := statusItem(t, "m-old", "active", time.Time{})
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Enqueue(old))
	require.NoError(t, store.Enqueue(statusItem(t, "m-new", "active", time.Time{})))

	require.NoError(t, store.Cleanup(time.Now().Add(-24*time.Hour)))
	items, err := store.GetBatch(0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "m-new", items[0].MembershipID)
}

func TestClosedStore(t *testing.T) {
	var store *Store
	assert.Error(t, store.Enqueue(Item{}))
	_, err := store.Size()
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}
