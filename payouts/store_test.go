package payouts

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetrewards/rewards"
)

func computedRecord(t *testing.T, n int) *PayoutRecord {
	t.Helper()

	record, err := Calculate(newRequest(int64(n)*1000, "RVN", "TOKEN"), holders(t, "TOKEN", n, 1))
	require.NoError(t, err)

	return record
}

func TestPayoutStoreLifecycle(t *testing.T) {

	store := NewPayoutStore(openTestStorage(t))
	record := computedRecord(t, 3)

	require.NoError(t, store.Create(record))

	err := store.Create(record)
	assert.True(t, errors.Is(err, rewards.ErrAlreadyExists))

	got, err := store.Get(record.RewardID)
	require.NoError(t, err)
	assert.Equal(t, record, got)

	// Returned records are copies
	got.Payments[0].Completed = true
	again, err := store.Get(record.RewardID)
	require.NoError(t, err)
	assert.False(t, again.Payments[0].Completed)

	all, err := store.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.Remove(record.RewardID))

	_, err = store.Get(record.RewardID)
	assert.True(t, errors.Is(err, rewards.ErrNotFound))

	err = store.Remove(record.RewardID)
	assert.True(t, errors.Is(err, rewards.ErrNotFound))
}

func TestPayoutStoreRemoveRefusedAfterCompletion(t *testing.T) {

	store := NewPayoutStore(openTestStorage(t))
	record := computedRecord(t, 2)
	require.NoError(t, store.Create(record))

	record.Payments[1].Completed = true
	record.Payments[1].TxID = "tx0"
	require.NoError(t, store.Update(record))

	err := store.Remove(record.RewardID)
	assert.True(t, errors.Is(err, rewards.ErrConflict))

	got, err := store.Get(record.RewardID)
	require.NoError(t, err)
	assert.Equal(t, record, got, "record unchanged")
}

func TestPayoutStoreUpdateGuards(t *testing.T) {

	store := NewPayoutStore(openTestStorage(t))
	record := computedRecord(t, 2)

	err := store.Update(record)
	assert.True(t, errors.Is(err, rewards.ErrNotFound))

	require.NoError(t, store.Create(record))

	completed := record.Clone()
	completed.Payments[0].Completed = true
	require.NoError(t, store.Update(completed))

	reopened := completed.Clone()
	reopened.Payments[0].Completed = false
	assert.True(t, errors.Is(store.Update(reopened), rewards.ErrConflict))

	altered := completed.Clone()
	altered.Payments[1].Amount++
	assert.True(t, errors.Is(store.Update(altered), rewards.ErrConflict))

	shrunk := completed.Clone()
	shrunk.Payments = shrunk.Payments[:1]
	assert.True(t, errors.Is(store.Update(shrunk), rewards.ErrConflict))
}
