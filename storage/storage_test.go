package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	db, err := InitStorage(t.TempDir(), "regtest")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

func TestInitStorageBuckets(t *testing.T) {

	db := openTestStorage(t)

	err := db.View(func(tx *bolt.Tx) error {
		for _, name := range []string{REWARDS_BUCKET, PAYOUTS_BUCKET, CONFIG_BUCKET} {
			assert.NotNil(t, tx.Bucket([]byte(name)), name)
		}
		cfg := tx.Bucket([]byte(CONFIG_BUCKET))
		assert.NotNil(t, cfg.Bucket([]byte(ENDPOINTS_BUCKET)))
		assert.NotNil(t, cfg.Bucket([]byte(NOTIFICATIONS_BUCKET)))
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, db.Flush())
}

func TestRPCEndpoints(t *testing.T) {

	db := openTestStorage(t)

	require.NoError(t, db.AddDefaultEndpoints([]string{"http://node-a:8766", "http://node-b:8766"}))

	endpoints, err := db.GetRPCEndpoints()
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "http://node-a:8766", 2: "http://node-b:8766"}, endpoints)

	// Duplicate returns the existing id
	id, err := db.AddRPCEndpoint("http://node-b:8766")
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	require.NoError(t, db.DeleteRPCEndpoint(1))
	require.NoError(t, db.DeleteRPCEndpoint(2))

	// Defaults are only seeded once
	require.NoError(t, db.AddDefaultEndpoints([]string{"http://node-c:8766"}))

	endpoints, err = db.GetRPCEndpoints()
	require.NoError(t, err)
	assert.Empty(t, endpoints)
}

func TestLastHeightOnlyMovesForward(t *testing.T) {

	db := openTestStorage(t)

	h, err := db.GetLastHeight()
	require.NoError(t, err)
	assert.Equal(t, 0, h)

	require.NoError(t, db.SetLastHeight(120))
	require.NoError(t, db.SetLastHeight(118))

	h, err = db.GetLastHeight()
	require.NoError(t, err)
	assert.Equal(t, 120, h)
}

func TestNotifiersConfig(t *testing.T) {

	db := openTestStorage(t)

	cfg, err := db.GetNotifiersConfig("telegram")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, db.SaveNotifiersConfig("telegram", []byte(`{"enabled":false}`)))

	cfg, err = db.GetNotifiersConfig("telegram")
	require.NoError(t, err)
	assert.JSONEq(t, `{"enabled":false}`, string(cfg))

	assert.Error(t, db.SaveNotifiersConfig("", []byte(`{}`)))
}

func TestItobBtoi(t *testing.T) {
	assert.Equal(t, 123456789, Btoi(Itob(123456789)))
}
