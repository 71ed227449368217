package storage

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	DATABASE_FILE = "assetrewards-%s.db"

	CONFIG_BUCKET        = "config"
	ENDPOINTS_BUCKET     = "endpoints"
	NOTIFICATIONS_BUCKET = "notifications"
	REWARDS_BUCKET       = "rewards"
	PAYOUTS_BUCKET       = "payouts"
)

type Storage struct {
	*bolt.DB
}

// InitStorage opens (creating if needed) the network's database inside dataDir
// and ensures all top-level buckets exist. Callers own the returned handle and
// must Close it.
func InitStorage(dataDir, network string) (*Storage, error) {

	dbFile := filepath.Join(dataDir, fmt.Sprintf(DATABASE_FILE, network))

	db, err := bolt.Open(dbFile, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to open database")
	}

	// Ensure some buckets exist
	err = db.Update(func(tx *bolt.Tx) error {

		for _, name := range []string{REWARDS_BUCKET, PAYOUTS_BUCKET} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.Wrapf(err, "Cannot create %s bucket", name)
			}
		}

		cfgBucket, err := tx.CreateBucketIfNotExists([]byte(CONFIG_BUCKET))
		if err != nil {
			return errors.Wrap(err, "Cannot create config bucket")
		}

		if _, err := cfgBucket.CreateBucketIfNotExists([]byte(ENDPOINTS_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create endpoints bucket")
		}

		if _, err := cfgBucket.CreateBucketIfNotExists([]byte(NOTIFICATIONS_BUCKET)); err != nil {
			return errors.Wrap(err, "Cannot create notifications bucket")
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.WithField("File", dbFile).Debug("Database opened")

	return &Storage{
		DB: db,
	}, nil
}

func (s *Storage) Close() {

	if err := s.DB.Close(); err != nil {
		log.WithError(err).Error("Unable to close database")
		return
	}

	log.Info("Database closed")
}

// Flush forces an fdatasync of the database file. Committed Update
// transactions are already synced; this exists for callers that opened the
// database with NoSync.
func (s *Storage) Flush() error {
	return s.DB.Sync()
}

// Itob returns an 8-byte big endian representation of v.
func Itob(v int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// Btoi returns an int from an 8-byte big endian representation
func Btoi(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
