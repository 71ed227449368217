package storage

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

func notifiersBucket(tx *bolt.Tx) (*bolt.Bucket, error) {

	b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(NOTIFICATIONS_BUCKET))
	if b == nil {
		return nil, errors.New("Unable to locate notifications bucket")
	}

	return b, nil
}

// GetNotifiersConfig returns the saved JSON config of one notifier, or nil if
// it was never configured
func (s *Storage) GetNotifiersConfig(notifier string) ([]byte, error) {

	var config []byte

	err := s.View(func(tx *bolt.Tx) error {
		b, err := notifiersBucket(tx)
		if err != nil {
			return err
		}

		// Copy out; the slice is only valid for the life of the transaction
		if v := b.Get([]byte(notifier)); v != nil {
			config = append([]byte{}, v...)
		}

		return nil
	})

	return config, errors.Wrapf(err, "Unable to read %s config", notifier)
}

// SaveNotifiersConfig replaces the stored JSON config of one notifier
func (s *Storage) SaveNotifiersConfig(notifier string, config []byte) error {

	if notifier == "" {
		return errors.New("Notifier name required")
	}

	err := s.Update(func(tx *bolt.Tx) error {
		b, err := notifiersBucket(tx)
		if err != nil {
			return err
		}

		return b.Put([]byte(notifier), config)
	})

	return errors.Wrapf(err, "Unable to save %s config", notifier)
}
