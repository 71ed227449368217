package payouts

import (
	"encoding/json"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"assetrewards/rewards"
	"assetrewards/storage"
)

// PayoutStore is the durable home of PayoutRecords, keyed by reward id.
// Each record, payments included, is a single value so Update replaces the
// whole set in one write. Records handed out are copies; mutations only
// land through Update.
type PayoutStore struct {
	storage *storage.Storage
}

func NewPayoutStore(db *storage.Storage) *PayoutStore {
	return &PayoutStore{
		storage: db,
	}
}

func (s *PayoutStore) Create(record *PayoutRecord) error {

	if record == nil || record.RewardID == "" {
		return errors.Wrap(rewards.ErrValidation, "Reward id required")
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(rewards.ErrValidation, "Unable to encode payout record")
	}

	err = s.storage.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.PAYOUTS_BUCKET))
		if b == nil {
			return errors.New("Unable to locate payouts bucket")
		}

		if b.Get([]byte(record.RewardID)) != nil {
			return errors.Wrapf(rewards.ErrAlreadyExists, "payouts for reward %s", record.RewardID)
		}

		return b.Put([]byte(record.RewardID), recordBytes)
	})

	return rewards.Classify("create payouts", err)
}

func (s *PayoutStore) Get(id string) (*PayoutRecord, error) {

	var record *PayoutRecord

	err := s.storage.View(func(tx *bolt.Tx) error {
		var err error
		record, err = getRecord(tx, id)
		return err
	})

	if err != nil {
		return nil, rewards.Classify("get payouts", err)
	}

	return record, nil
}

// Remove deletes a payout record, but only while none of its payments has
// been completed. Once funds have moved the record is the only trace of them.
func (s *PayoutStore) Remove(id string) error {

	err := s.storage.Update(func(tx *bolt.Tx) error {
		record, err := getRecord(tx, id)
		if err != nil {
			return err
		}

		if n := record.CompletedCount(); n > 0 {
			return errors.Wrapf(rewards.ErrConflict, "%d payments for reward %s already completed", n, id)
		}

		return tx.Bucket([]byte(storage.PAYOUTS_BUCKET)).Delete([]byte(id))
	})

	return rewards.Classify("remove payouts", err)
}

// Update replaces the stored payment set. The stored record must exist, and
// the update may not un-complete a payment or change an amount.
func (s *PayoutStore) Update(record *PayoutRecord) error {

	if record == nil || record.RewardID == "" {
		return errors.Wrap(rewards.ErrValidation, "Reward id required")
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(rewards.ErrValidation, "Unable to encode payout record")
	}

	err = s.storage.Update(func(tx *bolt.Tx) error {
		existing, err := getRecord(tx, record.RewardID)
		if err != nil {
			return err
		}

		if err := checkTransition(existing, record); err != nil {
			return err
		}

		return tx.Bucket([]byte(storage.PAYOUTS_BUCKET)).Put([]byte(record.RewardID), recordBytes)
	})

	return rewards.Classify("update payouts", err)
}

// List returns every stored payout record in key order
func (s *PayoutStore) List() ([]*PayoutRecord, error) {

	var all []*PayoutRecord

	err := s.storage.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.PAYOUTS_BUCKET))
		if b == nil {
			return errors.New("Unable to locate payouts bucket")
		}

		return b.ForEach(func(k, v []byte) error {
			record := new(PayoutRecord)
			if err := json.Unmarshal(v, record); err != nil {
				log.WithError(err).WithField("RewardID", string(k)).Error("Unable to unmarshal payout record")
				return nil
			}
			all = append(all, record)
			return nil
		})
	})

	return all, rewards.Classify("scan payouts", err)
}

func getRecord(tx *bolt.Tx, id string) (*PayoutRecord, error) {

	b := tx.Bucket([]byte(storage.PAYOUTS_BUCKET))
	if b == nil {
		return nil, errors.New("Unable to locate payouts bucket")
	}

	recordBytes := b.Get([]byte(id))
	if recordBytes == nil {
		return nil, errors.Wrapf(rewards.ErrNotFound, "payouts for reward %s", id)
	}

	record := new(PayoutRecord)
	if err := json.Unmarshal(recordBytes, record); err != nil {
		return nil, errors.Wrap(err, "Unable to decode payout record")
	}

	return record, nil
}

func checkTransition(existing, next *PayoutRecord) error {

	if len(existing.Payments) != len(next.Payments) {
		return errors.Wrapf(rewards.ErrConflict, "payment set for reward %s changed size", next.RewardID)
	}

	for i, p := range existing.Payments {
		n := next.Payments[i]

		if p.Address != n.Address || p.Amount != n.Amount {
			return errors.Wrapf(rewards.ErrConflict, "payment to %s for reward %s was altered", p.Address, next.RewardID)
		}

		if p.Completed && !n.Completed {
			return errors.Wrapf(rewards.ErrConflict, "payment to %s for reward %s cannot be reopened", p.Address, next.RewardID)
		}
	}

	return nil
}
