package rewards

import (
	"encoding/json"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"assetrewards/storage"
)

// RequestStore is the durable home of RewardRequests, keyed by reward id
type RequestStore struct {
	storage *storage.Storage
}

func NewRequestStore(db *storage.Storage) *RequestStore {
	return &RequestStore{
		storage: db,
	}
}

// Schedule persists a new request. Duplicate ids are refused.
func (s *RequestStore) Schedule(req *RewardRequest) error {

	if req == nil || req.ID == "" {
		return validationErrorf("Reward id required")
	}

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return validationErrorf("Unable to encode reward %s: %s", req.ID, err)
	}

	err = s.storage.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.REWARDS_BUCKET))
		if b == nil {
			return errors.New("Unable to locate rewards bucket")
		}

		if b.Get([]byte(req.ID)) != nil {
			return errors.Wrapf(ErrAlreadyExists, "reward %s", req.ID)
		}

		return b.Put([]byte(req.ID), reqBytes)
	})

	return Classify("schedule reward", err)
}

func (s *RequestStore) Get(id string) (*RewardRequest, error) {

	var req *RewardRequest

	err := s.storage.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.REWARDS_BUCKET))
		if b == nil {
			return errors.New("Unable to locate rewards bucket")
		}

		reqBytes := b.Get([]byte(id))
		if reqBytes == nil {
			return errors.Wrapf(ErrNotFound, "reward %s", id)
		}

		req = new(RewardRequest)
		if err := json.Unmarshal(reqBytes, req); err != nil {
			return errors.Wrap(err, "Unable to decode reward request")
		}

		return nil
	})

	if err != nil {
		return nil, Classify("get reward", err)
	}

	return req, nil
}

func (s *RequestStore) Remove(id string) error {

	err := s.storage.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.REWARDS_BUCKET))
		if b == nil {
			return errors.New("Unable to locate rewards bucket")
		}

		if b.Get([]byte(id)) == nil {
			return errors.Wrapf(ErrNotFound, "reward %s", id)
		}

		return b.Delete([]byte(id))
	})

	return Classify("remove reward", err)
}

// HasPending reports whether any request takes its snapshot at height.
// Expected to be called once per new ledger height, so a full scan is fine.
func (s *RequestStore) HasPending(height int) (bool, error) {

	var found bool

	err := s.forEach(func(req *RewardRequest) bool {
		if req.PayoutHeight == height {
			found = true
			return false
		}
		return true
	})

	return found, err
}

// PayableAt returns requests whose payout height is height. If asset is
// non-empty only requests targeting that asset are returned.
func (s *RequestStore) PayableAt(height int, asset string) ([]*RewardRequest, error) {

	var payable []*RewardRequest

	err := s.forEach(func(req *RewardRequest) bool {
		if req.PayoutHeight == height && (asset == "" || req.TargetAsset == asset) {
			payable = append(payable, req)
		}
		return true
	})

	return payable, err
}

// List returns every stored request in key order
func (s *RequestStore) List() ([]*RewardRequest, error) {

	var all []*RewardRequest

	err := s.forEach(func(req *RewardRequest) bool {
		all = append(all, req)
		return true
	})

	return all, err
}

// forEach walks all requests until fn returns false. Records that fail to
// decode are logged and skipped.
func (s *RequestStore) forEach(fn func(*RewardRequest) bool) error {

	err := s.storage.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(storage.REWARDS_BUCKET))
		if b == nil {
			return errors.New("Unable to locate rewards bucket")
		}

		c := b.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {

			req := new(RewardRequest)
			if err := json.Unmarshal(v, req); err != nil {
				log.WithError(err).WithField("RewardID", string(k)).Error("Unable to unmarshal reward request")
				continue
			}

			if !fn(req) {
				break
			}
		}

		return nil
	})

	return Classify("scan rewards", err)
}
