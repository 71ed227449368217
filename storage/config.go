package storage

import (
	"bytes"

	"github.com/pkg/errors"

	bolt "go.etcd.io/bbolt"
)

const (
	LAST_HEIGHT = "lastheight"
)

func (s *Storage) AddRPCEndpoint(endpoint string) (int, error) {

	var rpcId int = 0

	err := s.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(ENDPOINTS_BUCKET))
		if b == nil {
			return errors.New("AddRPC - Unable to locate endpoints bucket")
		}

		var foundDup bool
		endpointBytes := []byte(endpoint)

		if err := b.ForEach(func(k, v []byte) error {
			if bytes.Equal(v, endpointBytes) {
				foundDup = true
				rpcId = Btoi(k)
			}
			return nil
		}); err != nil {
			return err
		}

		if foundDup {
			// Found duplicate, exit
			return nil
		}

		// else, add
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		rpcId = int(id)

		return b.Put(Itob(rpcId), endpointBytes)
	})

	return rpcId, err
}

func (s *Storage) GetRPCEndpoints() (map[int]string, error) {

	endpoints := make(map[int]string)

	err := s.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(ENDPOINTS_BUCKET))
		if b == nil {
			return errors.New("GetRPC - Unable to locate endpoints bucket")
		}

		return b.ForEach(func(k, v []byte) error {
			endpoints[Btoi(k)] = string(v)
			return nil
		})
	})

	return endpoints, err
}

func (s *Storage) DeleteRPCEndpoint(endpointId int) error {

	return s.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(ENDPOINTS_BUCKET))
		if b == nil {
			return errors.New("Unable to locate endpoints bucket")
		}

		return b.Delete(Itob(endpointId))
	})
}

// AddDefaultEndpoints seeds the endpoint list on first start only. Once the
// bucket's sequence has moved, the user's list is authoritative.
func (s *Storage) AddDefaultEndpoints(defaults []string) error {

	var currentSeq uint64

	err := s.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET)).Bucket([]byte(ENDPOINTS_BUCKET))
		if b == nil {
			return errors.New("AddDefaultRPCs - Unable to locate endpoints bucket")
		}
		currentSeq = b.Sequence()

		return nil
	})
	if err != nil {
		return err
	}

	if currentSeq > 0 {
		return nil
	}

	for _, e := range defaults {
		if _, err := s.AddRPCEndpoint(e); err != nil {
			return errors.Wrapf(err, "Unable to add default endpoint %s", e)
		}
	}

	return nil
}

// GetLastHeight returns the most recent ledger height handed to the
// new-height handler, or 0 if none has been recorded.
func (s *Storage) GetLastHeight() (int, error) {

	var height int

	err := s.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(CONFIG_BUCKET)).Get([]byte(LAST_HEIGHT))
		if len(v) == 8 {
			height = Btoi(v)
		}
		return nil
	})

	return height, err
}

// SetLastHeight only moves forward; handlers may finish out of order
func (s *Storage) SetLastHeight(height int) error {

	return s.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(CONFIG_BUCKET))
		if v := b.Get([]byte(LAST_HEIGHT)); len(v) == 8 && Btoi(v) >= height {
			return nil
		}
		return b.Put([]byte(LAST_HEIGHT), Itob(height))
	})
}
