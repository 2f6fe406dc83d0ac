package bbolt

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	bolt "go.etcd.io/bbolt"
)

func (s *Store) GetFlag(_ context.Context, name string) (bool, error) {
	var value bool

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get([]byte(flagPrefix + name))
		value = len(v) == 1 && v[0] == 1

		return nil
	})
	if err != nil {
		return false, errors.NewStorageError("failed to read flag %s", name, err)
	}

	return value, nil
}

func (s *Store) SetFlag(_ context.Context, name string, value bool) error {
	v := []byte{0}
	if value {
		v[0] = 1
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(flagPrefix+name), v)
	}); err != nil {
		return errors.NewStorageError("failed to write flag %s", name, err)
	}

	return nil
}
