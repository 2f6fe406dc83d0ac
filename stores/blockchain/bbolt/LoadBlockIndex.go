package bbolt

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	bolt "go.etcd.io/bbolt"
)

func (s *Store) LoadBlockIndex(ctx context.Context) ([]*model.DiskBlockIndex, error) {
	var records []*model.DiskBlockIndex

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := model.NewDiskBlockIndexFromBytes(v)
			if err != nil {
				return errors.NewChainStateCorruptedError("block index record %x is unreadable", k, err)
			}

			key, err := chainhash.NewHash(k)
			if err != nil {
				return errors.NewChainStateCorruptedError("block index key %x is not a hash", k, err)
			}

			if hash := rec.Header.Hash(); !hash.IsEqual(key) {
				return errors.NewChainStateCorruptedError("block index record stored under %x hashes to %s", k, hash)
			}

			records = append(records, rec)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("[BlockIndexDB] loaded %d block index records", len(records))

	return records, nil
}
