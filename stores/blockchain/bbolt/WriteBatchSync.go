package bbolt

import (
	"context"
	"encoding/binary"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/stores/blockchain"
	bolt "go.etcd.io/bbolt"
)

func fileKey(file int32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(file)) //nolint:gosec // file numbers are never negative here

	return k
}

// WriteBatchSync writes file infos, the last file number and block records in one
// bbolt transaction, which is fsynced on commit.
func (s *Store) WriteBatchSync(ctx context.Context, batch *blockchain.Batch) error {
	if err := ctx.Err(); err != nil {
		return errors.NewContextCanceledError("block index write canceled", err)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		for file, info := range batch.FileInfo {
			if err := files.Put(fileKey(file), info.Bytes()); err != nil {
				return err
			}
		}

		if err := tx.Bucket(bucketMeta).Put(keyLastBlockFile, fileKey(batch.LastFile)); err != nil {
			return err
		}

		index := tx.Bucket(bucketIndex)
		for _, rec := range batch.Blocks {
			if err := index.Put(rec.Header.Hash().CloneBytes(), rec.Bytes()); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return errors.NewStorageError("failed to write block index batch", err)
	}

	s.logger.Debugf("[BlockIndexDB] wrote %d file infos and %d block records", len(batch.FileInfo), len(batch.Blocks))

	return nil
}
