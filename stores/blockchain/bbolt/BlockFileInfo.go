package bbolt

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	bolt "go.etcd.io/bbolt"
)

// GetBlockFileInfo returns nil without error for a file that was never recorded.
func (s *Store) GetBlockFileInfo(_ context.Context, file int32) (*model.BlockFileInfo, error) {
	var info *model.BlockFileInfo

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFiles).Get(fileKey(file))
		if v == nil {
			return nil
		}

		var err error

		info, err = model.NewBlockFileInfoFromReader(bytes.NewReader(v))

		return err
	})
	if err != nil {
		return nil, errors.NewStorageError("failed to read info of block file %d", file, err)
	}

	return info, nil
}

func (s *Store) GetLastBlockFile(_ context.Context) (int32, bool, error) {
	var (
		last  int32
		found bool
	)

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(keyLastBlockFile)
		if v == nil {
			return nil
		}

		if len(v) != 4 {
			return errors.NewChainStateCorruptedError("last block file marker has %d bytes", len(v))
		}

		last = int32(binary.BigEndian.Uint32(v)) //nolint:gosec // written from an int32
		found = true

		return nil
	})
	if err != nil {
		return 0, false, err
	}

	return last, found, nil
}
