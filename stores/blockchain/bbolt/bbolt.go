// Package bbolt stores the block index in a single bbolt file.
//
// Buckets:
//   - index: block hash -> block index record
//   - files: file number (big-endian) -> block file info
//   - meta:  "lastblockfile" -> file number, "flag_<name>" -> 0x00/0x01
package bbolt

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/ulogger"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketIndex = []byte("index")
	bucketFiles = []byte("files")
	bucketMeta  = []byte("meta")

	keyLastBlockFile = []byte("lastblockfile")
)

const flagPrefix = "flag_"

type Store struct {
	logger ulogger.Logger
	db     *bolt.DB
}

// New opens (or creates) index.db under dataFolder.
func New(logger ulogger.Logger, dataFolder string) (*Store, error) {
	if err := os.MkdirAll(dataFolder, 0o755); err != nil {
		return nil, errors.NewStorageError("failed to create %s", dataFolder, err)
	}

	path := filepath.Join(dataFolder, "index.db")

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.NewStorageError("failed to open block index at %s", path, err)
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketIndex, bucketFiles, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return errors.NewStorageError("failed to create bucket %s", string(b), err)
			}
		}

		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Infof("[BlockIndexDB] opened %s", path)

	return &Store{
		logger: logger,
		db:     db,
	}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.NewStorageError("failed to close block index", err)
	}

	return nil
}
