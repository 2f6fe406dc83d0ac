// Package leveldb is the durable coin database. Each unspent output is one record keyed
// by its outpoint, next to a single best block marker; a flush is one atomic batch.
package leveldb

import (
	"bytes"
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	utxostore "github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/storage"
	"github.com/btcsuite/goleveldb/leveldb/util"
)

const (
	prefixCoin      = 'C'
	prefixBestBlock = 'B'
)

var bestBlockKey = []byte{prefixBestBlock}

type Options struct {
	CacheMB       int
	WriteBufferMB int
}

type Store struct {
	logger ulogger.Logger
	db     *leveldb.DB
}

// New opens (or creates) the coin database under path.
func New(logger ulogger.Logger, path string, options Options) (*Store, error) {
	db, err := leveldb.OpenFile(path, dbOptions(options))
	if err != nil {
		return nil, errors.NewStorageError("failed to open coin database at %s", path, err)
	}

	logger.Infof("[LevelDB] opened coin database at %s", path)

	return &Store{logger: logger, db: db}, nil
}

// NewInMemory opens a database backed by memory storage, for tests.
func NewInMemory(logger ulogger.Logger) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.NewStorageError("failed to open in-memory coin database", err)
	}

	return &Store{logger: logger, db: db}, nil
}

func dbOptions(options Options) *opt.Options {
	o := &opt.Options{
		// keep the on disk format readable by tools that do not link snappy
		Compression: opt.NoCompression,
	}

	if options.CacheMB > 0 {
		o.BlockCacheCapacity = options.CacheMB * opt.MiB
	}

	if options.WriteBufferMB > 0 {
		o.WriteBuffer = options.WriteBufferMB * opt.MiB
	}

	return o
}

func coinKey(outpoint model.Outpoint) []byte {
	return append([]byte{prefixCoin}, outpoint.Bytes()...)
}

func (s *Store) GetCoin(_ context.Context, outpoint model.Outpoint) (*model.Coin, error) {
	value, err := s.db.Get(coinKey(outpoint), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}

		return nil, errors.NewStorageError("failed to read coin %s", outpoint, err)
	}

	coin, err := model.NewCoinFromReader(bytes.NewReader(value))
	if err != nil {
		return nil, errors.NewChainStateCorruptedError("coin %s is unreadable", outpoint, err)
	}

	return coin, nil
}

func (s *Store) HaveCoin(_ context.Context, outpoint model.Outpoint) (bool, error) {
	ok, err := s.db.Has(coinKey(outpoint), nil)
	if err != nil {
		return false, errors.NewStorageError("failed to read coin %s", outpoint, err)
	}

	return ok, nil
}

// GetBestBlock returns the zero hash for an empty database.
func (s *Store) GetBestBlock(_ context.Context) (chainhash.Hash, error) {
	value, err := s.db.Get(bestBlockKey, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return chainhash.Hash{}, nil
		}

		return chainhash.Hash{}, errors.NewStorageError("failed to read best block", err)
	}

	hash, err := chainhash.NewHash(value)
	if err != nil {
		return chainhash.Hash{}, errors.NewChainStateCorruptedError("best block marker is unreadable", err)
	}

	return *hash, nil
}

// BatchWrite writes the coins and the best block marker in one synced batch. The batch
// is the commit point of a flush: either all of it is durable or none of it is.
func (s *Store) BatchWrite(_ context.Context, entries map[model.Outpoint]*utxostore.CacheEntry, bestBlock chainhash.Hash) error {
	batch := new(leveldb.Batch)

	var written, deleted int

	for outpoint, entry := range entries {
		if entry.Flags&utxostore.Dirty == 0 {
			continue
		}

		if entry.IsSpent() {
			batch.Delete(coinKey(outpoint))
			deleted++

			continue
		}

		batch.Put(coinKey(outpoint), entry.Coin.Bytes())
		written++
	}

	batch.Put(bestBlockKey, bestBlock.CloneBytes())

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.NewStorageError("failed to write coin batch", err)
	}

	s.logger.Debugf("[LevelDB] committed %d coins, %d deletions, best block %s", written, deleted, bestBlock)

	return nil
}

func (s *Store) EstimateSize(_ context.Context) (uint64, error) {
	sizes, err := s.db.SizeOf([]util.Range{*util.BytesPrefix([]byte{prefixCoin})})
	if err != nil {
		return 0, errors.NewStorageError("failed to estimate coin database size", err)
	}

	return uint64(sizes.Sum()), nil //nolint:gosec // sizes are never negative
}

func (s *Store) ForEach(ctx context.Context, fn func(outpoint model.Outpoint, coin *model.Coin) error) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{prefixCoin}), nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		outpoint, err := model.NewOutpointFromBytes(iter.Key()[1:])
		if err != nil {
			return errors.NewChainStateCorruptedError("coin key is unreadable", err)
		}

		coin, err := model.NewCoinFromReader(bytes.NewReader(iter.Value()))
		if err != nil {
			return errors.NewChainStateCorruptedError("coin %s is unreadable", outpoint, err)
		}

		if err = fn(outpoint, coin); err != nil {
			return err
		}
	}

	if err := iter.Error(); err != nil {
		return errors.NewStorageError("coin iteration failed", err)
	}

	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.NewStorageError("failed to close coin database", err)
	}

	return nil
}
