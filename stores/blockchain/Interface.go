package blockchain

import (
	"context"

	"github.com/bsv-blockchain/chainstate/model"
)

const (
	// FlagPrunedBlockFiles is set once any block file has been deleted. It is never
	// cleared, so a later start knows block data may be missing.
	FlagPrunedBlockFiles = "prunedblockfiles"
)

// Batch is everything one flush of the block index writes.
type Batch struct {
	FileInfo map[int32]*model.BlockFileInfo
	LastFile int32
	Blocks   []*model.DiskBlockIndex
}

// Store persists the block index: one record per known block keyed by hash, the
// statistics of every blk/rev file pair, the last file in use and named flags.
type Store interface {
	LoadBlockIndex(ctx context.Context) ([]*model.DiskBlockIndex, error)
	GetBlockFileInfo(ctx context.Context, file int32) (*model.BlockFileInfo, error)
	GetLastBlockFile(ctx context.Context) (int32, bool, error)
	WriteBatchSync(ctx context.Context, batch *Batch) error
	GetFlag(ctx context.Context, name string) (bool, error)
	SetFlag(ctx context.Context, name string, value bool) error
	Close() error
}
