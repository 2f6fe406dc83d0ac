package utxo

import (
	"context"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// CoinsView is one layer of the UTXO set. GetCoin returns nil without error when the
// outpoint is unknown or spent in this layer.
type CoinsView interface {
	GetCoin(ctx context.Context, outpoint model.Outpoint) (*model.Coin, error)
	HaveCoin(ctx context.Context, outpoint model.Outpoint) (bool, error)
	GetBestBlock(ctx context.Context) (chainhash.Hash, error)

	// BatchWrite applies all DIRTY entries and moves the best block marker in one
	// atomic step. Entries are consumed; callers must not reuse the map.
	BatchWrite(ctx context.Context, entries map[model.Outpoint]*CacheEntry, bestBlock chainhash.Hash) error

	// EstimateSize returns the approximate on-disk size of the layer in bytes.
	EstimateSize(ctx context.Context) (uint64, error)
}

// Cursor is implemented by durable backends that can enumerate every unspent coin.
type Cursor interface {
	ForEach(ctx context.Context, fn func(outpoint model.Outpoint, coin *model.Coin) error) error
}

// Closer is implemented by backends holding an open database.
type Closer interface {
	Close() error
}

// Stats summarises a full walk over a backend.
type Stats struct {
	BestBlock   chainhash.Hash
	Coins       uint64
	TotalAmount uint64
	DiskSize    uint64
}

// GetStats walks every coin of a backend that implements Cursor.
func GetStats(ctx context.Context, view CoinsView) (*Stats, error) {
	cursor, ok := view.(Cursor)
	if !ok {
		return nil, ErrNoCursor
	}

	best, err := view.GetBestBlock(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{BestBlock: best}

	if err = cursor.ForEach(ctx, func(_ model.Outpoint, coin *model.Coin) error {
		stats.Coins++
		stats.TotalAmount += coin.Value

		return nil
	}); err != nil {
		return nil, err
	}

	if stats.DiskSize, err = view.EstimateSize(ctx); err != nil {
		return nil, err
	}

	return stats, nil
}
