package mempool

import (
	"context"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/go-bt/v2"
)

// TipCoins is the coin cache of the active chain tip. utxo.CoinsViewCache satisfies it.
type TipCoins interface {
	GetCoin(ctx context.Context, outpoint model.Outpoint) (*model.Coin, error)
	HaveCoinInCache(outpoint model.Outpoint) bool
	Uncache(outpoint model.Outpoint)
}

// ChainTip is the chain context a transaction is admitted or re-checked against. The
// caller holds the chain lock for as long as the pool uses it.
type ChainTip struct {
	Coins TipCoins

	// Height and MedianTimePast describe the tip block. The next block is Height+1.
	Height         int32
	MedianTimePast int64

	// AdjustedTime is the network adjusted current time, in seconds.
	AdjustedTime int64

	// MedianTimePastAt returns the median time past of the active block at a height.
	MedianTimePastAt validator.MedianTimePastFunc
}

// poolCoinsView layers the outputs of pooled transactions over the tip coins. Coins
// created by the pool report MempoolHeight. Callers hold mp.mu.
type poolCoinsView struct {
	mp  *TxMemPool
	tip TipCoins
}

func (v *poolCoinsView) GetCoin(ctx context.Context, outpoint model.Outpoint) (*model.Coin, error) {
	if entry, ok := v.mp.entries[outpoint.Hash]; ok {
		if int(outpoint.Index) >= len(entry.Tx.Outputs) {
			return nil, nil
		}

		return model.NewCoinFromOutput(entry.Tx.Outputs[outpoint.Index], MempoolHeight, false), nil
	}

	return v.tip.GetCoin(ctx, outpoint)
}

// prevHeights returns the height of each coin spent by the inputs, mapping coins of
// pooled parents to the height of the next block.
func (v *poolCoinsView) prevHeights(ctx context.Context, tip *ChainTip, tx *bt.Tx) ([]int32, bool, error) {
	heights := make([]int32, len(tx.Inputs))

	for i, in := range tx.Inputs {
		coin, err := v.GetCoin(ctx, model.InputOutpoint(in))
		if err != nil {
			return nil, false, err
		}

		if coin == nil {
			return nil, false, nil
		}

		if coin.Height == MempoolHeight {
			heights[i] = tip.Height + 1
		} else {
			heights[i] = int32(coin.Height) //nolint:gosec // heights fit int32
		}
	}

	return heights, true, nil
}

// checkSequenceLocks evaluates BIP68 for tx as if it were mined in the next block.
func checkSequenceLocks(ctx context.Context, view *poolCoinsView, tip *ChainTip, tx *bt.Tx) (bool, error) {
	heights, found, err := view.prevHeights(ctx, tip, tx)
	if err != nil || !found {
		return false, err
	}

	lock := validator.CalculateSequenceLocks(tx, validator.StandardLockTimeFlags, heights, tip.MedianTimePastAt)

	return validator.EvaluateSequenceLocks(lock, tip.Height+1, tip.MedianTimePast), nil
}
