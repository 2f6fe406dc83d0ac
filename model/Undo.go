package model

import (
	"bytes"
	"io"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// TxUndo holds the coins spent by one transaction, in input order.
type TxUndo struct {
	PrevOut []*Coin
}

// BlockUndo holds a TxUndo for every non-coinbase transaction of a block, in block order.
type BlockUndo struct {
	TxUndo []*TxUndo
}

// maxUndoEntries bounds counts read from disk so a corrupt length can not trigger a huge allocation.
const maxUndoEntries = 1 << 24

func (u *BlockUndo) Bytes() []byte {
	buf := bytes.NewBuffer(nil)

	buf.Write(bt.VarInt(len(u.TxUndo)).Bytes())

	for _, txUndo := range u.TxUndo {
		buf.Write(bt.VarInt(len(txUndo.PrevOut)).Bytes())

		for _, coin := range txUndo.PrevOut {
			buf.Write(coin.Bytes())
		}
	}

	return buf.Bytes()
}

func NewBlockUndoFromBytes(b []byte) (*BlockUndo, error) {
	r := bytes.NewReader(b)

	u, err := NewBlockUndoFromReader(r)
	if err != nil {
		return nil, err
	}

	if r.Len() != 0 {
		return nil, errors.NewUndoCorruptError("%d trailing bytes after block undo", r.Len())
	}

	return u, nil
}

func NewBlockUndoFromReader(r io.Reader) (*BlockUndo, error) {
	var txCount bt.VarInt
	if _, err := txCount.ReadFrom(r); err != nil {
		return nil, errors.NewUndoCorruptError("failed to read undo tx count", err)
	}

	if uint64(txCount) > maxUndoEntries {
		return nil, errors.NewUndoCorruptError("undo tx count %d too large", uint64(txCount))
	}

	u := &BlockUndo{TxUndo: make([]*TxUndo, 0, txCount)}

	for i := uint64(0); i < uint64(txCount); i++ {
		var coinCount bt.VarInt
		if _, err := coinCount.ReadFrom(r); err != nil {
			return nil, errors.NewUndoCorruptError("failed to read undo coin count for tx %d", i, err)
		}

		if uint64(coinCount) > maxUndoEntries {
			return nil, errors.NewUndoCorruptError("undo coin count %d too large", uint64(coinCount))
		}

		txUndo := &TxUndo{PrevOut: make([]*Coin, 0, coinCount)}

		for j := uint64(0); j < uint64(coinCount); j++ {
			coin, err := NewCoinFromReader(r)
			if err != nil {
				return nil, errors.NewUndoCorruptError("failed to read undo coin %d of tx %d", j, i, err)
			}

			txUndo.PrevOut = append(txUndo.PrevOut, coin)
		}

		u.TxUndo = append(u.TxUndo, txUndo)
	}

	return u, nil
}

// UndoChecksum commits the undo data to the block it reverts, so undo written for one
// block can never be applied to another.
func UndoChecksum(prevBlockHash *chainhash.Hash, undoBytes []byte) chainhash.Hash {
	b := make([]byte, 0, chainhash.HashSize+len(undoBytes))
	b = append(b, prevBlockHash[:]...)
	b = append(b, undoBytes...)

	return chainhash.DoubleHashH(b)
}
