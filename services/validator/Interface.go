/*
Package validator implements the stateless parts of transaction validation.

It covers the context-free transaction checks, input resolution against a coin
view, finality and relative lock times, signature operation counting,
standardness policy and script verification. Script checks of a block or a
transaction are fanned out over a bounded worker pool and reduced to a single
result, and successful verifications are remembered in a TTL cache.

Nothing in this package mutates chain state. Callers own the coin view and the
chain lock.
*/
package validator

import (
	"context"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
)

// ScriptVerifier verifies one input of a transaction against the output it spends.
// Implementations must be safe for concurrent use.
type ScriptVerifier interface {
	// VerifyInput runs the unlocking script of input inputIdx of tx followed by the
	// locking script of prevOut under the given flags.
	VerifyInput(tx *bt.Tx, inputIdx int, prevOut *bt.Output, flags scriptflag.Flag) error
}

// CoinsView is the read side of a UTXO view, as needed to resolve inputs.
type CoinsView interface {
	GetCoin(ctx context.Context, outpoint model.Outpoint) (*model.Coin, error)
}
