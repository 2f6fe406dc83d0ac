package utxo

import "github.com/bsv-blockchain/chainstate/errors"

var (
	ErrNoCursor        = errors.New(errors.ERR_INVALID_ARGUMENT, "coins view cannot be enumerated")
	ErrFreshMisapplied = errors.New(errors.ERR_CHAINSTATE_CORRUPTED, "FRESH flag misapplied to an unspent parent coin")
)
