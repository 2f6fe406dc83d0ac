package factory

import (
	"context"

	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/memory"
	"github.com/bsv-blockchain/chainstate/ulogger"
)

func init() {
	availableDatabases["memory"] = func(_ context.Context, logger ulogger.Logger, _ *settings.Settings) (utxo.CoinsView, error) {
		return memory.New(logger), nil
	}
}
