// Package factory opens the coin database selected by the settings.
//
// Backends register themselves in availableDatabases from an init function:
//   - "leveldb": the durable goleveldb store under <dataFolder>/chainstate
//   - "memory": a swiss map, lost on exit, for tests and throwaway nodes
package factory

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/ulogger"
)

type dbInitFunc func(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings) (utxo.CoinsView, error)

var availableDatabases = map[string]dbInitFunc{}

// NewStore opens the backend named by tSettings.UtxoStore.Backend.
func NewStore(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings) (utxo.CoinsView, error) {
	backend := tSettings.UtxoStore.Backend

	dbInit, ok := availableDatabases[backend]
	if !ok {
		return nil, errors.NewConfigurationError("unknown utxo store backend %q", backend)
	}

	logger.Infof("[UTXOStore] opening %s coin database", backend)

	store, err := dbInit(ctx, logger, tSettings)
	if err != nil {
		return nil, errors.NewServiceError("failed to open %s coin database", backend, err)
	}

	return store, nil
}
