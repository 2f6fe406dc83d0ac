package factory

import (
	"context"
	"path/filepath"

	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/leveldb"
	"github.com/bsv-blockchain/chainstate/ulogger"
)

func init() {
	availableDatabases["leveldb"] = func(_ context.Context, logger ulogger.Logger, tSettings *settings.Settings) (utxo.CoinsView, error) {
		return leveldb.New(logger, filepath.Join(tSettings.DataFolder, "chainstate"), leveldb.Options{
			CacheMB:       tSettings.UtxoStore.LevelDBCacheMB,
			WriteBufferMB: tSettings.UtxoStore.LevelDBWriteBufferMB,
		})
	}
}
