package factory

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/stores/utxo"
	"github.com/bsv-blockchain/chainstate/stores/utxo/leveldb"
	"github.com/bsv-blockchain/chainstate/stores/utxo/memory"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		tSettings := settings.NewRegtestSettings()
		tSettings.UtxoStore.Backend = "memory"

		store, err := NewStore(ctx, ulogger.TestLogger{}, tSettings)
		require.NoError(t, err)
		assert.IsType(t, &memory.Memory{}, store)
	})

	t.Run("leveldb", func(t *testing.T) {
		tSettings := settings.NewRegtestSettings()
		tSettings.UtxoStore.Backend = "leveldb"
		tSettings.DataFolder = t.TempDir()

		store, err := NewStore(ctx, ulogger.TestLogger{}, tSettings)
		require.NoError(t, err)
		assert.IsType(t, &leveldb.Store{}, store)

		closer, ok := store.(utxo.Closer)
		require.True(t, ok)
		require.NoError(t, closer.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		tSettings := settings.NewRegtestSettings()
		tSettings.UtxoStore.Backend = "aerospike"

		_, err := NewStore(ctx, ulogger.TestLogger{}, tSettings)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrConfiguration))
	})
}
