package memory

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/chainstate/stores/utxo/tests"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	t.Run("memory store", func(t *testing.T) {
		tests.Store(t, New(ulogger.TestLogger{}))
	})

	t.Run("memory spend", func(t *testing.T) {
		db := New(ulogger.TestLogger{})
		tests.Spend(t, db)
		assert.Equal(t, 1, db.Len())
	})

	t.Run("memory empty best block", func(t *testing.T) {
		tests.EmptyBestBlock(t, New(ulogger.TestLogger{}))
	})

	t.Run("memory stats", func(t *testing.T) {
		tests.Stats(t, New(ulogger.TestLogger{}))
	})

	t.Run("memory size tracks deletes", func(t *testing.T) {
		db := New(ulogger.TestLogger{})
		tests.Spend(t, db)

		size, err := db.EstimateSize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(36+len(tests.Coin1.Bytes())), size)
	})
}
