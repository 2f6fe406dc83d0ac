package mempool

import (
	"testing"
	"time"

	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orphanOf(parent byte, outputs ...uint64) *bt.Tx {
	return model.NewSpendTx([]model.SpendOutput{{
		Outpoint: model.Outpoint{Hash: chainhash.Hash{parent}},
	}}, outputs...)
}

func TestOrphanPool(t *testing.T) {
	t.Run("add and find by parent", func(t *testing.T) {
		pool := NewOrphanPool(ulogger.TestLogger{}, 10, 5000, time.Hour)

		tx := orphanOf(1, 1000)
		require.True(t, pool.Add(tx, "peer1"))
		assert.False(t, pool.Add(tx, "peer1"))

		assert.True(t, pool.Has(tx.TxIDChainHash()))
		assert.Equal(t, 1, pool.Len())

		spending := pool.Spending(&chainhash.Hash{1})
		require.Len(t, spending, 1)
		assert.Equal(t, tx.TxID(), spending[0].Tx.TxID())
		assert.Equal(t, "peer1", spending[0].PeerID)

		assert.Empty(t, pool.Spending(&chainhash.Hash{2}))

		pool.Remove(tx.TxIDChainHash())
		assert.Zero(t, pool.Len())
		assert.Empty(t, pool.Spending(&chainhash.Hash{1}))
	})

	t.Run("large orphans are ignored", func(t *testing.T) {
		pool := NewOrphanPool(ulogger.TestLogger{}, 10, 5000, time.Hour)

		outputs := make([]uint64, 600)
		for i := range outputs {
			outputs[i] = 1
		}

		assert.False(t, pool.Add(orphanOf(1, outputs...), "peer1"))
		assert.Zero(t, pool.Len())
	})

	t.Run("oldest orphan makes room", func(t *testing.T) {
		pool := NewOrphanPool(ulogger.TestLogger{}, 2, 5000, time.Hour)

		first, second, third := orphanOf(1, 1), orphanOf(2, 2), orphanOf(3, 3)

		require.True(t, pool.Add(first, "peer1"))
		require.True(t, pool.Add(second, "peer1"))

		// reading the oldest must not refresh it
		assert.True(t, pool.Has(first.TxIDChainHash()))

		require.True(t, pool.Add(third, "peer1"))

		assert.Equal(t, 2, pool.Len())
		assert.False(t, pool.Has(first.TxIDChainHash()))
		assert.True(t, pool.Has(second.TxIDChainHash()))
		assert.True(t, pool.Has(third.TxIDChainHash()))
		assert.Empty(t, pool.Spending(&chainhash.Hash{1}))
	})

	t.Run("erase for peer", func(t *testing.T) {
		pool := NewOrphanPool(ulogger.TestLogger{}, 10, 5000, time.Hour)

		require.True(t, pool.Add(orphanOf(1, 1), "peer1"))
		require.True(t, pool.Add(orphanOf(2, 2), "peer2"))
		require.True(t, pool.Add(orphanOf(3, 3), "peer1"))

		assert.Equal(t, 2, pool.EraseForPeer("peer1"))
		assert.Equal(t, 1, pool.Len())
		assert.Len(t, pool.Spending(&chainhash.Hash{2}), 1)
	})

	t.Run("orphans expire", func(t *testing.T) {
		pool := NewOrphanPool(ulogger.TestLogger{}, 10, 5000, 20*time.Millisecond)

		tx := orphanOf(1, 1)
		require.True(t, pool.Add(tx, "peer1"))

		require.Eventually(t, func() bool {
			return pool.Len() == 0
		}, time.Second, 10*time.Millisecond)

		assert.Empty(t, pool.Spending(&chainhash.Hash{1}))
	})
}

func TestRecentRejects(t *testing.T) {
	t.Run("remembers rejects until the tip changes", func(t *testing.T) {
		rejects := NewRecentRejects(1000)
		rejects.ResetIfTipChanged(chainhash.Hash{1})

		hash := chainhash.Hash{0xaa}
		assert.False(t, rejects.Contains(&hash))

		rejects.Add(&hash)
		assert.True(t, rejects.Contains(&hash))

		rejects.ResetIfTipChanged(chainhash.Hash{1})
		assert.True(t, rejects.Contains(&hash))

		rejects.ResetIfTipChanged(chainhash.Hash{2})
		assert.False(t, rejects.Contains(&hash))
	})

	t.Run("keeps the most recent half of the capacity", func(t *testing.T) {
		rejects := NewRecentRejects(100)

		for i := 0; i < 500; i++ {
			rejects.Add(&chainhash.Hash{byte(i), byte(i >> 8)})
		}

		for i := 450; i < 500; i++ {
			assert.True(t, rejects.Contains(&chainhash.Hash{byte(i), byte(i >> 8)}))
		}
	})
}
