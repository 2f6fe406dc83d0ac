package validator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// failingVerifier fails the inputs listed in fail and counts calls.
type failingVerifier struct {
	fail  map[int]bool
	calls atomic.Int64
}

func (v *failingVerifier) VerifyInput(_ *bt.Tx, inputIdx int, _ *bt.Output, _ scriptflag.Flag) error {
	v.calls.Add(1)

	if v.fail[inputIdx] {
		return errors.NewTxScriptError(100, errors.RejectInvalid, "script-verify-flag-failed input %d", inputIdx)
	}

	return nil
}

func makeChecks(n int) []*ScriptCheck {
	checks := make([]*ScriptCheck, n)
	for i := range checks {
		checks[i] = &ScriptCheck{InputIndex: i, PrevOut: &bt.Output{}}
	}

	return checks
}

func TestCheckQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch", func(t *testing.T) {
		require.NoError(t, NewCheckQueue(&failingVerifier{}, 4).Run(ctx, nil))
	})

	t.Run("all pass", func(t *testing.T) {
		verifier := &failingVerifier{}
		require.NoError(t, NewCheckQueue(verifier, 4).Run(ctx, makeChecks(100)))
		assert.Equal(t, int64(100), verifier.calls.Load())
	})

	t.Run("lowest failure is reported", func(t *testing.T) {
		verifier := &failingVerifier{fail: map[int]bool{17: true, 60: true, 99: true}}

		err := NewCheckQueue(verifier, 8).Run(ctx, makeChecks(100))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "input 17")
		assert.Equal(t, 100, errors.DoSScore(err))
	})

	t.Run("workers are at least one", func(t *testing.T) {
		assert.Equal(t, 1, NewCheckQueue(&failingVerifier{}, 0).Workers())
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		err := NewCheckQueue(&failingVerifier{}, 4).Run(canceled, makeChecks(10))
		require.Error(t, err)
		assert.True(t, errors.IsCanceled(err))
	})
}

func TestCheckQueueParallelMatchesSequential(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "inputs")
		workers := rapid.IntRange(2, 16).Draw(t, "workers")
		failing := rapid.SliceOfDistinct(rapid.IntRange(0, n-1), rapid.ID[int]).Draw(t, "failing")

		fail := make(map[int]bool, len(failing))
		for _, i := range failing {
			fail[i] = true
		}

		sequential := NewCheckQueue(&failingVerifier{fail: fail}, 1).Run(context.Background(), makeChecks(n))
		parallel := NewCheckQueue(&failingVerifier{fail: fail}, workers).Run(context.Background(), makeChecks(n))

		if sequential == nil {
			if parallel != nil {
				t.Fatalf("sequential passed, parallel failed: %v", parallel)
			}

			return
		}

		if parallel == nil {
			t.Fatalf("sequential failed, parallel passed: %v", sequential)
		}

		if sequential.Error() != parallel.Error() {
			t.Fatalf("different failures: %v != %v", sequential, parallel)
		}
	})
}

func TestScriptCache(t *testing.T) {
	cache := NewScriptCache(10, time.Minute)
	defer cache.Stop()

	tx := model.NewCoinbaseTx(1, 1)

	assert.False(t, cache.Contains(tx.TxIDChainHash(), StandardScriptVerifyFlags))

	cache.Add(tx.TxIDChainHash(), StandardScriptVerifyFlags)

	assert.True(t, cache.Contains(tx.TxIDChainHash(), StandardScriptVerifyFlags))
	assert.False(t, cache.Contains(tx.TxIDChainHash(), MandatoryScriptVerifyFlags))
	assert.Equal(t, 1, cache.Len())

	var disabled *ScriptCache

	disabled.Add(tx.TxIDChainHash(), StandardScriptVerifyFlags)
	assert.False(t, disabled.Contains(tx.TxIDChainHash(), StandardScriptVerifyFlags))
	assert.Zero(t, disabled.Len())
	disabled.Stop()

	cache.Stop()
}
