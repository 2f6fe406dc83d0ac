package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewCustomError(t *testing.T) {
	err := New(ERR_NOT_FOUND, "resource not found")
	require.NotNil(t, err)
	require.Equal(t, ERR_NOT_FOUND, err.Code())
	require.Equal(t, "resource not found", err.Message())

	secondErr := New(ERR_INVALID_ARGUMENT, "[ConnectBlock][%s] failed to read undo: ", "_test_string_", err)
	thirdErr := New(ERR_TX_INVALID_DOUBLE_SPEND, "[ConnectBlock][%s] failed: ", "_test_string_", secondErr)
	anotherErr := New(ERR_TX_INVALID_DOUBLE_SPEND, "Another ERR, block is invalid")
	fourthErr := New(ERR_SERVICE_ERROR, "older error: ", thirdErr)
	fifthErr := New(ERR_BLOCK_INVALID, "invalid tx double spend error", fourthErr)

	require.True(t, anotherErr.Is(thirdErr))
	require.True(t, fourthErr.Is(New(ERR_TX_INVALID_DOUBLE_SPEND, "")))
	require.True(t, fourthErr.Is(ErrTxInvalidDoubleSpend))

	require.True(t, fourthErr.Is(err))
	require.True(t, fifthErr.Is(thirdErr))
	require.True(t, fifthErr.Is(err))

	require.False(t, anotherErr.Is(fourthErr))
	require.False(t, fifthErr.Is(ErrBlockNotFound))
}

func Test_FmtErrorCustomError(t *testing.T) {
	err := New(ERR_NOT_FOUND, "resource not found")

	fmtError := fmt.Errorf("error: %w", err)
	require.NotNil(t, fmtError)

	secondErr := New(ERR_INVALID_ARGUMENT, "[ConnectBlock][%s] failed: ", "_test_string_", fmtError)

	// a fmt wrapped error is flattened, so the code of the inner error is lost
	require.False(t, secondErr.Is(err))
	require.True(t, errors.Is(fmtError, ErrNotFound))
}

func Test_InvalidCodeIsReportedAsInvalid(t *testing.T) {
	err := New(ERR(999), "some message")
	assert.Equal(t, "invalid error code", err.Message())
}

func Test_ErrorString(t *testing.T) {
	err := New(ERR_STORAGE_ERROR, "write failed", errors.New("disk full"))
	assert.Contains(t, err.Error(), "STORAGE_ERROR")
	assert.Contains(t, err.Error(), "write failed")
	assert.Contains(t, err.Error(), "disk full")

	var nilErr *Error
	assert.Equal(t, "<nil>", nilErr.Error())
	assert.Equal(t, ERR_UNKNOWN, nilErr.Code())
}

func Test_ValidationErrData(t *testing.T) {
	t.Run("reject reason is the message head", func(t *testing.T) {
		err := NewTxInvalidError(10, RejectInvalid, "bad-txns-in-belowout, value in (%d) < value out (%d)", 1, 2)

		vd, ok := ValidationData(err)
		require.True(t, ok)
		assert.Equal(t, 10, vd.DoS)
		assert.Equal(t, RejectInvalid, vd.RejectCode)
		assert.Equal(t, "bad-txns-in-belowout", vd.RejectReason)
		assert.False(t, vd.CorruptionPossible)
		assert.Contains(t, err.Error(), "value in (1) < value out (2)")
	})

	t.Run("wrapped rejection keeps its score", func(t *testing.T) {
		inner := NewBlockInvalidError(100, RejectInvalid, "bad-cb-multiple")
		outer := NewProcessingError("[ProcessNewBlock] failed", inner)

		assert.Equal(t, 100, DoSScore(outer))
		assert.Equal(t, RejectInvalid, GetRejectCode(outer))
		assert.Equal(t, "bad-cb-multiple", GetRejectReason(outer))
		assert.True(t, IsInvalid(outer))
		assert.True(t, errors.Is(outer, ErrBlockInvalid))
	})

	t.Run("local errors score zero", func(t *testing.T) {
		err := NewStorageError("leveldb write failed")
		assert.Equal(t, 0, DoSScore(err))
		assert.Equal(t, RejectInternal, GetRejectCode(err))
		assert.False(t, IsInvalid(err))
	})

	t.Run("corruption possible", func(t *testing.T) {
		err := NewCorruptionPossibleError(ERR_BLOCK_INVALID, 100, RejectInvalid, "bad-txnmrklroot")
		assert.True(t, IsCorruptionPossible(err))
		assert.True(t, IsInvalid(err))
	})

	t.Run("data round trip", func(t *testing.T) {
		err := NewTxConflictingError("txn-mempool-conflict")

		vd, ok := ValidationData(err)
		require.True(t, ok)

		decoded, dErr := GetErrorData(ERR_TX_CONFLICTING, vd.EncodeErrorData())
		require.NoError(t, dErr)
		assert.Equal(t, vd, decoded)
		assert.Equal(t, RejectConflict, decoded.GetData("reject_code"))
	})
}

func Test_IsFatal(t *testing.T) {
	assert.True(t, IsFatal(NewFatalError("flush failed")))
	assert.True(t, IsFatal(NewProcessingError("wrapped", NewChainStateCorruptedError("bad"))))
	assert.False(t, IsFatal(NewStorageError("not fatal")))
	assert.False(t, IsFatal(nil))
}

func Test_SetGetData(t *testing.T) {
	err := New(ERR_PROCESSING, "with data")
	err.SetData("height", 12)
	assert.Equal(t, 12, err.GetData("height"))
	assert.Nil(t, err.GetData("missing"))
}
