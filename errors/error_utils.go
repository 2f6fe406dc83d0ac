// Package errors provides the coded error type used by the chainstate engine together with
// helpers that classify errors into consensus rejections and local failures.
package errors

import (
	"context"
	"errors"
)

// IsInvalidCode reports whether the code belongs to the family of rejections, i.e. the
// object itself broke a consensus or policy rule.
func IsInvalidCode(code ERR) bool {
	switch code {
	case ERR_BLOCK_INVALID,
		ERR_BLOCK_PARENT_INVALID,
		ERR_BLOCK_CHECKPOINT,
		ERR_TX_INVALID,
		ERR_TX_INVALID_DOUBLE_SPEND,
		ERR_TX_ALREADY_EXISTS,
		ERR_TX_CONFLICTING,
		ERR_TX_POLICY,
		ERR_TX_NON_FINAL,
		ERR_TX_INSUFFICIENT_FEE,
		ERR_TX_TOO_LONG_MEMPOOL_CHAIN,
		ERR_TX_SCRIPT,
		ERR_TX_PREMATURE_SPEND:
		return true
	}

	return false
}

// IsInvalid determines if an error is a judgement on the validated object rather than a
// local problem. Invalid errors may be used to score the peer that relayed the object.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if the object violates a rule
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var vd *ValidationErrData
	if AsData(err, &vd) {
		return true
	}

	var tErr *Error
	if As(err, &tErr) {
		return IsInvalidCode(tErr.Code())
	}

	return false
}

// IsFatal determines if an error must stop block processing, because continuing could
// leave the UTXO state diverged from the block index.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrFatal) || errors.Is(err, ErrChainStateCorrupted)
}

// IsCanceled reports whether the error is the result of a canceled context.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var tErr *Error
	if As(err, &tErr) {
		return tErr.Code() == ERR_CONTEXT_CANCELED
	}

	return false
}

// ValidationData returns the rejection payload of the error, if it has one.
func ValidationData(err error) (*ValidationErrData, bool) {
	var vd *ValidationErrData
	if err != nil && AsData(err, &vd) {
		return vd, true
	}

	return nil, false
}

// DoSScore returns the ban weight attached to a rejection. Local errors score zero.
func DoSScore(err error) int {
	if vd, ok := ValidationData(err); ok {
		return vd.DoS
	}

	return 0
}

// GetRejectCode returns the reject code attached to a rejection, RejectInternal for local errors.
func GetRejectCode(err error) RejectCode {
	if vd, ok := ValidationData(err); ok {
		return vd.RejectCode
	}

	return RejectInternal
}

// GetRejectReason returns the short reject reason of a rejection.
func GetRejectReason(err error) string {
	if vd, ok := ValidationData(err); ok {
		return vd.RejectReason
	}

	return ""
}

// IsCorruptionPossible reports whether the rejection may be caused by data mutated in transit.
func IsCorruptionPossible(err error) bool {
	if vd, ok := ValidationData(err); ok {
		return vd.CorruptionPossible
	}

	return false
}
