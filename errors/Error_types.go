package errors

var (
	ErrUnknown               = New(ERR_UNKNOWN, "unknown error")
	ErrInvalidArgument       = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrThresholdExceeded     = New(ERR_THRESHOLD_EXCEEDED, "threshold exceeded")
	ErrNotFound              = New(ERR_NOT_FOUND, "not found")
	ErrProcessing            = New(ERR_PROCESSING, "error processing")
	ErrConfiguration         = New(ERR_CONFIGURATION, "configuration error")
	ErrContext               = New(ERR_CONTEXT, "context error")
	ErrContextCanceled       = New(ERR_CONTEXT_CANCELED, "context canceled")
	ErrError                 = New(ERR_ERROR, "generic error")
	ErrBlockNotFound         = New(ERR_BLOCK_NOT_FOUND, "block not found")
	ErrBlockInvalid          = New(ERR_BLOCK_INVALID, "block invalid")
	ErrBlockExists           = New(ERR_BLOCK_EXISTS, "block exists")
	ErrBlockError            = New(ERR_BLOCK_ERROR, "block error")
	ErrBlockParentInvalid    = New(ERR_BLOCK_PARENT_INVALID, "block parent invalid")
	ErrBlockCheckpoint       = New(ERR_BLOCK_CHECKPOINT, "block conflicts with checkpoint")
	ErrBlockMissingParent    = New(ERR_BLOCK_MISSING_PARENT, "block parent not found")
	ErrTxNotFound            = New(ERR_TX_NOT_FOUND, "tx not found")
	ErrTxInvalid             = New(ERR_TX_INVALID, "tx invalid")
	ErrTxInvalidDoubleSpend  = New(ERR_TX_INVALID_DOUBLE_SPEND, "tx invalid double spend")
	ErrTxAlreadyExists       = New(ERR_TX_ALREADY_EXISTS, "tx already exists")
	ErrTxConflicting         = New(ERR_TX_CONFLICTING, "tx conflicts with a pooled transaction")
	ErrTxMissingParent       = New(ERR_TX_MISSING_PARENT, "tx inputs not available")
	ErrTxPolicy              = New(ERR_TX_POLICY, "tx rejected by policy")
	ErrTxNonFinal            = New(ERR_TX_NON_FINAL, "tx non final")
	ErrTxInsufficientFee     = New(ERR_TX_INSUFFICIENT_FEE, "tx fee insufficient")
	ErrTxTooLongMempoolChain = New(ERR_TX_TOO_LONG_MEMPOOL_CHAIN, "too long mempool chain")
	ErrTxScript              = New(ERR_TX_SCRIPT, "script verification failed")
	ErrTxError               = New(ERR_TX_ERROR, "tx error")
	ErrTxPrematureSpend      = New(ERR_TX_PREMATURE_SPEND, "premature spend of coinbase")
	ErrServiceUnavailable    = New(ERR_SERVICE_UNAVAILABLE, "service unavailable")
	ErrServiceNotStarted     = New(ERR_SERVICE_NOT_STARTED, "service not started")
	ErrServiceError          = New(ERR_SERVICE_ERROR, "service error")
	ErrStorageUnavailable    = New(ERR_STORAGE_UNAVAILABLE, "storage unavailable")
	ErrStorageNotStarted     = New(ERR_STORAGE_NOT_STARTED, "storage not started")
	ErrStorageError          = New(ERR_STORAGE_ERROR, "storage error")
	ErrUtxoNotFound          = New(ERR_UTXO_NOT_FOUND, "utxo not found")
	ErrUtxoExists            = New(ERR_UTXO_EXISTS, "utxo already exists")
	ErrSpent                 = New(ERR_SPENT, "utxo already spent")
	ErrLockTime              = New(ERR_LOCKTIME, "Bad lock time")
	ErrUndoCorrupt           = New(ERR_UNDO_CORRUPT, "undo data corrupt")
	ErrChainStateCorrupted   = New(ERR_CHAINSTATE_CORRUPTED, "chain state corrupted")
	ErrFatal                 = New(ERR_FATAL, "fatal error")

	ErrCoinbaseMissingBlockHeight = New(ERR_COINBASE_MISSING_BLOCK_HEIGHT, "the coinbase signature script doesn't have the block height")
)

// errors initialization functions

func NewUnknownError(message string, params ...interface{}) error {
	return New(ERR_UNKNOWN, message, params...)
}
func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}
func NewThresholdExceededError(message string, params ...interface{}) error {
	return New(ERR_THRESHOLD_EXCEEDED, message, params...)
}
func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}
func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}
func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}
func NewContextCanceledError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT_CANCELED, message, params...)
}
func NewError(message string, params ...interface{}) error {
	return New(ERR_ERROR, message, params...)
}
func NewBlockNotFoundError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_NOT_FOUND, message, params...)
}
func NewBlockExistsError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_EXISTS, message, params...)
}
func NewBlockError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_ERROR, message, params...)
}
func NewBlockMissingParentError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_MISSING_PARENT, message, params...)
}
func NewTxNotFoundError(message string, params ...interface{}) error {
	return New(ERR_TX_NOT_FOUND, message, params...)
}
func NewTxMissingParentError(message string, params ...interface{}) error {
	return New(ERR_TX_MISSING_PARENT, message, params...)
}
func NewTxError(message string, params ...interface{}) error {
	return New(ERR_TX_ERROR, message, params...)
}
func NewServiceNotStartedError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_NOT_STARTED, message, params...)
}
func NewServiceError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_ERROR, message, params...)
}
func NewStorageUnavailableError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_UNAVAILABLE, message, params...)
}
func NewStorageError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_ERROR, message, params...)
}
func NewUtxoNotFoundError(message string, params ...interface{}) error {
	return New(ERR_UTXO_NOT_FOUND, message, params...)
}
func NewUtxoExistsError(message string, params ...interface{}) error {
	return New(ERR_UTXO_EXISTS, message, params...)
}
func NewSpentError(message string, params ...interface{}) error {
	return New(ERR_SPENT, message, params...)
}
func NewLockTimeError(message string, params ...interface{}) error {
	return New(ERR_LOCKTIME, message, params...)
}
func NewUndoCorruptError(message string, params ...interface{}) error {
	return New(ERR_UNDO_CORRUPT, message, params...)
}
func NewChainStateCorruptedError(message string, params ...interface{}) error {
	return New(ERR_CHAINSTATE_CORRUPTED, message, params...)
}
func NewCoinbaseMissingBlockHeightError(message string, params ...interface{}) error {
	return New(ERR_COINBASE_MISSING_BLOCK_HEIGHT, message, params...)
}
func NewFatalError(message string, params ...interface{}) error {
	return New(ERR_FATAL, message, params...)
}

// consensus and policy rejections, each carrying a ban score and a reject code

func NewBlockInvalidError(dos int, rejectCode RejectCode, reason string, params ...interface{}) error {
	return NewInvalid(ERR_BLOCK_INVALID, dos, rejectCode, reason, params...)
}
func NewBlockParentInvalidError(reason string, params ...interface{}) error {
	return NewInvalid(ERR_BLOCK_PARENT_INVALID, 100, RejectInvalid, reason, params...)
}
func NewBlockCheckpointError(dos int, reason string, params ...interface{}) error {
	return NewInvalid(ERR_BLOCK_CHECKPOINT, dos, RejectCheckpoint, reason, params...)
}
func NewTxInvalidError(dos int, rejectCode RejectCode, reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_INVALID, dos, rejectCode, reason, params...)
}
func NewTxInvalidDoubleSpendError(dos int, reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_INVALID_DOUBLE_SPEND, dos, RejectInvalid, reason, params...)
}
func NewTxAlreadyExistsError(reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_ALREADY_EXISTS, 0, RejectAlreadyKnown, reason, params...)
}
func NewTxConflictingError(reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_CONFLICTING, 0, RejectConflict, reason, params...)
}
func NewTxPolicyError(rejectCode RejectCode, reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_POLICY, 0, rejectCode, reason, params...)
}
func NewTxNonFinalError(dos int, reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_NON_FINAL, dos, RejectNonstandard, reason, params...)
}
func NewTxInsufficientFeeError(reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_INSUFFICIENT_FEE, 0, RejectInsufficientFee, reason, params...)
}
func NewTxTooLongMempoolChainError(reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_TOO_LONG_MEMPOOL_CHAIN, 0, RejectNonstandard, reason, params...)
}
func NewTxScriptError(dos int, rejectCode RejectCode, reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_SCRIPT, dos, rejectCode, reason, params...)
}
func NewTxPrematureSpendError(reason string, params ...interface{}) error {
	return NewInvalid(ERR_TX_PREMATURE_SPEND, 0, RejectInvalid, reason, params...)
}
