package errors

import "strconv"

// ERR enumerates the error codes used across the chainstate engine.
type ERR int32

const (
	ERR_UNKNOWN            ERR = 0
	ERR_INVALID_ARGUMENT   ERR = 1
	ERR_THRESHOLD_EXCEEDED ERR = 2
	ERR_NOT_FOUND          ERR = 3
	ERR_PROCESSING         ERR = 4
	ERR_CONFIGURATION      ERR = 5
	ERR_CONTEXT            ERR = 6
	ERR_CONTEXT_CANCELED   ERR = 7
	ERR_ERROR              ERR = 9
	// block errors
	ERR_BLOCK_NOT_FOUND      ERR = 10
	ERR_BLOCK_INVALID        ERR = 11
	ERR_BLOCK_EXISTS         ERR = 12
	ERR_BLOCK_ERROR          ERR = 13
	ERR_BLOCK_PARENT_INVALID ERR = 14
	ERR_BLOCK_CHECKPOINT     ERR = 15
	ERR_BLOCK_MISSING_PARENT ERR = 16
	// transaction errors
	ERR_TX_NOT_FOUND              ERR = 30
	ERR_TX_INVALID                ERR = 31
	ERR_TX_INVALID_DOUBLE_SPEND   ERR = 32
	ERR_TX_ALREADY_EXISTS         ERR = 33
	ERR_TX_CONFLICTING            ERR = 34
	ERR_TX_MISSING_PARENT         ERR = 35
	ERR_TX_POLICY                 ERR = 36
	ERR_TX_NON_FINAL              ERR = 37
	ERR_TX_INSUFFICIENT_FEE       ERR = 38
	ERR_TX_TOO_LONG_MEMPOOL_CHAIN ERR = 39
	ERR_TX_SCRIPT                 ERR = 40
	ERR_TX_ERROR                  ERR = 41
	ERR_TX_PREMATURE_SPEND        ERR = 42
	// service errors
	ERR_SERVICE_UNAVAILABLE ERR = 50
	ERR_SERVICE_NOT_STARTED ERR = 51
	ERR_SERVICE_ERROR       ERR = 52
	// storage errors
	ERR_STORAGE_UNAVAILABLE ERR = 60
	ERR_STORAGE_NOT_STARTED ERR = 61
	ERR_STORAGE_ERROR       ERR = 62
	// utxo errors
	ERR_UTXO_NOT_FOUND ERR = 70
	ERR_UTXO_EXISTS    ERR = 71
	ERR_SPENT          ERR = 72
	ERR_LOCKTIME       ERR = 73
	// chain state errors
	ERR_UNDO_CORRUPT                  ERR = 80
	ERR_CHAINSTATE_CORRUPTED          ERR = 81
	ERR_FATAL                         ERR = 82
	ERR_COINBASE_MISSING_BLOCK_HEIGHT ERR = 83
)

var ERR_name = map[int32]string{
	0:  "UNKNOWN",
	1:  "INVALID_ARGUMENT",
	2:  "THRESHOLD_EXCEEDED",
	3:  "NOT_FOUND",
	4:  "PROCESSING",
	5:  "CONFIGURATION",
	6:  "CONTEXT",
	7:  "CONTEXT_CANCELED",
	9:  "ERROR",
	10: "BLOCK_NOT_FOUND",
	11: "BLOCK_INVALID",
	12: "BLOCK_EXISTS",
	13: "BLOCK_ERROR",
	14: "BLOCK_PARENT_INVALID",
	15: "BLOCK_CHECKPOINT",
	16: "BLOCK_MISSING_PARENT",
	30: "TX_NOT_FOUND",
	31: "TX_INVALID",
	32: "TX_INVALID_DOUBLE_SPEND",
	33: "TX_ALREADY_EXISTS",
	34: "TX_CONFLICTING",
	35: "TX_MISSING_PARENT",
	36: "TX_POLICY",
	37: "TX_NON_FINAL",
	38: "TX_INSUFFICIENT_FEE",
	39: "TX_TOO_LONG_MEMPOOL_CHAIN",
	40: "TX_SCRIPT",
	41: "TX_ERROR",
	42: "TX_PREMATURE_SPEND",
	50: "SERVICE_UNAVAILABLE",
	51: "SERVICE_NOT_STARTED",
	52: "SERVICE_ERROR",
	60: "STORAGE_UNAVAILABLE",
	61: "STORAGE_NOT_STARTED",
	62: "STORAGE_ERROR",
	70: "UTXO_NOT_FOUND",
	71: "UTXO_EXISTS",
	72: "SPENT",
	73: "LOCKTIME",
	80: "UNDO_CORRUPT",
	81: "CHAINSTATE_CORRUPTED",
	82: "FATAL",
	83: "COINBASE_MISSING_BLOCK_HEIGHT",
}

var ERR_value = func() map[string]int32 {
	m := make(map[string]int32, len(ERR_name))
	for k, v := range ERR_name {
		m[v] = k
	}

	return m
}()

// Enum returns the symbolic name of the code.
func (x ERR) Enum() string {
	if name, ok := ERR_name[int32(x)]; ok {
		return name
	}

	return strconv.Itoa(int(x))
}

func (x ERR) String() string {
	return x.Enum()
}
