package settings

import (
	"time"

	"github.com/bsv-blockchain/chainstate/chaincfg"
)

type UtxoStoreSettings struct {
	// Backend selects the coin database: "leveldb" or "memory".
	Backend string
	// DBCacheBytes is the budget of the in-memory coin cache; exceeding it forces a flush.
	DBCacheBytes int64
	// LevelDBCacheMB and LevelDBWriteBufferMB tune goleveldb.
	LevelDBCacheMB       int
	LevelDBWriteBufferMB int
}

type BlockChainSettings struct {
	// PruneTargetBytes is the disk budget for blk/rev files; 0 disables pruning.
	PruneTargetBytes   uint64
	CheckpointsEnabled bool
	// CheckBlocks and CheckLevel drive the start-up database verification.
	CheckBlocks           int
	CheckLevel            int
	DatabaseWriteInterval time.Duration
	DatabaseFlushInterval time.Duration
	// FlushCheckInterval is how often the daemon asks for a periodic flush.
	FlushCheckInterval time.Duration
	MaxTipAge             time.Duration
	MaxFutureBlockTime    time.Duration
	// MaxBlockFileSize, BlockFileChunkSize and UndoFileChunkSize control the flat file layout.
	MaxBlockFileSize   uint32
	BlockFileChunkSize uint32
	UndoFileChunkSize  uint32
}

type ValidationSettings struct {
	// ScriptCheckWorkers is the size of the script verification pool; 0 uses all cores.
	ScriptCheckWorkers int
	ScriptCacheSize    uint64
	ScriptCacheTTL     time.Duration
}

type PolicySettings struct {
	// MinRelayTxFee is the fee rate in satoshis per 1000 bytes below which a transaction
	// is considered free for relay and mining purposes.
	MinRelayTxFee int64 `json:"minrelaytxfee"`
	// RequireStandard rejects non-standard scripts and transactions.
	RequireStandard bool `json:"requirestandard"`
	// EnableReplacement allows replace-by-fee of pooled transactions.
	EnableReplacement bool `json:"mempoolreplacement"`
	// MaxReplacements bounds the number of pooled transactions a replacement may evict.
	MaxReplacements int `json:"maxreplacements"`
	// LimitFreeRelay is the allowance for free transactions, in thousands of bytes per minute.
	LimitFreeRelay int `json:"limitfreerelay"`
	// RelayPriority requires high priority for free transactions.
	RelayPriority bool `json:"relaypriority"`
	// BytesPerSigop is the virtual size charged for each signature operation.
	BytesPerSigop int `json:"bytespersigop"`
	// PermitBareMultisig allows bare multisig outputs as standard.
	PermitBareMultisig bool `json:"permitbaremultisig"`
	// DataCarrier allows OP_RETURN outputs as standard, up to DataCarrierSize bytes.
	DataCarrier     bool `json:"datacarrier"`
	DataCarrierSize int  `json:"datacarriersize"`
	// MaxStandardTxSize is the largest standard transaction.
	MaxStandardTxSize int `json:"maxstandardtxsize"`
	// MaxStandardTxSigOps is the largest number of sigops in a standard transaction.
	MaxStandardTxSigOps int `json:"maxstandardtxsigops"`
	// MaxStandardScriptSigSize is the largest standard unlocking script.
	MaxStandardScriptSigSize int `json:"maxstandardscriptsigsize"`
	// DustRelayFee sets the dust threshold of outputs, in satoshis per 1000 bytes.
	DustRelayFee int64 `json:"dustrelayfee"`
	// AbsurdFeeMultiplier rejects fees above this multiple of the min relay fee when asked to.
	AbsurdFeeMultiplier int64 `json:"absurdfeemultiplier"`
}

type MempoolSettings struct {
	MaxMempoolBytes     int64
	Expiry              time.Duration
	ExpiryCheckInterval time.Duration
	AncestorLimit       int
	AncestorSizeLimit   int
	DescendantLimit     int
	DescendantSizeLimit int
	MaxOrphanTxs        int
	MaxOrphanTxSize     int
	OrphanTTL           time.Duration
	RejectFilterSize    uint64
	IncrementalRelayFee int64
	RollingFeeHalfLife  time.Duration
	BanScoreThreshold   int
}

type Settings struct {
	ClientName     string
	DataFolder     string
	LogLevel       string
	ChainCfgParams *chaincfg.Params
	UtxoStore      UtxoStoreSettings
	BlockChain     BlockChainSettings
	Validation     ValidationSettings
	Policy         *PolicySettings
	Mempool        MempoolSettings
}
