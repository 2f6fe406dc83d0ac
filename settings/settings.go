package settings

import (
	"runtime"
	"time"

	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/errors"
)

const (
	// MinDiskSpaceForBlockFiles is the smallest prune target accepted. 288 blocks of 1MB
	// plus undo data and orphan rate, plus one full block file of headroom.
	MinDiskSpaceForBlockFiles = 550 * 1024 * 1024

	// MaxScriptCheckWorkers caps the script verification pool.
	MaxScriptCheckWorkers = 16
)

func NewSettings() *Settings {
	s, err := Load()
	if err != nil {
		panic(err)
	}

	return s
}

// Load reads all settings from the gocore configuration and validates them.
func Load() (*Settings, error) {
	return LoadForNetwork(getString("network", "mainnet"))
}

// NewRegtestSettings returns the configured settings on regtest. Used by tests.
func NewRegtestSettings() *Settings {
	s, err := LoadForNetwork("regtest")
	if err != nil {
		panic(err)
	}

	return s
}

// LoadForNetwork reads the settings as Load does, but for the given network.
func LoadForNetwork(network string) (*Settings, error) {
	params, err := chaincfg.GetChainParams(network)
	if err != nil {
		return nil, err
	}

	pruneMB := getInt64("prune", 0)
	if pruneMB < 0 {
		return nil, errors.NewConfigurationError("prune target cannot be negative: %d", pruneMB)
	}

	pruneTarget := uint64(pruneMB) * 1024 * 1024
	if pruneTarget > 0 && pruneTarget < MinDiskSpaceForBlockFiles {
		return nil, errors.NewConfigurationError("prune configured below the minimum of %d MiB", MinDiskSpaceForBlockFiles/1024/1024)
	}

	return &Settings{
		ClientName:     getString("clientName", "chainstate"),
		DataFolder:     getString("dataFolder", "data"),
		LogLevel:       getString("logLevel", "INFO"),
		ChainCfgParams: params,
		UtxoStore: UtxoStoreSettings{
			Backend:              getString("utxostore_backend", "leveldb"),
			DBCacheBytes:         getInt64("dbcache", 100) * 1024 * 1024,
			LevelDBCacheMB:       getInt("utxostore_leveldbCacheMB", 8),
			LevelDBWriteBufferMB: getInt("utxostore_leveldbWriteBufferMB", 4),
		},
		BlockChain: BlockChainSettings{
			PruneTargetBytes:      pruneTarget,
			CheckpointsEnabled:    getBool("checkpoints", true),
			CheckBlocks:           getInt("checkblocks", 288),
			CheckLevel:            getInt("checklevel", 3),
			DatabaseWriteInterval: getDuration("blockchain_databaseWriteInterval", time.Hour),
			DatabaseFlushInterval: getDuration("blockchain_databaseFlushInterval", 24*time.Hour),
			FlushCheckInterval:    getDuration("blockchain_flushCheckInterval", time.Minute),
			MaxTipAge:             getDuration("maxtipage", 24*time.Hour),
			MaxFutureBlockTime:    getDuration("blockchain_maxFutureBlockTime", 2*time.Hour),
			MaxBlockFileSize:      getUint32("blockchain_maxBlockFileSize", 0x8000000),  // 128 MiB
			BlockFileChunkSize:    getUint32("blockchain_blockFileChunkSize", 0x1000000), // 16 MiB
			UndoFileChunkSize:     getUint32("blockchain_undoFileChunkSize", 0x100000),   // 1 MiB
		},
		Validation: ValidationSettings{
			ScriptCheckWorkers: scriptCheckWorkers(getInt("par", 0)),
			ScriptCacheSize:    getUint64("validation_scriptCacheSize", 100_000),
			ScriptCacheTTL:     getDuration("validation_scriptCacheTTL", 30*time.Minute),
		},
		Policy: &PolicySettings{
			MinRelayTxFee:            getInt64("minrelaytxfee", 1000),
			RequireStandard:          getBool("requirestandard", !params.RelayNonStdTxs),
			EnableReplacement:        getBool("mempoolreplacement", true),
			MaxReplacements:          getInt("maxreplacements", 100),
			LimitFreeRelay:           getInt("limitfreerelay", 15),
			RelayPriority:            getBool("relaypriority", true),
			BytesPerSigop:            getInt("bytespersigop", 20),
			PermitBareMultisig:       getBool("permitbaremultisig", true),
			DataCarrier:              getBool("datacarrier", true),
			DataCarrierSize:          getInt("datacarriersize", 83),
			MaxStandardTxSize:        getInt("maxstandardtxsize", 100_000),
			MaxStandardTxSigOps:      getInt("maxstandardtxsigops", 4000),
			MaxStandardScriptSigSize: getInt("maxstandardscriptsigsize", 1650),
			DustRelayFee:             getInt64("dustrelayfee", 1000),
			AbsurdFeeMultiplier:      getInt64("absurdfeemultiplier", 10000),
		},
		Mempool: MempoolSettings{
			MaxMempoolBytes:     getInt64("maxmempool", 300) * 1_000_000,
			Expiry:              time.Duration(getInt("mempoolexpiry", 72)) * time.Hour,
			ExpiryCheckInterval: getDuration("mempool_expiryCheckInterval", time.Minute),
			AncestorLimit:       getInt("limitancestorcount", 25),
			AncestorSizeLimit:   getInt("limitancestorsize", 101) * 1000,
			DescendantLimit:     getInt("limitdescendantcount", 25),
			DescendantSizeLimit: getInt("limitdescendantsize", 101) * 1000,
			MaxOrphanTxs:        getInt("maxorphantx", 100),
			MaxOrphanTxSize:     getInt("maxorphantxsize", 5000),
			OrphanTTL:           getDuration("mempool_orphanTTL", 20*time.Minute),
			RejectFilterSize:    getUint64("mempool_rejectFilterSize", 120_000),
			IncrementalRelayFee: getInt64("incrementalrelayfee", 1000),
			RollingFeeHalfLife:  getDuration("mempool_rollingFeeHalfLife", 12*time.Hour),
			BanScoreThreshold:   getInt("banscore", 100),
		},
	}, nil
}

// scriptCheckWorkers resolves the configured pool size: 0 means one worker per core,
// negative values leave that many cores free.
func scriptCheckWorkers(par int) int {
	if par <= 0 {
		par += runtime.NumCPU()
	}

	if par < 1 {
		par = 1
	}

	if par > MaxScriptCheckWorkers {
		par = MaxScriptCheckWorkers
	}

	return par
}
