package blockvalidation

import (
	"github.com/bsv-blockchain/chainstate/chaincfg"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/lightningnetwork/lnd/clock"
)

// BlockValidator holds what block checks need beyond the block and its parent: the
// network parameters, the script check pool and the version bits cache. It keeps no
// chain state of its own; callers pass the block tree and the coin view, and hold the
// chain lock while doing so.
type BlockValidator struct {
	logger      ulogger.Logger
	settings    *settings.Settings
	params      *chaincfg.Params
	validator   *validator.Validator
	clock       clock.Clock
	checkpoints bool
	versionBits *VersionBitsCache
}

func New(logger ulogger.Logger, tSettings *settings.Settings, txValidator *validator.Validator, opts ...Option) *BlockValidator {
	initPrometheusMetrics()

	options := ProcessOptions(opts...)

	clk := options.clock
	if clk == nil {
		clk = clock.NewDefaultClock()
	}

	checkpoints := tSettings.BlockChain.CheckpointsEnabled
	if options.checkpoints != nil {
		checkpoints = *options.checkpoints
	}

	return &BlockValidator{
		logger:      logger,
		settings:    tSettings,
		params:      tSettings.ChainCfgParams,
		validator:   txValidator,
		clock:       clk,
		checkpoints: checkpoints,
		versionBits: NewVersionBitsCache(tSettings.ChainCfgParams),
	}
}

func (bv *BlockValidator) Params() *chaincfg.Params {
	return bv.params
}

func (bv *BlockValidator) VersionBits() *VersionBitsCache {
	return bv.versionBits
}

func (bv *BlockValidator) CheckpointsEnabled() bool {
	return bv.checkpoints
}

// AdjustedTime is the current time in seconds as used by the timestamp checks.
func (bv *BlockValidator) AdjustedTime() int64 {
	return bv.clock.Now().Unix()
}
