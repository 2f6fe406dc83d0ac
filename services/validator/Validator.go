package validator

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/settings"
	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/bscript/interpreter/scriptflag"
)

// Validator bundles the script verifier, the check queue and the script cache shared
// by mempool admission and block connection.
type Validator struct {
	logger   ulogger.Logger
	settings *settings.Settings
	verifier ScriptVerifier
	queue    *CheckQueue
	cache    *ScriptCache
}

func New(logger ulogger.Logger, tSettings *settings.Settings, opts ...Option) *Validator {
	initPrometheusMetrics()

	options := ProcessOptions(opts...)

	verifier := options.verifier
	if verifier == nil {
		verifier = NewScriptVerifierGoBt(logger)
	}

	workers := options.workers
	if workers == 0 {
		workers = tSettings.Validation.ScriptCheckWorkers
	}

	cache := options.cache
	if cache == nil && !options.noCache && tSettings.Validation.ScriptCacheSize > 0 {
		cache = NewScriptCache(tSettings.Validation.ScriptCacheSize, tSettings.Validation.ScriptCacheTTL)
	}

	logger.Infof("[Validator] script checks on %d workers, script cache size %d", workers, tSettings.Validation.ScriptCacheSize)

	return &Validator{
		logger:   logger,
		settings: tSettings,
		verifier: verifier,
		queue:    NewCheckQueue(verifier, workers),
		cache:    cache,
	}
}

func (v *Validator) Queue() *CheckQueue {
	return v.queue
}

func (v *Validator) ScriptCache() *ScriptCache {
	return v.cache
}

// ScriptChecks returns the checks that still have to run for tx. It returns none when
// the script cache already holds the tx under flags.
func (v *Validator) ScriptChecks(ctx context.Context, tx *bt.Tx, view CoinsView, flags scriptflag.Flag) ([]*ScriptCheck, error) {
	if v.cache.Contains(tx.TxIDChainHash(), flags) {
		prometheusScriptCacheHits.Inc()
		return nil, nil
	}

	return BuildScriptChecks(ctx, tx, view, flags)
}

// CheckInputs verifies every input script of tx right away. A failure that disappears
// under the mandatory flags alone is reported as non-standard with no ban score. With
// cacheStore a success is remembered in the script cache.
func (v *Validator) CheckInputs(ctx context.Context, tx *bt.Tx, view CoinsView, flags scriptflag.Flag, cacheStore bool) error {
	start := time.Now()
	defer func() {
		prometheusCheckInputs.Observe(time.Since(start).Seconds())
	}()

	if tx.IsCoinbase() {
		return nil
	}

	checks, err := v.ScriptChecks(ctx, tx, view, flags)
	if err != nil {
		return err
	}

	if len(checks) == 0 {
		return nil
	}

	if err = v.queue.Run(ctx, checks); err != nil {
		if !errors.Is(err, errors.ErrTxScript) {
			return err
		}

		if flags&^MandatoryScriptVerifyFlags != 0 {
			mandatory, mErr := BuildScriptChecks(ctx, tx, view, flags&MandatoryScriptVerifyFlags)
			if mErr != nil {
				return mErr
			}

			if v.queue.Run(ctx, mandatory) == nil {
				return errors.NewTxScriptError(0, errors.RejectNonstandard, "non-mandatory-script-verify-flag", err)
			}
		}

		return errors.NewTxScriptError(100, errors.RejectInvalid, "mandatory-script-verify-flag-failed", err)
	}

	if cacheStore {
		v.cache.Add(tx.TxIDChainHash(), flags)
	}

	return nil
}

// Stop releases the script cache.
func (v *Validator) Stop() {
	v.cache.Stop()
}
