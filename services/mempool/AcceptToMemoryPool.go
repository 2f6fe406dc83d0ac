package mempool

import (
	"context"
	"time"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/validator"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/looplab/fsm"
)

// sequenceFinalMinusOne is the highest input sequence that still signals opt-in
// replaceability.
const sequenceFinalMinusOne = 0xfffffffe

// AcceptOptions tune a single admission.
type AcceptOptions struct {
	// LimitFree applies the free relay rate limit to transactions paying less than the
	// relay fee.
	LimitFree bool
	// OverrideMempoolLimit skips the size trim after insertion, used when re-adding
	// transactions of disconnected blocks.
	OverrideMempoolLimit bool
	// RejectAbsurdFee refuses fees far above the relay fee.
	RejectAbsurdFee bool
	// Limits overrides the configured chain limits when set.
	Limits *AncestorLimits
}

// AcceptResult reports how far a transaction got.
type AcceptResult struct {
	State    string
	Entry    *TxMemPoolEntry
	Replaced []*bt.Tx
}

// acceptance carries one transaction through the admission stages. It lives for a
// single AcceptToMemoryPool call with mp.mu held.
type acceptance struct {
	mp   *TxMemPool
	tx   *bt.Tx
	hash chainhash.Hash
	tip  *ChainTip
	opts AcceptOptions
	fsm  *fsm.FSM

	view *poolCoinsView
	size int

	conflicts    map[chainhash.Hash]struct{}
	allConflicts map[chainhash.Hash]struct{}
	ancestors    map[chainhash.Hash]struct{}
	entry        *TxMemPoolEntry
}

// AcceptToMemoryPool validates tx against the pool and the chain tip and adds it on
// success. A transaction with unknown inputs fails with ErrTxMissingParent and belongs
// in the orphan pool. A rejection leaves pool and tip coins as they were, apart from
// the free relay allowance.
func (mp *TxMemPool) AcceptToMemoryPool(ctx context.Context, tx *bt.Tx, tip *ChainTip, opts AcceptOptions) (*AcceptResult, error) {
	start := time.Now()
	defer func() {
		prometheusMempoolAccept.Observe(time.Since(start).Seconds())
	}()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	a := &acceptance{
		mp:   mp,
		tx:   tx,
		hash: *tx.TxIDChainHash(),
		tip:  tip,
		opts: opts,
		fsm:  NewAcceptStateMachine(),
		view: &poolCoinsView{mp: mp, tip: tip.Coins},
		size: tx.Size(),
	}

	// coins this admission pulls into the tip cache are dropped again on rejection
	uncache := make([]model.Outpoint, 0, len(tx.Inputs)+len(tx.Outputs))

	for _, in := range tx.Inputs {
		if outpoint := model.InputOutpoint(in); !tip.Coins.HaveCoinInCache(outpoint) {
			uncache = append(uncache, outpoint)
		}
	}

	for i := range tx.Outputs {
		if outpoint := model.NewOutpoint(&a.hash, uint32(i)); !tip.Coins.HaveCoinInCache(outpoint) { //nolint:gosec // output counts fit uint32
			uncache = append(uncache, outpoint)
		}
	}

	replaced, err := a.run(ctx)
	if err != nil {
		stage := a.fsm.Current()
		_ = a.fsm.Event(ctx, EventReject)

		prometheusMempoolRejected.WithLabelValues(stage).Inc()

		for _, outpoint := range uncache {
			tip.Coins.Uncache(outpoint)
		}

		if !errors.Is(err, errors.ErrTxMissingParent) {
			mp.logger.Debugf("[Mempool] rejected tx %s in state %s: %v", a.hash, stage, err)
		}

		return &AcceptResult{State: a.fsm.Current()}, err
	}

	prometheusMempoolAccepted.Inc()

	mp.notify(&model.Notification{
		Type: model.NotificationTypeTxAccepted,
		Hash: &a.hash,
		Tx:   tx,
	})

	return &AcceptResult{State: a.fsm.Current(), Entry: a.entry, Replaced: replaced}, nil
}

func (a *acceptance) run(ctx context.Context) ([]*bt.Tx, error) {
	stages := []struct {
		event string
		check func(ctx context.Context) error
	}{
		{EventSyntaxChecked, a.checkSyntax},
		{EventInputsResolved, a.resolveInputs},
		{EventPolicyChecked, a.checkPolicy},
		{EventScriptsChecked, a.checkScripts},
	}

	for _, stage := range stages {
		if err := stage.check(ctx); err != nil {
			return nil, err
		}

		if err := a.fsm.Event(ctx, stage.event); err != nil {
			return nil, errors.NewProcessingError("[Mempool] admission of %s could not fire %s", a.hash, stage.event, err)
		}
	}

	replaced, err := a.insert()
	if err != nil {
		return nil, err
	}

	if err = a.fsm.Event(ctx, EventAccept); err != nil {
		return nil, errors.NewProcessingError("[Mempool] admission of %s could not fire %s", a.hash, EventAccept, err)
	}

	return replaced, nil
}

// checkSyntax runs the checks that need neither inputs nor pool state.
func (a *acceptance) checkSyntax(_ context.Context) error {
	mp := a.mp

	if err := validator.CheckTransaction(a.tx, mp.settings.ChainCfgParams.MaxBlockSize); err != nil {
		return err
	}

	if a.tx.IsCoinbase() {
		return errors.NewTxInvalidError(100, errors.RejectInvalid, "coinbase")
	}

	if mp.settings.Policy.RequireStandard {
		if err := validator.IsStandardTx(a.tx, mp.settings.Policy); err != nil {
			return err
		}
	}

	if !validator.CheckFinalTx(a.tx, validator.StandardLockTimeFlags, a.tip.Height, a.tip.MedianTimePast, a.tip.AdjustedTime) {
		return errors.NewTxNonFinalError(0, "non-final")
	}

	if _, ok := mp.entries[a.hash]; ok {
		return errors.NewTxAlreadyExistsError("txn-already-in-mempool")
	}

	return nil
}

// resolveInputs finds pool conflicts and the coins spent by every input.
func (a *acceptance) resolveInputs(ctx context.Context) error {
	mp := a.mp

	a.conflicts = make(map[chainhash.Hash]struct{})

	for _, in := range a.tx.Inputs {
		spender, ok := mp.nextTx[model.InputOutpoint(in)]
		if !ok {
			continue
		}

		if _, seen := a.conflicts[spender]; seen {
			continue
		}

		if !mp.settings.Policy.EnableReplacement || !signalsReplacement(mp.entries[spender].Tx) {
			return errors.NewTxConflictingError("txn-mempool-conflict: input %s already spent by %s", model.InputOutpoint(in), spender)
		}

		a.conflicts[spender] = struct{}{}
	}

	for i := range a.tx.Outputs {
		coin, err := a.tip.Coins.GetCoin(ctx, model.NewOutpoint(&a.hash, uint32(i))) //nolint:gosec // output counts fit uint32
		if err != nil {
			return err
		}

		if coin != nil {
			return errors.NewTxAlreadyExistsError("txn-already-known")
		}
	}

	var missing []model.Outpoint

	for _, in := range a.tx.Inputs {
		outpoint := model.InputOutpoint(in)

		coin, err := a.view.GetCoin(ctx, outpoint)
		if err != nil {
			return err
		}

		if coin == nil {
			missing = append(missing, outpoint)
		}
	}

	if len(missing) > 0 {
		return errors.NewTxMissingParentError("missing-inputs: tx %s spends %d unknown outputs, first %s", a.hash, len(missing), missing[0])
	}

	final, err := checkSequenceLocks(ctx, a.view, a.tip, a.tx)
	if err != nil {
		return err
	}

	if !final {
		return errors.NewTxNonFinalError(0, "non-BIP68-final")
	}

	return nil
}

// signalsReplacement reports whether tx opted in to replacement through one of its
// input sequences.
func signalsReplacement(tx *bt.Tx) bool {
	for _, in := range tx.Inputs {
		if in.SequenceNumber < sequenceFinalMinusOne {
			return true
		}
	}

	return false
}

// checkPolicy computes the fee and applies relay policy, chain limits and the
// replacement rules.
func (a *acceptance) checkPolicy(ctx context.Context) error {
	mp := a.mp
	policy := mp.settings.Policy

	if policy.RequireStandard {
		standard, err := validator.AreInputsStandard(ctx, a.tx, a.view)
		if err != nil {
			return err
		}

		if !standard {
			return errors.NewTxPolicyError(errors.RejectNonstandard, "bad-txns-nonstandard-inputs")
		}
	}

	p2shSigOps, err := validator.GetP2SHSigOpCount(ctx, a.tx, a.view)
	if err != nil {
		return err
	}

	sigOps := validator.GetLegacySigOpCount(a.tx) + p2shSigOps

	fee, err := validator.CheckTxInputs(ctx, a.tx, a.view, a.tip.Height+1, mp.settings.ChainCfgParams.CoinbaseMaturity)
	if err != nil {
		return err
	}

	var (
		inputPriority     float64
		inChainInputValue uint64
		spendsCoinbase    bool
	)

	for _, in := range a.tx.Inputs {
		coin, err := a.view.GetCoin(ctx, model.InputOutpoint(in))
		if err != nil {
			return err
		}

		if coin.Height == MempoolHeight {
			continue
		}

		spendsCoinbase = spendsCoinbase || coin.IsCoinbase
		inChainInputValue += coin.Value

		if age := a.tip.Height - int32(coin.Height); age > 0 { //nolint:gosec // heights fit int32
			inputPriority += float64(coin.Value) * float64(age)
		}
	}

	a.entry = NewTxMemPoolEntry(a.tx, fee, mp.clock.Now(), ComputePriority(a.tx, inputPriority, a.size),
		a.tip.Height, inChainInputValue, spendsCoinbase, sigOps)

	if sigOps > policy.MaxStandardTxSigOps {
		return errors.NewTxPolicyError(errors.RejectNonstandard, "bad-txns-too-many-sigops: %d", sigOps)
	}

	if minFee := validator.GetFee(mp.getMinFee(mp.settings.Mempool.MaxMempoolBytes), a.size); minFee > 0 && int64(fee) < minFee { //nolint:gosec // fees are within MaxMoney
		return errors.NewTxInsufficientFeeError("mempool min fee not met: %d < %d", fee, minFee)
	}

	relayFee := validator.GetFee(policy.MinRelayTxFee, a.size)

	if policy.RelayPriority && int64(fee) < relayFee && !AllowFree(a.entry.Priority(a.tip.Height+1)) { //nolint:gosec // fees are within MaxMoney
		return errors.NewTxInsufficientFeeError("insufficient priority")
	}

	if a.opts.LimitFree && int64(fee) < relayFee { //nolint:gosec // fees are within MaxMoney
		if !mp.freeLimiter.AllowN(mp.clock.Now(), a.size) {
			return errors.NewTxInsufficientFeeError("rate limited free transaction")
		}
	}

	if a.opts.RejectAbsurdFee && int64(fee) > relayFee*policy.AbsurdFeeMultiplier { //nolint:gosec // fees are within MaxMoney
		return errors.NewTxPolicyError(errors.RejectHighFee, "absurdly-high-fee: %d > %d", fee, relayFee*policy.AbsurdFeeMultiplier)
	}

	limits := LimitsFromSettings(mp.settings)
	if a.opts.Limits != nil {
		limits = *a.opts.Limits
	}

	if a.ancestors, err = mp.calculateAncestors(a.tx, a.size, limits); err != nil {
		return err
	}

	for ancestor := range a.ancestors {
		if _, ok := a.conflicts[ancestor]; ok {
			return errors.NewTxInvalidError(10, errors.RejectInvalid, "bad-txns-spends-conflicting-tx: %s spends conflicting transaction %s", a.hash, ancestor)
		}
	}

	if len(a.conflicts) > 0 {
		return a.checkReplacement(fee)
	}

	return nil
}

// checkReplacement applies the replace-by-fee rules to the conflict set. The new
// transaction must pay a strictly higher fee rate than every direct conflict, must not
// evict too many transactions, must not add new unconfirmed inputs and must pay for
// everything it evicts plus its own relay.
func (a *acceptance) checkReplacement(fee uint64) error {
	mp := a.mp
	newFeeRate := feeRate(fee, a.size)

	a.allConflicts = make(map[chainhash.Hash]struct{})
	conflictParents := make(map[chainhash.Hash]struct{})
	count := 0

	for hash := range a.conflicts {
		conflicting := mp.entries[hash]

		if oldFeeRate := conflicting.FeeRate(); newFeeRate <= oldFeeRate {
			return errors.NewTxConflictingError("insufficient fee: rejecting replacement %s, new feerate %.0f <= old feerate %.0f", a.hash, newFeeRate, oldFeeRate)
		}

		for _, in := range conflicting.Tx.Inputs {
			conflictParents[model.InputOutpoint(in).Hash] = struct{}{}
		}

		count += conflicting.CountWithDescendants
	}

	if count > mp.settings.Policy.MaxReplacements {
		return errors.NewTxPolicyError(errors.RejectNonstandard, "too many potential replacements: rejecting replacement %s, %d > %d", a.hash, count, mp.settings.Policy.MaxReplacements)
	}

	for hash := range a.conflicts {
		mp.calculateDescendants(hash, a.allConflicts)
	}

	for _, in := range a.tx.Inputs {
		parent := model.InputOutpoint(in).Hash
		if _, ok := conflictParents[parent]; ok {
			continue
		}

		if _, pooled := mp.entries[parent]; pooled {
			return errors.NewTxPolicyError(errors.RejectNonstandard, "replacement-adds-unconfirmed: replacement %s adds unconfirmed input %s", a.hash, parent)
		}
	}

	var conflictingFees uint64
	for hash := range a.allConflicts {
		conflictingFees += mp.entries[hash].Fee
	}

	if fee < conflictingFees {
		return errors.NewTxConflictingError("insufficient fee: rejecting replacement %s, less fees than conflicting txs; %d < %d", a.hash, fee, conflictingFees)
	}

	increment := validator.GetFee(mp.settings.Mempool.IncrementalRelayFee, a.size)
	if delta := fee - conflictingFees; int64(delta) < increment { //nolint:gosec // fees are within MaxMoney
		return errors.NewTxConflictingError("insufficient fee: rejecting replacement %s, not enough additional fees to relay; %d < %d", a.hash, delta, increment)
	}

	return nil
}

// checkScripts verifies every input under the standard flags, then once more under the
// mandatory flags alone so a standard-flag cache entry can never hide a consensus
// failure.
func (a *acceptance) checkScripts(ctx context.Context) error {
	v := a.mp.validator

	if err := v.CheckInputs(ctx, a.tx, a.view, validator.StandardScriptVerifyFlags, true); err != nil {
		return err
	}

	if err := v.CheckInputs(ctx, a.tx, a.view, validator.MandatoryScriptVerifyFlags, true); err != nil {
		return errors.NewProcessingError("[Mempool] tx %s passed standard script checks but failed the mandatory ones", a.hash, err)
	}

	return nil
}

// insert evicts the replaced transactions, adds the entry and trims the pool.
func (a *acceptance) insert() ([]*bt.Tx, error) {
	mp := a.mp

	var replaced []*bt.Tx

	sizeLimit, expiry := mp.settings.Mempool.MaxMempoolBytes, mp.settings.Mempool.Expiry

	// a replacement that would be trimmed straight away must not evict its conflicts
	if len(a.allConflicts) > 0 && !a.opts.OverrideMempoolLimit &&
		!mp.survivesTrim(a.entry, a.allConflicts, sizeLimit, mp.clock.Now().Add(-expiry)) {
		return nil, errors.NewTxInsufficientFeeError("mempool full")
	}

	if len(a.allConflicts) > 0 {
		replaced = mp.removeStaged(a.allConflicts, RemovalReplaced)
		mp.logger.Debugf("[Mempool] replaced %d transactions with %s", len(replaced), a.hash)
	}

	mp.addUnchecked(a.entry, a.ancestors)

	if !a.opts.OverrideMempoolLimit {
		mp.limitSize(a.tip.Coins, sizeLimit, expiry)

		if _, ok := mp.entries[a.hash]; !ok {
			return replaced, errors.NewTxInsufficientFeeError("mempool full")
		}
	}

	return replaced, nil
}
