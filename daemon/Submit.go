package daemon

import (
	"context"

	"github.com/bsv-blockchain/chainstate/errors"
	"github.com/bsv-blockchain/chainstate/model"
	"github.com/bsv-blockchain/chainstate/services/mempool"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// SubmitTxResult describes what happened to a submitted transaction.
type SubmitTxResult struct {
	// Accepted lists the transactions that entered the mempool: the submitted one
	// first, followed by any orphans it made acceptable.
	Accepted []chainhash.Hash
	// Orphan is set when the transaction was held back for missing parents.
	Orphan bool
}

// SubmitBlock decodes and processes a block received from peerID. Blocks arriving
// before their parent or more than once are tolerated. A rejection is returned as
// an error carrying the reject code and the ban score, which is also reported as a
// Misbehaving event against the peer.
func (e *Engine) SubmitBlock(ctx context.Context, raw []byte, peerID string, force bool) error {
	block, err := model.NewBlockFromBytes(raw)
	if err != nil {
		return errors.NewBlockInvalidError(0, errors.RejectMalformed, "block-decode-failed: cannot decode block from %s", peerID, err)
	}

	return e.ProcessBlock(ctx, block, peerID, force)
}

// ProcessBlock is SubmitBlock for an already decoded block.
func (e *Engine) ProcessBlock(ctx context.Context, block *model.Block, peerID string, force bool) error {
	err := e.chainState.ProcessNewBlock(ctx, block, peerID, force, nil)
	if err != nil {
		e.haltOnFatal(err)
		e.punish(peerID, err)
	}

	return err
}

// SubmitTransaction decodes a transaction received from peerID and offers it to the
// mempool. A transaction with unknown inputs is kept as an orphan until its parents
// arrive; one whose parents were rejected is rejected too. When a transaction is
// accepted the orphans spending its outputs are retried.
func (e *Engine) SubmitTransaction(ctx context.Context, raw []byte, peerID string) (*SubmitTxResult, error) {
	tx, err := bt.NewTxFromBytes(raw)
	if err != nil {
		return nil, errors.NewTxInvalidError(0, errors.RejectMalformed, "tx-decode-failed: cannot decode tx from %s", peerID, err)
	}

	return e.ProcessTransaction(ctx, tx, peerID)
}

// ProcessTransaction is SubmitTransaction for an already decoded transaction.
func (e *Engine) ProcessTransaction(ctx context.Context, tx *bt.Tx, peerID string) (*SubmitTxResult, error) {
	if tip := e.chainState.Tip(); tip != nil {
		e.rejects.ResetIfTipChanged(tip.Hash)
	}

	hash := tx.TxIDChainHash()

	if e.alreadyHave(hash) {
		return nil, errors.NewTxAlreadyExistsError("txn-already-known: tx %s", hash)
	}

	_, err := e.chainState.AcceptToMemoryPool(ctx, tx, mempool.AcceptOptions{LimitFree: true})

	switch {
	case err == nil:
		result := &SubmitTxResult{Accepted: []chainhash.Hash{*hash}}
		result.Accepted = append(result.Accepted, e.resolveOrphans(ctx, hash)...)

		return result, nil

	case errors.Is(err, errors.ErrTxMissingParent):
		return e.handleOrphan(tx, peerID, err)

	default:
		e.reject(tx, err)
		e.punish(peerID, err)

		return nil, err
	}
}

// alreadyHave reports whether the transaction is pooled, orphaned or was rejected at
// the current tip.
func (e *Engine) alreadyHave(hash *chainhash.Hash) bool {
	return e.rejects.Contains(hash) || e.mempool.Exists(hash) || e.orphans.Has(hash)
}

func (e *Engine) handleOrphan(tx *bt.Tx, peerID string, missing error) (*SubmitTxResult, error) {
	for _, in := range tx.Inputs {
		if e.rejects.Contains(in.PreviousTxIDChainHash()) {
			e.logger.Debugf("[Engine] not keeping orphan tx %s with rejected parent %s", tx.TxID(), in.PreviousTxIDChainHash())
			e.rejects.Add(tx.TxIDChainHash())

			return nil, missing
		}
	}

	e.orphans.Add(tx, peerID)

	return &SubmitTxResult{Orphan: true}, nil
}

// resolveOrphans retries the orphans depending on parent, and on every transaction
// accepted along the way, in breadth first order.
func (e *Engine) resolveOrphans(ctx context.Context, parent *chainhash.Hash) []chainhash.Hash {
	var accepted []chainhash.Hash

	queue := []chainhash.Hash{*parent}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			break
		}

		head := queue[0]
		queue = queue[1:]

		for _, orphan := range e.orphans.Spending(&head) {
			hash := orphan.Tx.TxIDChainHash()

			if e.mempool.Exists(hash) {
				e.orphans.Remove(hash)
				continue
			}

			_, err := e.chainState.AcceptToMemoryPool(ctx, orphan.Tx, mempool.AcceptOptions{LimitFree: true})

			switch {
			case err == nil:
				e.logger.Debugf("[Engine] accepted orphan tx %s", hash)
				e.orphans.Remove(hash)

				accepted = append(accepted, *hash)
				queue = append(queue, *hash)

			case errors.Is(err, errors.ErrTxMissingParent):
				// still waiting for another parent

			default:
				e.logger.Debugf("[Engine] removed invalid orphan tx %s: %v", hash, err)
				e.orphans.Remove(hash)
				e.reject(orphan.Tx, err)
				e.punish(orphan.PeerID, err)
			}
		}
	}

	return accepted
}

// reject remembers a transaction that broke a consensus or policy rule so it is not
// tried again at this tip. Missing parents never get here, and rejections that could be
// caused by a mutated copy are not remembered.
func (e *Engine) reject(tx *bt.Tx, err error) {
	if errors.IsInvalid(err) && !errors.IsCorruptionPossible(err) && !errors.Is(err, errors.ErrTxAlreadyExists) {
		e.rejects.Add(tx.TxIDChainHash())
	}
}

// punish adds the ban score of err to peerID and reports it.
func (e *Engine) punish(peerID string, err error) {
	score := errors.DoSScore(err)
	if score <= 0 || peerID == "" {
		return
	}

	e.misbehaviorMu.Lock()
	e.misbehavior[peerID] += score
	total := e.misbehavior[peerID]
	e.misbehaviorMu.Unlock()

	threshold := e.settings.Mempool.BanScoreThreshold

	if total >= threshold && total-score < threshold {
		e.logger.Warnf("[Engine] peer %s misbehaving (%d -> %d) ban threshold exceeded: %s", peerID, total-score, total, errors.GetRejectReason(err))
	} else {
		e.logger.Infof("[Engine] peer %s misbehaving (%d -> %d): %s", peerID, total-score, total, errors.GetRejectReason(err))
	}

	e.notify(&model.Notification{
		Type:   model.NotificationTypeMisbehaving,
		PeerID: peerID,
		Score:  score,
		Reason: errors.GetRejectReason(err),
	})
}

// MisbehaviorScore returns the accumulated ban score of peerID.
func (e *Engine) MisbehaviorScore(peerID string) int {
	e.misbehaviorMu.Lock()
	defer e.misbehaviorMu.Unlock()

	return e.misbehavior[peerID]
}

// ShouldBan reports whether peerID reached the ban score threshold.
func (e *Engine) ShouldBan(peerID string) bool {
	return e.MisbehaviorScore(peerID) >= e.settings.Mempool.BanScoreThreshold
}

// PeerDisconnected forgets the score and the orphans of peerID.
func (e *Engine) PeerDisconnected(peerID string) {
	e.misbehaviorMu.Lock()
	delete(e.misbehavior, peerID)
	e.misbehaviorMu.Unlock()

	if n := e.orphans.EraseForPeer(peerID); n > 0 {
		e.logger.Debugf("[Engine] erased %d orphan tx of disconnected peer %s", n, peerID)
	}
}
