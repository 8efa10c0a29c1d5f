package state

import (
	"time"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/chain"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
	"github.com/slimcoin-project/slimcoin/foundation/events"
)

// BlockResult reports what ProcessBlock did with a block.
type BlockResult struct {
	Accepted   bool
	Orphan     bool
	OrphanRoot wire.Hash
	NewTip     bool
}

// ProcessBlock is the entry point for a block arriving from a peer or
// from the node's own producer. It runs the context-free checks, parks
// the block as an orphan when its parent is unknown, otherwise accepts
// it and then drains any orphans the new block unblocks.
func (s *State) ProcessBlock(b ledger.Block) (BlockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := b.Hash()

	if _, exists := s.chain.Lookup(hash); exists {
		return BlockResult{}, reject.New(reject.Consensus, "already have block %s", hash)
	}
	if s.orphanBlocks.Contains(hash) {
		return BlockResult{}, reject.New(reject.Consensus, "already have block (orphan) %s", hash)
	}

	if err := b.CheckBlock(s.params, s.adjustedTime()); err != nil {
		return BlockResult{}, err
	}

	if _, exists := s.chain.Lookup(b.Header.PrevHash); !exists {
		s.evHandler("state: ProcessBlock: ORPHAN: blk[%s] missing parent[%s]", hash, b.Header.PrevHash)
		s.orphanBlocks.Add(b)
		return BlockResult{Orphan: true, OrphanRoot: s.orphanBlocks.Root(hash)}, nil
	}

	update, err := s.chain.AcceptBlock(b, s.adjustedTime(), s.orphanBlocks.HasDependentOf)
	if err != nil {
		return BlockResult{}, err
	}
	result := BlockResult{Accepted: true}
	result.NewTip = s.applyUpdate(update)

	// Drain orphans that were waiting on this block, and on anything
	// they in turn unblock.
	work := []wire.Hash{hash}
	for len(work) > 0 {
		parent := work[0]
		work = work[1:]

		for _, dep := range s.orphanBlocks.DependentsOf(parent) {
			depHash := dep.Hash()
			s.orphanBlocks.Remove(depHash)

			update, err := s.chain.AcceptBlock(dep, s.adjustedTime(), s.orphanBlocks.HasDependentOf)
			if err != nil {
				s.evHandler("state: ProcessBlock: orphan accept: blk[%s]: ERROR: %s", depHash, err)
				continue
			}
			if s.applyUpdate(update) {
				result.NewTip = true
			}
			work = append(work, depHash)
		}
	}

	return result, nil
}

// applyUpdate folds a best-chain change into the mempool and the event
// stream. It reports whether the tip moved.
func (s *State) applyUpdate(u *chain.Update) bool {
	if u == nil {
		return false
	}

	for _, b := range u.Disconnected {
		for _, tx := range chain.Resurrectable(b) {
			if err := s.mempool.Accept(tx, false, false); err != nil {
				s.evHandler("state: resurrect: tx[%s]: %s", tx.Hash(), err)
			}
		}
		s.send(events.Event{Kind: events.BlockDisconnected, Hash: b.Hash()})
	}

	for _, b := range u.Connected {
		s.mempool.RemoveForBlock(b.Txs)
		s.send(events.Event{Kind: events.BlockConnected, Hash: b.Hash()})
	}

	if len(u.Connected) == 0 && len(u.Disconnected) == 0 {
		return false
	}

	s.lastTipChange = time.Now()
	s.send(events.Event{
		Kind:   events.BestChainUpdated,
		Hash:   u.NewTip.BlockHash,
		Height: u.NewTip.BlockHeight,
	})
	return true
}

// =============================================================================

// TxResult reports what ProcessTransaction did with a transaction.
type TxResult struct {
	Accepted bool
	Orphan   bool
}

// ProcessTransaction is the entry point for a loose transaction. A
// transaction with unknown parents is parked as an orphan; an accepted
// one is offered to the share worker and may unblock parked dependents.
func (s *State) ProcessTransaction(tx ledger.Transaction, fromWallet bool) (TxResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txID := tx.Hash()

	if err := s.mempool.Accept(tx, true, fromWallet); err != nil {
		if reject.IsKind(err, reject.MissingInputs) {
			if !s.orphanTxs.Add(tx) {
				return TxResult{}, reject.New(reject.DoSLite, "ignoring oversized orphan tx")
			}
			s.evHandler("state: ProcessTransaction: ORPHAN: tx[%s]", txID)
			return TxResult{Orphan: true}, nil
		}
		return TxResult{}, err
	}

	s.send(events.Event{Kind: events.TxAccepted, Hash: txID})
	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
	}

	// Drain orphan transactions this acceptance unblocks.
	work := []wire.Hash{txID}
	for len(work) > 0 {
		parent := work[0]
		work = work[1:]

		for _, dep := range s.orphanTxs.DependentsOf(parent) {
			depID := dep.Hash()

			if err := s.mempool.Accept(dep, true, false); err != nil {
				if !reject.IsKind(err, reject.MissingInputs) {
					s.orphanTxs.Remove(depID)
				}
				continue
			}

			s.orphanTxs.Remove(depID)
			s.send(events.Event{Kind: events.TxAccepted, Hash: depID})
			work = append(work, depID)
		}
	}

	return TxResult{Accepted: true}, nil
}
