package chain

import (
	"github.com/slimcoin-project/slimcoin/foundation/consensus/difficulty"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/store"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// PoolEntry pairs a transaction with its index state while a block or a
// mempool candidate is being connected.
type PoolEntry struct {
	Idx store.TxIndex
	Tx  ledger.Transaction
}

// TestPool is the in-progress view of transaction state a connect
// operation builds up: entries shadow the store until flushed.
type TestPool map[wire.Hash]*PoolEntry

// NewTestPool constructs an empty test pool.
func NewTestPool() TestPool {
	return make(TestPool)
}

// =============================================================================

// FetchInputs resolves every previous transaction an input references,
// consulting the test pool first, then the store, then (when allowed) the
// mempool. Resolved entries land in the pool. A missing input is a
// MissingInputs rejection, upgraded to a scored rejection in block
// context where the previous transaction was required to exist.
func (c *Chain) FetchInputs(tx ledger.Transaction, pool TestPool, useMempool bool, blockContext bool) error {
	if tx.IsCoinbase() {
		return nil
	}

	for _, in := range tx.Inputs {
		prevID := in.PrevOut.Hash
		if _, done := pool[prevID]; done {
			continue
		}

		idx, found, err := c.store.ReadTxIndex(prevID)
		if err != nil {
			return reject.New(reject.Transient, "reading tx index: %s", err)
		}
		if found {
			prevTx, err := c.files.ReadTransaction(idx.Pos)
			if err != nil {
				return reject.New(reject.Transient, "reading prev tx: %s", err)
			}
			pool[prevID] = &PoolEntry{Idx: idx, Tx: prevTx}
			continue
		}

		if useMempool && c.memLookup != nil {
			if memTx, ok := c.memLookup(prevID); ok {
				pool[prevID] = &PoolEntry{
					Idx: store.NewTxIndex(store.NullPos(), -1, len(memTx.Outputs)),
					Tx:  memTx,
				}
				continue
			}
		}

		if blockContext {
			return reject.DoS(reject.MissingInputs, 10, "input %s not found, block invalid", prevID)
		}
		return reject.New(reject.MissingInputs, "input %s not found", prevID)
	}

	for _, in := range tx.Inputs {
		prev := pool[in.PrevOut.Hash]
		if in.PrevOut.Index >= uint32(len(prev.Tx.Outputs)) {
			return reject.DoS(reject.OutOfRange, 100, "prevout index %d out of range", in.PrevOut.Index)
		}
	}

	return nil
}

// =============================================================================

// ConnectInputs enforces every context-dependent input rule for one
// transaction whose inputs were fetched into the pool: maturity windows,
// timestamp monotonicity, double spends, script validity and the value
// constraints per transaction kind. With commit set, the spent slots in
// the pool are claimed; a dry run leaves the pool untouched. The return
// value is the fee destroyed by a non-coinstake transaction.
func (c *Chain) ConnectInputs(tx ledger.Transaction, pool TestPool, posThis store.DiskPos, height int32, commit bool) (fee int64, valueIn int64, err error) {
	if tx.IsCoinbase() {
		return 0, 0, nil
	}

	for i, in := range tx.Inputs {
		prev := pool[in.PrevOut.Hash]
		prevOut := prev.Tx.Outputs[in.PrevOut.Index]

		if err := c.checkMaturity(prev, height); err != nil {
			return 0, 0, err
		}

		if prev.Tx.Time > tx.Time {
			return 0, 0, reject.DoS(reject.Consensus, 100, "transaction timestamp earlier than input")
		}

		if !prev.Idx.Spent[in.PrevOut.Index].IsNull() {
			return 0, 0, reject.New(reject.Consensus, "input %s already spent", in.PrevOut)
		}

		// Signature checks run through the external verifier, skipped
		// below the latest hardened checkpoint where matching merkle
		// roots already pin the history.
		if c.verifier != nil && height > c.lastCheckpointHeight {
			if err := c.verifier.VerifyInput(tx, i, prevOut); err != nil {
				return 0, 0, reject.DoS(reject.Consensus, 100, "script verification failed: %s", err)
			}
		}

		valueIn += prevOut.Value
		if !genesis.MoneyRange(prevOut.Value) || !genesis.MoneyRange(valueIn) {
			return 0, 0, reject.DoS(reject.Malformed, 100, "input values out of range")
		}

		if commit {
			prev.Idx.Spent[in.PrevOut.Index] = posThis
		}
	}

	valueOut, err := tx.ValueOut()
	if err != nil {
		return 0, 0, err
	}

	if tx.IsCoinstake() {
		coinDays, err := c.coinAge(tx, pool)
		if err != nil {
			return 0, 0, err
		}

		reward := valueOut - valueIn
		ceiling := difficulty.StakeReward(coinDays, tx.Time) -
			tx.MinFee(1, false, ledger.FeeModeBlock) + genesis.MinTxFee
		if reward > ceiling {
			return 0, 0, reject.DoS(reject.Consensus, 100, "stake reward %d exceeds %d", reward, ceiling)
		}
		return 0, valueIn, nil
	}

	if valueOut > valueIn {
		return 0, 0, reject.DoS(reject.Consensus, 100, "value out exceeds value in")
	}

	fee = valueIn - valueOut
	if !genesis.MoneyRange(fee) {
		return 0, 0, reject.DoS(reject.Malformed, 100, "fee out of range")
	}
	if commit && fee < tx.MinFee(1, false, ledger.FeeModeBlock) {
		return 0, 0, reject.New(reject.Consensus, "fee below minimum")
	}

	return fee, valueIn, nil
}

// checkMaturity rejects spends of coinbase and coinstake outputs that
// have not cleared their confirmation window. A proof-of-burn coinbase
// additionally waits for proof-of-work confirmations.
func (c *Chain) checkMaturity(prev *PoolEntry, height int32) error {
	if !prev.Tx.IsCoinbase() && !prev.Tx.IsCoinstake() {
		return nil
	}
	if prev.Idx.Height < 0 {
		return reject.New(reject.Consensus, "coinbase outside a block")
	}

	depth := height - prev.Idx.Height
	if depth < c.params.CoinbaseMaturity {
		return reject.New(reject.Consensus, "tried to spend coinbase at depth %d", depth)
	}

	if container := c.atHeight(prev.Idx.Height); container != nil && container.IsProofOfBurn() {
		to := height - 1
		if to > c.best.BlockHeight {
			to = c.best.BlockHeight
		}
		if c.countPoWBlocks(prev.Idx.Height, to) < c.params.BurnMinConfirms {
			return reject.New(reject.Consensus, "burn reward lacks proof-of-work confirmations")
		}
	}

	return nil
}

// coinAge accumulates cent-seconds over the inputs old enough to count
// and converts them to coin-days.
func (c *Chain) coinAge(tx ledger.Transaction, pool TestPool) (int64, error) {
	var centSeconds int64

	for _, in := range tx.Inputs {
		prev := pool[in.PrevOut.Hash]
		prevOut := prev.Tx.Outputs[in.PrevOut.Index]

		if prev.Tx.Time > tx.Time {
			return 0, reject.DoS(reject.Consensus, 100, "transaction timestamp earlier than input")
		}
		if tx.Time-prev.Tx.Time < c.params.StakeMinAge {
			continue
		}

		centSeconds += prevOut.Value * int64(tx.Time-prev.Tx.Time) / genesis.Cent
	}

	return difficulty.CoinDays(centSeconds), nil
}
