// Package mempool maintains the pool of loose transactions waiting to be
// mined, with dependency-aware acceptance, conflict rejection and a
// decaying rate limit on free transactions.
package mempool

import (
	"math"
	"sync"
	"time"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/chain"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/script"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/store"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// EventHandler defines a function that is called when events occur in
// the processing of transactions.
type EventHandler func(v string, args ...any)

// outRef records which pooled transaction claims an outpoint.
type outRef struct {
	txID       wire.Hash
	inputIndex int
}

// Config represents the configuration required to construct a mempool.
type Config struct {
	Params    genesis.Params
	Chain     *chain.Chain
	EvHandler EventHandler
}

// Mempool represents the cache of loose transactions keyed by hash, with
// a second map enforcing single occupancy per claimed outpoint.
type Mempool struct {
	mu sync.RWMutex

	params    genesis.Params
	chain     *chain.Chain
	evHandler EventHandler

	byHash     map[wire.Hash]ledger.Transaction
	byOutpoint map[ledger.OutPoint]outRef

	counter uint64

	// Free-relay limiter state. A mempool field, not process state, so
	// two pools never share a window.
	freeBytes    float64
	freeLastTime time.Time
	now          func() time.Time
}

// New constructs a mempool for the specified chain.
func New(cfg Config) *Mempool {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	mp := Mempool{
		params:     cfg.Params,
		chain:      cfg.Chain,
		evHandler:  ev,
		byHash:     make(map[wire.Hash]ledger.Transaction),
		byOutpoint: make(map[ledger.OutPoint]outRef),
		now:        time.Now,
	}

	// Input fetching only consults the pool from inside Accept, which
	// already holds the pool lock, so the installed lookup must not
	// take it again.
	cfg.Chain.SetMemLookup(mp.lookupHeld)

	return &mp
}

// lookupHeld returns a pooled transaction without taking the pool lock.
func (mp *Mempool) lookupHeld(txID wire.Hash) (ledger.Transaction, bool) {
	tx, exists := mp.byHash[txID]
	return tx, exists
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.byHash)
}

// Counter returns the update counter, bumped on every insert or remove,
// so gossip snapshots can tell whether anything changed.
func (mp *Mempool) Counter() uint64 {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.counter
}

// Lookup returns the pooled transaction with the specified id.
func (mp *Mempool) Lookup(txID wire.Hash) (ledger.Transaction, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	tx, exists := mp.byHash[txID]
	return tx, exists
}

// Contains reports whether the pool holds the specified transaction.
func (mp *Mempool) Contains(txID wire.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.byHash[txID]
	return exists
}

// Copy returns the pooled transactions for gossip snapshotting.
func (mp *Mempool) Copy() []ledger.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]ledger.Transaction, 0, len(mp.byHash))
	for _, tx := range mp.byHash {
		txs = append(txs, tx)
	}
	return txs
}

// Hashes returns the ids of the pooled transactions.
func (mp *Mempool) Hashes() []wire.Hash {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	hashes := make([]wire.Hash, 0, len(mp.byHash))
	for txID := range mp.byHash {
		hashes = append(hashes, txID)
	}
	return hashes
}

// =============================================================================

// Accept runs a loose transaction through the acceptance pipeline and
// inserts it on success. With checkInputs set, previous outputs are
// resolved and validated; a MissingInputs rejection means the caller
// should hold the transaction as an orphan. fromWallet exempts the
// node's own transactions from the free-relay limiter.
func (mp *Mempool) Accept(tx ledger.Transaction, checkInputs bool, fromWallet bool) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if err := tx.CheckTransaction(); err != nil {
		return err
	}

	if tx.IsCoinbase() {
		return reject.DoS(reject.Malformed, 100, "coinbase as individual tx")
	}
	if tx.IsCoinstake() {
		return reject.DoS(reject.Malformed, 100, "coinstake as individual tx")
	}

	if tx.LockTime > genesis.MaxLockTime {
		return reject.New(reject.Malformed, "locktime out of range")
	}

	if mp.params.Name == "mainnet" {
		if err := tx.IsStandard(); err != nil {
			return reject.New(reject.Consensus, "nonstandard transaction: %s", err)
		}
	}

	txID := tx.Hash()
	if _, exists := mp.byHash[txID]; exists {
		return reject.New(reject.Consensus, "already in pool")
	}
	if found, err := mp.chain.StoreContains(txID); err != nil {
		return reject.New(reject.Transient, "checking store: %s", err)
	} else if found {
		return reject.New(reject.Consensus, "already in chain")
	}

	// Replacement is disabled: any conflict with a pooled spend rejects
	// the newcomer outright.
	for _, in := range tx.Inputs {
		if _, claimed := mp.byOutpoint[in.PrevOut]; claimed {
			return reject.New(reject.Consensus, "conflicts with in-pool spend of %s", in.PrevOut)
		}
	}

	if checkInputs {
		pool := chain.NewTestPool()
		if err := mp.chain.FetchInputs(tx, pool, true, false); err != nil {
			return err
		}

		// Inputs must come from recognizable scripts on mainnet.
		if mp.params.Name == "mainnet" {
			for _, in := range tx.Inputs {
				prev := pool[in.PrevOut.Hash]
				if script.Classify(prev.Tx.Outputs[in.PrevOut.Index].PubKeyScript) == script.NonStandard {
					return reject.New(reject.Consensus, "nonstandard input scripts")
				}
			}
		}

		fee, _, err := mp.chain.ConnectInputs(tx, pool, store.NullPos(), mp.chain.Height()+1, false)
		if err != nil {
			return err
		}

		minRelay := tx.MinFee(1000, true, ledger.FeeModeRelay)
		if fee < minRelay {
			return reject.New(reject.Consensus, "not enough fees")
		}

		if fee < genesis.MinRelayTxFee && !fromWallet {
			if err := mp.limitFree(tx.SerializedSize()); err != nil {
				return err
			}
		}
	}

	mp.byHash[txID] = tx
	for i, in := range tx.Inputs {
		mp.byOutpoint[in.PrevOut] = outRef{txID: txID, inputIndex: i}
	}
	mp.counter++

	mp.evHandler("mempool: accept: tx[%s] pool size[%d]", txID, len(mp.byHash))
	return nil
}

// limitFree applies the exponentially decaying byte counter for free
// transactions. Called with the pool lock held.
func (mp *Mempool) limitFree(size int) error {
	now := mp.now()

	if !mp.freeLastTime.IsZero() {
		elapsed := now.Sub(mp.freeLastTime).Seconds()
		mp.freeBytes *= math.Pow(1.0-1.0/genesis.FreeRelayHalfLifeSecs, elapsed)
	}
	mp.freeLastTime = now

	if mp.freeBytes+float64(size) > genesis.FreeRelayLimitBytes {
		return reject.New(reject.DoSLite, "free transaction rejected by rate limiter")
	}

	mp.freeBytes += float64(size)
	mp.evHandler("mempool: rate limiter: free bytes[%.0f]", mp.freeBytes)
	return nil
}

// =============================================================================

// Remove deletes a transaction from the pool.
func (mp *Mempool) Remove(txID wire.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.remove(txID)
}

func (mp *Mempool) remove(txID wire.Hash) {
	tx, exists := mp.byHash[txID]
	if !exists {
		return
	}

	delete(mp.byHash, txID)
	for _, in := range tx.Inputs {
		if ref, claimed := mp.byOutpoint[in.PrevOut]; claimed && ref.txID == txID {
			delete(mp.byOutpoint, in.PrevOut)
		}
	}
	mp.counter++
}

// RemoveForBlock deletes the block's transactions from the pool along
// with anything that conflicts with their spends.
func (mp *Mempool) RemoveForBlock(txs []ledger.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		txID := tx.Hash()
		mp.remove(txID)

		for _, in := range tx.Inputs {
			if ref, claimed := mp.byOutpoint[in.PrevOut]; claimed && ref.txID != txID {
				mp.remove(ref.txID)
			}
		}
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.byHash = make(map[wire.Hash]ledger.Transaction)
	mp.byOutpoint = make(map[ledger.OutPoint]outRef)
	mp.counter++
}
