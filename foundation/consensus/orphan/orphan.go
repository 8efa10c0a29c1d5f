// Package orphan maintains the bounded pools of blocks and transactions
// whose antecedents are not yet known locally.
package orphan

import (
	"sync"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Blocks holds orphan blocks keyed by hash with a multimap from the
// missing parent to the orphans waiting on it.
type Blocks struct {
	mu     sync.RWMutex
	byHash map[wire.Hash]ledger.Block
	byPrev map[wire.Hash][]wire.Hash
	max    int
}

// NewBlocks constructs an orphan block pool holding at most max entries.
func NewBlocks(max int) *Blocks {
	if max <= 0 {
		max = genesis.DefaultMaxOrphanBlocks
	}
	return &Blocks{
		byHash: make(map[wire.Hash]ledger.Block),
		byPrev: make(map[wire.Hash][]wire.Hash),
		max:    max,
	}
}

// Count returns the current number of orphans in the pool.
func (ob *Blocks) Count() int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return len(ob.byHash)
}

// Contains reports whether the specified block is in the pool.
func (ob *Blocks) Contains(hash wire.Hash) bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	_, exists := ob.byHash[hash]
	return exists
}

// Get returns the orphan block with the specified hash.
func (ob *Blocks) Get(hash wire.Hash) (ledger.Block, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	b, exists := ob.byHash[hash]
	return b, exists
}

// Add inserts an orphan block, pruning when the pool is over capacity.
func (ob *Blocks) Add(b ledger.Block) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	hash := b.Hash()
	if _, exists := ob.byHash[hash]; exists {
		return
	}

	ob.byHash[hash] = b
	ob.byPrev[b.Header.PrevHash] = append(ob.byPrev[b.Header.PrevHash], hash)

	for len(ob.byHash) > ob.max {
		ob.pruneOne()
	}
}

// pruneOne picks an arbitrary orphan and descends into its dependents
// until reaching a leaf, then removes the leaf. Deleting leaves first
// keeps every remaining orphan's dependents intact.
func (ob *Blocks) pruneOne() {
	var victim wire.Hash
	for hash := range ob.byHash {
		victim = hash
		break
	}

	for {
		children := ob.byPrev[victim]
		if len(children) == 0 {
			break
		}
		victim = children[0]
	}

	ob.remove(victim)
}

// Remove deletes the specified orphan from the pool.
func (ob *Blocks) Remove(hash wire.Hash) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.remove(hash)
}

func (ob *Blocks) remove(hash wire.Hash) {
	b, exists := ob.byHash[hash]
	if !exists {
		return
	}
	delete(ob.byHash, hash)

	prev := b.Header.PrevHash
	siblings := ob.byPrev[prev]
	for i, sib := range siblings {
		if sib == hash {
			ob.byPrev[prev] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(ob.byPrev[prev]) == 0 {
		delete(ob.byPrev, prev)
	}
}

// Root walks the orphan's ancestry as far as the pool knows it and
// returns the earliest missing block, which is what should be requested
// from peers.
func (ob *Blocks) Root(hash wire.Hash) wire.Hash {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	for {
		b, exists := ob.byHash[hash]
		if !exists {
			return hash
		}
		hash = b.Header.PrevHash
	}
}

// DependentsOf returns the orphans waiting on the specified parent.
func (ob *Blocks) DependentsOf(parent wire.Hash) []ledger.Block {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	var deps []ledger.Block
	for _, hash := range ob.byPrev[parent] {
		deps = append(deps, ob.byHash[hash])
	}
	return deps
}

// HasDependentOf reports whether any orphan builds on the specified
// parent. Duplicate-stake handling needs this.
func (ob *Blocks) HasDependentOf(parent wire.Hash) bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return len(ob.byPrev[parent]) > 0
}

// =============================================================================

// Transactions holds orphan transactions keyed by hash with a multimap
// from each missing previous transaction to its dependents.
type Transactions struct {
	mu       sync.RWMutex
	byHash   map[wire.Hash]ledger.Transaction
	byPrevTx map[wire.Hash][]wire.Hash
	max      int
}

// NewTransactions constructs an orphan transaction pool holding at most
// max entries.
func NewTransactions(max int) *Transactions {
	if max <= 0 {
		max = genesis.MaxOrphanTransactions
	}
	return &Transactions{
		byHash:   make(map[wire.Hash]ledger.Transaction),
		byPrevTx: make(map[wire.Hash][]wire.Hash),
		max:      max,
	}
}

// Count returns the current number of orphans in the pool.
func (ot *Transactions) Count() int {
	ot.mu.RLock()
	defer ot.mu.RUnlock()

	return len(ot.byHash)
}

// Contains reports whether the specified transaction is in the pool.
func (ot *Transactions) Contains(hash wire.Hash) bool {
	ot.mu.RLock()
	defer ot.mu.RUnlock()

	_, exists := ot.byHash[hash]
	return exists
}

// Add inserts an orphan transaction. Oversized transactions are refused
// outright: a cheap way to fill the pool would otherwise exist.
func (ot *Transactions) Add(tx ledger.Transaction) bool {
	if tx.SerializedSize() > genesis.MaxOrphanTxSize {
		return false
	}

	ot.mu.Lock()
	defer ot.mu.Unlock()

	hash := tx.Hash()
	if _, exists := ot.byHash[hash]; exists {
		return true
	}

	ot.byHash[hash] = tx
	for _, in := range tx.Inputs {
		ot.byPrevTx[in.PrevOut.Hash] = append(ot.byPrevTx[in.PrevOut.Hash], hash)
	}

	for len(ot.byHash) > ot.max {
		for victim := range ot.byHash {
			ot.remove(victim)
			break
		}
	}

	return true
}

// Remove deletes the specified orphan from the pool.
func (ot *Transactions) Remove(hash wire.Hash) {
	ot.mu.Lock()
	defer ot.mu.Unlock()

	ot.remove(hash)
}

func (ot *Transactions) remove(hash wire.Hash) {
	tx, exists := ot.byHash[hash]
	if !exists {
		return
	}
	delete(ot.byHash, hash)

	for _, in := range tx.Inputs {
		deps := ot.byPrevTx[in.PrevOut.Hash]
		for i, dep := range deps {
			if dep == hash {
				ot.byPrevTx[in.PrevOut.Hash] = append(deps[:i], deps[i+1:]...)
				break
			}
		}
		if len(ot.byPrevTx[in.PrevOut.Hash]) == 0 {
			delete(ot.byPrevTx, in.PrevOut.Hash)
		}
	}
}

// DependentsOf returns the orphans waiting on the specified transaction.
func (ot *Transactions) DependentsOf(txID wire.Hash) []ledger.Transaction {
	ot.mu.RLock()
	defer ot.mu.RUnlock()

	var deps []ledger.Transaction
	for _, hash := range ot.byPrevTx[txID] {
		deps = append(deps, ot.byHash[hash])
	}
	return deps
}
