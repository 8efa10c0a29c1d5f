package state

import (
	"github.com/slimcoin-project/slimcoin/foundation/consensus/chain"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/peer"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
	"github.com/slimcoin-project/slimcoin/foundation/events"
)

// Params returns the chain parameters the node runs with.
func (s *State) Params() genesis.Params {
	return s.params
}

// Host returns this node's gossip address.
func (s *State) Host() string {
	return s.host
}

// RetrieveKnownPeers returns the current set of usable peers.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// KnownPeers returns the peer set itself for the dispatcher.
func (s *State) KnownPeers() *peer.Set {
	return s.knownPeers
}

// RetrieveHeight returns the current main-chain height.
func (s *State) RetrieveHeight() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain.Height()
}

// RetrieveBestHash returns the hash of the main-chain tip.
func (s *State) RetrieveBestHash() wire.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.chain.Best().BlockHash
}

// RetrieveBlockByHash reads a full block by hash.
func (s *State) RetrieveBlockByHash(hash wire.Hash) (ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bi, exists := s.chain.Lookup(hash)
	if !exists {
		return ledger.Block{}, reject.New(reject.Consensus, "block %s not found", hash)
	}
	return s.chain.ReadBlock(bi)
}

// RetrieveBlocksFrom reads up to limit main-chain blocks starting at the
// specified height.
func (s *State) RetrieveBlocksFrom(height int32, limit int) ([]ledger.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blocks []ledger.Block
	for h := height; h <= s.chain.Height() && len(blocks) < limit; h++ {
		bi := s.chain.AtHeight(h)
		if bi == nil {
			break
		}
		b, err := s.chain.ReadBlock(bi)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// RetrieveMainChainHashes returns main-chain block hashes after the
// specified locator hash, up to limit, for inventory responses.
func (s *State) RetrieveMainChainHashes(after wire.Hash, limit int) []wire.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := int32(0)
	if bi, exists := s.chain.Lookup(after); exists {
		start = bi.BlockHeight + 1
	}

	var hashes []wire.Hash
	for h := start; h <= s.chain.Height() && len(hashes) < limit; h++ {
		bi := s.chain.AtHeight(h)
		if bi == nil {
			break
		}
		hashes = append(hashes, bi.BlockHash)
	}
	return hashes
}

// HasBlock reports whether the block is in the index or the orphan pool.
func (s *State) HasBlock(hash wire.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chain.Lookup(hash); exists {
		return true
	}
	return s.orphanBlocks.Contains(hash)
}

// HasTransaction reports whether the transaction is known anywhere: the
// mempool, the orphan pool, or the main chain.
func (s *State) HasTransaction(txID wire.Hash) bool {
	if s.mempool.Contains(txID) {
		return true
	}
	if s.orphanTxs.Contains(txID) {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.chain.StoreContains(txID)
	return err == nil && found
}

// RetrieveMempool returns a snapshot of the pooled transactions.
func (s *State) RetrieveMempool() []ledger.Transaction {
	return s.mempool.Copy()
}

// MempoolContains reports whether the pool holds the transaction.
func (s *State) MempoolContains(txID wire.Hash) bool {
	return s.mempool.Contains(txID)
}

// MempoolLookup returns a pooled transaction by id.
func (s *State) MempoolLookup(txID wire.Hash) (ledger.Transaction, bool) {
	return s.mempool.Lookup(txID)
}

// Chain exposes the chain for tooling that inspects the index.
func (s *State) Chain() *chain.Chain {
	return s.chain
}

// =============================================================================

// AcceptSyncCheckpoint validates and persists a sync checkpoint received
// out of band. An unknown hash is ignored until the block shows up; a
// hash off the main chain trips safe mode through the warning event.
func (s *State) AcceptSyncCheckpoint(hash wire.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bi, exists := s.chain.Lookup(hash)
	if !exists {
		return reject.New(reject.Consensus, "sync checkpoint %s not known", hash)
	}

	if s.chain.AtHeight(bi.BlockHeight) != bi {
		s.send(events.Event{
			Kind:   events.Warning,
			Hash:   hash,
			Detail: "invalid sync checkpoint: entering safe mode",
		})
		return reject.New(reject.CheckpointRejected, "sync checkpoint not in main chain")
	}

	if err := s.chain.WriteSyncCheckpoint(hash); err != nil {
		return err
	}

	s.evHandler("state: sync checkpoint: %s height[%d]", hash, bi.BlockHeight)
	return nil
}
