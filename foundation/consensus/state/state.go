// Package state is the core API for the consensus engine. It owns every
// piece of consensus state as one value and implements the entry points
// the dispatcher and the node's own workers drive.
package state

import (
	"sync"
	"time"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/chain"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/mempool"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/orphan"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/peer"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/store"
	"github.com/slimcoin-project/slimcoin/foundation/events"
)

// EventHandler defines a function that is called when events occur in
// the processing of transactions and blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by
// any package providing support for peer updates and sharing
// transactions and blocks.
type Worker interface {
	Shutdown()
	Sync()
	SignalShareTx(tx ledger.Transaction)
	SignalShareBlock(b ledger.Block)
}

// =============================================================================

// Config represents the configuration required to start the node's
// consensus state.
type Config struct {
	Params          genesis.Params
	Store           store.Store
	Files           *store.BlockFiles
	Verifier        chain.InputVerifier
	MaxOrphanBlocks int
	Host            string
	KnownPeers      *peer.Set
	Evts            *events.Events
	EvHandler       EventHandler
}

// State manages the consensus engine: the chain, the mempool, the orphan
// pools and the peer set, behind one main mutex.
type State struct {
	mu sync.Mutex

	params    genesis.Params
	host      string
	evHandler EventHandler
	evts      *events.Events

	chain        *chain.Chain
	mempool      *mempool.Mempool
	orphanBlocks *orphan.Blocks
	orphanTxs    *orphan.Transactions
	knownPeers   *peer.Set

	lastTipChange time.Time
	shutdownFlag  bool

	Worker Worker
}

// New constructs the consensus state, loading or bootstrapping the chain
// from the store.
func New(cfg Config) (*State, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	ch, err := chain.New(chain.Config{
		Params:    cfg.Params,
		Store:     cfg.Store,
		Files:     cfg.Files,
		Verifier:  cfg.Verifier,
		EvHandler: chain.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	// The mempool installs its own lookup into the chain so input
	// fetching can fall back to the pool for unconfirmed parents.
	mp := mempool.New(mempool.Config{
		Params:    cfg.Params,
		Chain:     ch,
		EvHandler: mempool.EventHandler(ev),
	})

	s := State{
		params:        cfg.Params,
		host:          cfg.Host,
		evHandler:     ev,
		evts:          cfg.Evts,
		chain:         ch,
		mempool:       mp,
		orphanBlocks:  orphan.NewBlocks(cfg.MaxOrphanBlocks),
		orphanTxs:     orphan.NewTransactions(genesis.MaxOrphanTransactions),
		knownPeers:    cfg.KnownPeers,
		lastTipChange: time.Now(),
	}

	// The Worker is not set here. The call to RunWorker will assign
	// itself and start everything up and running for the node.

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.mu.Lock()
	s.shutdownFlag = true
	s.mu.Unlock()

	if s.Worker != nil {
		s.Worker.Shutdown()
	}
	return nil
}

// IsShutdown reports whether shutdown has been requested. Long loops
// poll this so cancellation lands in bounded time.
func (s *State) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.shutdownFlag
}

// =============================================================================

// IsInitialBlockDownload reports whether the node is still catching up:
// the tip is a day stale, or it is advancing so fast it must be syncing.
func (s *State) IsInitialBlockDownload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tipAge := time.Since(time.Unix(int64(s.chain.Best().Header.Time), 0))
	if tipAge > 24*time.Hour {
		return true
	}
	return time.Since(s.lastTipChange) < 10*time.Second && tipAge > time.Duration(s.params.StakeTargetSpacing)*time.Second
}

// adjustedTime returns the clock block timestamps are judged against.
// Peer time adjustment belongs to the network layer; the core takes the
// local clock.
func (s *State) adjustedTime() uint32 {
	return uint32(time.Now().Unix())
}

// send emits an event to the registered subscribers.
func (s *State) send(e events.Event) {
	if s.evts != nil {
		s.evts.Send(e)
	}
}
