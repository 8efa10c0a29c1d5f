// Package events allows for the registering and receiving of the event
// stream the consensus core emits. Wallet and viewer subscribers live
// outside the core and consume these instead of holding pointers into it.
package events

import (
	"fmt"
	"sync"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Kind identifies what happened.
type Kind int

// The set of event kinds the core emits.
const (
	TxAccepted Kind = iota
	TxRemoved
	BestChainUpdated
	BlockConnected
	BlockDisconnected
	TransactionUpdated
	Warning
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case TxAccepted:
		return "tx-accepted"
	case TxRemoved:
		return "tx-removed"
	case BestChainUpdated:
		return "best-chain-updated"
	case BlockConnected:
		return "block-connected"
	case BlockDisconnected:
		return "block-disconnected"
	case TransactionUpdated:
		return "transaction-updated"
	case Warning:
		return "warning"
	}
	return "unknown"
}

// Event represents one occurrence in the consensus core.
type Event struct {
	Kind   Kind
	Hash   wire.Hash
	Height int32
	Detail string
}

// String implements the fmt.Stringer interface.
func (e Event) String() string {
	return fmt.Sprintf("%s: %s [%d] %s", e.Kind, e.Hash, e.Height, e.Detail)
}

// =============================================================================

// Events maintains a mapping of unique id and channels so goroutines can
// register and receive events.
type Events struct {
	m  map[string]chan Event
	mu sync.RWMutex
}

// New constructs an events value for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan Event),
	}
}

// Shutdown closes and removes all channels that were provided by the
// call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used to
// receive events.
func (evt *Events) Acquire(id string) chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// A message is dropped if the receiver is not ready, so this buffer
	// gives slow subscribers room before they start losing events.
	const messageBuffer = 100

	evt.m[id] = make(chan Event, messageBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by the call
// to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send signals an event to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(e Event) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- e:
		default:
		}
	}
}
