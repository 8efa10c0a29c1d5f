package store

import (
	"bytes"
	"sync"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Memory implements the Store interface in process memory. It exists to
// support testing and carries the same transaction semantics as the
// durable implementation: TxAbort restores the pre-transaction state.
type Memory struct {
	mu sync.Mutex

	txIndex    map[wire.Hash][]byte
	blockIndex map[wire.Hash][]byte
	best       *wire.Hash
	syncCkpt   *wire.Hash

	snapshot *memorySnapshot
}

type memorySnapshot struct {
	txIndex    map[wire.Hash][]byte
	blockIndex map[wire.Hash][]byte
	best       *wire.Hash
	syncCkpt   *wire.Hash
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		txIndex:    make(map[wire.Hash][]byte),
		blockIndex: make(map[wire.Hash][]byte),
	}
}

// Close implements the Store interface.
func (m *Memory) Close() error {
	return nil
}

// =============================================================================

// ReadTxIndex returns the tx index record for the specified transaction.
func (m *Memory) ReadTxIndex(txID wire.Hash) (TxIndex, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, found := m.txIndex[txID]
	if !found {
		return TxIndex{}, false, nil
	}

	var idx TxIndex
	if err := idx.Deserialize(bytes.NewReader(value)); err != nil {
		return TxIndex{}, false, err
	}
	return idx, true, nil
}

// WriteTxIndex stores the tx index record for the specified transaction.
func (m *Memory) WriteTxIndex(txID wire.Hash, idx TxIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.txIndex[txID] = idx.Bytes()
	return nil
}

// EraseTxIndex removes the tx index record for the specified transaction.
func (m *Memory) EraseTxIndex(txID wire.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.txIndex, txID)
	return nil
}

// ContainsTx reports whether a tx index record exists.
func (m *Memory) ContainsTx(txID wire.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, found := m.txIndex[txID]
	return found, nil
}

// =============================================================================

// ReadBlockIndex loads every block index record.
func (m *Memory) ReadBlockIndex() ([]IndexRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []IndexRecord
	for _, value := range m.blockIndex {
		var rec IndexRecord
		if err := rec.Deserialize(bytes.NewReader(value)); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteBlockIndex stores one block index record.
func (m *Memory) WriteBlockIndex(rec IndexRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blockIndex[rec.Hash] = rec.Bytes()
	return nil
}

// =============================================================================

// ReadBestChain returns the hash of the best chain tip.
func (m *Memory) ReadBestChain() (wire.Hash, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.best == nil {
		return wire.Hash{}, false, nil
	}
	return *m.best, true, nil
}

// WriteBestChain stores the hash of the best chain tip.
func (m *Memory) WriteBestChain(hash wire.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.best = &hash
	return nil
}

// ReadSyncCheckpoint returns the current sync checkpoint.
func (m *Memory) ReadSyncCheckpoint() (wire.Hash, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.syncCkpt == nil {
		return wire.Hash{}, false, nil
	}
	return *m.syncCkpt, true, nil
}

// WriteSyncCheckpoint stores the sync checkpoint.
func (m *Memory) WriteSyncCheckpoint(hash wire.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.syncCkpt = &hash
	return nil
}

// =============================================================================

// TxBegin snapshots the current state so TxAbort can restore it.
func (m *Memory) TxBegin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := memorySnapshot{
		txIndex:    make(map[wire.Hash][]byte, len(m.txIndex)),
		blockIndex: make(map[wire.Hash][]byte, len(m.blockIndex)),
		best:       m.best,
		syncCkpt:   m.syncCkpt,
	}
	for k, v := range m.txIndex {
		snap.txIndex[k] = v
	}
	for k, v := range m.blockIndex {
		snap.blockIndex[k] = v
	}

	m.snapshot = &snap
	return nil
}

// TxCommit drops the snapshot, keeping every write since TxBegin.
func (m *Memory) TxCommit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshot == nil {
		return ErrNoTransaction
	}
	m.snapshot = nil
	return nil
}

// TxAbort restores the snapshot taken at TxBegin.
func (m *Memory) TxAbort() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snapshot == nil {
		return ErrNoTransaction
	}

	m.txIndex = m.snapshot.txIndex
	m.blockIndex = m.snapshot.blockIndex
	m.best = m.snapshot.best
	m.syncCkpt = m.snapshot.syncCkpt
	m.snapshot = nil
	return nil
}
