package store

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Key prefixes inside the database.
var (
	prefixTxIndex    = []byte("t:")
	prefixBlockIndex = []byte("b:")
	keyBestChain     = []byte("bestchain")
	keySyncCkpt      = []byte("synccheckpoint")
)

// LevelDB implements the Store interface on a leveldb database. Writes
// between TxBegin and TxCommit accumulate in one leveldb transaction and
// become visible atomically.
type LevelDB struct {
	mu sync.Mutex
	db *leveldb.DB
	tx *leveldb.Transaction
}

// NewLevelDB opens (or creates) the database at the specified path,
// recovering from a corrupted manifest when possible.
func NewLevelDB(path string) (*LevelDB, error) {
	opts := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}

	db, err := leveldb.OpenFile(path, opts)
	if ldberrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &LevelDB{db: db}, nil
}

// Close closes the underlying database, discarding any open transaction.
func (l *LevelDB) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tx != nil {
		l.tx.Discard()
		l.tx = nil
	}
	return l.db.Close()
}

// =============================================================================

// get routes reads through the open transaction when one exists.
func (l *LevelDB) get(key []byte) ([]byte, bool, error) {
	var value []byte
	var err error
	if l.tx != nil {
		value, err = l.tx.Get(key, nil)
	} else {
		value, err = l.db.Get(key, nil)
	}

	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// put routes writes through the open transaction when one exists.
func (l *LevelDB) put(key, value []byte) error {
	if l.tx != nil {
		return l.tx.Put(key, value, nil)
	}
	return l.db.Put(key, value, nil)
}

// delete routes deletes through the open transaction when one exists.
func (l *LevelDB) delete(key []byte) error {
	if l.tx != nil {
		return l.tx.Delete(key, nil)
	}
	return l.db.Delete(key, nil)
}

func txKey(txID wire.Hash) []byte {
	return append(append([]byte{}, prefixTxIndex...), txID[:]...)
}

func blockKey(hash wire.Hash) []byte {
	return append(append([]byte{}, prefixBlockIndex...), hash[:]...)
}

// =============================================================================

// ReadTxIndex returns the tx index record for the specified transaction.
func (l *LevelDB) ReadTxIndex(txID wire.Hash) (TxIndex, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	value, found, err := l.get(txKey(txID))
	if err != nil || !found {
		return TxIndex{}, false, err
	}

	var idx TxIndex
	if err := idx.Deserialize(bytes.NewReader(value)); err != nil {
		return TxIndex{}, false, err
	}
	return idx, true, nil
}

// WriteTxIndex stores the tx index record for the specified transaction.
func (l *LevelDB) WriteTxIndex(txID wire.Hash, idx TxIndex) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.put(txKey(txID), idx.Bytes())
}

// EraseTxIndex removes the tx index record for the specified transaction.
func (l *LevelDB) EraseTxIndex(txID wire.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.delete(txKey(txID))
}

// ContainsTx reports whether a tx index record exists.
func (l *LevelDB) ContainsTx(txID wire.Hash) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, found, err := l.get(txKey(txID))
	return found, err
}

// =============================================================================

// ReadBlockIndex loads every block index record. Called once at startup
// to rebuild the in-memory index tree.
func (l *LevelDB) ReadBlockIndex() ([]IndexRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var records []IndexRecord

	iter := l.db.NewIterator(util.BytesPrefix(prefixBlockIndex), nil)
	defer iter.Release()

	for iter.Next() {
		var rec IndexRecord
		if err := rec.Deserialize(bytes.NewReader(iter.Value())); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, iter.Error()
}

// WriteBlockIndex stores one block index record.
func (l *LevelDB) WriteBlockIndex(rec IndexRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.put(blockKey(rec.Hash), rec.Bytes())
}

// =============================================================================

// ReadBestChain returns the hash of the best chain tip.
func (l *LevelDB) ReadBestChain() (wire.Hash, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	value, found, err := l.get(keyBestChain)
	if err != nil || !found {
		return wire.Hash{}, false, err
	}

	var h wire.Hash
	copy(h[:], value)
	return h, true, nil
}

// WriteBestChain stores the hash of the best chain tip.
func (l *LevelDB) WriteBestChain(hash wire.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.put(keyBestChain, hash[:])
}

// ReadSyncCheckpoint returns the current sync checkpoint.
func (l *LevelDB) ReadSyncCheckpoint() (wire.Hash, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	value, found, err := l.get(keySyncCkpt)
	if err != nil || !found {
		return wire.Hash{}, false, err
	}

	var h wire.Hash
	copy(h[:], value)
	return h, true, nil
}

// WriteSyncCheckpoint stores the sync checkpoint.
func (l *LevelDB) WriteSyncCheckpoint(hash wire.Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.put(keySyncCkpt, hash[:])
}

// =============================================================================

// TxBegin opens a store transaction. Only one can be in flight.
func (l *LevelDB) TxBegin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tx != nil {
		return fmt.Errorf("store transaction already open")
	}

	tx, err := l.db.OpenTransaction()
	if err != nil {
		return err
	}
	l.tx = tx
	return nil
}

// TxCommit atomically applies everything since TxBegin.
func (l *LevelDB) TxCommit() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tx == nil {
		return ErrNoTransaction
	}

	err := l.tx.Commit()
	l.tx = nil
	return err
}

// TxAbort discards everything since TxBegin.
func (l *LevelDB) TxAbort() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tx == nil {
		return ErrNoTransaction
	}

	l.tx.Discard()
	l.tx = nil
	return nil
}
