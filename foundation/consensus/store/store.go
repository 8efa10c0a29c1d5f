// Package store abstracts the persistence the consensus core needs: the
// transaction index, the block index, the best-chain pointer and the sync
// checkpoint, plus the append-only block files. Implementations must make
// everything between TxBegin and TxCommit atomic.
package store

import (
	"bytes"
	"errors"
	"io"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// ErrNoTransaction is returned when a commit or abort has no open
// transaction to act on.
var ErrNoTransaction = errors.New("store: no open transaction")

// =============================================================================

// DiskPos locates a serialized record inside the block files.
type DiskPos struct {
	File   int32
	Offset int64
}

// NullPos returns the position marking an unspent slot.
func NullPos() DiskPos {
	return DiskPos{File: -1}
}

// IsNull reports whether the position is the unspent marker.
func (p DiskPos) IsNull() bool {
	return p.File == -1
}

// serialize writes the position.
func (p DiskPos) serialize(w io.Writer) error {
	if err := wire.WriteUint32(w, uint32(p.File)); err != nil {
		return err
	}
	return wire.WriteInt64(w, p.Offset)
}

// deserialize reads the position.
func (p *DiskPos) deserialize(r io.Reader) error {
	file, err := wire.ReadUint32(r)
	if err != nil {
		return err
	}
	p.File = int32(file)
	p.Offset, err = wire.ReadInt64(r)
	return err
}

// =============================================================================

// TxIndex records where a transaction lives on disk, the height of its
// containing block, and, per output, the position of the transaction
// that spent it. A null slot means unspent.
type TxIndex struct {
	Pos    DiskPos
	Height int32
	Spent  []DiskPos
}

// NewTxIndex constructs a tx index with every output unspent.
func NewTxIndex(pos DiskPos, height int32, outputs int) TxIndex {
	spent := make([]DiskPos, outputs)
	for i := range spent {
		spent[i] = NullPos()
	}
	return TxIndex{Pos: pos, Height: height, Spent: spent}
}

// Serialize writes the tx index record.
func (t TxIndex) Serialize(w io.Writer) error {
	if err := t.Pos.serialize(w); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, uint32(t.Height)); err != nil {
		return err
	}
	if err := wire.WriteCompactSize(w, uint64(len(t.Spent))); err != nil {
		return err
	}
	for _, pos := range t.Spent {
		if err := pos.serialize(w); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a tx index record.
func (t *TxIndex) Deserialize(r io.Reader) error {
	if err := t.Pos.deserialize(r); err != nil {
		return err
	}
	height, err := wire.ReadUint32(r)
	if err != nil {
		return err
	}
	t.Height = int32(height)
	count, err := wire.ReadCompactSize(r)
	if err != nil {
		return err
	}
	t.Spent = make([]DiskPos, count)
	for i := range t.Spent {
		if err := t.Spent[i].deserialize(r); err != nil {
			return err
		}
	}
	return nil
}

// Bytes returns the serialized record.
func (t TxIndex) Bytes() []byte {
	var buf bytes.Buffer
	t.Serialize(&buf)
	return buf.Bytes()
}

// =============================================================================

// IndexRecord is the durable portion of one block-index entry.
type IndexRecord struct {
	Hash               wire.Hash
	Prev               wire.Hash
	Height             int32
	File               int32
	Offset             int64
	Version            uint32
	MerkleRoot         wire.Hash
	Time               uint32
	Bits               uint32
	BurnBits           uint32
	Nonce              uint32
	Mint               int64
	MoneySupply        int64
	StakeModifier      uint64
	StakeModifierCk    uint32
	Flags              uint32
	EffectiveBurnCoins int64
	StakeKernel        wire.Hash
	BurnKernel         wire.Hash
}

// Flag bits stored with an index record.
const (
	FlagProofOfStake uint32 = 1 << 0
	FlagProofOfBurn  uint32 = 1 << 1
	FlagMainChain    uint32 = 1 << 2
)

// Serialize writes the index record.
func (rec IndexRecord) Serialize(w io.Writer) error {
	for _, h := range []wire.Hash{rec.Hash, rec.Prev, rec.MerkleRoot, rec.StakeKernel, rec.BurnKernel} {
		if err := wire.WriteHash(w, h); err != nil {
			return err
		}
	}
	for _, v := range []uint32{uint32(rec.Height), uint32(rec.File), rec.Version, rec.Time, rec.Bits, rec.BurnBits, rec.Nonce, rec.StakeModifierCk, rec.Flags} {
		if err := wire.WriteUint32(w, v); err != nil {
			return err
		}
	}
	if err := wire.WriteInt64(w, rec.Offset); err != nil {
		return err
	}
	if err := wire.WriteInt64(w, rec.Mint); err != nil {
		return err
	}
	if err := wire.WriteInt64(w, rec.MoneySupply); err != nil {
		return err
	}
	if err := wire.WriteUint64(w, rec.StakeModifier); err != nil {
		return err
	}
	return wire.WriteInt64(w, rec.EffectiveBurnCoins)
}

// Deserialize reads an index record.
func (rec *IndexRecord) Deserialize(r io.Reader) error {
	for _, h := range []*wire.Hash{&rec.Hash, &rec.Prev, &rec.MerkleRoot, &rec.StakeKernel, &rec.BurnKernel} {
		var err error
		if *h, err = wire.ReadHash(r); err != nil {
			return err
		}
	}

	read := func(dst *uint32) error {
		v, err := wire.ReadUint32(r)
		*dst = v
		return err
	}

	var height, file uint32
	for _, dst := range []*uint32{&height, &file, &rec.Version, &rec.Time, &rec.Bits, &rec.BurnBits, &rec.Nonce, &rec.StakeModifierCk, &rec.Flags} {
		if err := read(dst); err != nil {
			return err
		}
	}
	rec.Height = int32(height)
	rec.File = int32(file)

	var err error
	if rec.Offset, err = wire.ReadInt64(r); err != nil {
		return err
	}
	if rec.Mint, err = wire.ReadInt64(r); err != nil {
		return err
	}
	if rec.MoneySupply, err = wire.ReadInt64(r); err != nil {
		return err
	}
	if rec.StakeModifier, err = wire.ReadUint64(r); err != nil {
		return err
	}
	rec.EffectiveBurnCoins, err = wire.ReadInt64(r)
	return err
}

// Bytes returns the serialized record.
func (rec IndexRecord) Bytes() []byte {
	var buf bytes.Buffer
	rec.Serialize(&buf)
	return buf.Bytes()
}

// =============================================================================

// Store represents the behavior required to be implemented by any package
// providing persistence for the consensus core.
type Store interface {
	ReadTxIndex(txID wire.Hash) (TxIndex, bool, error)
	WriteTxIndex(txID wire.Hash, idx TxIndex) error
	EraseTxIndex(txID wire.Hash) error
	ContainsTx(txID wire.Hash) (bool, error)

	ReadBlockIndex() ([]IndexRecord, error)
	WriteBlockIndex(rec IndexRecord) error

	ReadBestChain() (wire.Hash, bool, error)
	WriteBestChain(hash wire.Hash) error

	ReadSyncCheckpoint() (wire.Hash, bool, error)
	WriteSyncCheckpoint(hash wire.Hash) error

	TxBegin() error
	TxCommit() error
	TxAbort() error

	Close() error
}
