// Package ledger implements the transaction and block models along with
// their canonical serialization and context-free validation. Rules that
// need chain context live in the chain package.
package ledger

import (
	"bytes"
	"fmt"
	"io"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/script"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/signature"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// NullOutIndex marks the prevout index of a coinbase input.
const NullOutIndex = 0xFFFF_FFFF

// =============================================================================

// OutPoint identifies one output of one transaction.
type OutPoint struct {
	Hash  wire.Hash
	Index uint32
}

// NullOutPoint returns the outpoint a coinbase input carries.
func NullOutPoint() OutPoint {
	return OutPoint{Index: NullOutIndex}
}

// IsNull reports whether the outpoint is the coinbase marker.
func (op OutPoint) IsNull() bool {
	return op.Index == NullOutIndex && op.Hash.IsZero()
}

// String implements the fmt.Stringer interface.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.Hash, op.Index)
}

// =============================================================================

// TxInput represents one input of a transaction.
type TxInput struct {
	PrevOut   OutPoint
	SigScript []byte
	Sequence  uint32
}

// IsFinal reports whether the input opts out of sequence-based updates.
func (in TxInput) IsFinal() bool {
	return in.Sequence == 0xFFFF_FFFF
}

// TxOutput represents one output of a transaction.
type TxOutput struct {
	Value        int64
	PubKeyScript []byte
}

// IsEmpty reports whether the output carries no value and no script. The
// first output of a coinstake is empty by construction.
func (out TxOutput) IsEmpty() bool {
	return out.Value == 0 && len(out.PubKeyScript) == 0
}

// =============================================================================

// Transaction represents a transfer of value between outputs.
type Transaction struct {
	Version  uint32
	Time     uint32
	Inputs   []TxInput
	Outputs  []TxOutput
	LockTime uint32
}

// Serialize writes the transaction in canonical form.
func (tx Transaction) Serialize(w io.Writer) error {
	if err := wire.WriteUint32(w, tx.Version); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, tx.Time); err != nil {
		return err
	}

	if err := wire.WriteCompactSize(w, uint64(len(tx.Inputs))); err != nil {
		return err
	}
	for _, in := range tx.Inputs {
		if err := wire.WriteHash(w, in.PrevOut.Hash); err != nil {
			return err
		}
		if err := wire.WriteUint32(w, in.PrevOut.Index); err != nil {
			return err
		}
		if err := wire.WriteBytes(w, in.SigScript); err != nil {
			return err
		}
		if err := wire.WriteUint32(w, in.Sequence); err != nil {
			return err
		}
	}

	if err := wire.WriteCompactSize(w, uint64(len(tx.Outputs))); err != nil {
		return err
	}
	for _, out := range tx.Outputs {
		if err := wire.WriteInt64(w, out.Value); err != nil {
			return err
		}
		if err := wire.WriteBytes(w, out.PubKeyScript); err != nil {
			return err
		}
	}

	return wire.WriteUint32(w, tx.LockTime)
}

// Deserialize reads a transaction in canonical form.
func (tx *Transaction) Deserialize(r io.Reader) error {
	var err error
	if tx.Version, err = wire.ReadUint32(r); err != nil {
		return err
	}
	if tx.Time, err = wire.ReadUint32(r); err != nil {
		return err
	}

	inCount, err := wire.ReadCompactSize(r)
	if err != nil {
		return err
	}
	tx.Inputs = make([]TxInput, inCount)
	for i := range tx.Inputs {
		in := &tx.Inputs[i]
		if in.PrevOut.Hash, err = wire.ReadHash(r); err != nil {
			return err
		}
		if in.PrevOut.Index, err = wire.ReadUint32(r); err != nil {
			return err
		}
		if in.SigScript, err = wire.ReadBytes(r); err != nil {
			return err
		}
		if in.Sequence, err = wire.ReadUint32(r); err != nil {
			return err
		}
	}

	outCount, err := wire.ReadCompactSize(r)
	if err != nil {
		return err
	}
	tx.Outputs = make([]TxOutput, outCount)
	for i := range tx.Outputs {
		out := &tx.Outputs[i]
		if out.Value, err = wire.ReadInt64(r); err != nil {
			return err
		}
		if out.PubKeyScript, err = wire.ReadBytes(r); err != nil {
			return err
		}
	}

	tx.LockTime, err = wire.ReadUint32(r)
	return err
}

// Bytes returns the canonical serialization.
func (tx Transaction) Bytes() []byte {
	var buf bytes.Buffer
	tx.Serialize(&buf)
	return buf.Bytes()
}

// SerializedSize returns the byte length of the canonical serialization.
func (tx Transaction) SerializedSize() int {
	return len(tx.Bytes())
}

// Hash returns the transaction id.
func (tx Transaction) Hash() wire.Hash {
	return signature.Hash(tx.Bytes())
}

// Equals reports whether two transactions have the same id.
func (tx Transaction) Equals(other Transaction) bool {
	return tx.Hash() == other.Hash()
}

// =============================================================================

// IsCoinbase reports whether the transaction mints new coins at the head
// of a block.
func (tx Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut.IsNull()
}

// IsCoinstake reports whether the transaction is the stake transaction of
// a proof-of-stake block: an empty marker output followed by the output
// carrying the staked coins.
func (tx Transaction) IsCoinstake() bool {
	return len(tx.Inputs) >= 1 && !tx.Inputs[0].PrevOut.IsNull() &&
		len(tx.Outputs) >= 2 && tx.Outputs[0].IsEmpty() && !tx.Outputs[1].IsEmpty()
}

// IsBurn reports whether any output pays the canonical burn address.
func (tx Transaction) IsBurn() bool {
	_, _, ok := tx.BurnOutput()
	return ok
}

// BurnOutput returns the index and value of the output paying the burn
// address, if one exists.
func (tx Transaction) BurnOutput() (int, int64, bool) {
	for i, out := range tx.Outputs {
		if script.IsBurnScript(out.PubKeyScript) {
			return i, out.Value, true
		}
	}
	return 0, 0, false
}

// ValueOut sums the output values, failing on overflow or an amount
// outside the monetary range.
func (tx Transaction) ValueOut() (int64, error) {
	var total int64
	for _, out := range tx.Outputs {
		if !genesis.MoneyRange(out.Value) {
			return 0, reject.DoS(reject.Malformed, 100, "txout value out of range")
		}
		total += out.Value
		if !genesis.MoneyRange(total) {
			return 0, reject.DoS(reject.Malformed, 100, "txout total out of range")
		}
	}
	return total, nil
}

// IsFinal reports whether the transaction's lock time has passed at the
// specified height and time, or every input has opted out.
func (tx Transaction) IsFinal(height int32, blockTime uint32) bool {
	if tx.LockTime == 0 {
		return true
	}

	var threshold uint32 = tx.LockTime
	var current uint32
	if tx.LockTime < genesis.LockTimeThreshold {
		current = uint32(height)
	} else {
		current = blockTime
	}
	if threshold < current {
		return true
	}

	for _, in := range tx.Inputs {
		if !in.IsFinal() {
			return false
		}
	}
	return true
}

// =============================================================================

// CheckTransaction applies every context-free rule. Structural violations
// carry a DoS score of 100, basic emptiness 10.
func (tx Transaction) CheckTransaction() error {
	if len(tx.Inputs) == 0 {
		return reject.DoS(reject.Malformed, 10, "vin empty")
	}
	if len(tx.Outputs) == 0 {
		return reject.DoS(reject.Malformed, 10, "vout empty")
	}

	if tx.SerializedSize() > genesis.MaxBlockSize {
		return reject.DoS(reject.Malformed, 100, "size limits failed")
	}

	// Before the v05 protocol switch an empty output is only legal inside
	// a coinbase or coinstake; afterward zero-value outputs are permitted.
	var total int64
	for _, out := range tx.Outputs {
		if out.IsEmpty() && !tx.IsCoinbase() && !tx.IsCoinstake() && tx.Time < genesis.SwitchV05Time {
			return reject.DoS(reject.Malformed, 100, "txout empty for user transaction")
		}
		if out.Value < 0 {
			return reject.DoS(reject.Malformed, 100, "txout.value negative")
		}
		if out.Value > genesis.MaxMoney {
			return reject.DoS(reject.Malformed, 100, "txout.value too high")
		}
		total += out.Value
		if !genesis.MoneyRange(total) {
			return reject.DoS(reject.Malformed, 100, "txout total out of range")
		}
	}

	seen := make(map[OutPoint]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if _, exists := seen[in.PrevOut]; exists {
			return reject.DoS(reject.Malformed, 100, "duplicate inputs")
		}
		seen[in.PrevOut] = struct{}{}
	}

	if tx.IsCoinbase() {
		size := len(tx.Inputs[0].SigScript)
		if size < genesis.MinCoinbaseScriptSize || size > genesis.MaxCoinbaseScriptSize {
			return reject.DoS(reject.Malformed, 100, "coinbase script size %d", size)
		}
		return nil
	}

	for _, in := range tx.Inputs {
		if in.PrevOut.IsNull() {
			return reject.DoS(reject.Malformed, 10, "prevout is null")
		}
	}

	return nil
}

// IsStandard reports whether the transaction matches the relay policy:
// push-only bounded input scripts and recognized output templates with at
// most one nulldata output.
func (tx Transaction) IsStandard() error {
	for i, in := range tx.Inputs {
		if len(in.SigScript) > genesis.MaxStandardSigScript {
			return fmt.Errorf("scriptsig size %d for input %d", len(in.SigScript), i)
		}
		if !script.IsPushOnly(in.SigScript) {
			return fmt.Errorf("scriptsig not push only for input %d", i)
		}
	}

	var nullData int
	for i, out := range tx.Outputs {
		class := script.Classify(out.PubKeyScript)
		if class == script.NonStandard {
			return fmt.Errorf("nonstandard scriptpubkey for output %d", i)
		}
		if class == script.NullData {
			nullData++
		}
	}
	if nullData > 1 {
		return fmt.Errorf("multiple nulldata outputs")
	}

	return nil
}

// FeeMode selects which base fee a minimum-fee computation starts from.
type FeeMode int

// The fee modes.
const (
	FeeModeBlock FeeMode = iota
	FeeModeRelay
)

// MinFee computes the minimum fee the transaction must carry. With
// allowFree set, transactions below 1000 bytes are free; with blockSize 1
// (building a block) the bound is 10,000 bytes while the block stays under
// a quarter of the maximum size. Any sub-cent output charges at least the
// base fee.
func (tx Transaction) MinFee(blockSize int, allowFree bool, mode FeeMode) int64 {
	base := int64(genesis.MinTxFee)
	if mode == FeeModeRelay {
		base = genesis.MinRelayTxFee
	}

	size := tx.SerializedSize()
	newBlockSize := blockSize + size
	fee := (1 + int64(size)/1000) * base

	if allowFree {
		if blockSize == 1 {
			// Attempting to build a block: transactions under 10k are
			// free as long as the block stays small.
			if size < 10_000 && newBlockSize < genesis.MaxBlockSize/4 {
				fee = 0
			}
		} else {
			if size < 1_000 {
				fee = 0
			}
		}
	}

	// Penny-flooding defense. Any sub-cent output charges the base fee.
	if fee < base {
		for _, out := range tx.Outputs {
			if out.Value < genesis.Cent {
				fee = base
				break
			}
		}
	}

	if !genesis.MoneyRange(fee) {
		fee = genesis.MaxMoney
	}
	return fee
}
