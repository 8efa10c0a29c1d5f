package ledger

import (
	"bytes"
	"crypto/ecdsa"
	"io"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/compact"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/difficulty"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/merkle"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/script"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/signature"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// BlockHeader represents the hashed portion of a block.
type BlockHeader struct {
	Version    uint32
	PrevHash   wire.Hash
	MerkleRoot wire.Hash
	Time       uint32
	Bits       uint32
	BurnBits   uint32
	Nonce      uint32
}

// Serialize writes the header in canonical form.
func (h BlockHeader) Serialize(w io.Writer) error {
	if err := wire.WriteUint32(w, h.Version); err != nil {
		return err
	}
	if err := wire.WriteHash(w, h.PrevHash); err != nil {
		return err
	}
	if err := wire.WriteHash(w, h.MerkleRoot); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, h.Time); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, h.Bits); err != nil {
		return err
	}
	if err := wire.WriteUint32(w, h.BurnBits); err != nil {
		return err
	}
	return wire.WriteUint32(w, h.Nonce)
}

// Deserialize reads a header in canonical form.
func (h *BlockHeader) Deserialize(r io.Reader) error {
	var err error
	if h.Version, err = wire.ReadUint32(r); err != nil {
		return err
	}
	if h.PrevHash, err = wire.ReadHash(r); err != nil {
		return err
	}
	if h.MerkleRoot, err = wire.ReadHash(r); err != nil {
		return err
	}
	if h.Time, err = wire.ReadUint32(r); err != nil {
		return err
	}
	if h.Bits, err = wire.ReadUint32(r); err != nil {
		return err
	}
	if h.BurnBits, err = wire.ReadUint32(r); err != nil {
		return err
	}
	h.Nonce, err = wire.ReadUint32(r)
	return err
}

// Hash returns the block hash: the double-SHA256 of the serialized header.
func (h BlockHeader) Hash() wire.Hash {
	var buf bytes.Buffer
	h.Serialize(&buf)
	return signature.Hash(buf.Bytes())
}

// =============================================================================

// PoBFields carries the proof-of-burn solution a PoB block commits to.
type PoBFields struct {
	BurnBlockHash   wire.Hash
	BurnBlockHeight int32
	BurnTx          wire.Hash
	BurnTxOut       uint32
	BurnHash        wire.Hash
}

// Block represents a group of transactions behind a header, the payee
// signature over the header, and the optional proof-of-burn solution.
// EffectiveBurnCoins is the decay-weighted burned supply after this block;
// it travels with the block so acceptance can cross-check the producer.
type Block struct {
	Header             BlockHeader
	Txs                []Transaction
	Sig                []byte
	PoB                *PoBFields
	EffectiveBurnCoins int64
}

// Serialize writes the block in canonical form: header, transactions,
// signature, the PoB tail, then the effective burn coins.
func (b Block) Serialize(w io.Writer) error {
	if err := b.Header.Serialize(w); err != nil {
		return err
	}

	if err := wire.WriteCompactSize(w, uint64(len(b.Txs))); err != nil {
		return err
	}
	for _, tx := range b.Txs {
		if err := tx.Serialize(w); err != nil {
			return err
		}
	}

	if err := wire.WriteBytes(w, b.Sig); err != nil {
		return err
	}

	var flag [1]byte
	if b.PoB != nil {
		flag[0] = 1
	}
	if _, err := w.Write(flag[:]); err != nil {
		return err
	}
	if b.PoB != nil {
		if err := wire.WriteHash(w, b.PoB.BurnBlockHash); err != nil {
			return err
		}
		if err := wire.WriteUint32(w, uint32(b.PoB.BurnBlockHeight)); err != nil {
			return err
		}
		if err := wire.WriteHash(w, b.PoB.BurnTx); err != nil {
			return err
		}
		if err := wire.WriteUint32(w, b.PoB.BurnTxOut); err != nil {
			return err
		}
		if err := wire.WriteHash(w, b.PoB.BurnHash); err != nil {
			return err
		}
	}

	return wire.WriteInt64(w, b.EffectiveBurnCoins)
}

// Deserialize reads a block in canonical form.
func (b *Block) Deserialize(r io.Reader) error {
	if err := b.Header.Deserialize(r); err != nil {
		return err
	}

	count, err := wire.ReadCompactSize(r)
	if err != nil {
		return err
	}
	b.Txs = make([]Transaction, count)
	for i := range b.Txs {
		if err := b.Txs[i].Deserialize(r); err != nil {
			return err
		}
	}

	if b.Sig, err = wire.ReadBytes(r); err != nil {
		return err
	}

	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return err
	}
	b.PoB = nil
	if flag[0] == 1 {
		var pob PoBFields
		if pob.BurnBlockHash, err = wire.ReadHash(r); err != nil {
			return err
		}
		height, err := wire.ReadUint32(r)
		if err != nil {
			return err
		}
		pob.BurnBlockHeight = int32(height)
		if pob.BurnTx, err = wire.ReadHash(r); err != nil {
			return err
		}
		if pob.BurnTxOut, err = wire.ReadUint32(r); err != nil {
			return err
		}
		if pob.BurnHash, err = wire.ReadHash(r); err != nil {
			return err
		}
		b.PoB = &pob
	}

	b.EffectiveBurnCoins, err = wire.ReadInt64(r)
	return err
}

// Bytes returns the canonical serialization.
func (b Block) Bytes() []byte {
	var buf bytes.Buffer
	b.Serialize(&buf)
	return buf.Bytes()
}

// SerializedSize returns the byte length of the canonical serialization.
func (b Block) SerializedSize() int {
	return len(b.Bytes())
}

// Hash returns the block hash.
func (b Block) Hash() wire.Hash {
	return b.Header.Hash()
}

// =============================================================================

// IsProofOfStake reports whether the second transaction is a coinstake.
func (b Block) IsProofOfStake() bool {
	return len(b.Txs) >= 2 && b.Txs[1].IsCoinstake()
}

// IsProofOfBurn reports whether the block commits to a burn solution.
func (b Block) IsProofOfBurn() bool {
	return b.PoB != nil
}

// IsProofOfWork reports whether the block is plain proof-of-work. The
// three types are mutually exclusive.
func (b Block) IsProofOfWork() bool {
	return !b.IsProofOfStake() && !b.IsProofOfBurn()
}

// payeeScript returns the output script whose key must have signed the
// header: the coinstake's stake output for PoS, the coinbase's first
// output otherwise.
func (b Block) payeeScript() ([]byte, bool) {
	if b.IsProofOfStake() {
		return b.Txs[1].Outputs[1].PubKeyScript, true
	}
	if len(b.Txs) == 0 || len(b.Txs[0].Outputs) == 0 {
		return nil, false
	}
	return b.Txs[0].Outputs[0].PubKeyScript, true
}

// Sign signs the block header with the payee private key.
func (b *Block) Sign(privateKey *ecdsa.PrivateKey) error {
	sig, err := signature.Sign(b.Header.Hash(), privateKey)
	if err != nil {
		return err
	}
	b.Sig = sig
	return nil
}

// CheckSignature verifies the header signature against the public key
// embedded in the payee output.
func (b Block) CheckSignature() error {
	payee, ok := b.payeeScript()
	if !ok {
		return reject.DoS(reject.Malformed, 100, "no payee output")
	}

	pubKey, ok := script.ExtractPubKey(payee)
	if !ok {
		return reject.DoS(reject.Malformed, 100, "payee output is not pay-to-pubkey")
	}

	if !signature.Verify(b.Header.Hash(), b.Sig, pubKey) {
		return reject.DoS(reject.Malformed, 100, "bad block signature")
	}
	return nil
}

// =============================================================================

// CheckBlock applies every context-free rule: limits, proof-of-work
// threshold, transaction sanity, reward ceilings, merkle commitment and
// the header signature. adjustedTime is the network-adjusted clock.
func (b Block) CheckBlock(params genesis.Params, adjustedTime uint32) error {
	if len(b.Txs) == 0 || b.SerializedSize() > genesis.MaxBlockSize {
		return reject.DoS(reject.Malformed, 100, "size limits failed")
	}

	if b.IsProofOfWork() {
		target := compact.FromCompact(b.Header.Bits)
		if target.IsZero() || target.Gt(params.WorkLimit()) {
			return reject.DoS(reject.Consensus, 50, "nBits below minimum work")
		}
		if compact.HashToInt(b.Hash()).Gt(target) {
			return reject.DoS(reject.Consensus, 50, "proof of work failed")
		}
	}

	if b.Header.Time > adjustedTime+genesis.MaxClockDrift {
		return reject.New(reject.Consensus, "block timestamp too far in the future")
	}

	if !b.Txs[0].IsCoinbase() {
		return reject.DoS(reject.Malformed, 100, "first tx is not coinbase")
	}
	for i := 1; i < len(b.Txs); i++ {
		if b.Txs[i].IsCoinbase() {
			return reject.DoS(reject.Malformed, 100, "more than one coinbase")
		}
	}

	if b.IsProofOfStake() {
		// The coinstake sits at position 1 and only there, the coinbase
		// pays nothing, and the stake carries the block's timestamp.
		for i := 2; i < len(b.Txs); i++ {
			if b.Txs[i].IsCoinstake() {
				return reject.DoS(reject.Malformed, 100, "coinstake in wrong position")
			}
		}

		coinbaseOut, err := b.Txs[0].ValueOut()
		if err != nil {
			return err
		}
		if coinbaseOut != 0 {
			return reject.DoS(reject.Malformed, 100, "coinbase pays in proof-of-stake block")
		}

		if b.Header.Time != b.Txs[1].Time {
			return reject.DoS(reject.Consensus, 50, "coinstake timestamp violates block time")
		}
	}

	if b.Txs[0].Time > b.Header.Time+genesis.MaxClockDrift {
		return reject.DoS(reject.Consensus, 50, "coinbase timestamp too late")
	}

	// Reward ceiling by block type. Fees are destroyed so the coinbase
	// never collects them; the one concession is the min-fee offset.
	if b.IsProofOfWork() || b.IsProofOfBurn() {
		coinbaseOut, err := b.Txs[0].ValueOut()
		if err != nil {
			return err
		}

		var ceiling int64
		if b.IsProofOfBurn() {
			ceiling = difficulty.ProofOfBurnReward(b.Header.BurnBits, params)
		} else {
			ceiling = difficulty.ProofOfWorkReward(b.Header.Bits, params) -
				b.Txs[0].MinFee(1, false, FeeModeBlock) + genesis.MinTxFee
		}
		if coinbaseOut > ceiling {
			return reject.DoS(reject.Consensus, 50, "coinbase reward %d exceeds %d", coinbaseOut, ceiling)
		}
	}

	if b.IsProofOfBurn() && b.PoB.BurnBlockHeight < 0 {
		return reject.DoS(reject.Malformed, 100, "negative burn block height")
	}

	seen := make(map[wire.Hash]struct{}, len(b.Txs))
	var sigOps int
	for _, tx := range b.Txs {
		if err := tx.CheckTransaction(); err != nil {
			return err
		}
		if tx.Time > b.Header.Time {
			return reject.DoS(reject.Consensus, 50, "tx timestamp after block timestamp")
		}

		id := tx.Hash()
		if _, exists := seen[id]; exists {
			return reject.DoS(reject.Malformed, 100, "duplicate transaction")
		}
		seen[id] = struct{}{}

		for _, in := range tx.Inputs {
			sigOps += script.SigOpCount(in.SigScript, false)
		}
		for _, out := range tx.Outputs {
			sigOps += script.SigOpCount(out.PubKeyScript, false)
		}
	}
	if sigOps > genesis.MaxBlockSigOps {
		return reject.DoS(reject.Malformed, 100, "out-of-bounds sigop count")
	}

	tree, err := merkle.NewTree(b.Txs)
	if err != nil {
		return reject.DoS(reject.Malformed, 100, "building merkle tree: %s", err)
	}
	if tree.RootHash() != b.Header.MerkleRoot {
		return reject.DoS(reject.Malformed, 100, "merkle root mismatch")
	}

	return b.CheckSignature()
}

// =============================================================================

// NewGenesisBlock constructs the deterministic first block of a network.
func NewGenesisBlock(params genesis.Params) Block {
	coinbase := Transaction{
		Version: 1,
		Time:    params.GenesisTime,
		Inputs: []TxInput{{
			PrevOut:   NullOutPoint(),
			SigScript: []byte{0x04, 0xff, 0xff, 0x00, 0x1d, 0x02, 0x0f, 0x2a},
		}},
		Outputs: []TxOutput{{Value: 0, PubKeyScript: []byte{script.OpReturn}}},
	}

	tree, _ := merkle.NewTree([]Transaction{coinbase})

	return Block{
		Header: BlockHeader{
			Version:    1,
			PrevHash:   wire.ZeroHash,
			MerkleRoot: tree.RootHash(),
			Time:       params.GenesisTime,
			Bits:       compact.ToCompact(params.WorkLimit()),
			BurnBits:   compact.ToCompact(params.BurnLimit()),
			Nonce:      params.GenesisNonce,
		},
		Txs: []Transaction{coinbase},
	}
}
