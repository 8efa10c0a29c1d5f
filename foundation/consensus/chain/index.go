// Package chain implements the block index, best-chain selection and the
// context-dependent validation that connects and disconnects blocks,
// including reorganization to a heavier fork.
package chain

import (
	"github.com/holiman/uint256"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/difficulty"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/store"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// BlockIndex is the in-memory node for one known block. prev is a
// non-owning parent pointer; next is only set along the main chain and is
// flipped atomically on reorg.
type BlockIndex struct {
	BlockHash wire.Hash
	Prev      *BlockIndex
	Next      *BlockIndex

	BlockHeight int32
	Pos         store.DiskPos
	Header      ledger.BlockHeader

	ChainTrust  *uint256.Int
	Mint        int64
	MoneySupply int64

	StakeModifier   uint64
	StakeModifierCk uint32

	StakeKernel wire.Hash
	BurnKernel  wire.Hash

	EffBurnCoins int64
	Flags        uint32

	// seq is the observation order, used to break chain-trust ties in
	// favor of the first block seen.
	seq uint64
}

// Height implements the difficulty.Node interface.
func (bi *BlockIndex) Height() int32 { return bi.BlockHeight }

// Time implements the difficulty.Node interface.
func (bi *BlockIndex) Time() uint32 { return bi.Header.Time }

// Bits implements the difficulty.Node interface.
func (bi *BlockIndex) Bits() uint32 { return bi.Header.Bits }

// BurnBits implements the difficulty.Node interface.
func (bi *BlockIndex) BurnBits() uint32 { return bi.Header.BurnBits }

// IsProofOfStake reports whether the indexed block is proof-of-stake.
func (bi *BlockIndex) IsProofOfStake() bool { return bi.Flags&store.FlagProofOfStake != 0 }

// IsProofOfBurn reports whether the indexed block is proof-of-burn.
func (bi *BlockIndex) IsProofOfBurn() bool { return bi.Flags&store.FlagProofOfBurn != 0 }

// IsProofOfWork reports whether the indexed block is plain proof-of-work.
func (bi *BlockIndex) IsProofOfWork() bool { return !bi.IsProofOfStake() && !bi.IsProofOfBurn() }

// EffectiveBurnCoins implements the difficulty.Node interface.
func (bi *BlockIndex) EffectiveBurnCoins() int64 { return bi.EffBurnCoins }

// Parent implements the difficulty.Node interface. It returns a nil
// interface for the genesis block, not a typed nil.
func (bi *BlockIndex) Parent() difficulty.Node {
	if bi.Prev == nil {
		return nil
	}
	return bi.Prev
}

// InMainChain reports whether the index sits on the main chain.
func (bi *BlockIndex) InMainChain(best *BlockIndex) bool {
	return bi.Next != nil || bi == best
}

// MedianTimePast returns the median timestamp of the last 11 blocks
// ending at this index.
func (bi *BlockIndex) MedianTimePast() uint32 {
	times := make([]uint32, 0, genesis.MedianTimeSpan)
	for n := bi; n != nil && len(times) < genesis.MedianTimeSpan; n = n.Prev {
		times = append(times, n.Header.Time)
	}

	// Insertion sort; the window is tiny.
	for i := 1; i < len(times); i++ {
		for j := i; j > 0 && times[j] < times[j-1]; j-- {
			times[j], times[j-1] = times[j-1], times[j]
		}
	}

	return times[len(times)/2]
}

// Record converts the index entry to its durable form.
func (bi *BlockIndex) Record() store.IndexRecord {
	rec := store.IndexRecord{
		Hash:               bi.BlockHash,
		Height:             bi.BlockHeight,
		File:               bi.Pos.File,
		Offset:             bi.Pos.Offset,
		Version:            bi.Header.Version,
		MerkleRoot:         bi.Header.MerkleRoot,
		Time:               bi.Header.Time,
		Bits:               bi.Header.Bits,
		BurnBits:           bi.Header.BurnBits,
		Nonce:              bi.Header.Nonce,
		Mint:               bi.Mint,
		MoneySupply:        bi.MoneySupply,
		StakeModifier:      bi.StakeModifier,
		StakeModifierCk:    bi.StakeModifierCk,
		Flags:              bi.Flags,
		EffectiveBurnCoins: bi.EffBurnCoins,
		StakeKernel:        bi.StakeKernel,
		BurnKernel:         bi.BurnKernel,
	}
	if bi.Prev != nil {
		rec.Prev = bi.Prev.BlockHash
	}
	return rec
}

// =============================================================================

// one is shared by the trust math for clamping.
var one = uint256.NewInt(1)

// divMax returns 2^256 / (target+1) without needing a 257-bit value:
// 2^256 / (x+1) == (~x / (x+1)) + 1.
func divMax(target *uint256.Int) *uint256.Int {
	notTarget := new(uint256.Int).Not(target)
	plusOne := new(uint256.Int).AddUint64(target, 1)
	if plusOne.IsZero() {
		return uint256.NewInt(1)
	}

	out := new(uint256.Int).Div(notTarget, plusOne)
	return out.AddUint64(out, 1)
}

// BlockTrust scores one block for best-chain selection. The score is
// additive along the chain and deliberately dampens runs of a single
// block type so no one proof system can cheaply outrun the others.
func (c *Chain) BlockTrust(bi *BlockIndex) *uint256.Int {
	if bi.Header.Time < genesis.ChainChecksSwitchTime {
		return c.legacyBlockTrust(bi)
	}

	var target *uint256.Int
	var base *uint256.Int
	if bi.IsProofOfBurn() {
		target = fromCompact(bi.Header.BurnBits)
		base = c.params.BurnLimit()
	} else {
		target = fromCompact(bi.Header.Bits)
		base = c.params.WorkLimit()
	}

	targetPlus := new(uint256.Int).AddUint64(target, 1)
	local := new(uint256.Int)
	if !targetPlus.IsZero() {
		local.Div(base, targetPlus)
	}
	if bi.IsProofOfStake() || local.Lt(one) {
		local.Set(one)
	}

	if bi.BlockHeight < 12 {
		return local
	}

	if bi.IsProofOfStake() {
		score := divMax(target)

		third := new(uint256.Int).Div(score, uint256.NewInt(3))
		if bi.Prev == nil || !bi.Prev.IsProofOfWork() {
			return third
		}
		if countKind(bi.Prev, 12, func(n *BlockIndex) bool { return n.IsProofOfWork() }) < 3 {
			return third
		}
		return score
	}

	// PoW or PoB. Ride two thirds of the previous step's trust unless
	// the recent chain is stake-heavy, in which case take full credit
	// against the parent's target.
	last := new(uint256.Int)
	if bi.Prev != nil && bi.Prev.Prev != nil {
		last.Sub(bi.Prev.ChainTrust, bi.Prev.Prev.ChainTrust)
	}

	twoPoSParents := bi.Prev != nil && bi.Prev.Prev != nil &&
		bi.Prev.IsProofOfStake() && bi.Prev.Prev.IsProofOfStake()

	if !twoPoSParents || countKind(bi.Prev, 12, func(n *BlockIndex) bool { return n.IsProofOfStake() }) < 7 {
		carried := new(uint256.Int).Mul(last, uint256.NewInt(2))
		carried.Div(carried, uint256.NewInt(3))
		return carried.Add(carried, local)
	}

	prevTarget := fromCompact(bi.Prev.Header.Bits)
	if bi.Prev.IsProofOfBurn() {
		prevTarget = fromCompact(bi.Prev.Header.BurnBits)
	}
	full := divMax(prevTarget)
	return full.Add(full, local)
}

// legacyBlockTrust is the scoring in force before the chain-checks
// switch: stake blocks score by target, everything else counts one.
func (c *Chain) legacyBlockTrust(bi *BlockIndex) *uint256.Int {
	if bi.IsProofOfStake() {
		return divMax(fromCompact(bi.Header.Bits))
	}
	return uint256.NewInt(1)
}

// countKind counts ancestors matching the predicate within the last n
// blocks ending at the specified index.
func countKind(bi *BlockIndex, n int, match func(*BlockIndex) bool) int {
	var count int
	for i := 0; i < n && bi != nil; i++ {
		if match(bi) {
			count++
		}
		bi = bi.Prev
	}
	return count
}
