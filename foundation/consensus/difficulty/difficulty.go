// Package difficulty implements target retargeting for the three block
// types and the reward curves tied to difficulty and coin age.
package difficulty

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/compact"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
)

// Node represents the view of a block-index entry the retarget walks
// need. The chain package's index satisfies it.
type Node interface {
	Height() int32
	Time() uint32
	Bits() uint32
	BurnBits() uint32
	IsProofOfStake() bool
	IsProofOfBurn() bool
	EffectiveBurnCoins() int64
	Parent() Node
}

// lastOfKind walks back to the nearest block of the requested kind.
// Proof-of-burn blocks never participate in PoW or PoS retargets. The
// walk never runs past genesis: genesis comes back as the sentinel even
// when it is not the requested kind, so callers always get a block.
func lastOfKind(n Node, isPoS bool) Node {
	match := func(n Node) bool {
		if isPoS {
			return n.IsProofOfStake()
		}
		return !n.IsProofOfStake() && !n.IsProofOfBurn()
	}

	for n != nil && n.Parent() != nil && !match(n) {
		n = n.Parent()
	}
	return n
}

// NextTarget computes the required target for the block following prev,
// for the requested kind. The formula averages toward the per-kind
// spacing, widening the window after the early retarget block.
func NextTarget(prev Node, isPoS bool, params genesis.Params) uint32 {
	if prev == nil {
		if isPoS {
			return compact.ToCompact(params.StakeLimit(0))
		}
		return compact.ToCompact(params.WorkLimit())
	}

	var limit *uint256.Int
	if isPoS {
		limit = params.StakeLimit(prev.Time())
	} else {
		limit = params.WorkLimit()
	}

	// Until two blocks of the kind exist past genesis, the chain runs
	// at the initial hash target.
	p := lastOfKind(prev, isPoS)
	if p.Parent() == nil {
		return compact.ToCompact(params.InitialHashTarget())
	}

	pp := lastOfKind(p.Parent(), isPoS)
	if pp.Parent() == nil {
		return compact.ToCompact(params.InitialHashTarget())
	}

	actual := int64(p.Time()) - int64(pp.Time())
	if actual < 0 {
		actual = 0
	}

	spacing := int64(params.StakeTargetSpacing)
	if !isPoS {
		// PoW relaxes when the chain tip has moved past the last PoW
		// block, up to a factor of ten.
		factor := int64(prev.Height()-p.Height()) + 1
		if factor < 1 {
			factor = 1
		}
		spacing *= factor
		if max := int64(params.StakeTargetSpacing) * genesis.PoWSpacingRelaxFactor; spacing > max {
			spacing = max
		}
	}

	timespan := params.RetargetTimespan(prev.Height())
	interval := timespan / spacing

	// new = P.bits * ((interval-1)*spacing + 2*actual) / ((interval+1)*spacing)
	target := compact.FromCompact(p.Bits())
	num := uint256.NewInt(uint64((interval-1)*spacing + 2*actual))
	den := uint256.NewInt(uint64((interval + 1) * spacing))

	target.Mul(target, num)
	target.Div(target, den)

	if target.IsZero() || target.Gt(limit) {
		target.Set(limit)
	}
	return compact.ToCompact(target)
}

// NextBurnTarget computes the required proof-of-burn target for the block
// following prev. Before the protocol switch the target tracks the
// effective burned supply; afterward it averages toward a fixed number of
// PoW blocks between burn blocks.
func NextBurnTarget(prev Node, params genesis.Params) uint32 {
	limit := params.BurnLimit()

	// Testnet never ran the legacy formula; mainnet switched over at a
	// fixed time.
	if params.Name != "testnet" && prev.Time() < genesis.PoBPoSTargetSwitchTime {
		return legacyBurnTarget(prev, params)
	}

	// Walk back counting PoW blocks until the previous PoB block.
	var nPoW int64
	q := prev
	for q != nil && !q.IsProofOfBurn() {
		if !q.IsProofOfStake() {
			nPoW++
		}
		q = q.Parent()
	}

	if q == nil {
		return compact.ToCompact(limit)
	}
	if nPoW == 0 {
		return prev.BurnBits()
	}

	// The averaging window is expressed in PoW blocks: a timespan of 30
	// against a desired spacing of 3 PoW blocks between burn blocks.
	const spacing = genesis.BurnRetargetInterval
	const interval = genesis.BurnRetargetTimespan / spacing

	target := compact.FromCompact(q.BurnBits())
	num := uint256.NewInt(uint64((interval-1)*spacing + 2*nPoW))
	den := uint256.NewInt(uint64((interval + 1) * spacing))

	target.Mul(target, num)
	target.Div(target, den)

	if target.IsZero() || target.Gt(limit) {
		target.Set(limit)
	}
	return compact.ToCompact(target)
}

// legacyBurnTarget is the pre-switch formula driven by the effective
// burned supply. Retained only so historical chain segments revalidate.
func legacyBurnTarget(prev Node, params genesis.Params) uint32 {
	limit := params.BurnLimit()

	coins := prev.EffectiveBurnCoins() / genesis.Coin
	if coins < 1 {
		return compact.ToCompact(limit)
	}

	target := new(uint256.Int).Set(limit)
	target.Div(target, uint256.NewInt(uint64(coins)*genesis.BurnHarderTarget))

	if target.IsZero() {
		target.SetUint64(1)
	}
	return compact.ToCompact(target)
}

// =============================================================================

// subsidyByBisection solves subsidy = maxMint * (target/limit)^(1/4) by
// bisecting over candidate values with the monotone invariant
// mid^4 * limit <= maxMint^4 * target. The intermediate products exceed
// 256 bits, so this one computation runs on big.Int.
func subsidyByBisection(target, limit *uint256.Int, maxMint int64) int64 {
	bnTarget := target.ToBig()
	bnLimit := limit.ToBig()
	bnMaxMint := big.NewInt(maxMint)

	// maxMint^4 * target is the fixed right-hand side.
	rhs := new(big.Int).Exp(bnMaxMint, big.NewInt(4), nil)
	rhs.Mul(rhs, bnTarget)

	lower := big.NewInt(genesis.Cent)
	upper := new(big.Int).Set(bnMaxMint)

	mid := new(big.Int)
	lhs := new(big.Int)
	step := big.NewInt(genesis.Cent)

	for new(big.Int).Add(lower, step).Cmp(upper) <= 0 {
		mid.Add(lower, upper)
		mid.Rsh(mid, 1)

		lhs.Exp(mid, big.NewInt(4), nil)
		lhs.Mul(lhs, bnLimit)

		if lhs.Cmp(rhs) > 0 {
			upper.Set(mid)
		} else {
			lower.Set(mid)
		}
	}

	subsidy := upper.Int64()
	subsidy = (subsidy / genesis.Cent) * genesis.Cent
	if subsidy > maxMint {
		subsidy = maxMint
	}
	return subsidy
}

// ProofOfWorkReward returns the coinbase ceiling for a PoW block solving
// the specified compact target.
func ProofOfWorkReward(bits uint32, params genesis.Params) int64 {
	return subsidyByBisection(compact.FromCompact(bits), params.WorkLimit(), params.MaxMintPoW)
}

// ProofOfBurnReward returns the coinbase ceiling for a PoB block solving
// the specified compact burn target.
func ProofOfBurnReward(burnBits uint32, params genesis.Params) int64 {
	return subsidyByBisection(compact.FromCompact(burnBits), params.BurnLimit(), params.MaxMintPoB)
}

// =============================================================================

// CoinDays converts accumulated cent-seconds of held value into coin-days.
func CoinDays(centSeconds int64) int64 {
	return centSeconds * genesis.Cent / (genesis.Coin * 24 * 60 * 60)
}

// StakeReward returns the ceiling a coinstake may mint for the specified
// coin-days. The annual rate was raised at the protocol switch.
func StakeReward(coinDays int64, txTime uint32) int64 {
	rewardCoinYear := int64(genesis.Cent)
	if txTime >= genesis.PoBPoSTargetSwitchTime {
		rewardCoinYear = 10 * genesis.Cent
	}

	return coinDays * 33 * rewardCoinYear / (365*33 + 8)
}
