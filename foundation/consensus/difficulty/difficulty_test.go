package difficulty_test

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/compact"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/difficulty"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const postSwitch = 1_500_000_000

// fakeNode satisfies the difficulty.Node interface for building chains
// by hand.
type fakeNode struct {
	height   int32
	time     uint32
	bits     uint32
	burnBits uint32
	isPoS    bool
	isPoB    bool
	effBurn  int64
	parent   *fakeNode
}

func (n *fakeNode) Height() int32             { return n.height }
func (n *fakeNode) Time() uint32              { return n.time }
func (n *fakeNode) Bits() uint32              { return n.bits }
func (n *fakeNode) BurnBits() uint32          { return n.burnBits }
func (n *fakeNode) IsProofOfStake() bool      { return n.isPoS }
func (n *fakeNode) IsProofOfBurn() bool       { return n.isPoB }
func (n *fakeNode) EffectiveBurnCoins() int64 { return n.effBurn }
func (n *fakeNode) Parent() difficulty.Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func testParams() genesis.Params {
	p := genesis.Params{
		Name:               "testchain",
		GenesisTime:        postSwitch,
		StakeTargetSpacing: 90,
		StakeMinAge:        60,
		CoinbaseMaturity:   1,
		BurnMinConfirms:    1,
		BurnHashDouble:     8,
		BurnConstant:       genesis.Cent,
		MaxMintPoW:         50 * genesis.Coin,
		MaxMintPoB:         25 * genesis.Coin,
		WorkLimitShift:     20,
		StakeLimitShift:    24,
		StakeLimitShiftV2:  20,
		BurnLimitShift:     20,
		InitialTargetShift: 28,
	}
	p.DeriveLimits()
	return p
}

// =============================================================================

func Test_NextTargetBootstrap(t *testing.T) {
	params := testParams()

	t.Log("Given the need to bootstrap targets on a young chain.")
	{
		gen := fakeNode{height: 0, time: postSwitch, bits: compact.ToCompact(params.WorkLimit())}

		if got := difficulty.NextTarget(&gen, false, params); got != compact.ToCompact(params.InitialHashTarget()) {
			t.Fatalf("\t%s\tShould return the initial target with one PoW ancestor.", failed)
		}
		t.Logf("\t%s\tShould return the initial target with one PoW ancestor.", success)

		// Genesis is the walk's sentinel even for the stake kind, so the
		// second-ever block also starts at the initial hash target.
		if got := difficulty.NextTarget(&gen, true, params); got != compact.ToCompact(params.InitialHashTarget()) {
			t.Fatalf("\t%s\tShould return the initial target with no PoS ancestor.", failed)
		}
		t.Logf("\t%s\tShould return the initial target with no PoS ancestor.", success)
	}
}

func Test_NextTargetTracksSpacing(t *testing.T) {
	params := testParams()
	bits := compact.ToCompact(params.InitialHashTarget())

	t.Log("Given the need for the target to follow actual block spacing.")
	{
		// The formula needs two PoW blocks past genesis; until then the
		// chain sits at the initial hash target.
		gen := &fakeNode{height: 0, time: postSwitch, bits: bits}
		n1 := &fakeNode{height: 1, time: postSwitch + 90, bits: bits, parent: gen}
		fast := &fakeNode{height: 2, time: n1.time + 10, bits: bits, parent: n1}
		slow := &fakeNode{height: 2, time: n1.time + 900, bits: bits, parent: n1}

		fastTarget := compact.FromCompact(difficulty.NextTarget(fast, false, params))
		slowTarget := compact.FromCompact(difficulty.NextTarget(slow, false, params))

		if !fastTarget.Lt(slowTarget) {
			t.Fatalf("\t%s\tShould tighten the target when blocks come fast.", failed)
		}
		t.Logf("\t%s\tShould tighten the target when blocks come fast.", success)

		if slowTarget.Gt(params.WorkLimit()) {
			t.Fatalf("\t%s\tShould clamp the target to the work limit.", failed)
		}
		t.Logf("\t%s\tShould clamp the target to the work limit.", success)
	}
}

func Test_NextBurnTarget(t *testing.T) {
	params := testParams()
	burnLimit := compact.ToCompact(params.BurnLimit())

	t.Log("Given the need to retarget proof-of-burn separately.")
	{
		gen := &fakeNode{height: 0, time: postSwitch, burnBits: burnLimit}

		if got := difficulty.NextBurnTarget(gen, params); got != burnLimit {
			t.Fatalf("\t%s\tShould return the burn limit with no PoB ancestor.", failed)
		}
		t.Logf("\t%s\tShould return the burn limit with no PoB ancestor.", success)

		pob := &fakeNode{height: 1, time: postSwitch + 90, burnBits: burnLimit, isPoB: true, parent: gen}
		if got := difficulty.NextBurnTarget(pob, params); got != pob.burnBits {
			t.Fatalf("\t%s\tShould reuse burn bits with no PoW since the PoB.", failed)
		}
		t.Logf("\t%s\tShould reuse burn bits with no PoW since the PoB.", success)

		// Six PoW blocks since the last PoB: twice the desired spacing,
		// so the target must loosen, clamped at the limit.
		tip := pob
		for i := int32(0); i < 6; i++ {
			tip = &fakeNode{height: 2 + i, time: tip.time + 90, burnBits: burnLimit, parent: tip}
		}
		got := compact.FromCompact(difficulty.NextBurnTarget(tip, params))
		if got.Gt(params.BurnLimit()) {
			t.Fatalf("\t%s\tShould clamp the burn target to the burn limit.", failed)
		}
		t.Logf("\t%s\tShould clamp the burn target to the burn limit.", success)

		// Before the switch time the legacy supply-driven formula applies,
		// except on testnet, which always runs the new formula.
		legacy := &fakeNode{height: 0, time: 1_300_000_000, burnBits: burnLimit, effBurn: 100 * genesis.Coin}

		mainGot := compact.FromCompact(difficulty.NextBurnTarget(legacy, params))
		if !mainGot.Lt(params.BurnLimit()) {
			t.Fatalf("\t%s\tShould harden the legacy target with burned supply.", failed)
		}
		t.Logf("\t%s\tShould harden the legacy target with burned supply.", success)

		testnet := params
		testnet.Name = "testnet"
		if got := difficulty.NextBurnTarget(legacy, testnet); got != burnLimit {
			t.Fatalf("\t%s\tShould run the new formula on testnet before the switch.", failed)
		}
		t.Logf("\t%s\tShould run the new formula on testnet before the switch.", success)
	}
}

// =============================================================================

func Test_SubsidyCurve(t *testing.T) {
	params := testParams()

	t.Log("Given the need for the subsidy to fall as difficulty rises.")
	{
		atLimit := difficulty.ProofOfWorkReward(compact.ToCompact(params.WorkLimit()), params)
		if atLimit != params.MaxMintPoW {
			t.Fatalf("\t%s\tShould pay max mint at difficulty one, got %d.", failed, atLimit)
		}
		t.Logf("\t%s\tShould pay max mint at difficulty one.", success)

		// Difficulty 16 cuts the subsidy in half: 16^(-1/4) = 1/2.
		harder := compact.ToCompact(new(uint256.Int).Rsh(params.WorkLimit(), 4))
		half := difficulty.ProofOfWorkReward(harder, params)

		if half > params.MaxMintPoW/2 || half < params.MaxMintPoW/2-genesis.Cent {
			t.Fatalf("\t%s\tShould pay half max mint at difficulty sixteen, got %d.", failed, half)
		}
		t.Logf("\t%s\tShould pay half max mint at difficulty sixteen.", success)

		if difficulty.ProofOfBurnReward(compact.ToCompact(params.BurnLimit()), params) != params.MaxMintPoB {
			t.Fatalf("\t%s\tShould use the separate burn max mint.", failed)
		}
		t.Logf("\t%s\tShould use the separate burn max mint.", success)
	}
}

func Test_StakeRewardLinearity(t *testing.T) {
	t.Log("Given the need for the stake reward to be linear in coin-days.")
	{
		// 12053 = 365*33 + 8, so the divisions below are exact.
		base := difficulty.StakeReward(12_053, postSwitch)
		triple := difficulty.StakeReward(3*12_053, postSwitch)

		if triple != 3*base {
			t.Fatalf("\t%s\tShould scale linearly, got %d, exp %d.", failed, triple, 3*base)
		}
		t.Logf("\t%s\tShould scale linearly.", success)

		pre := difficulty.StakeReward(12_053, 1_300_000_000)
		if base != 10*pre {
			t.Fatalf("\t%s\tShould pay ten times the legacy rate post-switch.", failed)
		}
		t.Logf("\t%s\tShould pay ten times the legacy rate post-switch.", success)
	}
}

func Test_CoinDays(t *testing.T) {
	t.Log("Given the need to convert cent-seconds to coin-days.")
	{
		// One coin held one day: cent-seconds = COIN * 86400 / CENT.
		centSeconds := int64(genesis.Coin) * 86_400 / genesis.Cent
		if got := difficulty.CoinDays(centSeconds); got != 1 {
			t.Fatalf("\t%s\tShould yield one coin-day, got %d.", failed, got)
		}
		t.Logf("\t%s\tShould yield one coin-day.", success)
	}
}
