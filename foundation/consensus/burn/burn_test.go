package burn_test

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/burn"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/compact"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/script"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func testParams() genesis.Params {
	p := genesis.Params{
		Name:               "testchain",
		GenesisTime:        1_500_000_000,
		StakeTargetSpacing: 90,
		StakeMinAge:        60,
		CoinbaseMaturity:   1,
		BurnMinConfirms:    6,
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

func hashOf(b byte) wire.Hash {
	var h wire.Hash
	h[0] = b
	return h
}

// =============================================================================

func Test_BurnHashDecay(t *testing.T) {
	params := testParams()

	t.Log("Given the need for the burn hash to decay with elapsed PoW blocks.")
	{
		in := burn.HashInputs{
			BurnBlockHash: hashOf(0x01),
			BurnTxHash:    hashOf(0x02),
			PrevHash:      hashOf(0x03),
			BurnValue:     100 * genesis.Coin,
			PoWBetween:    params.BurnMinConfirms + 64,
			PrevBlockTime: 1_300_000_000, // before the round-down switch
		}

		final, err := burn.FinalHash(in, params)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to compute the final hash: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to compute the final hash.", success)

		// With 64 extra confirmations and a doubling every 8, the
		// multiplier is 2^8 * (BURN_CONSTANT / burn_value).
		base := burn.IntermediateHash(in.BurnBlockHash, in.BurnTxHash, in.PrevHash)

		exp := compact.HashToInt(base).ToBig()
		exp.Mul(exp, big.NewInt(params.BurnConstant))
		exp.Lsh(exp, 8)
		exp.Div(exp, big.NewInt(in.BurnValue))

		expInt, overflow := uint256.FromBig(exp)
		if overflow {
			t.Fatalf("\t%s\tShould not overflow in this configuration.", failed)
		}

		if compact.HashToInt(final).Cmp(expInt) != 0 {
			t.Fatalf("\t%s\tShould equal base times the decay multiplier.", failed)
		}
		t.Logf("\t%s\tShould equal base times the decay multiplier.", success)
	}
}

func Test_BurnHashRoundDown(t *testing.T) {
	params := testParams()

	t.Log("Given the need to round the final hash after the switch time.")
	{
		in := burn.HashInputs{
			BurnBlockHash: hashOf(0x01),
			BurnTxHash:    hashOf(0x02),
			PrevHash:      hashOf(0x03),
			BurnValue:     100 * genesis.Coin,
			PoWBetween:    params.BurnMinConfirms + 64,
			PrevBlockTime: genesis.BurnRoundDownTime,
		}

		final, err := burn.FinalHash(in, params)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to compute the final hash: %v", failed, err)
		}

		n := compact.HashToInt(final)
		if !compact.FromCompact(compact.ToCompact(n)).Eq(n) {
			t.Fatalf("\t%s\tShould already be at compact resolution.", failed)
		}
		t.Logf("\t%s\tShould already be at compact resolution.", success)
	}
}

func Test_BurnImmature(t *testing.T) {
	params := testParams()

	t.Log("Given the need to refuse burns below the confirmation floor.")
	{
		in := burn.HashInputs{
			BurnBlockHash: hashOf(0x01),
			BurnTxHash:    hashOf(0x02),
			PrevHash:      hashOf(0x03),
			BurnValue:     genesis.Coin,
			PoWBetween:    params.BurnMinConfirms - 1,
		}

		_, err := burn.FinalHash(in, params)
		if !reject.IsKind(err, reject.BurnImmature) {
			t.Fatalf("\t%s\tShould reject with BurnImmature, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject with BurnImmature.", success)
	}
}

// =============================================================================

func Test_EffectiveBurnCoins(t *testing.T) {
	t.Log("Given the need to track the decayed burned supply.")
	{
		// A non-PoW block carries the total forward and adds its burns.
		if got := burn.NextEffectiveBurnCoins(1_000*genesis.Coin, false, 5*genesis.Coin); got != 1_005*genesis.Coin {
			t.Fatalf("\t%s\tShould add burns without decay off PoW, got %d.", failed, got)
		}
		t.Logf("\t%s\tShould add burns without decay off PoW.", success)

		// A PoW block decays first: the result must shrink but stay close.
		got := burn.NextEffectiveBurnCoins(1_000*genesis.Coin, true, 0)
		if got >= 1_000*genesis.Coin || got < 999*genesis.Coin {
			t.Fatalf("\t%s\tShould decay slightly at a PoW block, got %d.", failed, got)
		}
		t.Logf("\t%s\tShould decay slightly at a PoW block.", success)

		if burn.NextEffectiveBurnCoins(0, true, 0) != 0 {
			t.Fatalf("\t%s\tShould keep zero at zero.", failed)
		}
		t.Logf("\t%s\tShould keep zero at zero.", success)
	}
}

func Test_BurnedValue(t *testing.T) {
	t.Log("Given the need to sum a block's burned value.")
	{
		burnOut := ledger.TxOutput{Value: 7 * genesis.Coin, PubKeyScript: script.BurnScript()}
		normal := ledger.TxOutput{Value: 3 * genesis.Coin, PubKeyScript: script.PayToPubKeyHashScript([20]byte{0x09})}

		txs := []ledger.Transaction{
			{Inputs: []ledger.TxInput{{}}, Outputs: []ledger.TxOutput{normal}},
			{Inputs: []ledger.TxInput{{}}, Outputs: []ledger.TxOutput{normal, burnOut}},
		}

		if got := burn.BurnedValue(txs); got != 7*genesis.Coin {
			t.Fatalf("\t%s\tShould sum only burn outputs, got %d.", failed, got)
		}
		t.Logf("\t%s\tShould sum only burn outputs.", success)
	}
}
