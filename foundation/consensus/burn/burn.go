// Package burn implements the proof-of-burn engine: the burn-hash
// construction with its decay multiplier, and the effective-burn-coin
// accounting that tracks the decay-weighted burned supply.
package burn

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/compact"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/signature"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// HashInputs gathers everything the burn-hash construction consumes.
type HashInputs struct {
	BurnBlockHash wire.Hash
	BurnTxHash    wire.Hash
	PrevHash      wire.Hash
	BurnValue     int64
	PoWBetween    int32
	PrevBlockTime uint32
}

// IntermediateHash returns the raw burn hash before the decay multiplier:
// H(burn_block_hash || burn_tx_hash || prev_hash). Block headers carry it
// so duplicate burn attempts can be matched cheaply.
func IntermediateHash(burnBlockHash, burnTxHash, prevHash wire.Hash) wire.Hash {
	return signature.Hash(burnBlockHash.Bytes(), burnTxHash.Bytes(), prevHash.Bytes())
}

// FinalHash applies the decay multiplier to the intermediate hash and,
// past the round-down switch, re-encodes the result through the compact
// representation. The result is what gets compared against burn_bits.
func FinalHash(in HashInputs, params genesis.Params) (wire.Hash, error) {
	if in.PoWBetween < params.BurnMinConfirms {
		return wire.Hash{}, reject.New(reject.BurnImmature,
			"burn tx has %d confirmations, needs %d", in.PoWBetween, params.BurnMinConfirms)
	}
	if in.BurnValue <= 0 {
		return wire.Hash{}, reject.New(reject.Malformed, "burn value must be positive")
	}

	base := IntermediateHash(in.BurnBlockHash, in.BurnTxHash, in.PrevHash)

	// multiplier = (BURN_CONSTANT / burn_value) * 2^((between - minconf) / BURN_HASH_DOUBLE)
	// The doubling makes an aging burn progressively worthless. The
	// intermediate product exceeds 256 bits, so it runs on big.Int.
	exp := int64(in.PoWBetween-params.BurnMinConfirms) / params.BurnHashDouble

	final := compact.HashToInt(base).ToBig()
	final.Mul(final, big.NewInt(params.BurnConstant))
	final.Lsh(final, uint(exp))
	final.Div(final, big.NewInt(in.BurnValue))

	if final.BitLen() > 256 {
		return wire.Hash{}, reject.New(reject.Consensus, "burn hash overflows")
	}

	result, overflow := uint256.FromBig(final)
	if overflow {
		return wire.Hash{}, reject.New(reject.Consensus, "burn hash overflows")
	}

	if in.PrevBlockTime >= genesis.BurnRoundDownTime {
		result = compact.FromCompact(compact.ToCompact(result))
	}

	return compact.IntToHash(result), nil
}

// =============================================================================

// NextEffectiveBurnCoins rolls the effective-burn-coin total forward one
// block: decay at proof-of-work blocks, then add this block's burns.
func NextEffectiveBurnCoins(prevEffective int64, blockIsPoW bool, burned int64) int64 {
	effective := prevEffective
	if blockIsPoW {
		effective = decay(effective)
	}
	return effective + burned
}

// BurnedValue sums the value every transaction in the block sends to the
// canonical burn address.
func BurnedValue(txs []ledger.Transaction) int64 {
	var total int64
	for _, tx := range txs {
		if _, value, ok := tx.BurnOutput(); ok {
			total += value
		}
	}
	return total
}

// decay divides the effective total by the per-PoW-block decay rate. The
// rate is a ratio close to one, so the product needs more than 64 bits.
func decay(effective int64) int64 {
	if effective <= 0 {
		return 0
	}

	v := new(big.Int).SetInt64(effective)
	v.Mul(v, big.NewInt(genesis.BurnDecayDenominator))
	v.Div(v, big.NewInt(genesis.BurnDecayNumerator))
	return v.Int64()
}
