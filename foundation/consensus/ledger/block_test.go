package ledger_test

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/compact"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/merkle"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/script"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/signature"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

const minerECDSA = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"

// testParams builds parameters easy enough to grind blocks against in a
// test run.
func testParams() genesis.Params {
	p := genesis.Params{
		Name:         "testchain",
		NetMagic:     [4]byte{0x01, 0x02, 0x03, 0x04},
		GenesisTime:  postSwitch,
		GenesisNonce: 7,

		StakeTargetSpacing: 90,
		StakeMinAge:        60,
		CoinbaseMaturity:   1,

		BurnMinConfirms: 1,
		BurnHashDouble:  8,
		BurnConstant:    genesis.Cent,

		MaxMintPoW: 50 * genesis.Coin,
		MaxMintPoB: 25 * genesis.Coin,

		WorkLimitShift:     1,
		StakeLimitShift:    1,
		StakeLimitShiftV2:  1,
		BurnLimitShift:     1,
		InitialTargetShift: 1,
	}
	p.DeriveLimits()
	return p
}

// minePoWBlock builds a signed proof-of-work block over the transactions.
func minePoWBlock(t *testing.T, params genesis.Params, prevHash wire.Hash, blockTime uint32, txs []ledger.Transaction) ledger.Block {
	t.Helper()

	tree, err := merkle.NewTree(txs)
	if err != nil {
		t.Fatalf("building merkle tree: %v", err)
	}

	b := ledger.Block{
		Header: ledger.BlockHeader{
			Version:    1,
			PrevHash:   prevHash,
			MerkleRoot: tree.RootHash(),
			Time:       blockTime,
			Bits:       compact.ToCompact(params.WorkLimit()),
			BurnBits:   compact.ToCompact(params.BurnLimit()),
		},
		Txs: txs,
	}

	target := compact.FromCompact(b.Header.Bits)
	for compact.HashToInt(b.Hash()).Gt(target) {
		b.Header.Nonce++
	}

	key, err := crypto.HexToECDSA(minerECDSA)
	if err != nil {
		t.Fatalf("loading key: %v", err)
	}
	if err := b.Sign(key); err != nil {
		t.Fatalf("signing block: %v", err)
	}

	return b
}

// payToMiner returns the pay-to-pubkey script for the test miner key.
func payToMiner(t *testing.T) []byte {
	t.Helper()

	key, err := crypto.HexToECDSA(minerECDSA)
	if err != nil {
		t.Fatalf("loading key: %v", err)
	}
	return script.PayToPubKeyScript(signature.PubKeyBytes(key))
}

// =============================================================================

func Test_BlockRoundTrip(t *testing.T) {
	t.Log("Given the need to round-trip blocks through the wire form.")
	{
		coinbase := coinbaseTx()
		b := ledger.Block{
			Header: ledger.BlockHeader{
				Version:  1,
				Time:     postSwitch,
				Bits:     0x1d00ffff,
				BurnBits: 0x1c00ffff,
				Nonce:    42,
			},
			Txs: []ledger.Transaction{coinbase, userTx()},
			Sig: []byte{0x01, 0x02, 0x03},
			PoB: &ledger.PoBFields{
				BurnBlockHeight: 7,
				BurnTxOut:       1,
			},
			EffectiveBurnCoins: 123 * genesis.Coin,
		}
		b.PoB.BurnBlockHash[0] = 0xaa
		b.PoB.BurnTx[0] = 0xbb
		b.PoB.BurnHash[0] = 0xcc
		b.Header.MerkleRoot[5] = 0x77

		var buf bytes.Buffer
		if err := b.Serialize(&buf); err != nil {
			t.Fatalf("\t%s\tShould be able to serialize: %v", failed, err)
		}

		var back ledger.Block
		if err := back.Deserialize(&buf); err != nil {
			t.Fatalf("\t%s\tShould be able to deserialize: %v", failed, err)
		}

		if back.Hash() != b.Hash() {
			t.Fatalf("\t%s\tShould keep the same header hash.", failed)
		}
		t.Logf("\t%s\tShould keep the same header hash.", success)

		if back.PoB == nil || *back.PoB != *b.PoB {
			t.Fatalf("\t%s\tShould keep the proof-of-burn fields.", failed)
		}
		t.Logf("\t%s\tShould keep the proof-of-burn fields.", success)

		if back.EffectiveBurnCoins != b.EffectiveBurnCoins {
			t.Fatalf("\t%s\tShould keep the effective burn coins.", failed)
		}
		t.Logf("\t%s\tShould keep the effective burn coins.", success)

		if !bytes.Equal(back.Sig, b.Sig) {
			t.Fatalf("\t%s\tShould keep the signature.", failed)
		}
		t.Logf("\t%s\tShould keep the signature.", success)
	}
}

func Test_BlockClassification(t *testing.T) {
	t.Log("Given the need for the three block types to be exclusive.")
	{
		pow := ledger.Block{Txs: []ledger.Transaction{coinbaseTx()}}
		if !pow.IsProofOfWork() || pow.IsProofOfStake() || pow.IsProofOfBurn() {
			t.Fatalf("\t%s\tShould classify a plain block as proof-of-work.", failed)
		}
		t.Logf("\t%s\tShould classify a plain block as proof-of-work.", success)

		stake := userTx()
		stake.Outputs = []ledger.TxOutput{
			{},
			{Value: 30 * genesis.Coin, PubKeyScript: script.PayToPubKeyHashScript([20]byte{0x03})},
		}
		pos := ledger.Block{Txs: []ledger.Transaction{coinbaseTx(), stake}}
		if !pos.IsProofOfStake() || pos.IsProofOfWork() {
			t.Fatalf("\t%s\tShould classify a coinstake block as proof-of-stake.", failed)
		}
		t.Logf("\t%s\tShould classify a coinstake block as proof-of-stake.", success)

		pob := ledger.Block{Txs: []ledger.Transaction{coinbaseTx()}, PoB: &ledger.PoBFields{}}
		if !pob.IsProofOfBurn() || pob.IsProofOfWork() {
			t.Fatalf("\t%s\tShould classify a block with burn fields as proof-of-burn.", failed)
		}
		t.Logf("\t%s\tShould classify a block with burn fields as proof-of-burn.", success)
	}
}

func Test_CheckBlock(t *testing.T) {
	params := testParams()

	coinbase := ledger.Transaction{
		Version: 1,
		Time:    postSwitch + 90,
		Inputs: []ledger.TxInput{{
			PrevOut:   ledger.NullOutPoint(),
			SigScript: []byte{0x01, 0x01},
		}},
		Outputs: []ledger.TxOutput{{
			Value:        genesis.Coin,
			PubKeyScript: payToMiner(t),
		}},
	}

	var prevHash wire.Hash
	prevHash[0] = 0x11

	t.Log("Given the need to validate a proof-of-work block context-free.")
	{
		b := minePoWBlock(t, params, prevHash, postSwitch+90, []ledger.Transaction{coinbase})

		if err := b.CheckBlock(params, b.Header.Time); err != nil {
			t.Fatalf("\t%s\tShould accept a well-formed block: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a well-formed block.", success)

		bad := b
		bad.Header.MerkleRoot[0] ^= 0x01
		if err := bad.CheckBlock(params, bad.Header.Time); err == nil {
			t.Fatalf("\t%s\tShould reject a bad merkle root.", failed)
		}
		t.Logf("\t%s\tShould reject a bad merkle root.", success)

		bad = b
		bad.Sig = []byte{0x01}
		if err := bad.CheckBlock(params, bad.Header.Time); err == nil {
			t.Fatalf("\t%s\tShould reject a bad signature.", failed)
		}
		t.Logf("\t%s\tShould reject a bad signature.", success)

		bad = b
		bad.Header.Time = postSwitch - 10
		if err := bad.CheckBlock(params, bad.Header.Time); err == nil {
			t.Fatalf("\t%s\tShould reject when txs postdate the block time.", failed)
		}
		t.Logf("\t%s\tShould reject when txs postdate the block time.", success)

		noCoinbase := minePoWBlock(t, params, prevHash, postSwitch+90, []ledger.Transaction{userTx()})
		if err := noCoinbase.CheckBlock(params, noCoinbase.Header.Time); err == nil {
			t.Fatalf("\t%s\tShould reject a block without a coinbase first.", failed)
		}
		t.Logf("\t%s\tShould reject a block without a coinbase first.", success)

		greedy := coinbase
		greedy.Outputs = []ledger.TxOutput{{
			Value:        51 * genesis.Coin,
			PubKeyScript: payToMiner(t),
		}}
		over := minePoWBlock(t, params, prevHash, postSwitch+90, []ledger.Transaction{greedy})
		if err := over.CheckBlock(params, over.Header.Time); err == nil {
			t.Fatalf("\t%s\tShould reject a coinbase above the subsidy ceiling.", failed)
		}
		t.Logf("\t%s\tShould reject a coinbase above the subsidy ceiling.", success)
	}
}
