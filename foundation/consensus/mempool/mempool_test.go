package mempool

import (
	"testing"
	"time"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/chain"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/script"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/store"
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
		NetMagic:           [4]byte{0x01, 0x02, 0x03, 0x04},
		GenesisTime:        1_500_000_000,
		StakeTargetSpacing: 90,
		StakeMinAge:        60,
		CoinbaseMaturity:   1,
		BurnMinConfirms:    1,
		BurnHashDouble:     8,
		BurnConstant:       genesis.Cent,
		MaxMintPoW:         50 * genesis.Coin,
		MaxMintPoB:         25 * genesis.Coin,
		WorkLimitShift:     1,
		StakeLimitShift:    1,
		StakeLimitShiftV2:  1,
		BurnLimitShift:     1,
		InitialTargetShift: 1,
	}
	p.DeriveLimits()
	return p
}

func testPool(t *testing.T) *Mempool {
	t.Helper()

	params := testParams()

	files, err := store.NewBlockFiles(t.TempDir(), params.NetMagic)
	if err != nil {
		t.Fatalf("opening block files: %v", err)
	}
	t.Cleanup(func() { files.Close() })

	c, err := chain.New(chain.Config{
		Params: params,
		Store:  store.NewMemory(),
		Files:  files,
	})
	if err != nil {
		t.Fatalf("building chain: %v", err)
	}

	return New(Config{Params: params, Chain: c})
}

func userTx(salt byte) ledger.Transaction {
	var prev wire.Hash
	prev[0] = salt

	return ledger.Transaction{
		Version: 1,
		Time:    1_500_000_100,
		Inputs: []ledger.TxInput{{
			PrevOut:   ledger.OutPoint{Hash: prev, Index: 0},
			SigScript: []byte{0x01, salt},
			Sequence:  0xFFFF_FFFF,
		}},
		Outputs: []ledger.TxOutput{{
			Value:        genesis.Coin,
			PubKeyScript: script.PayToPubKeyHashScript([20]byte{salt}),
		}},
	}
}

// =============================================================================

func Test_AcceptRules(t *testing.T) {
	t.Log("Given the need to police loose transactions entering the pool.")
	{
		mp := testPool(t)

		tx := userTx(0x01)
		if err := mp.Accept(tx, false, false); err != nil {
			t.Fatalf("\t%s\tShould accept a clean transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a clean transaction.", success)

		if err := mp.Accept(tx, false, false); err == nil {
			t.Fatalf("\t%s\tShould reject a duplicate.", failed)
		}
		t.Logf("\t%s\tShould reject a duplicate.", success)

		// A different transaction spending the same outpoint: the
		// replacement path is disabled, so any conflict rejects.
		conflict := userTx(0x01)
		conflict.Outputs[0].Value = genesis.Coin / 2
		if err := mp.Accept(conflict, false, false); err == nil {
			t.Fatalf("\t%s\tShould reject a conflicting spend.", failed)
		}
		t.Logf("\t%s\tShould reject a conflicting spend.", success)

		coinbase := ledger.Transaction{
			Version: 1,
			Time:    1_500_000_100,
			Inputs:  []ledger.TxInput{{PrevOut: ledger.NullOutPoint(), SigScript: []byte{0x01, 0x01}}},
			Outputs: []ledger.TxOutput{{Value: genesis.Coin, PubKeyScript: script.PayToPubKeyHashScript([20]byte{0x09})}},
		}
		if err := mp.Accept(coinbase, false, false); err == nil {
			t.Fatalf("\t%s\tShould reject a loose coinbase.", failed)
		}
		t.Logf("\t%s\tShould reject a loose coinbase.", success)

		locked := userTx(0x02)
		locked.LockTime = genesis.MaxLockTime + 1
		if err := mp.Accept(locked, false, false); err == nil {
			t.Fatalf("\t%s\tShould reject an out-of-range lock time.", failed)
		}
		t.Logf("\t%s\tShould reject an out-of-range lock time.", success)

		if mp.Count() != 1 {
			t.Fatalf("\t%s\tShould hold exactly the accepted transaction, got %d.", failed, mp.Count())
		}
		t.Logf("\t%s\tShould hold exactly the accepted transaction.", success)
	}
}

func Test_RemoveForBlock(t *testing.T) {
	t.Log("Given the need to clear mined and conflicting transactions.")
	{
		mp := testPool(t)

		tx := userTx(0x01)
		other := userTx(0x02)
		if err := mp.Accept(tx, false, false); err != nil {
			t.Fatalf("\t%s\tShould accept the first transaction: %v", failed, err)
		}
		if err := mp.Accept(other, false, false); err != nil {
			t.Fatalf("\t%s\tShould accept the second transaction: %v", failed, err)
		}

		// The block carries a different tx spending the same outpoint
		// as tx: both the mined txs and the conflict must go.
		mined := userTx(0x01)
		mined.Outputs[0].Value = genesis.Coin / 4

		mp.RemoveForBlock([]ledger.Transaction{mined})

		if mp.Contains(tx.Hash()) {
			t.Fatalf("\t%s\tShould drop the conflicting pool transaction.", failed)
		}
		t.Logf("\t%s\tShould drop the conflicting pool transaction.", success)

		if !mp.Contains(other.Hash()) {
			t.Fatalf("\t%s\tShould keep the unrelated transaction.", failed)
		}
		t.Logf("\t%s\tShould keep the unrelated transaction.", success)
	}
}

func Test_FreeRelayLimiter(t *testing.T) {
	t.Log("Given the need to rate limit free transactions.")
	{
		mp := testPool(t)

		now := time.Unix(1_700_000_000, 0)
		mp.now = func() time.Time { return now }

		// 20 free transactions of 1500 bytes inside one second: the cap
		// of 15,000 bytes admits the first 10.
		var accepted int
		for i := 0; i < 20; i++ {
			if err := mp.limitFree(1500); err == nil {
				accepted++
			}
			now = now.Add(50 * time.Millisecond)
		}

		if accepted != 10 {
			t.Fatalf("\t%s\tShould admit exactly 10 of 20, got %d.", failed, accepted)
		}
		t.Logf("\t%s\tShould admit exactly 10 of 20.", success)

		// Ten minutes later the window has decayed by roughly e^-1 and
		// another free transaction fits.
		now = now.Add(10 * time.Minute)
		if err := mp.limitFree(1500); err != nil {
			t.Fatalf("\t%s\tShould admit again after the window decays: %v", failed, err)
		}
		t.Logf("\t%s\tShould admit again after the window decays.", success)
	}
}
