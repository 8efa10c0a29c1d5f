package orphan_test

import (
	"bytes"
	"testing"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/orphan"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// blockWithPrev builds a minimal distinct block on the specified parent.
func blockWithPrev(prev wire.Hash, salt byte) ledger.Block {
	return ledger.Block{
		Header: ledger.BlockHeader{
			Version:  1,
			PrevHash: prev,
			Time:     1_500_000_000 + uint32(salt),
			Nonce:    uint32(salt),
		},
		Txs: []ledger.Transaction{{
			Version: 1,
			Time:    1_500_000_000,
			Inputs:  []ledger.TxInput{{PrevOut: ledger.NullOutPoint(), SigScript: []byte{0x01, salt}}},
			Outputs: []ledger.TxOutput{{Value: 0, PubKeyScript: []byte{0x6a}}},
		}},
	}
}

func hashOf(b byte) wire.Hash {
	var h wire.Hash
	h[0] = b
	return h
}

// =============================================================================

func Test_OrphanBlocks(t *testing.T) {
	t.Log("Given the need to hold blocks whose parents are unknown.")
	{
		pool := orphan.NewBlocks(10)

		b1 := blockWithPrev(hashOf(0x01), 1)
		b2 := blockWithPrev(b1.Hash(), 2)
		b3 := blockWithPrev(b2.Hash(), 3)

		pool.Add(b1)
		pool.Add(b2)
		pool.Add(b3)

		if pool.Count() != 3 {
			t.Fatalf("\t%s\tShould hold all three orphans, got %d.", failed, pool.Count())
		}
		t.Logf("\t%s\tShould hold all three orphans.", success)

		if got := pool.Root(b3.Hash()); got != hashOf(0x01) {
			t.Fatalf("\t%s\tShould walk the chain to the earliest missing parent.", failed)
		}
		t.Logf("\t%s\tShould walk the chain to the earliest missing parent.", success)

		deps := pool.DependentsOf(b1.Hash())
		if len(deps) != 1 || deps[0].Hash() != b2.Hash() {
			t.Fatalf("\t%s\tShould track dependents by parent.", failed)
		}
		t.Logf("\t%s\tShould track dependents by parent.", success)

		if !pool.HasDependentOf(b2.Hash()) || pool.HasDependentOf(b3.Hash()) {
			t.Fatalf("\t%s\tShould report dependent presence accurately.", failed)
		}
		t.Logf("\t%s\tShould report dependent presence accurately.", success)
	}
}

func Test_OrphanBlockEviction(t *testing.T) {
	t.Log("Given the need to bound the orphan block pool.")
	{
		const cap = 5
		pool := orphan.NewBlocks(cap)

		// Unrelated orphans, more than the cap.
		for i := 0; i < cap+3; i++ {
			pool.Add(blockWithPrev(hashOf(byte(0x10+i)), byte(i+1)))
		}

		if pool.Count() != cap {
			t.Fatalf("\t%s\tShould keep the pool at capacity, got %d.", failed, pool.Count())
		}
		t.Logf("\t%s\tShould keep the pool at capacity.", success)
	}
}

func Test_OrphanTransactions(t *testing.T) {
	t.Log("Given the need to hold transactions with unknown parents.")
	{
		pool := orphan.NewTransactions(10)

		parent := hashOf(0x55)
		tx := ledger.Transaction{
			Version: 1,
			Time:    1_500_000_000,
			Inputs:  []ledger.TxInput{{PrevOut: ledger.OutPoint{Hash: parent, Index: 0}, SigScript: []byte{0x01, 0x01}}},
			Outputs: []ledger.TxOutput{{Value: genesis.Coin, PubKeyScript: []byte{0x6a}}},
		}

		if !pool.Add(tx) {
			t.Fatalf("\t%s\tShould accept a small orphan.", failed)
		}
		t.Logf("\t%s\tShould accept a small orphan.", success)

		deps := pool.DependentsOf(parent)
		if len(deps) != 1 || deps[0].Hash() != tx.Hash() {
			t.Fatalf("\t%s\tShould find the orphan by its missing parent.", failed)
		}
		t.Logf("\t%s\tShould find the orphan by its missing parent.", success)

		big := tx
		big.Outputs = []ledger.TxOutput{{Value: 1, PubKeyScript: bytes.Repeat([]byte{0x00}, genesis.MaxOrphanTxSize)}}
		if pool.Add(big) {
			t.Fatalf("\t%s\tShould refuse an oversized orphan.", failed)
		}
		t.Logf("\t%s\tShould refuse an oversized orphan.", success)

		pool.Remove(tx.Hash())
		if pool.Count() != 0 {
			t.Fatalf("\t%s\tShould remove orphans cleanly.", failed)
		}
		t.Logf("\t%s\tShould remove orphans cleanly.", success)
	}
}

func Test_OrphanTransactionEviction(t *testing.T) {
	t.Log("Given the need to bound the orphan transaction pool.")
	{
		const cap = 4
		pool := orphan.NewTransactions(cap)

		for i := 0; i < cap+5; i++ {
			tx := ledger.Transaction{
				Version: 1,
				Time:    1_500_000_000,
				Inputs:  []ledger.TxInput{{PrevOut: ledger.OutPoint{Hash: hashOf(byte(i + 1)), Index: 0}, SigScript: []byte{0x01, byte(i)}}},
				Outputs: []ledger.TxOutput{{Value: int64(i), PubKeyScript: []byte{0x6a}}},
			}
			pool.Add(tx)
		}

		if pool.Count() != cap {
			t.Fatalf("\t%s\tShould evict down to capacity, got %d.", failed, pool.Count())
		}
		t.Logf("\t%s\tShould evict down to capacity.", success)
	}
}
