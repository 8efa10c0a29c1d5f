package store_test

import (
	"testing"

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

func hashOf(b byte) wire.Hash {
	var h wire.Hash
	h[0] = b
	return h
}

// stores builds one of each Store implementation for shared tests.
func stores(t *testing.T) map[string]store.Store {
	t.Helper()

	ldb, err := store.NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("opening leveldb: %v", err)
	}
	t.Cleanup(func() { ldb.Close() })

	return map[string]store.Store{
		"memory":  store.NewMemory(),
		"leveldb": ldb,
	}
}

// =============================================================================

func Test_TxIndexRoundTrip(t *testing.T) {
	t.Log("Given the need to round-trip tx index records.")
	{
		for name, db := range stores(t) {
			t.Logf("\tWhen using the %s store.", name)
			{
				idx := store.NewTxIndex(store.DiskPos{File: 2, Offset: 1234}, 7, 3)
				idx.Spent[1] = store.DiskPos{File: 2, Offset: 999}

				if err := db.WriteTxIndex(hashOf(0x01), idx); err != nil {
					t.Fatalf("\t%s\tShould be able to write the record: %v", failed, err)
				}

				back, found, err := db.ReadTxIndex(hashOf(0x01))
				if err != nil || !found {
					t.Fatalf("\t%s\tShould be able to read the record back: %v", failed, err)
				}
				if back.Pos != idx.Pos || back.Height != 7 || len(back.Spent) != 3 {
					t.Fatalf("\t%s\tShould preserve position and height.", failed)
				}
				if !back.Spent[0].IsNull() || back.Spent[1].IsNull() {
					t.Fatalf("\t%s\tShould preserve the spent slots.", failed)
				}
				t.Logf("\t%s\tShould round-trip the record.", success)

				if err := db.EraseTxIndex(hashOf(0x01)); err != nil {
					t.Fatalf("\t%s\tShould be able to erase the record: %v", failed, err)
				}
				if found, _ := db.ContainsTx(hashOf(0x01)); found {
					t.Fatalf("\t%s\tShould not find an erased record.", failed)
				}
				t.Logf("\t%s\tShould not find an erased record.", success)
			}
		}
	}
}

func Test_TransactionAtomicity(t *testing.T) {
	t.Log("Given the need for store transactions to be atomic.")
	{
		for name, db := range stores(t) {
			t.Logf("\tWhen using the %s store.", name)
			{
				if err := db.WriteBestChain(hashOf(0xAA)); err != nil {
					t.Fatalf("\t%s\tShould be able to write the best chain: %v", failed, err)
				}

				if err := db.TxBegin(); err != nil {
					t.Fatalf("\t%s\tShould be able to open a transaction: %v", failed, err)
				}

				db.WriteBestChain(hashOf(0xBB))
				db.WriteTxIndex(hashOf(0x02), store.NewTxIndex(store.DiskPos{File: 0, Offset: 10}, 1, 1))

				if err := db.TxAbort(); err != nil {
					t.Fatalf("\t%s\tShould be able to abort: %v", failed, err)
				}

				best, found, err := db.ReadBestChain()
				if err != nil || !found {
					t.Fatalf("\t%s\tShould still have a best chain: %v", failed, err)
				}
				if best != hashOf(0xAA) {
					t.Fatalf("\t%s\tShould keep the pre-transaction best chain after abort.", failed)
				}
				t.Logf("\t%s\tShould keep the pre-transaction best chain after abort.", success)

				if found, _ := db.ContainsTx(hashOf(0x02)); found {
					t.Fatalf("\t%s\tShould drop aborted tx index writes.", failed)
				}
				t.Logf("\t%s\tShould drop aborted tx index writes.", success)

				if err := db.TxBegin(); err != nil {
					t.Fatalf("\t%s\tShould be able to open a second transaction: %v", failed, err)
				}
				db.WriteBestChain(hashOf(0xCC))
				if err := db.TxCommit(); err != nil {
					t.Fatalf("\t%s\tShould be able to commit: %v", failed, err)
				}

				best, _, _ = db.ReadBestChain()
				if best != hashOf(0xCC) {
					t.Fatalf("\t%s\tShould see committed writes.", failed)
				}
				t.Logf("\t%s\tShould see committed writes.", success)
			}
		}
	}
}

func Test_BlockIndexRecords(t *testing.T) {
	t.Log("Given the need to persist and reload the block index.")
	{
		db := store.NewMemory()

		recs := []store.IndexRecord{
			{Hash: hashOf(0x01), Height: 0, Time: 1000, Bits: 0x1d00ffff},
			{Hash: hashOf(0x02), Prev: hashOf(0x01), Height: 1, Time: 1090, Flags: store.FlagProofOfStake, Mint: 50},
		}
		for _, rec := range recs {
			if err := db.WriteBlockIndex(rec); err != nil {
				t.Fatalf("\t%s\tShould be able to write a record: %v", failed, err)
			}
		}

		back, err := db.ReadBlockIndex()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the index: %v", failed, err)
		}
		if len(back) != 2 {
			t.Fatalf("\t%s\tShould read both records, got %d.", failed, len(back))
		}
		t.Logf("\t%s\tShould read both records.", success)

		byHash := make(map[wire.Hash]store.IndexRecord)
		for _, rec := range back {
			byHash[rec.Hash] = rec
		}

		got := byHash[hashOf(0x02)]
		if got.Prev != hashOf(0x01) || got.Height != 1 || got.Flags != store.FlagProofOfStake || got.Mint != 50 {
			t.Fatalf("\t%s\tShould preserve every field.", failed)
		}
		t.Logf("\t%s\tShould preserve every field.", success)
	}
}

// =============================================================================

func Test_BlockFiles(t *testing.T) {
	t.Log("Given the need to persist block bodies in framed files.")
	{
		files, err := store.NewBlockFiles(t.TempDir(), [4]byte{0x01, 0x02, 0x03, 0x04})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open block files: %v", failed, err)
		}
		defer files.Close()

		coinbase := ledger.Transaction{
			Version: 1,
			Time:    1_500_000_000,
			Inputs:  []ledger.TxInput{{PrevOut: ledger.NullOutPoint(), SigScript: []byte{0x01, 0x01}}},
			Outputs: []ledger.TxOutput{{Value: genesis.Coin, PubKeyScript: script.PayToPubKeyHashScript([20]byte{0x01})}},
		}
		spend := ledger.Transaction{
			Version: 1,
			Time:    1_500_000_001,
			Inputs:  []ledger.TxInput{{PrevOut: ledger.OutPoint{Hash: coinbase.Hash()}, SigScript: []byte{0x01, 0x02}}},
			Outputs: []ledger.TxOutput{{Value: genesis.Coin / 2, PubKeyScript: script.PayToPubKeyHashScript([20]byte{0x02})}},
		}

		b := ledger.Block{
			Header: ledger.BlockHeader{Version: 1, Time: 1_500_000_002, Bits: 0x1d00ffff},
			Txs:    []ledger.Transaction{coinbase, spend},
			Sig:    []byte{0x0a},
		}

		pos, txPos, err := files.WriteBlock(b)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to write a block: %v", failed, err)
		}
		if len(txPos) != 2 {
			t.Fatalf("\t%s\tShould report a position per transaction.", failed)
		}
		t.Logf("\t%s\tShould report a position per transaction.", success)

		back, err := files.ReadBlock(pos)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read the block: %v", failed, err)
		}
		if back.Hash() != b.Hash() {
			t.Fatalf("\t%s\tShould read the same block back.", failed)
		}
		t.Logf("\t%s\tShould read the same block back.", success)

		tx, err := files.ReadTransaction(txPos[1])
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read a single transaction: %v", failed, err)
		}
		if tx.Hash() != spend.Hash() {
			t.Fatalf("\t%s\tShould read the right transaction at its offset.", failed)
		}
		t.Logf("\t%s\tShould read the right transaction at its offset.", success)
	}
}
