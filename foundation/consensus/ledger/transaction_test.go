package ledger_test

import (
	"bytes"
	"testing"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/genesis"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/script"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// postSwitch is a timestamp after every protocol switch.
const postSwitch = 1_500_000_000

func userTx() ledger.Transaction {
	var prev wire.Hash
	prev[0] = 0x42

	return ledger.Transaction{
		Version: 1,
		Time:    postSwitch,
		Inputs: []ledger.TxInput{{
			PrevOut:   ledger.OutPoint{Hash: prev, Index: 0},
			SigScript: []byte{0x01, 0xab},
			Sequence:  0xFFFF_FFFF,
		}},
		Outputs: []ledger.TxOutput{{
			Value:        25 * genesis.Coin,
			PubKeyScript: script.PayToPubKeyHashScript([20]byte{0x01}),
		}},
	}
}

func coinbaseTx() ledger.Transaction {
	return ledger.Transaction{
		Version: 1,
		Time:    postSwitch,
		Inputs: []ledger.TxInput{{
			PrevOut:   ledger.NullOutPoint(),
			SigScript: []byte{0x01, 0x02, 0x03},
		}},
		Outputs: []ledger.TxOutput{{
			Value:        50 * genesis.Coin,
			PubKeyScript: script.PayToPubKeyHashScript([20]byte{0x02}),
		}},
	}
}

// =============================================================================

func Test_TransactionRoundTrip(t *testing.T) {
	t.Log("Given the need to round-trip transactions through the wire form.")
	{
		for testID, tx := range []ledger.Transaction{userTx(), coinbaseTx()} {
			var buf bytes.Buffer
			if err := tx.Serialize(&buf); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to serialize: %v", failed, testID, err)
			}

			var back ledger.Transaction
			if err := back.Deserialize(&buf); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to deserialize: %v", failed, testID, err)
			}

			if back.Hash() != tx.Hash() {
				t.Errorf("\t%s\tTest %d:\tShould produce an identical transaction.", failed, testID)
			} else {
				t.Logf("\t%s\tTest %d:\tShould produce an identical transaction.", success, testID)
			}
		}
	}
}

func Test_Classification(t *testing.T) {
	t.Log("Given the need to classify transactions.")
	{
		if !coinbaseTx().IsCoinbase() {
			t.Fatalf("\t%s\tShould recognize a coinbase.", failed)
		}
		t.Logf("\t%s\tShould recognize a coinbase.", success)

		if userTx().IsCoinbase() {
			t.Fatalf("\t%s\tShould not mistake a user tx for a coinbase.", failed)
		}
		t.Logf("\t%s\tShould not mistake a user tx for a coinbase.", success)

		stake := userTx()
		stake.Outputs = []ledger.TxOutput{
			{},
			{Value: 30 * genesis.Coin, PubKeyScript: script.PayToPubKeyHashScript([20]byte{0x03})},
		}
		if !stake.IsCoinstake() {
			t.Fatalf("\t%s\tShould recognize a coinstake.", failed)
		}
		t.Logf("\t%s\tShould recognize a coinstake.", success)

		burnTx := userTx()
		burnTx.Outputs = append(burnTx.Outputs, ledger.TxOutput{
			Value:        10 * genesis.Coin,
			PubKeyScript: script.BurnScript(),
		})
		idx, value, ok := burnTx.BurnOutput()
		if !ok || idx != 1 || value != 10*genesis.Coin {
			t.Fatalf("\t%s\tShould find the burn output.", failed)
		}
		t.Logf("\t%s\tShould find the burn output.", success)
	}
}

func Test_CheckTransaction(t *testing.T) {
	type table struct {
		name   string
		mutate func(tx *ledger.Transaction)
		valid  bool
	}

	tt := []table{
		{"valid", func(tx *ledger.Transaction) {}, true},
		{"no inputs", func(tx *ledger.Transaction) { tx.Inputs = nil }, false},
		{"no outputs", func(tx *ledger.Transaction) { tx.Outputs = nil }, false},
		{"negative value", func(tx *ledger.Transaction) { tx.Outputs[0].Value = -1 }, false},
		{"value too high", func(tx *ledger.Transaction) { tx.Outputs[0].Value = genesis.MaxMoney + 1 }, false},
		{"duplicate inputs", func(tx *ledger.Transaction) { tx.Inputs = append(tx.Inputs, tx.Inputs[0]) }, false},
		{"null prevout", func(tx *ledger.Transaction) {
			tx.Inputs = append(tx.Inputs, ledger.TxInput{PrevOut: ledger.NullOutPoint()})
		}, false},
		{"empty output pre-switch", func(tx *ledger.Transaction) {
			tx.Time = 1_300_000_000
			tx.Outputs = append(tx.Outputs, ledger.TxOutput{})
		}, false},
		{"empty output post-switch", func(tx *ledger.Transaction) {
			tx.Outputs = append(tx.Outputs, ledger.TxOutput{})
		}, true},
	}

	t.Log("Given the need to validate transactions context-free.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a tx with %s.", testID, tst.name)
			{
				tx := userTx()
				tst.mutate(&tx)

				err := tx.CheckTransaction()
				if tst.valid && err != nil {
					t.Errorf("\t%s\tTest %d:\tShould pass the check: %v", failed, testID, err)
					continue
				}
				if !tst.valid && err == nil {
					t.Errorf("\t%s\tTest %d:\tShould fail the check.", failed, testID)
					continue
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected result.", success, testID)
			}
		}
	}
}

func Test_CoinbaseScriptBounds(t *testing.T) {
	t.Log("Given the need to bound the coinbase script size.")
	{
		tx := coinbaseTx()
		tx.Inputs[0].SigScript = []byte{0x01}
		if err := tx.CheckTransaction(); err == nil {
			t.Fatalf("\t%s\tShould reject a one-byte coinbase script.", failed)
		}
		t.Logf("\t%s\tShould reject a one-byte coinbase script.", success)

		tx.Inputs[0].SigScript = bytes.Repeat([]byte{0x00}, genesis.MaxCoinbaseScriptSize+1)
		if err := tx.CheckTransaction(); err == nil {
			t.Fatalf("\t%s\tShould reject an oversized coinbase script.", failed)
		}
		t.Logf("\t%s\tShould reject an oversized coinbase script.", success)
	}
}

func Test_IsStandard(t *testing.T) {
	t.Log("Given the need to police relay standardness.")
	{
		tx := userTx()
		if err := tx.IsStandard(); err != nil {
			t.Fatalf("\t%s\tShould accept a standard transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a standard transaction.", success)

		tx = userTx()
		tx.Inputs[0].SigScript = []byte{script.OpDup}
		if err := tx.IsStandard(); err == nil {
			t.Fatalf("\t%s\tShould reject a non-push input script.", failed)
		}
		t.Logf("\t%s\tShould reject a non-push input script.", success)

		tx = userTx()
		tx.Outputs[0].PubKeyScript = []byte{0xfe}
		if err := tx.IsStandard(); err == nil {
			t.Fatalf("\t%s\tShould reject a nonstandard output script.", failed)
		}
		t.Logf("\t%s\tShould reject a nonstandard output script.", success)

		tx = userTx()
		nulldata := ledger.TxOutput{Value: 0, PubKeyScript: []byte{script.OpReturn}}
		tx.Outputs = append(tx.Outputs, nulldata, nulldata)
		if err := tx.IsStandard(); err == nil {
			t.Fatalf("\t%s\tShould reject two nulldata outputs.", failed)
		}
		t.Logf("\t%s\tShould reject two nulldata outputs.", success)
	}
}

func Test_IsFinal(t *testing.T) {
	t.Log("Given the need to judge lock-time finality.")
	{
		tx := userTx()
		if !tx.IsFinal(100, postSwitch) {
			t.Fatalf("\t%s\tShould treat zero lock time as final.", failed)
		}
		t.Logf("\t%s\tShould treat zero lock time as final.", success)

		tx.LockTime = 200
		tx.Inputs[0].Sequence = 0
		if tx.IsFinal(100, postSwitch) {
			t.Fatalf("\t%s\tShould hold a height lock above the current height.", failed)
		}
		t.Logf("\t%s\tShould hold a height lock above the current height.", success)

		if !tx.IsFinal(201, postSwitch) {
			t.Fatalf("\t%s\tShould release a height lock below the current height.", failed)
		}
		t.Logf("\t%s\tShould release a height lock below the current height.", success)

		tx.Inputs[0].Sequence = 0xFFFF_FFFF
		if !tx.IsFinal(100, postSwitch) {
			t.Fatalf("\t%s\tShould treat all-final sequences as final.", failed)
		}
		t.Logf("\t%s\tShould treat all-final sequences as final.", success)
	}
}
