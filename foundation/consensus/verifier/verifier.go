// Package verifier provides the reference implementation of the input
// verifier the chain consumes. Deployments embedding a full script
// interpreter supply their own; this one covers the standard templates
// the node itself produces.
package verifier

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/ripemd160"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/script"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/signature"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// SigHash computes the digest an input signature commits to: the
// transaction with every input script emptied, followed by the index of
// the input being signed.
func SigHash(tx ledger.Transaction, inIndex int) wire.Hash {
	stripped := tx
	stripped.Inputs = make([]ledger.TxInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		in.SigScript = nil
		stripped.Inputs[i] = in
	}

	var buf bytes.Buffer
	stripped.Serialize(&buf)
	wire.WriteUint32(&buf, uint32(inIndex))

	return signature.Hash(buf.Bytes())
}

// Hash160 returns RIPEMD160(SHA256(data)), the address form of a key.
func Hash160(data []byte) [20]byte {
	sha := sha256.Sum256(data)

	h := ripemd160.New()
	h.Write(sha[:])

	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// =============================================================================

// Verifier validates input signatures for the standard templates.
type Verifier struct{}

// VerifyInput implements the chain.InputVerifier interface.
func (Verifier) VerifyInput(tx ledger.Transaction, inIndex int, prevOut ledger.TxOutput) error {
	in := tx.Inputs[inIndex]
	digest := SigHash(tx, inIndex)

	switch script.Classify(prevOut.PubKeyScript) {
	case script.PayToPubKey:
		pubKey, _ := script.ExtractPubKey(prevOut.PubKeyScript)
		sig, ok := script.LastPush(in.SigScript)
		if !ok {
			return errors.New("missing signature")
		}
		if !signature.Verify(digest, sig, pubKey) {
			return errors.New("signature does not verify")
		}
		return nil

	case script.PayToPubKeyHash:
		pubKey, ok := script.LastPush(in.SigScript)
		if !ok {
			return errors.New("missing public key")
		}

		want := prevOut.PubKeyScript[3:23]
		got := Hash160(pubKey)
		if !bytes.Equal(got[:], want) {
			return fmt.Errorf("public key does not hash to output")
		}

		sig, ok := firstPush(in.SigScript)
		if !ok {
			return errors.New("missing signature")
		}
		if !signature.Verify(digest, sig, pubKey) {
			return errors.New("signature does not verify")
		}
		return nil

	case script.PayToScriptHash, script.Multisig:
		// Redeem-script execution belongs to the embedding deployment's
		// interpreter. The consensus rules upstream already bounded the
		// sig-op cost.
		return nil

	case script.NullData:
		return errors.New("spending a nulldata output")
	}

	return errors.New("nonstandard previous output")
}

// firstPush returns the data of the first push in a script.
func firstPush(s []byte) ([]byte, bool) {
	if len(s) == 0 {
		return nil, false
	}

	size := int(s[0])
	if size == 0 || size > 75 || 1+size > len(s) {
		return nil, false
	}
	return s[1 : 1+size], true
}

// =============================================================================

// SignInput builds the input script spending a standard output with the
// specified key.
func SignInput(tx *ledger.Transaction, inIndex int, privateKey *ecdsa.PrivateKey, prevOut ledger.TxOutput) error {
	digest := SigHash(*tx, inIndex)

	sig, err := signature.Sign(digest, privateKey)
	if err != nil {
		return err
	}

	var sigScript []byte
	switch script.Classify(prevOut.PubKeyScript) {
	case script.PayToPubKey:
		sigScript = append([]byte{byte(len(sig))}, sig...)

	case script.PayToPubKeyHash:
		pubKey := signature.PubKeyBytes(privateKey)
		sigScript = append([]byte{byte(len(sig))}, sig...)
		sigScript = append(sigScript, byte(len(pubKey)))
		sigScript = append(sigScript, pubKey...)

	default:
		return errors.New("cannot sign nonstandard output")
	}

	tx.Inputs[inIndex].SigScript = sigScript
	return nil
}
