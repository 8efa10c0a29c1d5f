// Package signature provides the hashing and signing primitives used by the
// consensus core: double-SHA256 for identifiers and secp256k1 recoverable
// signatures for block headers and burn authorization.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// Hash returns the double-SHA256 of the concatenated byte slices. Every
// transaction id, block hash and burn hash in the system comes from here.
func Hash(data ...[]byte) wire.Hash {
	first := sha256.New()
	for _, d := range data {
		first.Write(d)
	}
	second := sha256.Sum256(first.Sum(nil))

	var h wire.Hash
	copy(h[:], second[:])
	return h
}

// Sign produces a 65-byte recoverable signature over the specified hash
// using the private key.
func Sign(hash wire.Hash, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], privateKey)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the hash and the signature.
	publicKey, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return nil, err
	}
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), hash[:], sig[:crypto.RecoveryIDOffset]) {
		return nil, errors.New("invalid signature")
	}

	return sig, nil
}

// Verify reports whether sig is a valid signature of hash by the specified
// serialized public key. Both compressed and uncompressed keys are accepted.
func Verify(hash wire.Hash, sig []byte, publicKey []byte) bool {
	if len(sig) < crypto.RecoveryIDOffset {
		return false
	}
	return crypto.VerifySignature(publicKey, hash[:], sig[:crypto.RecoveryIDOffset])
}

// PubKeyBytes returns the uncompressed serialization of the public key
// for the specified private key.
func PubKeyBytes(privateKey *ecdsa.PrivateKey) []byte {
	return crypto.FromECDSAPub(&privateKey.PublicKey)
}

// RecoverPubKey extracts the serialized public key that produced the
// specified recoverable signature over hash.
func RecoverPubKey(hash wire.Hash, sig []byte) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, errors.New("signature must be 65 bytes")
	}

	publicKey, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return nil, err
	}

	return crypto.FromECDSAPub(publicKey), nil
}
