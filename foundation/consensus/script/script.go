// Package script provides template recognition and accounting over the raw
// output and input scripts the consensus rules care about. Execution and
// signature hashing belong to the external script verifier; nothing here
// runs a script.
package script

import (
	"bytes"
	"errors"
)

// The opcodes the consensus templates are built from.
const (
	OpFalse         byte = 0x00
	OpPushData1     byte = 0x4c
	OpPushData2     byte = 0x4d
	OpPushData4     byte = 0x4e
	Op1Negate       byte = 0x4f
	Op1             byte = 0x51
	Op16            byte = 0x60
	OpReturn        byte = 0x6a
	OpDup           byte = 0x76
	OpEqual         byte = 0x87
	OpEqualVerify   byte = 0x88
	OpHash160       byte = 0xa9
	OpChecksig      byte = 0xac
	OpChecksigVfy   byte = 0xad
	OpCheckMultisig byte = 0xae
	OpCheckMultiVfy byte = 0xaf
)

// Class identifies which standard template an output script matches.
type Class int

// The set of recognized output templates.
const (
	NonStandard Class = iota
	PayToPubKey
	PayToPubKeyHash
	PayToScriptHash
	Multisig
	NullData
)

// String implements the fmt.Stringer interface.
func (c Class) String() string {
	switch c {
	case PayToPubKey:
		return "pubkey"
	case PayToPubKeyHash:
		return "pubkeyhash"
	case PayToScriptHash:
		return "scripthash"
	case Multisig:
		return "multisig"
	case NullData:
		return "nulldata"
	}
	return "nonstandard"
}

// ErrMalformed is returned when a script ends in the middle of a push.
var ErrMalformed = errors.New("script: truncated push")

// =============================================================================

// BurnHash160 is the hash embedded in the canonical burn address script.
// No private key for it exists; value sent here is provably destroyed.
var BurnHash160 = [20]byte{
	0x53, 0x4c, 0x4d, 0x42, 0x55, 0x52, 0x4e, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// BurnScript returns the canonical burn output script.
func BurnScript() []byte {
	s := make([]byte, 0, 25)
	s = append(s, OpDup, OpHash160, 20)
	s = append(s, BurnHash160[:]...)
	s = append(s, OpEqualVerify, OpChecksig)
	return s
}

// IsBurnScript reports whether the script pays the canonical burn address.
func IsBurnScript(s []byte) bool {
	return bytes.Equal(s, BurnScript())
}

// =============================================================================

// op represents a single parsed operation.
type op struct {
	code byte
	data []byte
}

// parse splits a script into operations. It fails only on a push that runs
// past the end of the script.
func parse(s []byte) ([]op, error) {
	var ops []op

	for i := 0; i < len(s); {
		code := s[i]
		i++

		var size int
		switch {
		case code > 0 && code < OpPushData1:
			size = int(code)
		case code == OpPushData1:
			if i >= len(s) {
				return nil, ErrMalformed
			}
			size = int(s[i])
			i++
		case code == OpPushData2:
			if i+1 >= len(s) {
				return nil, ErrMalformed
			}
			size = int(s[i]) | int(s[i+1])<<8
			i += 2
		case code == OpPushData4:
			if i+3 >= len(s) {
				return nil, ErrMalformed
			}
			size = int(s[i]) | int(s[i+1])<<8 | int(s[i+2])<<16 | int(s[i+3])<<24
			i += 4
		}

		if size > 0 {
			if i+size > len(s) {
				return nil, ErrMalformed
			}
			ops = append(ops, op{code: code, data: s[i : i+size]})
			i += size
			continue
		}

		ops = append(ops, op{code: code})
	}

	return ops, nil
}

// isPush reports whether the operation only places data on the stack.
// Everything from OP_0 through OP_16 qualifies.
func (o op) isPush() bool {
	return o.code <= Op16
}

// smallInt returns the value of an OP_0..OP_16 opcode, or -1.
func smallInt(code byte) int {
	switch {
	case code == OpFalse:
		return 0
	case code >= Op1 && code <= Op16:
		return int(code-Op1) + 1
	}
	return -1
}

// =============================================================================

// IsPushOnly reports whether every operation in the script is a push.
// Standard input scripts must satisfy this.
func IsPushOnly(s []byte) bool {
	ops, err := parse(s)
	if err != nil {
		return false
	}

	for _, o := range ops {
		if !o.isPush() {
			return false
		}
	}
	return true
}

// Classify matches the script against the recognized output templates.
func Classify(s []byte) Class {
	ops, err := parse(s)
	if err != nil {
		return NonStandard
	}

	switch {
	case len(ops) == 2 && len(ops[0].data) >= 33 && len(ops[0].data) <= 65 && ops[1].code == OpChecksig:
		return PayToPubKey

	case len(ops) == 5 && ops[0].code == OpDup && ops[1].code == OpHash160 &&
		len(ops[2].data) == 20 && ops[3].code == OpEqualVerify && ops[4].code == OpChecksig:
		return PayToPubKeyHash

	case len(ops) == 3 && ops[0].code == OpHash160 && len(ops[1].data) == 20 && ops[2].code == OpEqual:
		return PayToScriptHash

	case len(ops) >= 4 && ops[len(ops)-1].code == OpCheckMultisig:
		m := smallInt(ops[0].code)
		n := smallInt(ops[len(ops)-2].code)
		if m < 1 || n < m || n != len(ops)-3 {
			return NonStandard
		}
		for _, o := range ops[1 : len(ops)-2] {
			if len(o.data) < 33 || len(o.data) > 65 {
				return NonStandard
			}
		}
		return Multisig

	case len(ops) >= 1 && ops[0].code == OpReturn:
		if len(ops) > 2 {
			return NonStandard
		}
		return NullData
	}

	return NonStandard
}

// ExtractPubKey returns the public key of a pay-to-pubkey script. The block
// signature is checked against the key extracted here.
func ExtractPubKey(s []byte) ([]byte, bool) {
	if Classify(s) != PayToPubKey {
		return nil, false
	}

	ops, err := parse(s)
	if err != nil {
		return nil, false
	}
	return ops[0].data, true
}

// =============================================================================

// SigOpCount counts signature operations in a script. With accurate set,
// a checkmultisig preceded by OP_N counts as N instead of the worst case.
func SigOpCount(s []byte, accurate bool) int {
	ops, err := parse(s)
	if err != nil {
		// Count what parsed before the damage, as the legacy code did.
		ops, _ = parseBest(s)
	}

	var count int
	var prev byte = 0xff
	for _, o := range ops {
		switch o.code {
		case OpChecksig, OpChecksigVfy:
			count++
		case OpCheckMultisig, OpCheckMultiVfy:
			if n := smallInt(prev); accurate && n >= 1 {
				count += n
			} else {
				count += 20
			}
		}
		prev = o.code
	}
	return count
}

// P2SHSigOpCount counts the signature operations of the redeem script a
// pay-to-script-hash input reveals. Active only under strict mode.
func P2SHSigOpCount(sigScript, pubKeyScript []byte) int {
	if Classify(pubKeyScript) != PayToScriptHash {
		return 0
	}
	if !IsPushOnly(sigScript) {
		return 0
	}

	ops, err := parse(sigScript)
	if err != nil || len(ops) == 0 {
		return 0
	}

	redeem := ops[len(ops)-1].data
	return SigOpCount(redeem, true)
}

// parseBest parses as many leading operations as possible.
func parseBest(s []byte) ([]op, error) {
	for end := len(s); end > 0; end-- {
		if ops, err := parse(s[:end]); err == nil {
			return ops, nil
		}
	}
	return nil, ErrMalformed
}

// LastPush returns the data of the final push in a script. For a
// pay-to-pubkey-hash spend this is the spender's public key.
func LastPush(s []byte) ([]byte, bool) {
	ops, err := parse(s)
	if err != nil || len(ops) == 0 {
		return nil, false
	}

	last := ops[len(ops)-1]
	if !last.isPush() || len(last.data) == 0 {
		return nil, false
	}
	return last.data, true
}

// =============================================================================

// PayToPubKeyScript builds the standard pay-to-pubkey output script.
func PayToPubKeyScript(pubKey []byte) []byte {
	s := make([]byte, 0, len(pubKey)+2)
	s = append(s, byte(len(pubKey)))
	s = append(s, pubKey...)
	s = append(s, OpChecksig)
	return s
}

// PayToPubKeyHashScript builds the standard pay-to-pubkey-hash output script.
func PayToPubKeyHashScript(h160 [20]byte) []byte {
	s := make([]byte, 0, 25)
	s = append(s, OpDup, OpHash160, 20)
	s = append(s, h160[:]...)
	s = append(s, OpEqualVerify, OpChecksig)
	return s
}
