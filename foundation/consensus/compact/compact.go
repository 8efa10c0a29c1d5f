// Package compact implements the 32-bit floating-point-like encoding used
// to carry 256-bit thresholds inside block headers, plus the conversions
// between hashes and 256-bit integers the difficulty math needs.
package compact

import (
	"github.com/holiman/uint256"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// FromCompact expands the compact representation into the full 256-bit
// threshold. A mantissa with the sign bit set or a zero mantissa expands
// to zero, matching the legacy bignum behavior.
func FromCompact(bits uint32) *uint256.Int {
	size := bits >> 24
	mantissa := uint64(bits & 0x007FFFFF)

	n := new(uint256.Int)
	if mantissa == 0 || bits&0x00800000 != 0 {
		return n
	}

	if size <= 3 {
		n.SetUint64(mantissa >> (8 * (3 - size)))
		return n
	}

	n.SetUint64(mantissa)
	if shift := 8 * (size - 3); shift < 256 {
		n.Lsh(n, uint(shift))
	} else {
		n.Clear()
	}
	return n
}

// ToCompact reduces a 256-bit value to its compact representation. The
// encoding is lossy: only the three most significant bytes survive.
func ToCompact(n *uint256.Int) uint32 {
	size := uint32((n.BitLen() + 7) / 8)

	var mantissa uint32
	if size <= 3 {
		mantissa = uint32(n.Uint64() << (8 * (3 - size)))
	} else {
		shifted := new(uint256.Int).Rsh(n, uint(8*(size-3)))
		mantissa = uint32(shifted.Uint64())
	}

	// The mantissa sign bit is reserved. Push the value down a byte
	// when it would be set.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		size++
	}

	return size<<24 | mantissa
}

// =============================================================================

// HashToInt interprets the hash's storage bytes (little-endian) as a big
// unsigned 256-bit integer.
func HashToInt(h wire.Hash) *uint256.Int {
	var be [32]byte
	for i := 0; i < wire.HashSize; i++ {
		be[i] = h[wire.HashSize-1-i]
	}

	n := new(uint256.Int)
	n.SetBytes32(be[:])
	return n
}

// IntToHash converts a 256-bit integer back into storage byte order.
func IntToHash(n *uint256.Int) wire.Hash {
	be := n.Bytes32()

	var h wire.Hash
	for i := 0; i < wire.HashSize; i++ {
		h[i] = be[wire.HashSize-1-i]
	}
	return h
}
