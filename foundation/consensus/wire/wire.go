// Package wire implements the canonical serialization used on the network
// and on disk. Integers are fixed little-endian, counts are compact-size
// varints, scripts are length-prefixed bytes and hashes are 32 raw bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MaxPayload is the sanity bound applied to any length prefix read off the
// wire. Nothing in a valid block exceeds this.
const MaxPayload = 2_000_000

// ErrOverflow is returned when a length prefix or compact-size value
// exceeds MaxPayload. Compact sizes that are not minimally encoded are
// accepted.
var ErrOverflow = errors.New("wire: length out of range")

// =============================================================================

// HashSize is the byte length of every hash moved across the wire.
const HashSize = 32

// Hash represents a 256-bit hash. The byte order matches storage order
// (little-endian); comparisons treat it as a big unsigned integer.
type Hash [HashSize]byte

// ZeroHash represents a hash code of zeros.
var ZeroHash Hash

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Bytes returns the hash as a byte slice in storage order.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String returns the conventional display form: hex with the byte
// order reversed so leading zeros of small values print first.
func (h Hash) String() string {
	var rev [HashSize]byte
	for i := 0; i < HashSize; i++ {
		rev[i] = h[HashSize-1-i]
	}
	return hexutil.Encode(rev[:])[2:]
}

// Cmp compares two hashes as big unsigned integers. It returns -1, 0 or 1.
func (h Hash) Cmp(other Hash) int {
	for i := HashSize - 1; i >= 0; i-- {
		switch {
		case h[i] < other[i]:
			return -1
		case h[i] > other[i]:
			return 1
		}
	}
	return 0
}

// =============================================================================

// WriteUint32 writes v to w in little-endian order.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a little-endian uint32 from r.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint64 writes v to w in little-endian order.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads a little-endian uint64 from r.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteInt64 writes v to w as a little-endian two's complement value.
func WriteInt64(w io.Writer, v int64) error {
	return WriteUint64(w, uint64(v))
}

// ReadInt64 reads a little-endian int64 from r.
func ReadInt64(r io.Reader) (int64, error) {
	v, err := ReadUint64(r)
	return int64(v), err
}

// WriteCompactSize writes n using the Bitcoin compact-size encoding: one
// byte below 253, otherwise a marker byte followed by 2, 4 or 8 bytes.
func WriteCompactSize(w io.Writer, n uint64) error {
	switch {
	case n < 253:
		_, err := w.Write([]byte{byte(n)})
		return err
	case n <= 0xFFFF:
		if _, err := w.Write([]byte{253}); err != nil {
			return err
		}
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(n))
		_, err := w.Write(buf[:])
		return err
	case n <= 0xFFFF_FFFF:
		if _, err := w.Write([]byte{254}); err != nil {
			return err
		}
		return WriteUint32(w, uint32(n))
	default:
		if _, err := w.Write([]byte{255}); err != nil {
			return err
		}
		return WriteUint64(w, n)
	}
}

// ReadCompactSize reads a compact-size value and enforces the MaxPayload
// sanity bound so a malicious count can't trigger a huge allocation.
func ReadCompactSize(r io.Reader) (uint64, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return 0, err
	}

	var n uint64
	switch marker[0] {
	case 253:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		n = uint64(binary.LittleEndian.Uint16(buf[:]))
	case 254:
		v, err := ReadUint32(r)
		if err != nil {
			return 0, err
		}
		n = uint64(v)
	case 255:
		v, err := ReadUint64(r)
		if err != nil {
			return 0, err
		}
		n = v
	default:
		n = uint64(marker[0])
	}

	if n > MaxPayload {
		return 0, ErrOverflow
	}
	return n, nil
}

// WriteBytes writes data with a compact-size length prefix.
func WriteBytes(w io.Writer, data []byte) error {
	if err := WriteCompactSize(w, uint64(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// ReadBytes reads a compact-size length prefix followed by that many bytes.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadCompactSize(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteHash writes the 32 raw bytes of h.
func WriteHash(w io.Writer, h Hash) error {
	_, err := w.Write(h[:])
	return err
}

// ReadHash reads 32 raw bytes into a Hash.
func ReadHash(r io.Reader) (Hash, error) {
	var h Hash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// =============================================================================

// HashFromString parses the display form produced by Hash.String.
func HashFromString(s string) (Hash, error) {
	raw, err := hexutil.Decode("0x" + s)
	if err != nil {
		return Hash{}, fmt.Errorf("decoding hash: %w", err)
	}
	if len(raw) != HashSize {
		return Hash{}, fmt.Errorf("decoding hash: got %d bytes, exp %d", len(raw), HashSize)
	}

	var h Hash
	for i := 0; i < HashSize; i++ {
		h[i] = raw[HashSize-1-i]
	}
	return h, nil
}
