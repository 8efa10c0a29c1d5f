package dispatch

import (
	"bytes"
	"io"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
)

// VersionMsg is the handshake a peer opens with.
type VersionMsg struct {
	Version  int32
	Services uint64
	Time     uint64
	AddrMe   string
	AddrFrom string
	Nonce    uint64
	SubVer   string
	Height   int32
}

// Serialize writes the version message payload.
func (m VersionMsg) Serialize(w io.Writer) error {
	if err := wire.WriteUint32(w, uint32(m.Version)); err != nil {
		return err
	}
	if err := wire.WriteUint64(w, m.Services); err != nil {
		return err
	}
	if err := wire.WriteUint64(w, m.Time); err != nil {
		return err
	}
	if err := wire.WriteBytes(w, []byte(m.AddrMe)); err != nil {
		return err
	}
	if err := wire.WriteBytes(w, []byte(m.AddrFrom)); err != nil {
		return err
	}
	if err := wire.WriteUint64(w, m.Nonce); err != nil {
		return err
	}
	if err := wire.WriteBytes(w, []byte(m.SubVer)); err != nil {
		return err
	}
	return wire.WriteUint32(w, uint32(m.Height))
}

// Deserialize reads the version message payload. The trailing fields are
// optional, matching older peers that stop after the self address.
func (m *VersionMsg) Deserialize(r io.Reader) error {
	v, err := wire.ReadUint32(r)
	if err != nil {
		return err
	}
	m.Version = int32(v)

	if m.Services, err = wire.ReadUint64(r); err != nil {
		return err
	}
	if m.Time, err = wire.ReadUint64(r); err != nil {
		return err
	}

	addrMe, err := wire.ReadBytes(r)
	if err != nil {
		return err
	}
	m.AddrMe = string(addrMe)

	addrFrom, err := wire.ReadBytes(r)
	if err != nil {
		return nil
	}
	m.AddrFrom = string(addrFrom)

	if m.Nonce, err = wire.ReadUint64(r); err != nil {
		return nil
	}

	subVer, err := wire.ReadBytes(r)
	if err != nil {
		return nil
	}
	m.SubVer = string(subVer)

	h, err := wire.ReadUint32(r)
	if err != nil {
		return nil
	}
	m.Height = int32(h)

	return nil
}

// =============================================================================

// InvVect identifies one piece of inventory.
type InvVect struct {
	Type uint32
	Hash wire.Hash
}

// writeInvList encodes an inventory list payload.
func writeInvList(invs []InvVect) []byte {
	var buf bytes.Buffer
	wire.WriteCompactSize(&buf, uint64(len(invs)))
	for _, inv := range invs {
		wire.WriteUint32(&buf, inv.Type)
		wire.WriteHash(&buf, inv.Hash)
	}
	return buf.Bytes()
}

// readInvList decodes an inventory list payload, enforcing the entry cap.
func readInvList(payload []byte, max int) ([]InvVect, error) {
	r := bytes.NewReader(payload)

	count, err := wire.ReadCompactSize(r)
	if err != nil {
		return nil, reject.New(reject.Malformed, "decoding inv count: %s", err)
	}
	if count > uint64(max) {
		return nil, reject.New(reject.Malformed, "inv list of %d exceeds %d", count, max)
	}

	invs := make([]InvVect, count)
	for i := range invs {
		if invs[i].Type, err = wire.ReadUint32(r); err != nil {
			return nil, reject.New(reject.Malformed, "decoding inv: %s", err)
		}
		if invs[i].Hash, err = wire.ReadHash(r); err != nil {
			return nil, reject.New(reject.Malformed, "decoding inv: %s", err)
		}
	}
	return invs, nil
}

// readStringList decodes a list of length-prefixed strings.
func readStringList(payload []byte, max int) ([]string, error) {
	r := bytes.NewReader(payload)

	count, err := wire.ReadCompactSize(r)
	if err != nil {
		return nil, reject.New(reject.Malformed, "decoding addr count: %s", err)
	}
	if count > uint64(max) {
		return nil, reject.New(reject.Malformed, "addr list of %d exceeds %d", count, max)
	}

	list := make([]string, count)
	for i := range list {
		s, err := wire.ReadBytes(r)
		if err != nil {
			return nil, reject.New(reject.Malformed, "decoding addr: %s", err)
		}
		list[i] = string(s)
	}
	return list, nil
}

// writeStringList encodes a list of length-prefixed strings.
func writeStringList(list []string) []byte {
	var buf bytes.Buffer
	wire.WriteCompactSize(&buf, uint64(len(list)))
	for _, s := range list {
		wire.WriteBytes(&buf, []byte(s))
	}
	return buf.Bytes()
}

// =============================================================================

// Locator names a descending sample of a peer's chain so the responder
// can find the fork point, plus an optional stop hash.
type Locator struct {
	Hashes []wire.Hash
	Stop   wire.Hash
}

// Serialize writes the locator payload.
func (l Locator) Serialize(w io.Writer) error {
	if err := wire.WriteCompactSize(w, uint64(len(l.Hashes))); err != nil {
		return err
	}
	for _, h := range l.Hashes {
		if err := wire.WriteHash(w, h); err != nil {
			return err
		}
	}
	return wire.WriteHash(w, l.Stop)
}

// Deserialize reads the locator payload.
func (l *Locator) Deserialize(r io.Reader) error {
	count, err := wire.ReadCompactSize(r)
	if err != nil {
		return err
	}

	l.Hashes = make([]wire.Hash, count)
	for i := range l.Hashes {
		if l.Hashes[i], err = wire.ReadHash(r); err != nil {
			return err
		}
	}

	l.Stop, err = wire.ReadHash(r)
	return err
}

// =============================================================================

// AlertMsg is an out-of-band operator alert.
type AlertMsg struct {
	Priority uint32
	Message  string
}

// Serialize writes the alert payload.
func (m AlertMsg) Serialize(w io.Writer) error {
	if err := wire.WriteUint32(w, m.Priority); err != nil {
		return err
	}
	return wire.WriteBytes(w, []byte(m.Message))
}

// Deserialize reads the alert payload.
func (m *AlertMsg) Deserialize(r io.Reader) error {
	var err error
	if m.Priority, err = wire.ReadUint32(r); err != nil {
		return err
	}

	msg, err := wire.ReadBytes(r)
	if err != nil {
		return err
	}
	m.Message = string(msg)
	return nil
}
