// Package dispatch maps decoded gossip messages onto the consensus entry
// points and keeps score of misbehaving peers. Socket management and peer
// discovery live outside; this package only sees (peer, command, payload).
package dispatch

import (
	"bytes"

	"github.com/slimcoin-project/slimcoin/foundation/consensus/ledger"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/peer"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/reject"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/state"
	"github.com/slimcoin-project/slimcoin/foundation/consensus/wire"
	"github.com/slimcoin-project/slimcoin/foundation/events"
)

// The gossip commands.
const (
	CmdVersion    = "version"
	CmdVerack     = "verack"
	CmdAddr       = "addr"
	CmdInv        = "inv"
	CmdGetData    = "getdata"
	CmdGetBlocks  = "getblocks"
	CmdGetHeaders = "getheaders"
	CmdTx         = "tx"
	CmdBlock      = "block"
	CmdPing       = "ping"
	CmdPong       = "pong"
	CmdAlert      = "alert"
	CmdCheckpoint = "checkpoint"
)

// Protocol limits on list-carrying messages.
const (
	MaxAddrEntries = 1_000
	MaxInvEntries  = 50_000
	MaxBlocksReply = 500
)

// Inventory types.
const (
	InvTx    uint32 = 1
	InvBlock uint32 = 2
)

// EventHandler defines a function that is called when events occur in
// the processing of peer messages.
type EventHandler func(v string, args ...any)

// Sender represents the outbound half of the gossip transport.
type Sender interface {
	Send(to peer.Peer, command string, payload []byte) error
}

// =============================================================================

// Config represents the configuration required to construct a dispatcher.
type Config struct {
	State     *state.State
	Peers     *peer.Set
	Sender    Sender
	Evts      *events.Events
	EvHandler EventHandler
}

// Dispatcher routes peer messages into the consensus core.
type Dispatcher struct {
	state     *state.State
	peers     *peer.Set
	sender    Sender
	evts      *events.Events
	evHandler EventHandler
}

// New constructs a dispatcher.
func New(cfg Config) *Dispatcher {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	return &Dispatcher{
		state:     cfg.State,
		peers:     cfg.Peers,
		sender:    cfg.Sender,
		evts:      cfg.Evts,
		evHandler: ev,
	}
}

// misbehaving scores a peer and logs a ban when the threshold trips.
func (d *Dispatcher) misbehaving(from peer.Peer, score int, reason string) {
	if score <= 0 {
		return
	}
	if d.peers.Misbehaving(from, score) {
		d.evHandler("dispatch: BANNED: %s: %s", from.Host, reason)
	}
}

// =============================================================================

// HandleMessage processes one decoded gossip message from a peer. Errors
// are reported back for logging; scoring and banning happen internally.
func (d *Dispatcher) HandleMessage(from peer.Peer, command string, payload []byte) error {
	if d.peers.IsBanned(from) {
		return reject.New(reject.Consensus, "peer %s is banned", from.Host)
	}

	status := d.peers.Status(from)

	if command == CmdVersion {
		if status.VersionSeen {
			d.misbehaving(from, 1, "duplicate version")
			return reject.New(reject.Consensus, "duplicate version message")
		}
		return d.handleVersion(from, payload)
	}

	if !status.VersionSeen {
		d.misbehaving(from, 1, "message before version")
		return reject.New(reject.Consensus, "%s before version", command)
	}

	switch command {
	case CmdVerack:
		status.VerackSeen = true
		d.peers.SetStatus(from, status)
		return nil
	case CmdAddr:
		return d.handleAddr(from, payload)
	case CmdInv:
		return d.handleInv(from, payload)
	case CmdGetData:
		return d.handleGetData(from, payload)
	case CmdGetBlocks:
		return d.handleGetBlocks(from, payload)
	case CmdGetHeaders:
		return d.handleGetHeaders(from, payload)
	case CmdTx:
		return d.handleTx(from, payload)
	case CmdBlock:
		return d.handleBlock(from, payload)
	case CmdPing:
		return d.handlePing(from, payload)
	case CmdPong:
		return nil
	case CmdAlert:
		return d.handleAlert(from, payload)
	case CmdCheckpoint:
		return d.handleCheckpoint(from, payload)
	}

	d.evHandler("dispatch: %s: unknown command %q ignored", from.Host, command)
	return nil
}

// =============================================================================

func (d *Dispatcher) handleVersion(from peer.Peer, payload []byte) error {
	var msg VersionMsg
	if err := msg.Deserialize(bytes.NewReader(payload)); err != nil {
		d.misbehaving(from, 1, "bad version payload")
		return reject.New(reject.Malformed, "decoding version: %s", err)
	}

	d.peers.Add(from)
	d.peers.SetStatus(from, peer.Status{
		Version:     msg.Version,
		Services:    msg.Services,
		Height:      msg.Height,
		VersionSeen: true,
	})

	d.evHandler("dispatch: %s: version[%d] height[%d]", from.Host, msg.Version, msg.Height)

	if err := d.sender.Send(from, CmdVerack, nil); err != nil {
		return err
	}

	// Share our peer list with the new arrival.
	var hosts []string
	for _, pr := range d.peers.Copy(from.Host) {
		hosts = append(hosts, pr.Host)
	}
	if len(hosts) > MaxAddrEntries {
		hosts = hosts[:MaxAddrEntries]
	}
	return d.sender.Send(from, CmdAddr, writeStringList(hosts))
}

func (d *Dispatcher) handleAddr(from peer.Peer, payload []byte) error {
	hosts, err := readStringList(payload, MaxAddrEntries)
	if err != nil {
		d.misbehaving(from, 20, "oversized or malformed addr")
		return err
	}

	for _, host := range hosts {
		d.peers.Add(peer.New(host))
	}
	return nil
}

func (d *Dispatcher) handleInv(from peer.Peer, payload []byte) error {
	invs, err := readInvList(payload, MaxInvEntries)
	if err != nil {
		d.misbehaving(from, 20, "oversized or malformed inv")
		return err
	}

	// Ask for everything we have not seen.
	var want []InvVect
	for _, inv := range invs {
		switch inv.Type {
		case InvBlock:
			if !d.state.HasBlock(inv.Hash) {
				want = append(want, inv)
			}
		case InvTx:
			if !d.state.HasTransaction(inv.Hash) {
				want = append(want, inv)
			}
		}
	}

	if len(want) == 0 {
		return nil
	}
	return d.sender.Send(from, CmdGetData, writeInvList(want))
}

func (d *Dispatcher) handleGetData(from peer.Peer, payload []byte) error {
	invs, err := readInvList(payload, MaxInvEntries)
	if err != nil {
		d.misbehaving(from, 20, "oversized or malformed getdata")
		return err
	}

	for _, inv := range invs {
		switch inv.Type {
		case InvBlock:
			b, err := d.state.RetrieveBlockByHash(inv.Hash)
			if err != nil {
				continue
			}
			if err := d.sender.Send(from, CmdBlock, b.Bytes()); err != nil {
				return err
			}
		case InvTx:
			tx, exists := d.state.MempoolLookup(inv.Hash)
			if !exists {
				continue
			}
			if err := d.sender.Send(from, CmdTx, tx.Bytes()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dispatcher) handleGetBlocks(from peer.Peer, payload []byte) error {
	var loc Locator
	if err := loc.Deserialize(bytes.NewReader(payload)); err != nil {
		d.misbehaving(from, 10, "malformed getblocks")
		return reject.New(reject.Malformed, "decoding getblocks: %s", err)
	}

	after := d.locate(loc)
	hashes := d.state.RetrieveMainChainHashes(after, MaxBlocksReply)

	invs := make([]InvVect, 0, len(hashes))
	for _, h := range hashes {
		invs = append(invs, InvVect{Type: InvBlock, Hash: h})
		if h == loc.Stop {
			break
		}
	}
	if len(invs) == 0 {
		return nil
	}
	return d.sender.Send(from, CmdInv, writeInvList(invs))
}

func (d *Dispatcher) handleGetHeaders(from peer.Peer, payload []byte) error {
	var loc Locator
	if err := loc.Deserialize(bytes.NewReader(payload)); err != nil {
		d.misbehaving(from, 10, "malformed getheaders")
		return reject.New(reject.Malformed, "decoding getheaders: %s", err)
	}

	after := d.locate(loc)
	hashes := d.state.RetrieveMainChainHashes(after, MaxBlocksReply)

	var buf bytes.Buffer
	wire.WriteCompactSize(&buf, uint64(len(hashes)))
	for _, h := range hashes {
		b, err := d.state.RetrieveBlockByHash(h)
		if err != nil {
			return err
		}
		if err := b.Header.Serialize(&buf); err != nil {
			return err
		}
	}
	return d.sender.Send(from, "headers", buf.Bytes())
}

// locate returns the first locator hash the node knows, in its block index
// or its orphan pool. It does not check that the hash is on the main chain.
func (d *Dispatcher) locate(loc Locator) wire.Hash {
	for _, h := range loc.Hashes {
		if d.state.HasBlock(h) {
			return h
		}
	}
	return wire.Hash{}
}

func (d *Dispatcher) handleTx(from peer.Peer, payload []byte) error {
	var tx ledger.Transaction
	if err := tx.Deserialize(bytes.NewReader(payload)); err != nil {
		d.misbehaving(from, 10, "malformed tx")
		return reject.New(reject.Malformed, "decoding tx: %s", err)
	}

	result, err := d.state.ProcessTransaction(tx, false)
	if err != nil {
		d.misbehaving(from, reject.ScoreOf(err), "invalid tx")
		return err
	}

	if result.Accepted {
		d.evHandler("dispatch: %s: tx[%s] accepted", from.Host, tx.Hash())
	}
	return nil
}

func (d *Dispatcher) handleBlock(from peer.Peer, payload []byte) error {
	var b ledger.Block
	if err := b.Deserialize(bytes.NewReader(payload)); err != nil {
		d.misbehaving(from, 10, "malformed block")
		return reject.New(reject.Malformed, "decoding block: %s", err)
	}

	result, err := d.state.ProcessBlock(b)
	if err != nil {
		d.misbehaving(from, reject.ScoreOf(err), "invalid block")
		return err
	}

	if result.Orphan {
		// Ask the sender for the history we are missing, starting at
		// the orphan's earliest unknown ancestor.
		loc := Locator{Hashes: []wire.Hash{d.state.RetrieveBestHash()}, Stop: result.OrphanRoot}
		var buf bytes.Buffer
		if err := loc.Serialize(&buf); err != nil {
			return err
		}
		return d.sender.Send(from, CmdGetBlocks, buf.Bytes())
	}

	if result.Accepted {
		d.evHandler("dispatch: %s: blk[%s] accepted", from.Host, b.Hash())

		// Relay the inventory to peers that are behind.
		inv := writeInvList([]InvVect{{Type: InvBlock, Hash: b.Hash()}})
		height := d.state.RetrieveHeight()
		for _, pr := range d.peers.Copy("") {
			if pr == from || d.peers.Status(pr).Height >= height {
				continue
			}
			d.sender.Send(pr, CmdInv, inv)
		}
	}
	return nil
}

func (d *Dispatcher) handlePing(from peer.Peer, payload []byte) error {
	return d.sender.Send(from, CmdPong, payload)
}

func (d *Dispatcher) handleAlert(from peer.Peer, payload []byte) error {
	var msg AlertMsg
	if err := msg.Deserialize(bytes.NewReader(payload)); err != nil {
		d.misbehaving(from, 10, "malformed alert")
		return reject.New(reject.Malformed, "decoding alert: %s", err)
	}

	d.evHandler("dispatch: %s: alert[%d]: %s", from.Host, msg.Priority, msg.Message)

	if msg.Priority > 1000 && d.evts != nil {
		d.evts.Send(events.Event{
			Kind:   events.Warning,
			Detail: "high priority alert: entering safe mode: " + msg.Message,
		})
	}

	// Relay to everyone else.
	for _, pr := range d.peers.Copy(from.Host) {
		d.sender.Send(pr, CmdAlert, payload)
	}
	return nil
}

func (d *Dispatcher) handleCheckpoint(from peer.Peer, payload []byte) error {
	h, err := wire.ReadHash(bytes.NewReader(payload))
	if err != nil {
		d.misbehaving(from, 10, "malformed checkpoint")
		return reject.New(reject.Malformed, "decoding checkpoint: %s", err)
	}

	if err := d.state.AcceptSyncCheckpoint(h); err != nil {
		return err
	}

	// Relay the accepted checkpoint.
	for _, pr := range d.peers.Copy(from.Host) {
		d.sender.Send(pr, CmdCheckpoint, payload)
	}
	return nil
}
