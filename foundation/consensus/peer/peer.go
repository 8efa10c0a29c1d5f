// Package peer maintains the peer related information such as the set of
// known peers, their reported heights and their misbehaviour scores.
package peer

import (
	"sync"
	"time"
)

// BanScore is the misbehaviour total at which a peer gets banned.
const BanScore = 100

// DefaultBanDuration is how long a banned peer stays banned.
const DefaultBanDuration = 24 * time.Hour

// Peer represents information about a node in the network.
type Peer struct {
	Host string
}

// New constructs a new peer value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// Status represents what a peer has told us about itself.
type Status struct {
	Version     int32
	Services    uint64
	Height      int32
	VersionSeen bool
	VerackSeen  bool
}

// state is the full record the set keeps per peer.
type state struct {
	status    Status
	misScore  int
	bannedTil time.Time
}

// =============================================================================

// Set represents the data representation to maintain a set of known peers.
type Set struct {
	mu  sync.RWMutex
	set map[Peer]*state
}

// NewSet constructs a new set to manage node peer information.
func NewSet() *Set {
	return &Set{
		set: make(map[Peer]*state),
	}
}

// Add adds a new node to the set.
func (ps *Set) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; !exists {
		ps.set[peer] = &state{}
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *Set) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Copy returns a list of the known peers, excluding the specified host
// and any peer currently banned.
func (ps *Set) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	now := time.Now()
	for peer, st := range ps.set {
		if peer.Match(host) || st.bannedTil.After(now) {
			continue
		}
		peers = append(peers, peer)
	}

	return peers
}

// =============================================================================

// Status returns what is known about the specified peer.
func (ps *Set) Status(peer Peer) Status {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if st, exists := ps.set[peer]; exists {
		return st.status
	}
	return Status{}
}

// SetStatus records a peer's version handshake information.
func (ps *Set) SetStatus(peer Peer, status Status) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	st, exists := ps.set[peer]
	if !exists {
		st = &state{}
		ps.set[peer] = st
	}
	st.status = status
}

// SetHeight updates a peer's reported chain height.
func (ps *Set) SetHeight(peer Peer, height int32) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if st, exists := ps.set[peer]; exists {
		st.status.Height = height
	}
}

// =============================================================================

// Misbehaving adds to a peer's misbehaviour score and reports whether the
// peer crossed the ban threshold.
func (ps *Set) Misbehaving(peer Peer, score int) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	st, exists := ps.set[peer]
	if !exists {
		st = &state{}
		ps.set[peer] = st
	}

	st.misScore += score
	if st.misScore >= BanScore {
		st.bannedTil = time.Now().Add(DefaultBanDuration)
		return true
	}
	return false
}

// IsBanned reports whether the peer is currently banned.
func (ps *Set) IsBanned(peer Peer) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if st, exists := ps.set[peer]; exists {
		return st.bannedTil.After(time.Now())
	}
	return false
}

// Score returns the peer's current misbehaviour score.
func (ps *Set) Score(peer Peer) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if st, exists := ps.set[peer]; exists {
		return st.misScore
	}
	return 0
}
