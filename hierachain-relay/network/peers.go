package network

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	"golang.org/x/time/rate"
)

// Peer is the handle of one connection to the hub.
//
// A peer that reconnects under the same identity gets a new Session, so
// handles taken before the reconnect no longer match.
type Peer struct {
	ID      string
	Session uint64
}

// String returns a printable form of the handle.
func (p Peer) String() string {
	return fmt.Sprintf("%s#%d", p.ID, p.Session)
}

// PeerInfo contains information about a connected peer.
type PeerInfo struct {
	ID       string    `json:"id"`
	Session  uint64    `json:"session"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
}

type peerState struct {
	peer     Peer
	joinedAt time.Time
	lastSeen time.Time
	limiter  *rate.Limiter
}

// PeerRegistry is the live set of peers connected to the hub.
//
// Only the dispatcher goroutine writes to it; the lock is there so the
// hub and status readers can look at it from other goroutines.
type PeerRegistry struct {
	log     *logger.L
	peers   map[string]*peerState
	session uint64

	// per-peer inbound message limit, zero disables limiting
	limit rate.Limit
	burst int

	mu sync.RWMutex
}

// NewPeerRegistry creates an empty registry. messagesPerSecond and burst
// configure the per-peer token bucket; messagesPerSecond <= 0 disables it.
func NewPeerRegistry(messagesPerSecond float64, burst int) *PeerRegistry {
	if burst <= 0 {
		burst = 1
	}
	return &PeerRegistry{
		log:   logger.New("registry"),
		peers: make(map[string]*peerState),
		limit: rate.Limit(messagesPerSecond),
		burst: burst,
	}
}

// Touch records activity from the identity id, adding it to the live set
// if it is not there yet. It returns the peer handle and whether the peer
// has just joined.
func (r *PeerRegistry) Touch(id string, now time.Time) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.peers[id]; ok {
		state.lastSeen = now
		return state.peer, false
	}

	r.session++
	state := &peerState{
		peer:     Peer{ID: id, Session: r.session},
		joinedAt: now,
		lastSeen: now,
	}
	if r.limit > 0 {
		state.limiter = rate.NewLimiter(r.limit, r.burst)
	}
	r.peers[id] = state

	r.log.Infof("peer joined: %s", state.peer)
	return state.peer, true
}

// Remove takes the identity id out of the live set.
func (r *PeerRegistry) Remove(id string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	delete(r.peers, id)

	r.log.Infof("peer left: %s", state.peer)
	return state.peer, true
}

// Prune removes every peer not seen since cutoff and returns them.
func (r *PeerRegistry) Prune(cutoff time.Time) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned []Peer
	for id, state := range r.peers {
		if state.lastSeen.Before(cutoff) {
			delete(r.peers, id)
			pruned = append(pruned, state.peer)
			r.log.Warnf("peer pruned: %s  last seen: %s", state.peer, state.lastSeen.Format(time.RFC3339))
		}
	}
	sortPeers(pruned)
	return pruned
}

// Live returns the current live set in join order.
func (r *PeerRegistry) Live() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.peers))
	for _, state := range r.peers {
		peers = append(peers, state.peer)
	}
	sortPeers(peers)
	return peers
}

// Count returns the number of live peers.
func (r *PeerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Lookup returns the live handle for identity id.
func (r *PeerRegistry) Lookup(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	return state.peer, true
}

// IsLive reports whether p is still the current connection for its identity.
func (r *PeerRegistry) IsLive(p Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.peers[p.ID]
	return ok && state.peer == p
}

// Allow takes one token from the peer's bucket.
func (r *PeerRegistry) Allow(p Peer, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.peers[p.ID]
	if !ok || state.peer != p {
		return false
	}
	if state.limiter == nil {
		return true
	}
	return state.limiter.AllowN(now, 1)
}

// GetPeers returns a copy of all live peers.
func (r *PeerRegistry) GetPeers() []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PeerInfo, 0, len(r.peers))
	for _, state := range r.peers {
		infos = append(infos, PeerInfo{
			ID:       state.peer.ID,
			Session:  state.peer.Session,
			JoinedAt: state.joinedAt,
			LastSeen: state.lastSeen,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Session < infos[j].Session })
	return infos
}

func sortPeers(peers []Peer) {
	sort.Slice(peers, func(i, j int) bool { return peers[i].Session < peers[j].Session })
}
