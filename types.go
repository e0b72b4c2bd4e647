package main

import (
	"encoding/hex"
	"net/netip"
	"sync"
)

// HashID represents a 20-byte identifier (info_hash or peer_id)
// Both are exactly 20 raw bytes once percent-decoded from the announce query.
// Used as map keys directly, a fixed-size array compares by value.
type HashID [20]byte

// NewHashID creates a HashID from a byte slice.
// Caller must ensure b has at least 20 bytes (announce validation happens before this).
// If b > 20 bytes, only the first 20 are used.
func NewHashID(b []byte) HashID {
	var h HashID
	copy(h[:], b)
	return h
}

func (h HashID) String() string {
	return hex.EncodeToString(h[:])
}

// Event is the optional announce event sent by a peer.
type Event uint8

const (
	EventNone Event = iota
	EventStarted
	EventCompleted
	EventStopped
)

func (e Event) String() string {
	switch e {
	case EventStarted:
		return eventStarted
	case EventCompleted:
		return eventCompleted
	case EventStopped:
		return eventStopped
	default:
		return "none"
	}
}

// PeerAnnounce is one validated announce request. It is built once per
// request and never modified afterwards.
type PeerAnnounce struct {
	Addr       netip.AddrPort // remote address, port replaced by the announced one
	Downloaded uint64
	Uploaded   uint64
	Left       uint64
	InfoHash   HashID
	PeerID     HashID
	Port       uint16
	Event      Event
	Compact    bool
}

// PeerRecord is the state a swarm keeps for one peer_id.
type PeerRecord struct {
	Addr       netip.AddrPort
	Downloaded uint64
	Uploaded   uint64
	Left       uint64
	Event      Event
}

// complete reports whether the peer counts as a seeder.
func (p *PeerRecord) complete() bool {
	return p.Left == 0 || p.Event == EventCompleted
}

type Swarm struct {
	peers    map[HashID]*PeerRecord
	interval int64
	infoHash HashID
}

// Registry holds every swarm the tracker serves. A single lock guards the
// whole map and every swarm inside it.
type Registry struct {
	torrents map[HashID]*Swarm
	mu       sync.RWMutex
	interval int64 // announce interval given to new swarms
	poisoned bool
}
