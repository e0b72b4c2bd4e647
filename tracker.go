package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"

	"github.com/jackpal/bencode-go"
)

var (
	errUnknownTorrent   = errors.New("torrent not registered")
	errRegistryPoisoned = errors.New("registry unusable after a panic while locked")
)

// failureResponse is the BEP 3 error dictionary; it must be the only key.
type failureResponse struct {
	Reason string `bencode:"failure reason"`
}

// failureBody renders reason as a bencoded failure dictionary.
func failureBody(reason string) []byte {
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, failureResponse{Reason: reason}); err != nil {
		errorLog("failed to encode failure reason %q: %v", reason, err)
		return []byte(reason)
	}
	return buf.Bytes()
}

func newSwarm(hash HashID, interval int64) *Swarm {
	return &Swarm{
		infoHash: hash,
		interval: interval,
		peers:    make(map[HashID]*PeerRecord),
	}
}

// addPeer stores the announce under its peer_id, replacing any previous record.
func (s *Swarm) addPeer(a *PeerAnnounce) {
	s.peers[a.PeerID] = &PeerRecord{
		Addr:       a.Addr,
		Downloaded: a.Downloaded,
		Uploaded:   a.Uploaded,
		Left:       a.Left,
		Event:      a.Event,
	}
	if debugEnabled.Load() {
		debug("torrent %s: stored peer %s @ %s left=%d event=%s",
			s.infoHash.String(), a.PeerID.String(), a.Addr, a.Left, a.Event)
	}
}

// counts returns the number of seeders and leechers, derived from the
// records on every call.
func (s *Swarm) counts() (complete, incomplete int) {
	for _, p := range s.peers {
		if p.complete() {
			complete++
		} else {
			incomplete++
		}
	}
	return complete, incomplete
}

// visiblePeers calls f for every peer that may be handed out to requester:
// everyone except the requester itself and peers that announced "stopped".
func (s *Swarm) visiblePeers(requester HashID, f func(id HashID, p *PeerRecord)) {
	for id, p := range s.peers {
		if id == requester || p.Event == EventStopped {
			continue
		}
		f(id, p)
	}
}

// render builds the bencoded announce response for requester.
func (s *Swarm) render(requester HashID, compact bool) []byte {
	complete, incomplete := s.counts()

	var peers Value
	if compact {
		var buf []byte
		s.visiblePeers(requester, func(_ HashID, p *PeerRecord) {
			buf = appendCompactPeer(buf, p)
		})
		peers = String(buf)
	} else {
		list := List{}
		s.visiblePeers(requester, func(id HashID, p *PeerRecord) {
			list = append(list, Dict{
				keyPeerIDDict: String(id[:]),
				keyIP:         String(p.Addr.Addr().String()),
				keyPortDict:   Integer(p.Addr.Port()),
			})
		})
		peers = list
	}

	return EncodeBencode(Dict{
		keyComplete:   Integer(complete),
		keyIncomplete: Integer(incomplete),
		keyInterval:   Integer(s.interval),
		keyPeers:      peers,
	})
}

// appendCompactPeer appends the 6-byte form of p (IPv4 octets, big-endian
// port). Peers whose address is not a dotted quad are skipped entirely so a
// bad record never shifts the blocks that follow it.
func appendCompactPeer(buf []byte, p *PeerRecord) []byte {
	octets, ok := ipv4Octets(p.Addr.Addr().String())
	if !ok {
		if debugEnabled.Load() {
			debug("compact: skipping non-IPv4 peer %s", p.Addr)
		}
		return buf
	}
	buf = append(buf, octets[:]...)
	return binary.BigEndian.AppendUint16(buf, p.Addr.Port())
}

func ipv4Octets(s string) (octets [4]byte, ok bool) {
	parts := strings.Split(s, ".")
	if len(parts) != len(octets) {
		return octets, false
	}
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return octets, false
		}
		octets[i] = byte(n)
	}
	return octets, true
}

// NewRegistry creates a registry with one empty swarm per info hash.
func NewRegistry(hashes []HashID, interval int64) *Registry {
	r := &Registry{
		torrents: make(map[HashID]*Swarm, len(hashes)),
		interval: interval,
	}
	for _, h := range hashes {
		r.torrents[h] = newSwarm(h, interval)
	}
	return r
}

// Register adds an empty swarm for every hash not served yet and returns how
// many were added. Swarms already present keep their peers.
func (r *Registry) Register(hashes []HashID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.poisoned {
		return 0, errRegistryPoisoned
	}
	added := 0
	for _, h := range hashes {
		if _, ok := r.torrents[h]; ok {
			continue
		}
		r.torrents[h] = newSwarm(h, r.interval)
		added++
	}
	return added, nil
}

// Announce renders the response for a and then records a in its swarm. Both
// steps happen under the write lock so no other announce can interleave.
// The response does not include the announcing peer's own new record.
func (r *Registry) Announce(a *PeerAnnounce) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.poisoned {
		return nil, errRegistryPoisoned
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.poisoned = true
			panic(rec)
		}
	}()

	s, ok := r.torrents[a.InfoHash]
	if !ok {
		return nil, errUnknownTorrent
	}
	resp := s.render(a.PeerID, a.Compact)
	s.addPeer(a)
	return resp, nil
}

// SwarmStats is a point-in-time summary of one swarm.
type SwarmStats struct {
	InfoHash   HashID
	Complete   int
	Incomplete int
	Peers      int
}

// Snapshot returns the current counts of every swarm.
func (r *Registry) Snapshot() []SwarmStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]SwarmStats, 0, len(r.torrents))
	for h, s := range r.torrents {
		complete, incomplete := s.counts()
		stats = append(stats, SwarmStats{
			InfoHash:   h,
			Complete:   complete,
			Incomplete: incomplete,
			Peers:      len(s.peers),
		})
	}
	return stats
}
