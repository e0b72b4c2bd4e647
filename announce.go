package main

import (
	"bytes"
	"net/netip"
	"strconv"
)

// AnnounceError is a client-facing announce validation failure. Each value
// maps to one fixed response body.
type AnnounceError uint8

const (
	ErrInfoHashNotFound AnnounceError = iota + 1
	ErrInfoHashInvalid
	ErrPeerIDInvalid
	ErrPortNotFound
	ErrPortInvalid
	ErrStatNotFound
	ErrStatInvalid
)

func (e AnnounceError) Error() string {
	switch e {
	case ErrInfoHashNotFound:
		return "announce: info_hash not found"
	case ErrInfoHashInvalid:
		return "announce: info_hash invalid"
	case ErrPeerIDInvalid:
		return "announce: peer_id invalid"
	case ErrPortNotFound:
		return "announce: port not found"
	case ErrPortInvalid:
		return "announce: port invalid"
	case ErrStatNotFound:
		return "announce: stat not found"
	case ErrStatInvalid:
		return "announce: stat invalid"
	default:
		return "announce: unknown error"
	}
}

// body returns the response body sent to the peer for this error.
func (e AnnounceError) body() []byte {
	switch e {
	case ErrInfoHashNotFound:
		return []byte(msgInfoHashNotFound)
	case ErrInfoHashInvalid:
		return failureBody(msgNotAuthorized)
	case ErrPeerIDInvalid:
		return []byte(msgPeerIDInvalid)
	case ErrPortNotFound:
		return []byte(msgPortNotFound)
	case ErrPortInvalid:
		return []byte(msgPortInvalid)
	case ErrStatNotFound:
		return []byte(msgStatNotFound)
	default:
		return []byte(msgStatInvalid)
	}
}

// queryField returns the value following the first occurrence of key in req,
// up to the next '&' or space. ok is false when the key does not occur.
func queryField(req []byte, key string) (value []byte, ok bool) {
	i := bytes.Index(req, []byte(key))
	if i < 0 {
		return nil, false
	}
	value = req[i+len(key):]
	if end := bytes.IndexAny(value, "& "); end >= 0 {
		value = value[:end]
	}
	return value, true
}

func parseHashField(req []byte, key string, notFound, invalid AnnounceError) (HashID, error) {
	raw, ok := queryField(req, key)
	if !ok {
		return HashID{}, notFound
	}
	decoded := percentDecode(raw)
	if len(decoded) != len(HashID{}) {
		return HashID{}, invalid
	}
	return NewHashID(decoded), nil
}

func parsePort(req []byte) (uint16, error) {
	raw, ok := queryField(req, keyPort)
	if !ok {
		return 0, ErrPortNotFound
	}
	port, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil || port < firstPort || port > lastPort {
		return 0, ErrPortInvalid
	}
	return uint16(port), nil
}

func parseStat(req []byte, key string) (uint64, error) {
	raw, ok := queryField(req, key)
	if !ok {
		return 0, ErrStatNotFound
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, ErrStatInvalid
	}
	return n, nil
}

func parseEvent(req []byte) Event {
	raw, _ := queryField(req, keyEvent)
	switch string(raw) {
	case eventStarted:
		return EventStarted
	case eventCompleted:
		return EventCompleted
	case eventStopped:
		return EventStopped
	default:
		return EventNone
	}
}

// parseAnnounce extracts and validates an announce from the raw request
// bytes. Required fields are checked in order and the first failure is
// returned as an AnnounceError; later fields are not looked at.
func parseAnnounce(req []byte, remote netip.AddrPort) (*PeerAnnounce, error) {
	var (
		a   PeerAnnounce
		err error
	)
	if a.InfoHash, err = parseHashField(req, keyInfoHash, ErrInfoHashNotFound, ErrInfoHashInvalid); err != nil {
		return nil, err
	}
	if a.PeerID, err = parseHashField(req, keyPeerID, ErrPeerIDInvalid, ErrPeerIDInvalid); err != nil {
		return nil, err
	}
	if a.Port, err = parsePort(req); err != nil {
		return nil, err
	}
	if a.Downloaded, err = parseStat(req, keyDownloaded); err != nil {
		return nil, err
	}
	if a.Uploaded, err = parseStat(req, keyUploaded); err != nil {
		return nil, err
	}
	if a.Left, err = parseStat(req, keyLeft); err != nil {
		return nil, err
	}

	if compact, ok := queryField(req, keyCompact); ok && len(compact) > 0 {
		a.Compact = compact[len(compact)-1] == '1'
	}
	a.Event = parseEvent(req)

	// the announced port is the one the peer listens on, not the TCP source port
	a.Addr = netip.AddrPortFrom(remote.Addr().Unmap(), a.Port)
	return &a, nil
}
