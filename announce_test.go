package main

import (
	"bytes"
	"errors"
	"net/netip"
	"testing"
)

const (
	testInfoHash = "abcdefghijklmn123456"
	testPeerID   = "-PC0001-000000000001"
)

var testRemote = netip.MustParseAddrPort("192.168.1.10:51413")

// announceRequest builds the first line of an announce request from raw
// query text, the way a client puts it on the wire.
func announceRequest(query string) []byte {
	return []byte("GET /announce?" + query + " HTTP/1.1\r\nHost: tracker\r\n\r\n")
}

func validQuery() string {
	return "info_hash=" + testInfoHash + "&peer_id=" + testPeerID +
		"&port=6881&uploaded=10&downloaded=20&left=30&compact=1&event=started"
}

func TestParseAnnounce_Valid(t *testing.T) {
	a, err := parseAnnounce(announceRequest(validQuery()), testRemote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.InfoHash != NewHashID([]byte(testInfoHash)) {
		t.Errorf("InfoHash = %s", a.InfoHash)
	}
	if a.PeerID != NewHashID([]byte(testPeerID)) {
		t.Errorf("PeerID = %s", a.PeerID)
	}
	if a.Port != 6881 {
		t.Errorf("Port = %d, want 6881", a.Port)
	}
	if a.Uploaded != 10 || a.Downloaded != 20 || a.Left != 30 {
		t.Errorf("stats = up %d down %d left %d, want 10/20/30", a.Uploaded, a.Downloaded, a.Left)
	}
	if !a.Compact {
		t.Error("Compact = false, want true")
	}
	if a.Event != EventStarted {
		t.Errorf("Event = %s, want started", a.Event)
	}
	want := netip.MustParseAddrPort("192.168.1.10:6881")
	if a.Addr != want {
		t.Errorf("Addr = %s, want %s", a.Addr, want)
	}
}

func TestParseAnnounce_PercentEncodedHashes(t *testing.T) {
	query := "info_hash=%61%62%63defghijklmn123456&peer_id=%2DPC0001%2D000000000001" +
		"&port=6889&uploaded=0&downloaded=0&left=0"
	a, err := parseAnnounce(announceRequest(query), testRemote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.InfoHash != NewHashID([]byte(testInfoHash)) {
		t.Errorf("InfoHash = %q", a.InfoHash[:])
	}
	if a.PeerID != NewHashID([]byte(testPeerID)) {
		t.Errorf("PeerID = %q", a.PeerID[:])
	}
}

func TestParseAnnounce_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  AnnounceError
	}{
		{"no info hash", "peer_id=" + testPeerID + "&port=6881", ErrInfoHashNotFound},
		{"empty request", "", ErrInfoHashNotFound},
		{"short info hash", "info_hash=abc&peer_id=" + testPeerID, ErrInfoHashInvalid},
		{"long info hash", "info_hash=" + testInfoHash + "X&peer_id=" + testPeerID, ErrInfoHashInvalid},
		{"no peer id", "info_hash=" + testInfoHash + "&port=6881", ErrPeerIDInvalid},
		{"short peer id", "info_hash=" + testInfoHash + "&peer_id=short&port=6881", ErrPeerIDInvalid},
		{"no port", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID + "&left=0", ErrPortNotFound},
		{"port below range", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID + "&port=6880", ErrPortInvalid},
		{"port above range", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID + "&port=6890", ErrPortInvalid},
		{"port not a number", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID + "&port=abc", ErrPortInvalid},
		{"port empty", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID + "&port=&left=0", ErrPortInvalid},
		{"no downloaded", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID +
			"&port=6881&uploaded=0&left=0", ErrStatNotFound},
		{"no uploaded", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID +
			"&port=6881&downloaded=0&left=0", ErrStatNotFound},
		{"no left", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID +
			"&port=6881&downloaded=0&uploaded=0", ErrStatNotFound},
		{"negative stat", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID +
			"&port=6881&downloaded=-1&uploaded=0&left=0", ErrStatInvalid},
		{"garbage stat", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID +
			"&port=6881&downloaded=0&uploaded=1x&left=0", ErrStatInvalid},
		{"empty stat", "info_hash=" + testInfoHash + "&peer_id=" + testPeerID +
			"&port=6881&downloaded=0&uploaded=0&left=", ErrStatInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseAnnounce(announceRequest(tt.query), testRemote)
			if a != nil {
				t.Errorf("announce = %+v, want nil", a)
			}
			var aerr AnnounceError
			if !errors.As(err, &aerr) {
				t.Fatalf("error = %v, want AnnounceError", err)
			}
			if aerr != tt.want {
				t.Errorf("error = %v, want %v", aerr, tt.want)
			}
		})
	}
}

// The first failing field wins even when later fields are broken too.
func TestParseAnnounce_ShortCircuit(t *testing.T) {
	query := "info_hash=short&peer_id=short&port=1&downloaded=x"
	_, err := parseAnnounce(announceRequest(query), testRemote)
	if !errors.Is(err, ErrInfoHashInvalid) {
		t.Errorf("error = %v, want %v", err, ErrInfoHashInvalid)
	}

	query = "info_hash=" + testInfoHash + "&peer_id=" + testPeerID + "&port=1&downloaded=x"
	_, err = parseAnnounce(announceRequest(query), testRemote)
	if !errors.Is(err, ErrPortInvalid) {
		t.Errorf("error = %v, want %v", err, ErrPortInvalid)
	}
}

func TestParseAnnounce_PortBoundaries(t *testing.T) {
	for _, port := range []string{"6881", "6885", "6889"} {
		query := "info_hash=" + testInfoHash + "&peer_id=" + testPeerID +
			"&port=" + port + "&uploaded=0&downloaded=0&left=0"
		if _, err := parseAnnounce(announceRequest(query), testRemote); err != nil {
			t.Errorf("port %s: unexpected error %v", port, err)
		}
	}
}

func TestParseAnnounce_Optional(t *testing.T) {
	base := "info_hash=" + testInfoHash + "&peer_id=" + testPeerID + "&port=6881&uploaded=0&downloaded=0&left=0"

	tests := []struct {
		name        string
		extra       string
		wantCompact bool
		wantEvent   Event
	}{
		{"absent", "", false, EventNone},
		{"compact zero", "&compact=0", false, EventNone},
		{"compact one", "&compact=1", true, EventNone},
		{"compact last byte wins", "&compact=01", true, EventNone},
		{"compact empty", "&compact=", false, EventNone},
		{"completed", "&event=completed", false, EventCompleted},
		{"stopped", "&event=stopped", false, EventStopped},
		{"unknown event", "&event=paused", false, EventNone},
		{"empty event", "&event=", false, EventNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseAnnounce(announceRequest(base+tt.extra), testRemote)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Compact != tt.wantCompact {
				t.Errorf("Compact = %t, want %t", a.Compact, tt.wantCompact)
			}
			if a.Event != tt.wantEvent {
				t.Errorf("Event = %s, want %s", a.Event, tt.wantEvent)
			}
		})
	}
}

func TestParseAnnounce_MappedRemote(t *testing.T) {
	remote := netip.MustParseAddrPort("[::ffff:10.0.0.7]:40000")
	a, err := parseAnnounce(announceRequest(validQuery()), remote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Addr.Addr().Is4() {
		t.Errorf("Addr = %s, want unmapped IPv4", a.Addr)
	}
	if a.Addr.String() != "10.0.0.7:6881" {
		t.Errorf("Addr = %s, want 10.0.0.7:6881", a.Addr)
	}
}

func TestQueryField(t *testing.T) {
	req := []byte("GET /announce?a=1&b=two&c= HTTP/1.1\r\n")

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"a=", "1", true},
		{"b=", "two", true},
		{"c=", "", true},
		{"d=", "", false},
	}

	for _, tt := range tests {
		got, ok := queryField(req, tt.key)
		if ok != tt.wantOK || string(got) != tt.want {
			t.Errorf("queryField(%q) = %q, %t, want %q, %t", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAnnounceError_Body(t *testing.T) {
	tests := []struct {
		err  AnnounceError
		want string
	}{
		{ErrInfoHashNotFound, "you sent me garbage - no info hash"},
		{ErrInfoHashInvalid, "d14:failure reason63:Requested download is not authorized for use with this tracker.e"},
		{ErrPeerIDInvalid, "you sent me garbage - id not of length 20"},
		{ErrPortNotFound, "you sent me garbage - no port"},
		{ErrPortInvalid, "you sent me garbage - invalid port"},
		{ErrStatNotFound, "you sent me garbage - invalid literal for long() with base 10: ''"},
		{ErrStatInvalid, "you sent me garbage - invalid amount"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := tt.err.body(); !bytes.Equal(got, []byte(tt.want)) {
				t.Errorf("body() = %q, want %q", got, tt.want)
			}
		})
	}
}
