package main

import "time"

// Wire constants for the HTTP announce protocol and the canned routes.
// Routes are matched as raw byte prefixes of the first read, no HTTP parsing.
var (
	routeIndex    = []byte("GET / HTTP/1.1\r\n")
	routeAnnounce = []byte("GET /announce")
	routeCode     = []byte("GET /code")
	routeStats    = []byte("GET /stats.html")
	routeDocs     = []byte("GET /docs.html")
	routeStyle    = []byte("GET /style")
)

const (
	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 NOT FOUND"

	indexHTML    = "index.html"
	codeJS       = "js/code.js"
	statsHTML    = "stats.html"
	docsHTML     = "docs.html"
	styleCSS     = "style.css"
	notFoundHTML = "404.html"

	requestBufferSize = 1024 // single read per connection, no framing
	acceptBackoff     = 1 * time.Second
	jobQueuePerWorker = 16

	torrentsRefreshInterval = 5 * time.Minute

	firstPort = 6881
	lastPort  = 6889

	defaultInterval = 600 // seconds
)

// Announce query keys, searched as literal substrings of the request.
const (
	keyInfoHash   = "info_hash="
	keyPeerID     = "peer_id="
	keyPort       = "port="
	keyDownloaded = "downloaded="
	keyUploaded   = "uploaded="
	keyLeft       = "left="
	keyCompact    = "compact="
	keyEvent      = "event="

	eventStarted   = "started"
	eventCompleted = "completed"
	eventStopped   = "stopped"
)

// Response dictionary keys.
const (
	keyComplete   = "complete"
	keyIncomplete = "incomplete"
	keyInterval   = "interval"
	keyPeers      = "peers"
	keyPeerIDDict = "peer_id"
	keyIP         = "ip"
	keyPortDict   = "port"
)

// Failure bodies returned to peers, one per announce error.
const (
	msgInfoHashNotFound = "you sent me garbage - no info hash"
	msgNotAuthorized    = "Requested download is not authorized for use with this tracker."
	msgPeerIDInvalid    = "you sent me garbage - id not of length 20"
	msgPortNotFound     = "you sent me garbage - no port"
	msgPortInvalid      = "you sent me garbage - invalid port"
	msgStatNotFound     = "you sent me garbage - invalid literal for long() with base 10: ''"
	msgStatInvalid      = "you sent me garbage - invalid amount"
)
