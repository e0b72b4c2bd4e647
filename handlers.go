package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"path/filepath"
)

// staticRoute maps a request prefix to a file under the static directory.
type staticRoute struct {
	prefix []byte
	file   string
}

// Order matters: the first matching prefix wins.
var staticRoutes = []staticRoute{
	{routeStats, statsHTML},
	{routeStyle, styleCSS},
	{routeDocs, docsHTML},
	{routeCode, codeJS},
}

// remoteAddrPort returns the peer address of conn, IPv4-mapped addresses
// unmapped. ok is false for connections without an IP address (pipes).
func remoteAddrPort(conn net.Conn) (netip.AddrPort, bool) {
	ap, err := netip.ParseAddrPort(conn.RemoteAddr().String())
	if err != nil {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), true
}

// handleConnection serves one request: a single read, routing on the
// request prefix, one framed response. The connection is always closed.
func (s *Server) handleConnection(conn net.Conn) error {
	//nolint:errcheck // Close errors are irrelevant once the response is flushed
	defer conn.Close()

	remote, ok := remoteAddrPort(conn)
	if !ok && debugEnabled.Load() {
		debug("connection without IP address: %s", conn.RemoteAddr())
	}

	buf := make([]byte, requestBufferSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read request from %s: %w", conn.RemoteAddr(), err)
	}

	status, body, err := s.route(buf[:n], remote)
	if err != nil {
		return err
	}

	if err := writeResponse(conn, status, body); err != nil {
		return fmt.Errorf("write response to %s: %w", conn.RemoteAddr(), err)
	}
	return nil
}

// route picks the response for req by matching its leading bytes.
func (s *Server) route(req []byte, remote netip.AddrPort) (status string, body []byte, err error) {
	switch {
	case bytes.HasPrefix(req, routeIndex):
		body, err = s.readStatic(indexHTML)
		return statusOK, body, err
	case bytes.HasPrefix(req, routeAnnounce):
		body, err = s.handleAnnounce(req, remote)
		return statusOK, body, err
	}

	for _, r := range staticRoutes {
		if bytes.HasPrefix(req, r.prefix) {
			body, err = s.readStatic(r.file)
			return statusOK, body, err
		}
	}

	if debugEnabled.Load() {
		debug("no route for request from %s", remote)
	}
	body, err = s.readStatic(notFoundHTML)
	return statusNotFound, body, err
}

func (s *Server) readStatic(name string) ([]byte, error) {
	body, err := os.ReadFile(filepath.Join(s.cfg.staticDir, name))
	if err != nil {
		return nil, fmt.Errorf("read static page: %w", err)
	}
	return body, nil
}

// handleAnnounce validates the announce in req and answers it from the
// registry. Client mistakes become failure bodies; only server faults are
// returned as errors.
func (s *Server) handleAnnounce(req []byte, remote netip.AddrPort) ([]byte, error) {
	a, err := parseAnnounce(req, remote)
	if err != nil {
		var aerr AnnounceError
		if errors.As(err, &aerr) {
			debug("announce rejected from %s: %v", remote, aerr)
			return aerr.body(), nil
		}
		return nil, err
	}

	if debugEnabled.Load() {
		debug("announce from %s: info_hash=%s peer_id=%s event=%s left=%d port=%d compact=%t",
			remote, a.InfoHash.String(), a.PeerID.String(), a.Event, a.Left, a.Port, a.Compact)
	}

	body, err := s.registry.Announce(a)
	if errors.Is(err, errUnknownTorrent) {
		info("announce rejected: info_hash %s not registered, from %s", a.InfoHash.String(), remote)
		return ErrInfoHashInvalid.body(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("announce %s: %w", a.InfoHash.String(), err)
	}
	return body, nil
}

// writeResponse writes status, a Content-Length header matching body and
// the body itself, then flushes.
func writeResponse(w io.Writer, status string, body []byte) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\r\nContent-Length: %d\r\n\r\n", status, len(body)); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.Flush()
}
