package main

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/bencode"
)

// metainfo is the part of a .torrent file needed to identify it.
type metainfo struct {
	Info bencode.RawMessage `bencode:"info"`
}

// infoHashFromFile computes the info hash of a .torrent file: the SHA-1 of
// the bencoded info dictionary exactly as stored in the file.
func infoHashFromFile(path string) (HashID, error) {
	//nolint:gosec // Path is controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return HashID{}, err
	}
	var m metainfo
	if err := bencode.DecodeBytes(data, &m); err != nil {
		return HashID{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(m.Info) == 0 {
		return HashID{}, fmt.Errorf("%s: missing info dictionary", path)
	}
	return HashID(sha1.Sum(m.Info)), nil
}

// parseTorrentLine turns one line of the torrents file into an info hash.
// A line is a 40-char hex hash, a raw 20-byte identifier, or a path to a
// .torrent file (relative paths resolve against dir).
func parseTorrentLine(line, dir string) (HashID, error) {
	switch {
	case strings.HasSuffix(line, ".torrent"):
		if !filepath.IsAbs(line) {
			line = filepath.Join(dir, line)
		}
		return infoHashFromFile(line)
	case len(line) == 2*len(HashID{}):
		decoded, err := hex.DecodeString(line)
		if err != nil {
			return HashID{}, fmt.Errorf("invalid hex string: %w", err)
		}
		return NewHashID(decoded), nil
	case len(line) == len(HashID{}):
		return NewHashID([]byte(line)), nil
	default:
		return HashID{}, fmt.Errorf("invalid hash length %d", len(line))
	}
}

// loadTorrentsFile reads the list of torrents the tracker serves.
// Empty lines and lines starting with # are ignored, invalid lines are
// logged and skipped. Duplicates are collapsed.
func loadTorrentsFile(path string) ([]HashID, error) {
	//nolint:gosec // Path is controlled by admin
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open torrents file: %w", err)
	}
	//nolint:errcheck // File close errors ignored during read
	defer file.Close()

	seen := make(map[HashID]struct{})
	var hashes []HashID
	dir := filepath.Dir(path)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		hash, err := parseTorrentLine(line, dir)
		if err != nil {
			warn("torrents line %d: %v, skipping", lineNum, err)
			continue
		}
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		hashes = append(hashes, hash)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read torrents file: %w", err)
	}

	return hashes, nil
}

// watchTorrentsFile re-reads path every interval while its modification time
// keeps changing and registers torrents that were added to it. Torrents
// removed from the file stay registered until restart. Failures are logged
// and polling goes on; it returns when ctx is done.
func watchTorrentsFile(ctx context.Context, path string, r *Registry, every time.Duration) error {
	var lastMod time.Time
	if fi, err := os.Stat(path); err == nil {
		lastMod = fi.ModTime()
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fi, err := os.Stat(path)
			if err != nil {
				warn("failed to stat torrents file: %v", err)
				continue
			}
			if fi.ModTime().Equal(lastMod) {
				continue
			}
			lastMod = fi.ModTime()

			hashes, err := loadTorrentsFile(path)
			if err != nil {
				warn("failed to reload torrents file: %v", err)
				continue
			}
			added, err := r.Register(hashes)
			if err != nil {
				warn("failed to register reloaded torrents: %v", err)
				continue
			}
			if added > 0 {
				info("reloaded torrents file: %d new torrents", added)
			}
		}
	}
}
