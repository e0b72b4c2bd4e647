// HTTP announce load generator for pico-http-tracker.
// Every worker announces the configured info hashes in a loop, optionally
// fetching one static page per round, and reports latency percentiles.
//
// Usage: go run ./benchmark -target localhost:7878 -duration 30s -concurrency 100 -hashes <hex>[,<hex>...]

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jackpal/bencode-go"
)

const (
	requestTimeout = 5 * time.Second
	okStatusLine   = "HTTP/1.1 200 OK\r\n"
	headerEnd      = "\r\n\r\n"
)

var (
	errRejected  = errors.New("announce rejected by tracker")
	errBadStatus = errors.New("unexpected status line")
	errNoHeaders = errors.New("response has no header terminator")
)

// sampler collects the outcome of one request kind.
type sampler struct {
	mu        sync.Mutex
	latencies []time.Duration
	bytes     int
	ok        uint64
	rejected  uint64
	failed    uint64
}

func (s *sampler) record(d time.Duration, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, d)
	switch {
	case err == nil:
		s.ok++
		s.bytes += n
	case errors.Is(err, errRejected):
		s.rejected++
	default:
		s.failed++
	}
}

type summary struct {
	count                        int
	ok, rejected, failed         uint64
	avgBytes                     float64
	min, avg, p50, p95, p99, max time.Duration
}

func (s *sampler) summarize() summary {
	s.mu.Lock()
	sorted := slices.Clone(s.latencies)
	sum := summary{ok: s.ok, rejected: s.rejected, failed: s.failed, count: len(sorted)}
	if s.ok > 0 {
		sum.avgBytes = float64(s.bytes) / float64(s.ok)
	}
	s.mu.Unlock()

	if len(sorted) == 0 {
		return sum
	}
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	at := func(p int) time.Duration {
		return sorted[min(len(sorted)*p/100, len(sorted)-1)]
	}
	sum.min, sum.max = sorted[0], sorted[len(sorted)-1]
	sum.avg = total / time.Duration(len(sorted))
	sum.p50, sum.p95, sum.p99 = at(50), at(95), at(99)
	return sum
}

type options struct {
	target      string
	page        string
	hashes      [][20]byte
	duration    time.Duration
	concurrency int
	rate        int
	compact     bool
}

type bench struct {
	opts      options
	announces sampler
	pages     sampler
	sent      atomic.Uint64
}

// run starts the workers and blocks until the duration elapses or ctx is
// cancelled.
func (b *bench) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.duration)
	defer cancel()

	start := time.Now()
	go b.progress(ctx, start)

	var wg sync.WaitGroup
	for id := range b.opts.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.worker(ctx, id)
		}()
	}
	wg.Wait()

	b.report(time.Since(start))
}

func (b *bench) worker(ctx context.Context, id int) {
	var tick <-chan time.Time
	if b.opts.rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(b.opts.rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	peerID := newPeerID(id)
	port := 6881 + id%9

	for ctx.Err() == nil {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		}

		for _, h := range b.opts.hashes {
			if ctx.Err() != nil {
				return
			}
			b.announce(h, peerID, port)
		}
		if b.opts.page != "" {
			b.fetchPage()
		}
	}
}

// exchange writes one raw request on a fresh connection and returns the
// response body. The tracker closes every connection after answering.
func (b *bench) exchange(request string) ([]byte, error) {
	b.sent.Add(1)

	conn, err := net.DialTimeout("tcp", b.opts.target, requestTimeout)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Connection is single use
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(requestTimeout)); err != nil {
		return nil, err
	}
	if _, err := io.WriteString(conn, request); err != nil {
		return nil, err
	}
	resp, err := io.ReadAll(conn)
	if err != nil {
		return nil, err
	}

	if !bytes.HasPrefix(resp, []byte(okStatusLine)) {
		return nil, errBadStatus
	}
	_, body, found := bytes.Cut(resp, []byte(headerEnd))
	if !found {
		return nil, errNoHeaders
	}
	return body, nil
}

func (b *bench) announce(infoHash, peerID [20]byte, port int) {
	compact := "0"
	if b.opts.compact {
		compact = "1"
	}
	request := "GET /announce?info_hash=" + percentEncode(infoHash[:]) +
		"&peer_id=" + percentEncode(peerID[:]) +
		fmt.Sprintf("&port=%d&uploaded=0&downloaded=0&left=100&compact=%s", port, compact) +
		" HTTP/1.1\r\nHost: " + b.opts.target + "\r\n\r\n"

	start := time.Now()
	body, err := b.exchange(request)
	if err == nil {
		err = checkAnnounceBody(body)
	}
	b.announces.record(time.Since(start), len(body), err)
}

// checkAnnounceBody accepts only a bencoded dictionary without a failure
// reason. Plain-text rejections fail to decode.
func checkAnnounceBody(body []byte) error {
	decoded, err := bencode.Decode(bytes.NewReader(body))
	if err != nil {
		return errRejected
	}
	dict, ok := decoded.(map[string]interface{})
	if !ok {
		return errRejected
	}
	if _, failed := dict["failure reason"]; failed {
		return errRejected
	}
	return nil
}

func (b *bench) fetchPage() {
	request := "GET " + b.opts.page + " HTTP/1.1\r\nHost: " + b.opts.target + "\r\n\r\n"

	start := time.Now()
	body, err := b.exchange(request)
	b.pages.record(time.Since(start), len(body), err)
}

func (b *bench) progress(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			sent := b.sent.Load()
			log.Printf("[%s] sent %d requests, %.0f req/s",
				elapsed.Round(time.Second), sent, float64(sent)/elapsed.Seconds())
		}
	}
}

func (b *bench) report(elapsed time.Duration) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "\ntarget\t%s\n", b.opts.target)
	fmt.Fprintf(w, "elapsed\t%s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "workers\t%d\n", b.opts.concurrency)
	fmt.Fprintf(w, "throughput\t%.1f req/s\n\n", float64(b.sent.Load())/elapsed.Seconds())

	fmt.Fprintln(w, "kind\tcount\tok\trejected\tfailed\tavg body\tmin\tavg\tp50\tp95\tp99\tmax")
	for _, row := range []struct {
		name string
		s    *sampler
	}{
		{"announce", &b.announces},
		{"page", &b.pages},
	} {
		sum := row.s.summarize()
		if sum.count == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.0fB\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.name, sum.count, sum.ok, sum.rejected, sum.failed, sum.avgBytes,
			sum.min, sum.avg, sum.p50, sum.p95, sum.p99, sum.max)
	}
	//nolint:errcheck // Stdout
	w.Flush()

	if sum := b.announces.summarize(); sum.rejected > 0 {
		fmt.Println("\nSome announces were rejected: check that every -hashes entry is registered on the tracker.")
	}
}

// percentEncode escapes every byte, which any tracker must accept.
func percentEncode(b []byte) string {
	const digits = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(3 * len(b))
	for _, c := range b {
		sb.WriteByte('%')
		sb.WriteByte(digits[c>>4])
		sb.WriteByte(digits[c&0x0f])
	}
	return sb.String()
}

// newPeerID builds an Azureus-style peer id unique per worker and run.
func newPeerID(worker int) [20]byte {
	var id [20]byte
	copy(id[:8], "-PB0001-")
	binary.BigEndian.PutUint32(id[8:12], uint32(worker))
	binary.BigEndian.PutUint64(id[12:20], uint64(time.Now().UnixNano()))
	return id
}

func parseHashList(list string) ([][20]byte, error) {
	var hashes [][20]byte
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		raw, err := hex.DecodeString(field)
		if err != nil || len(raw) != 20 {
			return nil, fmt.Errorf("invalid info hash %q", field)
		}
		hashes = append(hashes, [20]byte(raw))
	}
	if len(hashes) == 0 {
		return nil, errors.New("at least one info hash is required")
	}
	return hashes, nil
}

func main() {
	var opts options
	flag.StringVar(&opts.target, "target", "localhost:7878", "tracker address (host:port)")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "benchmark duration")
	flag.IntVar(&opts.concurrency, "concurrency", 100, "number of concurrent workers")
	flag.IntVar(&opts.rate, "rate", 0, "rounds per second per worker (0 = unlimited)")
	flag.StringVar(&opts.page, "page", "/stats.html", "static page fetched once per round (empty to skip)")
	flag.BoolVar(&opts.compact, "compact", true, "request compact peer lists")
	hashList := flag.String("hashes", hex.EncodeToString([]byte("abcdefghijklmn123456")),
		"comma separated hex info hashes registered on the tracker")
	flag.Parse()

	if opts.concurrency < 1 {
		log.Fatal("concurrency must be at least 1")
	}
	hashes, err := parseHashList(*hashList)
	if err != nil {
		log.Fatal(err)
	}
	opts.hashes = hashes

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("benchmarking %s for %s with %d workers, %d info hashes",
		opts.target, opts.duration, opts.concurrency, len(opts.hashes))
	(&bench{opts: opts}).run(ctx)
}
