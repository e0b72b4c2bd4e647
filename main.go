package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync/atomic"
)

var version = "dev"

// debugEnabled is an atomic boolean for thread-safe debug toggle
var debugEnabled atomic.Bool

// Hot path callers should check debugEnabled.Load() first
// to avoid expensive argument evaluation (e.g., HashID.String()).
// This function provides a safety check for non-hot-path calls.
func debug(format string, v ...any) {
	if debugEnabled.Load() {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func info(format string, v ...any) {
	log.Printf("[INFO] "+format, v...)
}

func warn(format string, v ...any) {
	log.Printf("[WARN] "+format, v...)
}

func errorLog(format string, v ...any) {
	log.Printf("[ERROR] "+format, v...)
}

//nolint:govet // Field alignment is acceptable
type config struct {
	host         string
	torrentsPath string
	staticDir    string
	port         int
	workers      int
	interval     int64
	showVersion  bool
	debug        bool
}

// envInt reads a positive integer from the environment, or returns def.
func envInt(name string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(name)); err == nil && v > 0 {
		return v
	}
	return def
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// parseFlags parses command-line flags and returns configuration.
// Default values are read from environment variables:
//   - PICO_TRACKER__HOST: address to bind
//   - PICO_TRACKER__PORT: default port (must be > 0)
//   - PICO_TRACKER__WORKERS: number of connection workers (must be > 0)
//   - PICO_TRACKER__INTERVAL: announce interval in seconds (must be >= 0)
//   - PICO_TRACKER__TORRENTS: file listing the torrents to serve
//   - PICO_TRACKER__STATIC: directory holding the static pages
//   - DEBUG: enables debug mode if set
func parseFlags(args []string) config {
	defaultHost := envString("PICO_TRACKER__HOST", "127.0.0.1")
	defaultPort := envInt("PICO_TRACKER__PORT", 7878)
	defaultWorkers := envInt("PICO_TRACKER__WORKERS", 4)

	intervalDefault := int64(defaultInterval)
	if v, err := strconv.ParseInt(os.Getenv("PICO_TRACKER__INTERVAL"), 10, 64); err == nil && v >= 0 {
		intervalDefault = v
	}

	defaultTorrents := os.Getenv("PICO_TRACKER__TORRENTS")
	defaultStatic := envString("PICO_TRACKER__STATIC", ".")

	debugDefault := os.Getenv("DEBUG") != ""

	fs := flag.NewFlagSet("pico-tracker", flag.ExitOnError)
	host := fs.String("host", defaultHost, "address to listen on [env PICO_TRACKER__HOST]")
	fs.StringVar(host, "H", defaultHost, "alias to -host")

	port := fs.Int("port", defaultPort, "port to listen on [env PICO_TRACKER__PORT]")
	fs.IntVar(port, "p", defaultPort, "alias to -port")

	workers := fs.Int("workers", defaultWorkers, "number of connection workers [env PICO_TRACKER__WORKERS]")
	fs.IntVar(workers, "w", defaultWorkers, "alias to -workers")

	interval := fs.Int64("interval", intervalDefault, "announce interval in seconds [env PICO_TRACKER__INTERVAL]")
	fs.Int64Var(interval, "i", intervalDefault, "alias to -interval")

	torrents := fs.String("torrents", defaultTorrents,
		"path to file listing served torrents (hex hash, 20-byte id or .torrent path per line) [env PICO_TRACKER__TORRENTS]")
	fs.StringVar(torrents, "t", defaultTorrents, "alias to -torrents")

	static := fs.String("static", defaultStatic, "directory with the static pages [env PICO_TRACKER__STATIC]")
	fs.StringVar(static, "s", defaultStatic, "alias to -static")

	debug := fs.Bool("debug", debugDefault, "enable debug logs [env DEBUG]")
	fs.BoolVar(debug, "d", debugDefault, "alias to -debug")

	showVersion := fs.Bool("version", false, "print version")
	fs.BoolVar(showVersion, "v", false, "alias to -version")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "\nPico Tracker: %s\nPortable BitTorrent Tracker (HTTP)\n\n", version)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nType q and press enter to stop the tracker.\n\n")
	}

	// With ExitOnError, flag package exits on error
	//nolint:errcheck // Test flags are valid, parsing error will exit
	_ = fs.Parse(args)

	if *workers < 1 {
		*workers = 1
	}

	return config{
		host:         *host,
		port:         *port,
		workers:      *workers,
		interval:     *interval,
		torrentsPath: *torrents,
		staticDir:    *static,
		showVersion:  *showVersion,
		debug:        *debug,
	}
}

func main() {
	cfg := parseFlags(os.Args[1:])

	if cfg.showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	debugEnabled.Store(cfg.debug)

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("[ERROR] Failed to load torrents: %v", err)
	}

	ctx, stop := setupSignalHandling()
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("[ERROR] Server error: %v", err)
	}
}
