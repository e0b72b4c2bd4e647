package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// quitCommand is the exact line on the command input that stops the tracker.
const quitCommand = "q\n"

// acceptListener is the part of *net.TCPListener the accept loop needs.
type acceptListener interface {
	Accept() (net.Conn, error)
	SetDeadline(t time.Time) error
}

type Server struct {
	registry *Registry
	input    io.Reader // command input, os.Stdin outside tests
	cfg      config
	backoff  time.Duration
	refresh  time.Duration // torrents file poll interval
}

// NewServer creates and initializes a new server instance.
// Torrents listed in cfg.torrentsPath are registered up front; the tracker
// never registers torrents on demand.
func NewServer(cfg config) (*Server, error) {
	var hashes []HashID
	if cfg.torrentsPath != "" {
		var err error
		if hashes, err = loadTorrentsFile(cfg.torrentsPath); err != nil {
			return nil, err
		}
	}

	return &Server{
		cfg:      cfg,
		input:    os.Stdin,
		backoff:  acceptBackoff,
		refresh:  torrentsRefreshInterval,
		registry: NewRegistry(hashes, cfg.interval),
	}, nil
}

// Run starts the server and blocks until ctx is cancelled or the quit
// command is read, then waits for every accepted connection to be served.
func (s *Server) Run(ctx context.Context) error {
	info("Starting Pico Tracker: %s", version)
	if debugEnabled.Load() {
		debug("Debug mode is enabled")
	}

	n := len(s.registry.torrents)
	if n == 0 {
		warn("No torrents registered, every announce will be rejected. Set -torrents or PICO_TRACKER__TORRENTS")
	} else {
		info("Serving %d torrents", n)
	}

	ln, err := listenTCP(s.cfg.host, s.cfg.port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	info("HTTP Tracker listening on %s", ln.Addr())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.watchCommands(ctx, cancel)
	})
	if s.cfg.torrentsPath != "" {
		g.Go(func() error {
			return watchTorrentsFile(ctx, s.cfg.torrentsPath, s.registry, s.refresh)
		})
	}
	g.Go(func() error {
		//nolint:errcheck // Listener close errors are irrelevant at shutdown
		defer ln.Close()
		return s.serve(ctx, ln)
	})

	err = g.Wait()
	for _, st := range s.registry.Snapshot() {
		info("torrent %s: %d complete, %d incomplete, %d peers",
			st.InfoHash.String(), st.Complete, st.Incomplete, st.Peers)
	}
	if err != nil {
		return err
	}
	info("Shutdown complete")
	return nil
}

// serve is the accept loop. Accept waits at most one backoff interval; a
// timeout means nothing is pending, which is the only point where shutdown
// is checked. Other accept errors (EMFILE, aborted handshakes) are logged
// and retried after a backoff. Leaving the loop closes the pool, which
// drains queued connections before returning.
func (s *Server) serve(ctx context.Context, ln acceptListener) error {
	pool := NewPool(s.cfg.workers, s.cfg.workers*jobQueuePerWorker)
	defer pool.Close()

	for {
		if err := ln.SetDeadline(time.Now().Add(s.backoff)); err != nil {
			return fmt.Errorf("set accept deadline: %w", err)
		}

		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					info("Shutting down gracefully...")
					return nil
				}
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			errorLog("accept: %v", err)
			time.Sleep(s.backoff)
			continue
		}

		if debugEnabled.Load() {
			debug("connected to %s", conn.RemoteAddr())
		}
		job := func() {
			if err := s.handleConnection(conn); err != nil {
				errorLog("%v", err)
			}
		}
		if err := pool.Execute(job); err != nil {
			//nolint:errcheck // Connection is dropped unserved
			conn.Close()
			return err
		}
	}
}

// watchCommands reads lines from the command input and cancels the server
// when the quit command arrives. It returns when ctx is done or the input is
// exhausted; a blocked read is abandoned, not interrupted.
func (s *Server) watchCommands(ctx context.Context, cancel context.CancelFunc) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		r := bufio.NewReader(s.input)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	info("Waiting for input, type q to quit")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				debug("command input closed")
				return nil
			}
			if line == quitCommand {
				info("Executing quit command")
				cancel()
				return nil
			}
		}
	}
}

// listenTCP creates a TCP listener on host:port
func listenTCP(host string, port int) (*net.TCPListener, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return net.ListenTCP("tcp", addr)
}

// setupSignalHandling creates a context that cancels on SIGINT/SIGTERM
func setupSignalHandling() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
