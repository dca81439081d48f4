// Package mirror implements an HTTP server that stands in for a package
// mirror in client tests. It serves files under a static/ tree with byte
// range support and injects failures: missing files, corrupted content,
// files that appear only after a number of retries, and a file that grows
// between requests.
package mirror

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/mirrorctl/mockmirror/internal/growing"
)

const shutdownTimeout = 5 * time.Second

// Server is the mock mirror. Build it with NewServer.
type Server struct {
	cfg *Config

	store     *Storage
	counter   *FailureState
	injector  *FailureInjector
	ledger    *Ledger
	auth      *AuthGate
	generator *growing.Generator
	signer    *Signer
}

// NewServer checks cfg and builds a Server from it.
func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}

	store, err := NewStorage(cfg.Root)
	if err != nil {
		return nil, errors.Wrap(err, "root")
	}

	counter := NewFailureState(cfg.Failures.Threshold)
	s := &Server{
		cfg:      cfg,
		store:    store,
		counter:  counter,
		injector: NewFailureInjector(cfg.Failures, counter),
		ledger:   NewLedger(),
		auth:     NewAuthGate(cfg.Auth.Username, cfg.Auth.Password),
	}

	if cfg.Growing.Enabled() {
		s.generator, err = newGenerator(cfg, s.store.GrowingDir())
		if err != nil {
			return nil, errors.Wrap(err, "growing")
		}
	}

	if cfg.Signing.KeyPath != "" {
		s.signer, err = NewSignerFromFile(cfg.Signing.KeyPath)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func newGenerator(cfg *Config, dir string) (*growing.Generator, error) {
	gc := growing.Config{
		Dir:             dir,
		Name:            cfg.Growing.Output,
		RandomSeed:      cfg.Growing.RandomSeed,
		InitialExponent: cfg.Growing.InitialExponent,
	}

	if strings.EqualFold(cfg.Growing.Source, "random") {
		gc.Source = growing.SourceRandom
	} else {
		seed, err := readSeed(cfg.Growing.Content)
		if err != nil {
			return nil, err
		}
		gc.Seed = seed
	}

	if strings.EqualFold(cfg.Growing.Compressor, "zck") {
		gc.Compressor = growing.NewZckCompressor()
	}
	if strings.EqualFold(cfg.Growing.DeltaTool, "zck") {
		gc.Delta = growing.NewZckDelta()
	}

	return growing.New(gc)
}

// readSeed reads at most the largest growth size from p.
func readSeed(p string) ([]byte, error) {
	f, err := os.Open(p) // #nosec G304 - operator configured content path
	if err != nil {
		return nil, errors.Wrap(err, "content")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(growing.SizeFor(growing.MaxExponent, growing.MaxExponent))))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read content: %s", p)
	}
	return data, nil
}

// Config returns the configuration the server was built from.
func (s *Server) Config() *Config {
	return s.cfg
}

// Ledger returns the request ledger.
func (s *Server) Ledger() *Ledger {
	return s.ledger
}

// FailureState returns the shared lazy-retry counter.
func (s *Server) FailureState() *FailureState {
	return s.counter
}

// Generator returns the growing file generator, or nil.
func (s *Server) Generator() *growing.Generator {
	return s.generator
}

// Handler returns the http.Handler of the server with request logging.
func (s *Server) Handler() http.Handler {
	return logRequests(s)
}

// Listen opens the listener on the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", s.cfg.Addr())
	}
	return ln, nil
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// #nosec G112 - test double; clients under test control timing
	srv := &http.Server{Handler: s.Handler()}

	slog.Info("serving",
		"addr", ln.Addr().String(),
		"root", s.store.Dir(),
		"failure_mode", s.cfg.Failures.Mode.String(),
		"broken", s.cfg.Failures.Broken,
		"auth", s.auth.Enabled(),
		"growing", s.generator != nil,
		"signing", s.signer != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve")
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		slog.Info("server stopped")
		return nil
	})
	return g.Wait()
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
