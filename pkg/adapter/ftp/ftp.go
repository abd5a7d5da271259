// Package ftp binds the FTP protocol to the gateway.
//
// The protocol engine (command parsing, passive/active data channels, TLS)
// is github.com/fclairamb/ftpserverlib. This package supplies its main
// driver, which authenticates logins against an account.Store and enforces
// the account's ConcurrentLogin policy, and a per-session afero.Fs that
// maps file commands onto a vfs.View with the account's TransferRate
// policy applied to data streams.
package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/metrics"
	"github.com/marmos91/hdftp/pkg/vfs"
)

// FTPAdapter implements the adapter.Adapter interface for FTP and FTPS.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new sessions)
//  3. Session contexts cancelled (in-flight transfers abort)
//  4. Wait for open sessions to end (up to ShutdownTimeout)
//  5. Force-close remaining control connections after timeout
type FTPAdapter struct {
	config  FTPConfig
	store   *account.Store
	factory *vfs.Factory
	metrics metrics.FTPMetrics

	sessions *sessionRegistry

	mu       sync.Mutex
	listener net.Listener

	// shutdownCtx is the parent context of every storage call made by a
	// session; cancelled during shutdown
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New creates a stopped FTPAdapter serving accounts from store through
// views built by factory.
//
// Parameters:
//   - config: Listener, passive range, TLS and timeouts
//   - store: Account store used to authenticate logins
//   - factory: Builds one vfs.View per logged-in session
//   - ftpMetrics: Optional metrics collector (nil for no metrics)
//
// Panics if config validation fails.
func New(config FTPConfig, store *account.Store, factory *vfs.Factory, ftpMetrics metrics.FTPMetrics) *FTPAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid FTP config: %v", err))
	}

	if ftpMetrics == nil {
		ftpMetrics = metrics.NewNoopFTPMetrics()
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &FTPAdapter{
		config:         config,
		store:          store,
		factory:        factory,
		metrics:        ftpMetrics,
		sessions:       newSessionRegistry(),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
		shutdown:       make(chan struct{}),
	}
}

// Serve listens on the configured address and runs the protocol engine
// until ctx is cancelled or Stop is called.
func (s *FTPAdapter) Serve(ctx context.Context) error {
	select {
	case <-s.shutdown:
		return nil
	default:
	}

	tlsConfig, err := loadTLSConfig(s.config.TLS)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.config.address())
	if err != nil {
		return fmt.Errorf("failed to create FTP listener on %s: %w", s.config.address(), err)
	}
	if s.config.TLS.Mode == TLSModeImplicit {
		listener = tls.NewListener(listener, tlsConfig)
	}

	s.mu.Lock()
	select {
	case <-s.shutdown:
		s.mu.Unlock()
		_ = listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.mu.Unlock()

	logger.Info("FTP server listening on %s (tls=%s)", listener.Addr(), s.config.TLS.Mode)
	logger.Debug("FTP config: passive_ports=%q public_host=%q idle_timeout=%v active_mode=%t",
		s.config.PassivePorts, s.config.PublicHost, s.config.IdleTimeout, !s.config.DisableActiveMode)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("FTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	driver := &mainDriver{
		ctx:       s.shutdownCtx,
		config:    &s.config,
		listener:  listener,
		tlsConfig: tlsConfig,
		store:     s.store,
		factory:   s.factory,
		sessions:  s.sessions,
		metrics:   s.metrics,
	}
	server := ftpserver.NewFtpServer(driver)
	server.Logger = logger.Slog().With("protocol", "ftp")

	serveErr := server.ListenAndServe()

	select {
	case <-s.shutdown:
		return s.gracefulShutdown()
	default:
	}

	// The engine stopped on its own
	s.initiateShutdown()
	_ = s.gracefulShutdown()
	if serveErr == nil {
		serveErr = errors.New("FTP server stopped unexpectedly")
	}
	return fmt.Errorf("FTP server failed: %w", serveErr)
}

// initiateShutdown closes the listener and cancels session contexts.
// Safe to call multiple times.
func (s *FTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("FTP shutdown initiated")
		close(s.shutdown)

		s.mu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing FTP listener: %v", err)
			}
		}
		s.mu.Unlock()

		s.cancelRequests()
	})
}

// gracefulShutdown waits up to ShutdownTimeout for sessions to end, then
// closes the remaining control connections.
func (s *FTPAdapter) gracefulShutdown() error {
	active := s.sessions.count()
	if active == 0 {
		logger.Info("FTP server stopped")
		return nil
	}
	logger.Info("FTP graceful shutdown: waiting for %d session(s) (timeout: %v)", active, s.config.ShutdownTimeout)

	deadline := time.NewTimer(s.config.ShutdownTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if s.sessions.count() == 0 {
				logger.Info("FTP server stopped gracefully")
				return nil
			}
		case <-deadline.C:
			remaining := s.sessions.count()
			logger.Warn("FTP shutdown timeout exceeded: closing %d session(s)", remaining)
			s.sessions.closeAll()
			return fmt.Errorf("FTP shutdown timeout: %d session(s) force-closed", remaining)
		}
	}
}

// Stop initiates shutdown and waits for sessions to end or ctx to expire.
func (s *FTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for s.sessions.count() > 0 {
		select {
		case <-ctx.Done():
			s.sessions.closeAll()
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}

// Protocol returns "FTP".
func (s *FTPAdapter) Protocol() string {
	return "FTP"
}

// Port returns the configured control port.
func (s *FTPAdapter) Port() int {
	return s.config.Port
}

// Addr returns the bound listener address, or nil before Serve.
func (s *FTPAdapter) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveSessions returns the number of open control connections.
func (s *FTPAdapter) ActiveSessions() int {
	return s.sessions.count()
}

// loadTLSConfig loads the configured certificate, or returns nil when
// none is configured.
func loadTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if !cfg.enabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load FTP TLS certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
