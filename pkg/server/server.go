package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/adapter"
	"github.com/marmos91/hdftp/pkg/metrics"
	"github.com/marmos91/hdftp/pkg/storage"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("serve has already been called on this server instance")

// DefaultShutdownTimeout bounds the time adapters get to stop.
const DefaultShutdownTimeout = 30 * time.Second

// GatewayServer runs the protocol adapters that share one storage client
// and one account store. Serve owns both collaborators from then on: when
// it returns the store has been disposed and the client closed.
//
//	srv := server.New(client, store, server.Options{})
//	_ = srv.AddAdapter(ftp.New(ftpConfig, store, factory, ftpMetrics))
//	err := srv.Serve(ctx)
type GatewayServer struct {
	client  storage.Client
	store   *account.Store
	options Options

	mu       sync.RWMutex
	adapters []adapter.Adapter
	served   bool
}

// Options tunes a GatewayServer.
type Options struct {
	// ShutdownTimeout bounds the Stop() calls issued to adapters.
	// Default: 30s
	ShutdownTimeout time.Duration

	// MetricsServer, when set, is started alongside the adapters and
	// stopped with them.
	MetricsServer *metrics.Server
}

// New creates a stopped GatewayServer.
//
// Panics if client or store is nil.
func New(client storage.Client, store *account.Store, opts Options) *GatewayServer {
	if client == nil {
		panic("storage client cannot be nil")
	}
	if store == nil {
		panic("account store cannot be nil")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	return &GatewayServer{
		client:   client,
		store:    store,
		options:  opts,
		adapters: make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a. Protocols and ports must be unique. It panics on
// a nil adapter or once Serve has started.
func (s *GatewayServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// Returns:
//   - context.Canceled (or the context's error) after a requested shutdown
//   - the failing adapter's error, wrapped, when an adapter stops on its own
//   - ErrAlreadyServed on a second call
func (s *GatewayServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	defer s.release()

	logger.Info("Starting HDFTP gateway with %d adapter(s) on %s", len(adapters), s.client.URI())

	// The first failure cancels runCtx for every other runner
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := make(chan adapterError, len(adapters)+1)
	var wg sync.WaitGroup

	for _, a := range adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runAdapter(runCtx, a); err != nil {
				failures <- adapterError{protocol: a.Protocol(), err: err}
			}
		}()
	}

	if ms := s.options.MetricsServer; ms != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ms.Start(runCtx); err != nil && runCtx.Err() == nil {
				failures <- adapterError{protocol: "metrics", err: err}
			}
		}()
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case f := <-failures:
		logger.Error("%s failed, stopping the gateway: %v", f.protocol, f.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", f.protocol, f.err)
	}

	cancel()
	s.stopAllAdapters(adapters)

	wg.Wait()

	logger.Info("HDFTP gateway stopped")
	return shutdownErr
}

// runAdapter serves one adapter and reports a failure: an error while ctx
// is live, or a clean return nobody asked for.
func runAdapter(ctx context.Context, a adapter.Adapter) error {
	logger.Info("Starting %s adapter on port %d", a.Protocol(), a.Port())

	err := a.Serve(ctx)
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		logger.Info("%s adapter stopped", a.Protocol())
		return nil
	}
	if err == nil {
		err = errors.New("stopped unexpectedly")
	}
	return err
}

// release disposes the account store and closes the storage client.
func (s *GatewayServer) release() {
	s.store.Dispose()
	if err := s.client.Close(); err != nil {
		logger.Warn("Error closing storage client: %v", err)
	}
}

type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters stops adapters in reverse registration order, giving
// them ShutdownTimeout in total.
func (s *GatewayServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		if err := adapters[i].Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", adapters[i].Protocol(), err)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *GatewayServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
