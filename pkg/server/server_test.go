package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/storage/memory"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter serves until its context ends, or fails with failWith.
type fakeAdapter struct {
	protocol string
	port     int
	failWith error
	stopped  atomic.Int32
	served   atomic.Int32
}

func (a *fakeAdapter) Serve(ctx context.Context) error {
	a.served.Add(1)
	if a.failWith != nil {
		return a.failWith
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *fakeAdapter) Stop(context.Context) error {
	a.stopped.Add(1)
	return nil
}

func (a *fakeAdapter) Protocol() string { return a.protocol }
func (a *fakeAdapter) Port() int        { return a.port }

func newTestServer(t *testing.T) (*GatewayServer, *account.Store, *memory.Client) {
	t.Helper()
	store, err := account.Open(account.Config{
		Fs:              afero.NewMemMapFs(),
		File:            "/etc/hdftp/users.properties",
		CreateIfMissing: true,
	})
	require.NoError(t, err)
	client := memory.New(memory.Options{})
	return New(client, store, Options{ShutdownTimeout: time.Second}), store, client
}

func TestAddAdapterConflicts(t *testing.T) {
	srv, _, _ := newTestServer(t)

	require.NoError(t, srv.AddAdapter(&fakeAdapter{protocol: "FTP", port: 21}))
	assert.Error(t, srv.AddAdapter(&fakeAdapter{protocol: "FTP", port: 2121}))
	assert.Error(t, srv.AddAdapter(&fakeAdapter{protocol: "FTPS", port: 21}))
	require.NoError(t, srv.AddAdapter(&fakeAdapter{protocol: "FTPS", port: 990}))
	assert.Len(t, srv.Adapters(), 2)
}

func TestServeWithoutAdapters(t *testing.T) {
	srv, _, _ := newTestServer(t)
	assert.Error(t, srv.Serve(context.Background()))
}

func TestServeCancelled(t *testing.T) {
	srv, store, client := newTestServer(t)
	a := &fakeAdapter{protocol: "FTP", port: 21}
	require.NoError(t, srv.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool { return a.served.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	assert.Equal(t, int32(1), a.stopped.Load())

	// Shared resources are released
	_, err := store.Names()
	assert.ErrorIs(t, err, account.ErrStoreDisposed)
	_, err = client.Exists(context.Background(), "/")
	assert.Error(t, err)

	assert.ErrorIs(t, srv.Serve(context.Background()), ErrAlreadyServed)
	assert.Panics(t, func() { _ = srv.AddAdapter(&fakeAdapter{protocol: "X", port: 1}) })
}

func TestServeAdapterFailureStopsOthers(t *testing.T) {
	srv, _, _ := newTestServer(t)
	healthy := &fakeAdapter{protocol: "FTP", port: 21}
	broken := &fakeAdapter{protocol: "FTPS", port: 990, failWith: errors.New("bind: address in use")}
	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(broken))

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FTPS adapter error")
	assert.Contains(t, err.Error(), "address in use")
	assert.Equal(t, int32(1), healthy.stopped.Load())
	assert.Equal(t, int32(1), broken.stopped.Load())
}

func TestNewPanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil, Options{}) })
	srv, _, _ := newTestServer(t)
	assert.Equal(t, DefaultShutdownTimeout, New(memory.New(memory.Options{}), srv.store, Options{}).options.ShutdownTimeout)
}
