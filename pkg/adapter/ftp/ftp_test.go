package ftp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/marmos91/hdftp/pkg/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceIP(t *testing.T) {
	assert.Equal(t, "10.1.2.3", sourceIP(&net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 4021}))
	assert.Equal(t, "::1", sourceIP(&net.TCPAddr{IP: net.ParseIP("::1"), Port: 21}))
	assert.Equal(t, "", sourceIP(nil))
}

func TestSessionRegistry(t *testing.T) {
	r := newSessionRegistry()
	closed := 0

	acc := account.New("alice", "/home/alice")
	acc.SetAuthorities([]account.Authority{account.NewConcurrentLoginAuthority(1, 0)})

	// Unknown connections are never admitted
	assert.False(t, r.admit(7, acc))

	r.connect(1, "10.0.0.1", nopCloser{closed: &closed})
	r.connect(2, "10.0.0.2", nopCloser{closed: &closed})
	assert.Equal(t, 2, r.count())

	assert.True(t, r.admit(1, acc))
	assert.False(t, r.admit(2, acc))
	assert.Equal(t, 1, r.loginCount("alice"))

	r.logout(1)
	assert.Zero(t, r.loginCount("alice"))
	assert.True(t, r.admit(2, acc))

	r.closeAll()
	assert.Equal(t, 2, closed)

	assert.NotNil(t, r.disconnect(2))
	assert.Nil(t, r.disconnect(2))
	assert.Zero(t, r.loginCount("alice"))
	assert.Equal(t, 1, r.count())
}

func TestNewPanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() {
		New(FTPConfig{TLS: TLSConfig{Mode: TLSModeImplicit}}, nil, nil, nil)
	})
}

func TestAdapterIdentity(t *testing.T) {
	a := New(FTPConfig{Port: 2221}, nil, nil, nil)
	assert.Equal(t, "FTP", a.Protocol())
	assert.Equal(t, 2221, a.Port())
	assert.Nil(t, a.Addr())
	assert.Zero(t, a.ActiveSessions())
}

func TestStopBeforeServe(t *testing.T) {
	a := New(FTPConfig{}, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx))

	// A stopped adapter never binds its port
	assert.NoError(t, a.Serve(context.Background()))
	assert.Nil(t, a.Addr())
}

func TestStopForceClosesSessions(t *testing.T) {
	a := New(FTPConfig{}, nil, nil, nil)
	closed := 0
	a.sessions.connect(1, "10.0.0.1", nopCloser{closed: &closed})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Stop(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, closed)
}
