package ftp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"

	ftpserver "github.com/fclairamb/ftpserverlib"
	"github.com/marmos91/hdftp/internal/logger"
	"github.com/marmos91/hdftp/pkg/account"
	"github.com/marmos91/hdftp/pkg/metrics"
	"github.com/marmos91/hdftp/pkg/vfs"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errTooManyLogins      = errors.New("too many concurrent sessions for this account")
	errTLSNotConfigured   = errors.New("tls not configured")
)

var transferRateRequest = account.Request{Kind: account.TransferRateRequest}

// mainDriver connects protocol engine callbacks to the account store and
// the virtual filesystem.
type mainDriver struct {
	ctx       context.Context
	config    *FTPConfig
	listener  net.Listener
	tlsConfig *tls.Config
	store     *account.Store
	factory   *vfs.Factory
	sessions  *sessionRegistry
	metrics   metrics.FTPMetrics
}

// GetSettings returns server settings for the protocol engine.
func (d *mainDriver) GetSettings() (*ftpserver.Settings, error) {
	s := &ftpserver.Settings{
		Listener:               d.listener,
		ListenAddr:             d.config.address(),
		Banner:                 d.config.Banner,
		PublicHost:             d.config.PublicHost,
		IdleTimeout:            int(d.config.IdleTimeout.Seconds()),
		ConnectionTimeout:      int(d.config.ConnectionTimeout.Seconds()),
		DisableActiveMode:      d.config.DisableActiveMode,
		TLSRequired:            d.config.tlsRequirement(),
		ActiveConnectionsCheck: ftpserver.IPMatchRequired,
		PasvConnectionsCheck:   ftpserver.IPMatchRequired,
	}

	ports, err := ParsePortRange(d.config.PassivePorts)
	if err != nil {
		return nil, err
	}
	if ports != nil {
		s.PassiveTransferPortRange = ports
	}
	return s, nil
}

// ClientConnected registers the control connection and returns the banner.
func (d *mainDriver) ClientConnected(cc ftpserver.ClientContext) (string, error) {
	d.sessions.connect(cc.ID(), sourceIP(cc.RemoteAddr()), cc)
	d.metrics.RecordSessionOpened()
	logger.Info("FTP session opened: id=%d remote=%s", cc.ID(), cc.RemoteAddr())
	return d.config.Banner, nil
}

// ClientDisconnected releases the session's login slot and view.
func (d *mainDriver) ClientDisconnected(cc ftpserver.ClientContext) {
	d.disconnect(cc.ID())
	logger.Info("FTP session closed: id=%d remote=%s", cc.ID(), cc.RemoteAddr())
}

func (d *mainDriver) disconnect(id uint32) {
	s := d.sessions.disconnect(id)
	if s == nil {
		return
	}
	if s.driver != nil {
		s.driver.view.Dispose()
	}
	d.metrics.RecordSessionClosed()
}

// AuthUser authenticates a login and returns the session filesystem.
// Any error is reported to the client as 530.
func (d *mainDriver) AuthUser(cc ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	driver, err := d.login(cc.ID(), user, pass)
	if err != nil {
		return nil, err
	}
	cc.SetPath("/")
	return driver, nil
}

// login runs the authentication, ConcurrentLogin and view provisioning steps
// of a login for connection id.
func (d *mainDriver) login(id uint32, user, pass string) (*clientDriver, error) {
	// A second USER/PASS on the same connection replaces the first login
	if old := d.sessions.logout(id); old != nil {
		old.view.Dispose()
	}

	creds := account.Credentials{Username: user, Password: pass}
	if user == account.AnonymousName {
		creds = account.Credentials{Anonymous: true}
	}

	acc, err := d.store.Authenticate(creds)
	if err != nil {
		d.metrics.RecordLogin(metrics.LoginFailed)
		logger.Info("FTP login failed: id=%d user=%s: %v", id, user, err)
		return nil, errInvalidCredentials
	}

	if !d.sessions.admit(id, acc) {
		d.metrics.RecordLogin(metrics.LoginRejected)
		logger.Warn("FTP login rejected: id=%d user=%s: %v", id, acc.Name(), errTooManyLogins)
		return nil, errTooManyLogins
	}

	view, err := d.factory.CreateView(d.ctx, acc)
	if err != nil {
		d.sessions.logout(id)
		d.metrics.RecordLogin(metrics.LoginFailed)
		logger.Error("FTP login failed: id=%d user=%s: %v", id, acc.Name(), err)
		return nil, fmt.Errorf("home directory unavailable: %w", err)
	}

	driver := newClientDriver(d.ctx, view, d.metrics)
	d.sessions.attach(id, driver)
	d.metrics.RecordLogin(metrics.LoginSuccess)
	logger.Info("FTP login: id=%d user=%s home=%s", id, acc.Name(), acc.HomeDirectory())
	return driver, nil
}

// GetTLSConfig returns the certificate for FTPS. The same *tls.Config serves
// control and data connections so clients can resume TLS sessions.
func (d *mainDriver) GetTLSConfig() (*tls.Config, error) {
	if d.tlsConfig == nil {
		return nil, errTLSNotConfigured
	}
	return d.tlsConfig, nil
}

var _ ftpserver.MainDriver = (*mainDriver)(nil)
