package ftp

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"fmt"
	"sync"

	ftpserver "github.com/fclairamb/ftpserverlib"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/bridge"
)

// driver implements ftpserver.MainDriver: server settings, client
// lifecycle, and authentication. Each authenticated client receives an
// afero filesystem backed by the shared bridge.
type driver struct {
	ctx    context.Context
	cfg    Config
	bridge *bridge.Bridge

	mu      sync.Mutex
	clients map[uint32]struct{}
}

func (d *driver) GetSettings() (*ftpserver.Settings, error) {
	return &ftpserver.Settings{
		ListenAddr: fmt.Sprintf("%s:%d", d.cfg.BindAddress, d.cfg.Port),
		PublicHost: d.cfg.PublicHost,
		PassiveTransferPortRange: &ftpserver.PortRange{
			Start: d.cfg.PassivePortStart,
			End:   d.cfg.PassivePortEnd,
		},
	}, nil
}

func (d *driver) ClientConnected(cc ftpserver.ClientContext) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cfg.MaxConnections > 0 && len(d.clients) >= d.cfg.MaxConnections {
		return "", fmt.Errorf("too many connections (limit %d)", d.cfg.MaxConnections)
	}
	if d.clients == nil {
		d.clients = make(map[uint32]struct{})
	}
	d.clients[cc.ID()] = struct{}{}

	logger.Debug("ftp: client %d connected from %s", cc.ID(), cc.RemoteAddr())
	return "drivebridge", nil
}

func (d *driver) ClientDisconnected(cc ftpserver.ClientContext) {
	d.mu.Lock()
	delete(d.clients, cc.ID())
	d.mu.Unlock()

	logger.Debug("ftp: client %d disconnected", cc.ID())
}

func (d *driver) AuthUser(cc ftpserver.ClientContext, user, pass string) (ftpserver.ClientDriver, error) {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(d.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(d.cfg.Password)) == 1
	if !userOK || !passOK {
		return nil, fmt.Errorf("authentication failed for %q", user)
	}

	logger.Info("FTP session from %s (user %s)", cc.RemoteAddr(), user)
	return newBridgeFs(d.ctx, d.bridge), nil
}

func (d *driver) GetTLSConfig() (*tls.Config, error) {
	return nil, fmt.Errorf("TLS is not configured")
}
