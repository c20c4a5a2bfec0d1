// Package sftp exposes the bridge over the SFTP protocol.
//
// The adapter runs a minimal SSH server (golang.org/x/crypto/ssh) that only
// accepts the "sftp" subsystem; each session is served by an sftp request
// server whose handlers translate protocol requests into bridge operations.
package sftp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/marmos91/drivebridge/internal/logger"
	"github.com/marmos91/drivebridge/pkg/adapter"
	"github.com/marmos91/drivebridge/pkg/bridge"
)

// compile-time interface check
var _ adapter.Adapter = (*SFTPAdapter)(nil)

// SFTPAdapter serves the bridge over SFTP.
type SFTPAdapter struct {
	cfg    Config
	bridge *bridge.Bridge

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool

	wg sync.WaitGroup
}

// NewSFTPAdapter creates an SFTP adapter with the given configuration.
func NewSFTPAdapter(cfg Config) *SFTPAdapter {
	return &SFTPAdapter{
		cfg:   cfg,
		conns: make(map[net.Conn]struct{}),
	}
}

// SetBridge injects the shared filesystem bridge.
func (a *SFTPAdapter) SetBridge(b *bridge.Bridge) {
	a.bridge = b
}

// Protocol returns the protocol name.
func (a *SFTPAdapter) Protocol() string {
	return "SFTP"
}

// Port returns the configured listen port.
func (a *SFTPAdapter) Port() int {
	return a.cfg.Port
}

// Serve starts the SSH listener and blocks until the context is cancelled
// or an unrecoverable error occurs.
func (a *SFTPAdapter) Serve(ctx context.Context) error {
	if a.bridge == nil {
		return fmt.Errorf("sftp adapter: bridge not set")
	}

	sshCfg, err := a.buildSSHConfig()
	if err != nil {
		return fmt.Errorf("sftp adapter: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.BindAddress, a.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("sftp adapter: listen on %s: %w", addr, err)
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	a.listener = listener
	a.mu.Unlock()

	logger.Info("SFTP adapter listening on %s", addr)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || a.isStopped() {
				a.wg.Wait()
				return nil
			}
			return fmt.Errorf("sftp adapter: accept: %w", err)
		}

		if a.cfg.MaxConnections > 0 && a.connCount() >= a.cfg.MaxConnections {
			logger.Warn("sftp: rejecting %s, connection limit %d reached",
				conn.RemoteAddr(), a.cfg.MaxConnections)
			_ = conn.Close()
			continue
		}

		a.trackConn(conn, true)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer a.trackConn(conn, false)
			a.handleConn(conn, sshCfg)
		}()
	}
}

// Stop initiates graceful shutdown: stop accepting, wait for active
// sessions up to the context deadline, then close remaining connections.
func (a *SFTPAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = true
	if a.listener != nil {
		_ = a.listener.Close()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.mu.Lock()
		for conn := range a.conns {
			_ = conn.Close()
		}
		a.mu.Unlock()
		<-done
		return fmt.Errorf("sftp adapter: shutdown timed out, connections closed forcefully")
	}
}

func (a *SFTPAdapter) connCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.conns)
}

func (a *SFTPAdapter) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func (a *SFTPAdapter) trackConn(conn net.Conn, add bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if add {
		a.conns[conn] = struct{}{}
	} else {
		delete(a.conns, conn)
	}
}

// handleConn performs the SSH handshake and serves sftp subsystem sessions.
func (a *SFTPAdapter) handleConn(conn net.Conn, sshCfg *ssh.ServerConfig) {
	defer func() { _ = conn.Close() }()

	serverConn, chans, reqs, err := ssh.NewServerConn(conn, sshCfg)
	if err != nil {
		logger.Debug("sftp: handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	defer func() { _ = serverConn.Close() }()

	logger.Info("SFTP session from %s (user %s)", conn.RemoteAddr(), serverConn.User())
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			logger.Warn("sftp: accept channel: %v", err)
			continue
		}

		go a.handleSession(channel, requests)
	}
}

// handleSession waits for the sftp subsystem request and runs the request
// server on the channel.
func (a *SFTPAdapter) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer func() { _ = channel.Close() }()

	for req := range requests {
		if req.Type == "subsystem" && len(req.Payload) >= 4 && string(req.Payload[4:]) == "sftp" {
			_ = req.Reply(true, nil)

			server := sftp.NewRequestServer(channel, newHandlers(a.bridge))
			if err := server.Serve(); err != nil && !errors.Is(err, io.EOF) {
				logger.Debug("sftp: session ended: %v", err)
			}
			_ = server.Close()
			return
		}
		_ = req.Reply(false, nil)
	}
}

// buildSSHConfig assembles authentication and the host key.
func (a *SFTPAdapter) buildSSHConfig() (*ssh.ServerConfig, error) {
	cfg := &ssh.ServerConfig{}

	if a.cfg.Username != "" {
		user, pass := a.cfg.Username, a.cfg.Password
		cfg.PasswordCallback = func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			userOK := subtle.ConstantTimeCompare([]byte(meta.User()), []byte(user)) == 1
			passOK := subtle.ConstantTimeCompare(password, []byte(pass)) == 1
			if userOK && passOK {
				return nil, nil
			}
			return nil, fmt.Errorf("authentication failed for %q", meta.User())
		}
	}

	if a.cfg.AuthorizedKeysFile != "" {
		authorized, err := loadAuthorizedKeys(a.cfg.AuthorizedKeysFile)
		if err != nil {
			return nil, err
		}
		cfg.PublicKeyCallback = func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if authorized[string(key.Marshal())] {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", meta.User())
		}
	}

	signer, err := a.hostKey()
	if err != nil {
		return nil, err
	}
	cfg.AddHostKey(signer)

	return cfg, nil
}

// hostKey loads the configured host key, or generates an ephemeral one.
func (a *SFTPAdapter) hostKey() (ssh.Signer, error) {
	if a.cfg.HostKeyFile != "" {
		pem, err := os.ReadFile(a.cfg.HostKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read host key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse host key: %w", err)
		}
		return signer, nil
	}

	logger.Warn("no SFTP host key configured, generating an ephemeral key")
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("build host key signer: %w", err)
	}
	return signer, nil
}

// loadAuthorizedKeys parses an openssh authorized_keys file into a lookup
// set keyed by the wire encoding of each key.
func loadAuthorizedKeys(path string) (map[string]bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}

	keys := make(map[string]bool)
	for len(data) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			// Tolerate blank/comment lines at the end of the file.
			if strings.TrimSpace(string(data)) == "" {
				break
			}
			return nil, fmt.Errorf("parse authorized keys: %w", err)
		}
		keys[string(key.Marshal())] = true
		data = rest
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("authorized keys file %s contains no keys", path)
	}
	return keys, nil
}
