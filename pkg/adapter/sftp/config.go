package sftp

import "time"

// Config holds SFTP adapter configuration.
type Config struct {
	// Enabled turns the SFTP adapter on
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on (default 2022)
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`

	// BindAddress is the address to bind to (default 0.0.0.0)
	BindAddress string `mapstructure:"bind_address"`

	// HostKeyFile is the path to the server's private host key in PEM
	// format. If empty an ephemeral key is generated at startup, which
	// makes clients re-verify the host identity on every restart.
	HostKeyFile string `mapstructure:"host_key_file"`

	// Username and Password enable password authentication for a single
	// account when both are set.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// AuthorizedKeysFile enables public key authentication against the
	// listed keys (openssh authorized_keys format).
	AuthorizedKeysFile string `mapstructure:"authorized_keys_file"`

	// MaxConnections bounds concurrent client connections (0 = unlimited)
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}
