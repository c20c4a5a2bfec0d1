package ftp

import "time"

// Config holds FTP adapter configuration.
type Config struct {
	// Enabled turns the FTP adapter on
	Enabled bool `mapstructure:"enabled"`

	// Port is the control connection port (default 2121)
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`

	// BindAddress is the address to bind to (default 0.0.0.0)
	BindAddress string `mapstructure:"bind_address"`

	// PublicHost is the IP address advertised for passive connections.
	// Required when the gateway runs behind NAT.
	PublicHost string `mapstructure:"public_host"`

	// PassivePortStart and PassivePortEnd bound the passive data ports
	// (defaults 50000-50100)
	PassivePortStart int `mapstructure:"passive_port_start" validate:"gte=0,lte=65535"`
	PassivePortEnd   int `mapstructure:"passive_port_end" validate:"gte=0,lte=65535"`

	// Username and Password authenticate clients. Anonymous access is not
	// offered; the store behind the gateway is always credentialed.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// MaxConnections bounds concurrent client connections (0 = unlimited)
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}
