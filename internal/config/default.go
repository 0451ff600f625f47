// Package config defines the GridMesh communication configuration.
package config

import "time"

// Default configuration values.
const (
	DefaultControllerPort    = 6817
	DefaultControllerTimeout = 10 * time.Second

	DefaultMsgTimeout = 10 * time.Second
	DefaultTreeWidth  = 16

	DefaultRelayAddr    = "0.0.0.0:6818"
	DefaultMaxConns     = 1024
	DefaultAuthBackend  = "hmac"
	DefaultAuthKeyFile  = "/etc/gridmesh/cluster.key"
	DefaultAuthTTL      = 5 * time.Minute
	DefaultGossipPort   = 6819
	DefaultMetricsAddr  = "127.0.0.1:6820"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Controller: ControllerSection{
			Port:      DefaultControllerPort,
			PortCount: 1,
			Timeout:   DefaultControllerTimeout,
		},
		Comm: CommSection{
			MsgTimeout: DefaultMsgTimeout,
			TreeWidth:  DefaultTreeWidth,
		},
		Auth: AuthSection{
			Backend: DefaultAuthBackend,
			KeyFile: DefaultAuthKeyFile,
			TTL:     DefaultAuthTTL,
		},
		Relay: RelaySection{
			Addr:     DefaultRelayAddr,
			MaxConns: DefaultMaxConns,
		},
		Gossip: GossipSection{
			BindAddr: "0.0.0.0",
			BindPort: DefaultGossipPort,
		},
		Metrics: MetricsSection{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
