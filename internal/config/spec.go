// Package config defines the GridMesh communication configuration.
package config

import "time"

// Config is the root configuration shared by the relay daemon and the
// client tools.
type Config struct {
	Controller ControllerSection `koanf:"controller"`
	Comm       CommSection       `koanf:"comm"`
	Auth       AuthSection       `koanf:"auth"`
	Relay      RelaySection      `koanf:"relay"`
	Gossip     GossipSection     `koanf:"gossip"`
	Metrics    MetricsSection    `koanf:"metrics"`
	Log        LogSection        `koanf:"log"`
}

// ControllerSection configures how controllers are located.
type ControllerSection struct {
	// Addrs lists controller hosts in priority order, primary first.
	Addrs []string `koanf:"addrs"`

	// VIP is an optional virtual address tried before the ordered
	// list. Empty disables it.
	VIP string `koanf:"vip"`

	// Port is the base controller port.
	Port int `koanf:"port"`

	// PortCount spreads controller traffic over [Port, Port+PortCount).
	// The slot is chosen pseudo-randomly once per process.
	PortCount int `koanf:"port_count"`

	// Timeout bounds one controller round trip. The standby retry
	// window is 1.5x this value.
	Timeout time.Duration `koanf:"timeout"`
}

// CommSection configures general message exchange.
type CommSection struct {
	// MsgTimeout is the default timeout for a message round trip when
	// the caller passes none.
	MsgTimeout time.Duration `koanf:"msg_timeout"`

	// TreeWidth bounds per-hop fan-out in the forwarding tree.
	TreeWidth int `koanf:"tree_width"`

	// BindAddress pins outbound and listening sockets to a specific
	// local interface instead of the any-interface address. Empty
	// means no pinning.
	BindAddress string `koanf:"bind_address"`

	// PortRangeMin and PortRangeMax bound the source-port scan used
	// when an explicit range bind is requested. Zero values mean the
	// built-in fallback range.
	PortRangeMin int `koanf:"port_range_min"`
	PortRangeMax int `koanf:"port_range_max"`
}

// AuthSection configures message authentication.
type AuthSection struct {
	// Backend names the credential backend (hmac, null).
	Backend string `koanf:"backend"`

	// KeyFile holds the shared cluster key. Loaded once per process.
	KeyFile string `koanf:"key_file"`

	// Key is an inline shared key, mainly for tests and development.
	// Takes precedence over KeyFile when set.
	Key string `koanf:"key"`

	// GlobalKeyFile holds the cross-cluster key honored for messages
	// carrying the global-auth flag. Empty disables cross-cluster
	// trust. Loaded once per process.
	GlobalKeyFile string `koanf:"global_key_file"`

	// TTL bounds credential validity.
	TTL time.Duration `koanf:"ttl"`
}

// RelaySection configures the relay daemon's inbound side.
type RelaySection struct {
	// Addr is the listen address. A zero port falls back to the
	// ephemeral scan range.
	Addr string `koanf:"addr"`

	// MaxConns caps concurrently served connections.
	MaxConns int `koanf:"max_conns"`

	// RateLimit throttles accepted connections per second. Zero
	// disables throttling.
	RateLimit float64 `koanf:"rate_limit"`

	// RateBurst is the accept burst allowance when throttling.
	RateBurst int `koanf:"rate_burst"`
}

// GossipSection configures peer discovery.
type GossipSection struct {
	// NodeName identifies this node to its peers. Defaults to the
	// hostname.
	NodeName string `koanf:"node_name"`

	// BindAddr and BindPort are the gossip bind endpoint.
	BindAddr string `koanf:"bind_addr"`
	BindPort int    `koanf:"bind_port"`

	// Seeds are existing cluster members to join through.
	Seeds []string `koanf:"seeds"`
}

// MetricsSection configures the metrics endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
