// Package config reads the YAML description of a client.
//
// Durations use Go syntax ("10s", "1m30s"), protocol versions "1.0" to
// "1.3" and verify modes "none", "peer" or "peer_require_cert". Empty
// values keep the defaults of the client.
package config

// TLSSection configures the trust configuration of the client.
type TLSSection struct {
	// CAFiles are PEM or DER files whose certificates become trust anchors.
	CAFiles []string `yaml:"ca_files"`
	// DefaultPaths adds the platform trust store.
	DefaultPaths bool `yaml:"default_paths"`
	// Watch reloads CAFiles when they change on disk.
	Watch bool `yaml:"watch"`

	Cert       string `yaml:"cert"`
	Key        string `yaml:"key"`
	PKCS12     string `yaml:"pkcs12"`
	Passphrase string `yaml:"passphrase"`

	Ciphers    string `yaml:"ciphers"`
	Verify     string `yaml:"verify"`
	Depth      *int   `yaml:"depth"`
	MinVersion string `yaml:"min_version"`
	MaxVersion string `yaml:"max_version"`
}

type TimeoutSection struct {
	Connect string `yaml:"connect"`
	Send    string `yaml:"send"`
	Receive string `yaml:"receive"`
}

type PoolSection struct {
	MaxConnsPerKey  int    `yaml:"max_conns_per_key"`
	MaxIdlePerKey   int    `yaml:"max_idle_per_key"`
	MaxIdleDuration string `yaml:"max_idle_duration"`
	SweepInterval   string `yaml:"sweep_interval"`
	KeepAlive       *bool  `yaml:"keep_alive"`
	TCPKeepAlive    string `yaml:"tcp_keepalive"`
}

type ResolveSection struct {
	DNSServer   string            `yaml:"dns_server"`
	Network     string            `yaml:"network"`
	StaticHosts map[string]string `yaml:"static_hosts"`
}

type ProxySection struct {
	URL            string `yaml:"url"`
	ResolveLocally bool   `yaml:"resolve_locally"`
}

type LogSection struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// File is the root of a configuration file.
type File struct {
	Version int `yaml:"version,omitempty"`

	TLS      TLSSection     `yaml:"tls"`
	Timeouts TimeoutSection `yaml:"timeouts"`
	Pool     PoolSection    `yaml:"pool"`
	Resolve  ResolveSection `yaml:"resolve"`
	Proxy    ProxySection   `yaml:"proxy"`
	Log      LogSection     `yaml:"log"`
}
