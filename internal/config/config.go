package config

import "time"

// Config is the root configuration for a streaming client.
type Config struct {
	Endpoints     EndpointsConfig      `yaml:"endpoints"`
	Credentials   CredentialsConfig    `yaml:"credentials"`
	Connection    ConnectionConfig     `yaml:"connection"`
	Auth          AuthConfig           `yaml:"auth"`
	Book          BookConfig           `yaml:"book"`
	Events        EventsConfig         `yaml:"events"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// EndpointsConfig holds the WebSocket endpoints.
type EndpointsConfig struct {
	PublicURL  string `yaml:"public_url"`
	PrivateURL string `yaml:"private_url"`
}

// CredentialsConfig holds API credentials for private channels. All three
// fields empty means public-only operation.
type CredentialsConfig struct {
	APIKey     string `yaml:"api_key"`
	SecretKey  string `yaml:"secret_key"`
	Passphrase string `yaml:"passphrase"`
}

// Configured reports whether any credential field is set.
func (c CredentialsConfig) Configured() bool {
	return c.APIKey != "" || c.SecretKey != "" || c.Passphrase != ""
}

// ConnectionConfig holds per-connection transport settings.
type ConnectionConfig struct {
	DialTimeout        time.Duration `yaml:"dial_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	StableResetAfter   time.Duration `yaml:"stable_reset_after"`
	SendQueueSize      int           `yaml:"send_queue_size"`
	MessageBufferSize  int           `yaml:"message_buffer_size"`
}

// AuthConfig holds login handshake settings.
type AuthConfig struct {
	AckTimeout  time.Duration `yaml:"ack_timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// BookConfig holds Order Book Engine settings.
type BookConfig struct {
	MaxDepth       int `yaml:"max_depth"`
	ChecksumLevels int `yaml:"checksum_levels"`
}

// EventsConfig holds event stream settings.
type EventsConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// SubscriptionConfig is one channel subscription requested at startup.
type SubscriptionConfig struct {
	Channel  string `yaml:"channel"`
	InstID   string `yaml:"inst_id"`
	InstType string `yaml:"inst_type"`
}
