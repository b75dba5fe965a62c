package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPublicURL  = "wss://ws.okx.com:8443/ws/v5/public"
	DefaultPrivateURL = "wss://ws.okx.com:8443/ws/v5/private"

	DefaultDialTimeout        = 10 * time.Second
	DefaultPingInterval       = 15 * time.Second
	DefaultPongTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultStableResetAfter   = 30 * time.Second
	DefaultSendQueueSize      = 256
	DefaultMessageBufferSize  = 16384

	DefaultLoginAckTimeout   = 5 * time.Second
	DefaultLoginMaxAttempts  = 3
	DefaultBookMaxDepth      = 400
	DefaultChecksumLevels    = 25
	DefaultEventBufferSize   = 8192
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

func (c *Config) applyDefaults() {
	if c.Endpoints.PublicURL == "" {
		c.Endpoints.PublicURL = DefaultPublicURL
	}
	if c.Endpoints.PrivateURL == "" {
		c.Endpoints.PrivateURL = DefaultPrivateURL
	}

	if c.Connection.DialTimeout == 0 {
		c.Connection.DialTimeout = DefaultDialTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PongTimeout == 0 {
		c.Connection.PongTimeout = DefaultPongTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.StableResetAfter == 0 {
		c.Connection.StableResetAfter = DefaultStableResetAfter
	}
	if c.Connection.SendQueueSize == 0 {
		c.Connection.SendQueueSize = DefaultSendQueueSize
	}
	if c.Connection.MessageBufferSize == 0 {
		c.Connection.MessageBufferSize = DefaultMessageBufferSize
	}

	if c.Auth.AckTimeout == 0 {
		c.Auth.AckTimeout = DefaultLoginAckTimeout
	}
	if c.Auth.MaxAttempts == 0 {
		c.Auth.MaxAttempts = DefaultLoginMaxAttempts
	}

	if c.Book.MaxDepth == 0 {
		c.Book.MaxDepth = DefaultBookMaxDepth
	}
	if c.Book.ChecksumLevels == 0 {
		c.Book.ChecksumLevels = DefaultChecksumLevels
	}

	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = DefaultEventBufferSize
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
