package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that required fields are set and values are sane.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Endpoints.PublicURL, "ws://") && !strings.HasPrefix(c.Endpoints.PublicURL, "wss://") {
		return fmt.Errorf("endpoints.public_url must be a ws:// or wss:// URL, got %q", c.Endpoints.PublicURL)
	}

	if c.Credentials.Configured() {
		if c.Credentials.APIKey == "" {
			return errors.New("credentials.api_key is required when credentials are set")
		}
		if c.Credentials.SecretKey == "" {
			return errors.New("credentials.secret_key is required when credentials are set")
		}
		if c.Credentials.Passphrase == "" {
			return errors.New("credentials.passphrase is required when credentials are set")
		}
		if !strings.HasPrefix(c.Endpoints.PrivateURL, "ws://") && !strings.HasPrefix(c.Endpoints.PrivateURL, "wss://") {
			return fmt.Errorf("endpoints.private_url must be a ws:// or wss:// URL, got %q", c.Endpoints.PrivateURL)
		}
	}

	if c.Connection.PongTimeout < 1 {
		return errors.New("connection.pong_timeout must be positive")
	}
	if c.Connection.ReconnectBaseDelay > c.Connection.ReconnectMaxDelay {
		return fmt.Errorf("connection.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Connection.ReconnectBaseDelay, c.Connection.ReconnectMaxDelay)
	}

	if c.Auth.MaxAttempts < 1 {
		return errors.New("auth.max_attempts must be >= 1")
	}

	if c.Book.ChecksumLevels < 1 {
		return errors.New("book.checksum_levels must be >= 1")
	}
	if c.Book.MaxDepth > 0 && c.Book.MaxDepth < c.Book.ChecksumLevels {
		return fmt.Errorf("book.max_depth (%d) cannot be below book.checksum_levels (%d)",
			c.Book.MaxDepth, c.Book.ChecksumLevels)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	for i, sub := range c.Subscriptions {
		if sub.Channel == "" {
			return fmt.Errorf("subscriptions[%d].channel is required", i)
		}
	}

	return nil
}
