// Package auth implements private-session authentication: request signing
// and the WebSocket login handshake.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rkarchen/okx-stream/internal/wire"
)

// LoginPath is the canonical request path signed for WebSocket logins.
const LoginPath = "/users/self/verify"

// Signer produces an authentication signature over a canonical request
// string. Satisfied by Credentials; REST transports consume the same
// interface.
type Signer interface {
	Sign(timestamp, method, path, body string) string
}

// Credentials holds one API key set for a private session.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// Validate checks that all credential fields are present.
func (c *Credentials) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret key is required")
	}
	if c.Passphrase == "" {
		return fmt.Errorf("passphrase is required")
	}
	return nil
}

// Sign computes the base64 HMAC-SHA256 signature over
// timestamp + method + path + body.
func (c *Credentials) Sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.SecretKey))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// LoginFrame builds the login control frame for the given wall-clock time.
// The signature covers the epoch-second timestamp, the GET verb, and the
// login path.
func (c *Credentials) LoginFrame(now time.Time) ([]byte, error) {
	ts := strconv.FormatInt(now.UTC().Unix(), 10)

	req := wire.LoginRequest{
		Op: wire.OpLogin,
		Args: []wire.LoginArg{{
			APIKey:     c.APIKey,
			Passphrase: c.Passphrase,
			Timestamp:  ts,
			Sign:       c.Sign(ts, "GET", LoginPath, ""),
		}},
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal login frame: %w", err)
	}
	return data, nil
}
