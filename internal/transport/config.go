package transport

import (
	"fmt"
	"net/url"
	"time"
)

// Config controls a transport connection to the chat gateway.
type Config struct {
	// URL is the gateway base address, http(s) or ws(s) scheme.
	URL string
	// Token is the opaque bearer credential, carried as a query parameter
	// on connection establishment.
	Token string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration

	// ReconnectAttempts bounds automatic reconnection of an established
	// connection that dropped. The initial connection attempt is never
	// retried automatically.
	ReconnectAttempts int
	// ReconnectDelay is the fixed wait between reconnection attempts.
	ReconnectDelay time.Duration
}

func (c *Config) norm() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 5
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
}

// wsEndpoint converts the base address into the WebSocket endpoint with the
// credential attached.
func (c *Config) wsEndpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid gateway URL scheme %q", u.Scheme)
	}

	u.Path = "/ws"
	query := u.Query()
	query.Set("token", c.Token)
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// pollEndpoint builds one of the HTTP long-poll endpoints with credential
// and connection id attached.
func (c *Config) pollEndpoint(path, cid string) (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway URL: %w", err)
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid gateway URL scheme %q", u.Scheme)
	}

	u.Path = path
	query := u.Query()
	query.Set("token", c.Token)
	query.Set("cid", cid)
	u.RawQuery = query.Encode()

	return u.String(), nil
}
