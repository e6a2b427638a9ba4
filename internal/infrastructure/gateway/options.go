package gateway

import (
	"net/http"
	"time"
)

type Option func(*Client)

func Timeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

func HTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Breaker configures the circuit breaker: it opens after failures
// consecutive retryable failures and lets a trial request through after openTimeout.
func Breaker(failures uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		c.breakerFailures = failures
		c.breakerTimeout = openTimeout
	}
}
