package client

import (
	"context"
	"sync"
)

// tokenCredentials attaches the gateway session token to every RPC.
type tokenCredentials struct {
	requireTLS bool

	mu    sync.RWMutex
	token string
}

func (c *tokenCredentials) set(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *tokenCredentials) get() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// GetRequestMetadata implements credentials.PerRPCCredentials.
func (c *tokenCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	token := c.get()
	if token == "" {
		return nil, nil
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

// RequireTransportSecurity implements credentials.PerRPCCredentials.
func (c *tokenCredentials) RequireTransportSecurity() bool {
	return c.requireTLS
}
