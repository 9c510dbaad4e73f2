package googleauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// TokenCache keeps the refresh token between runs.
type TokenCache struct {
	path string
}

type cachedToken struct {
	RefreshToken string `json:"refresh_token"`
}

// NewTokenCache returns a cache stored at path. An empty path disables it.
func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

// Load returns the cached token, or nil when there is none.
func (c *TokenCache) Load() (*oauth2.Token, error) {
	if c.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token cache: %w", err)
	}
	var ct cachedToken
	if err := json.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("parse token cache: %w", err)
	}
	if ct.RefreshToken == "" {
		return nil, nil
	}
	return &oauth2.Token{RefreshToken: ct.RefreshToken}, nil
}

// Save stores tok's refresh token. Tokens without one are ignored.
func (c *TokenCache) Save(tok *oauth2.Token) error {
	if c.path == "" || tok == nil || tok.RefreshToken == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.Marshal(cachedToken{RefreshToken: tok.RefreshToken})
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}

// Clear removes the cached token.
func (c *TokenCache) Clear() error {
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token cache: %w", err)
	}
	return nil
}
