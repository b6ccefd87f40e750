// Package auth keeps external API credentials valid. A Supervisor
// checks token expiry ahead of use and refreshes through a
// provider-specific Refresher, persisting the result so restarts do not
// force reauthentication.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Token holds the credentials for one external service.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// ExpiresWithin reports whether the token expires inside the margin. A
// zero Expiry means the token never expires.
func (t Token) ExpiresWithin(margin time.Duration) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return !time.Now().Add(margin).Before(t.Expiry)
}

// FileCache persists tokens as JSON on disk, one file per service.
type FileCache struct {
	mu  sync.Mutex
	dir string
}

// NewFileCache builds a cache rooted at dir, creating it if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("auth: failed to create token directory: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

// Load reads the cached token for a service. A missing file yields a
// zero token and no error.
func (c *FileCache) Load(service string) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path(service))
	if os.IsNotExist(err) {
		return Token{}, nil
	}
	if err != nil {
		return Token{}, fmt.Errorf("auth: failed to read token for %s: %w", service, err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return Token{}, fmt.Errorf("auth: failed to parse token for %s: %w", service, err)
	}
	return token, nil
}

// Save writes the token for a service with owner-only permissions.
func (c *FileCache) Save(service string, token Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: failed to encode token for %s: %w", service, err)
	}
	if err := os.WriteFile(c.path(service), data, 0600); err != nil {
		return fmt.Errorf("auth: failed to write token for %s: %w", service, err)
	}
	return nil
}

func (c *FileCache) path(service string) string {
	return filepath.Join(c.dir, service+".json")
}
