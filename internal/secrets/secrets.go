// Package secrets supplies the credential bundle used by the remote clients.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/singleflight"
)

// FieldCredentials authenticate against the field system API.
type FieldCredentials struct {
	APIToken string `json:"api_token" envconfig:"FIELD_API_TOKEN"`
}

// LedgerCredentials authenticate a ledger session.
type LedgerCredentials struct {
	Database string `json:"database" envconfig:"LEDGER_DATABASE"`
	Login    string `json:"login" envconfig:"LEDGER_LOGIN"`
	Password string `json:"password" envconfig:"LEDGER_PASSWORD"`
}

// SMTPCredentials authenticate the notification relay.
type SMTPCredentials struct {
	Username string `json:"username" envconfig:"SMTP_USERNAME"`
	Password string `json:"password" envconfig:"SMTP_PASSWORD"`
}

// Bundle is the structured credential set returned by a Provider.
type Bundle struct {
	Field  FieldCredentials  `json:"field"`
	Ledger LedgerCredentials `json:"ledger"`
	SMTP   SMTPCredentials   `json:"smtp"`
}

// Validate reports missing mandatory credentials.
func (b Bundle) Validate() error {
	if b.Field.APIToken == "" {
		return errors.New("secrets: field api token missing")
	}
	if b.Ledger.Login == "" || b.Ledger.Password == "" {
		return errors.New("secrets: ledger login missing")
	}
	if b.Ledger.Database == "" {
		return errors.New("secrets: ledger database missing")
	}
	return nil
}

// Provider returns the current credential bundle.
type Provider interface {
	Bundle(ctx context.Context) (Bundle, error)
}

// EnvProvider reads credentials from environment variables.
type EnvProvider struct{}

// Bundle implements Provider.
func (EnvProvider) Bundle(ctx context.Context) (Bundle, error) {
	var b Bundle
	if err := envconfig.Process("", &b.Field); err != nil {
		return Bundle{}, fmt.Errorf("secrets: env field: %w", err)
	}
	if err := envconfig.Process("", &b.Ledger); err != nil {
		return Bundle{}, fmt.Errorf("secrets: env ledger: %w", err)
	}
	if err := envconfig.Process("", &b.SMTP); err != nil {
		return Bundle{}, fmt.Errorf("secrets: env smtp: %w", err)
	}
	return b, b.Validate()
}

// FileProvider reads a JSON bundle from disk, typically a mounted secret.
type FileProvider struct {
	Path string
}

// Bundle implements Provider.
func (p FileProvider) Bundle(ctx context.Context) (Bundle, error) {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return Bundle{}, fmt.Errorf("secrets: read %s: %w", p.Path, err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bundle{}, fmt.Errorf("secrets: decode %s: %w", p.Path, err)
	}
	return b, b.Validate()
}

// Cached memoises the first successful bundle of a Provider. A zero TTL keeps
// it for the lifetime of the process.
type Cached struct {
	source Provider
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	bundle    Bundle
	fetchedAt time.Time
	loaded    bool
	group     singleflight.Group
}

// NewCached wraps source.
func NewCached(source Provider, ttl time.Duration) *Cached {
	return &Cached{source: source, ttl: ttl, now: time.Now}
}

// Bundle implements Provider.
func (c *Cached) Bundle(ctx context.Context) (Bundle, error) {
	if b, ok := c.fresh(); ok {
		return b, nil
	}
	v, err, _ := c.group.Do("bundle", func() (interface{}, error) {
		if b, ok := c.fresh(); ok {
			return b, nil
		}
		b, err := c.source.Bundle(ctx)
		if err != nil {
			return Bundle{}, err
		}
		c.mu.Lock()
		c.bundle = b
		c.fetchedAt = c.now()
		c.loaded = true
		c.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return Bundle{}, err
	}
	return v.(Bundle), nil
}

func (c *Cached) fresh() (Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loaded && (c.ttl <= 0 || c.now().Sub(c.fetchedAt) < c.ttl) {
		return c.bundle, true
	}
	return Bundle{}, false
}

// Expiry reports when the cached bundle goes stale; zero means never.
func (c *Cached) Expiry() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded || c.ttl <= 0 {
		return time.Time{}
	}
	return c.fetchedAt.Add(c.ttl)
}
