package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/fieldsync/internal/secrets"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// SessionCookie is the cookie carrying the ledger session token.
const SessionCookie = "session_id"

// Authenticator hands out a session token and drops it on demand.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Session lazily authenticates against the ledger and caches the token for
// ttl. A zero ttl keeps the token until Invalidate is called.
type Session struct {
	baseURL string
	secrets secrets.Provider
	http    *http.Client
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	token    string
	issuedAt time.Time
	group    singleflight.Group
}

// SessionConfig groups the session dependencies.
type SessionConfig struct {
	BaseURL    string
	Secrets    secrets.Provider
	HTTPClient *http.Client
	TTL        time.Duration
	Logger     *slog.Logger
}

// NewSession constructs a Session.
func NewSession(cfg SessionConfig) *Session {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Session{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secrets: cfg.Secrets,
		http:    client,
		ttl:     cfg.TTL,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// Token returns the cached token, authenticating when none is held.
func (s *Session) Token(ctx context.Context) (string, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}
	return s.Refresh(ctx)
}

// Refresh forces a new authenticate call. Concurrent callers share it.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	v, err, _ := s.group.Do("authenticate", func() (interface{}, error) {
		token, err := s.authenticate(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token = token
		s.issuedAt = s.now()
		s.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call re-authenticates.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.issuedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Session) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", false
	}
	if s.ttl > 0 && s.now().Sub(s.issuedAt) >= s.ttl {
		return "", false
	}
	return s.token, true
}

func (s *Session) authenticate(ctx context.Context) (string, error) {
	if s.secrets == nil {
		return "", errors.New("ledger: secrets provider not configured")
	}
	bundle, err := s.secrets.Bundle(ctx)
	if err != nil {
		return "", err
	}
	params := map[string]any{
		"db":       bundle.Ledger.Database,
		"login":    bundle.Ledger.Login,
		"password": bundle.Ledger.Password,
	}
	parsed, resp, err := postRPC(ctx, s.http, s.baseURL+"/web/session/authenticate", params, nil)
	if err != nil {
		return "", err
	}
	if parsed.Error != nil {
		return "", parsed.Error.remote()
	}
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie && c.Value != "" {
			s.log().Debug("ledger session established")
			return c.Value, nil
		}
	}
	return "", &shared.RemoteError{System: systemName, Status: resp.StatusCode, Message: "authenticate returned no session cookie"}
}

func (s *Session) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "ledger.session"))
	}
	return slog.Default().With(slog.String("component", "ledger.session"))
}
