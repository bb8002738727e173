package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// DefaultPageSize bounds search_read pages.
const DefaultPageSize = 200

// Gateway issues authenticated model calls against the ledger.
type Gateway struct {
	baseURL  string
	session  Authenticator
	http     *http.Client
	pageSize int
	logger   *slog.Logger
}

// GatewayConfig groups gateway dependencies.
type GatewayConfig struct {
	BaseURL    string
	Session    Authenticator
	HTTPClient *http.Client
	PageSize   int
	Logger     *slog.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	size := cfg.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Gateway{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		session:  cfg.Session,
		http:     client,
		pageSize: size,
		logger:   cfg.Logger,
	}
}

// Call invokes method on model and decodes the result into out when non-nil.
func (g *Gateway) Call(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	if g == nil || g.session == nil {
		return errors.New("ledger: gateway not configured")
	}
	token, err := g.session.Token(ctx)
	if err != nil {
		return fmt.Errorf("ledger: session: %w", err)
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	params := callParams{Model: model, Method: method, Args: args, Kwargs: kwargs}
	parsed, resp, err := postRPC(ctx, g.http, g.baseURL+"/web/dataset/call_kw/"+model+"/"+method, params, &http.Cookie{Name: SessionCookie, Value: token})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			g.session.Invalidate()
		}
		return fmt.Errorf("ledger: %s.%s: %w", model, method, err)
	}
	if parsed.Error != nil {
		if parsed.Error.sessionExpired() {
			g.session.Invalidate()
		}
		return fmt.Errorf("ledger: %s.%s: %w", model, method, parsed.Error.remote())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(parsed.Result, out); err != nil {
		return fmt.Errorf("ledger: %s.%s: decode result: %w", model, method, &shared.RemoteError{System: systemName, Message: err.Error()})
	}
	return nil
}

// SearchReadAll pages through search_read until a short page is returned.
func SearchReadAll[T any](ctx context.Context, g *Gateway, model string, domain []any, fields []string) ([]T, error) {
	if domain == nil {
		domain = []any{}
	}
	var all []T
	offset := 0
	for {
		var page []T
		kwargs := map[string]any{
			"domain": domain,
			"fields": fields,
			"limit":  g.pageSize,
			"offset": offset,
			"order":  "id asc",
		}
		if err := g.Call(ctx, model, "search_read", nil, kwargs, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < g.pageSize {
			break
		}
		offset += len(page)
	}
	g.log().Debug("search_read complete", slog.String("model", model), slog.Int("rows", len(all)))
	return all, nil
}

func (g *Gateway) log() *slog.Logger {
	if g != nil && g.logger != nil {
		return g.logger.With(slog.String("component", "ledger.gateway"))
	}
	return slog.Default().With(slog.String("component", "ledger.gateway"))
}
