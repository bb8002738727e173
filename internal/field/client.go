// Package field is the client for the maintenance-management system's
// paginated resource API.
package field

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/fieldsync/internal/secrets"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

const systemName = "field"

// maxPages guards against a server that keeps returning the same next link.
const maxPages = 10000

// Resource is one entry of a list or create response.
type Resource struct {
	ID         ID              `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

type listResponse struct {
	Data  []Resource `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

type createResponse struct {
	Data Resource `json:"data"`
}

// Client issues authenticated calls against the field system.
type Client struct {
	baseURL *url.URL
	secrets secrets.Provider
	http    *http.Client
	logger  *slog.Logger
}

// Config groups client dependencies.
type Config struct {
	BaseURL    string
	Secrets    secrets.Provider
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("field: parse base url: %w", err)
	}
	if cfg.Secrets == nil {
		return nil, errors.New("field: secrets provider required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: base, secrets: cfg.Secrets, http: httpClient, logger: cfg.Logger}, nil
}

// List fetches every page of resource matching filters, following links.next
// until it is absent.
func (c *Client) List(ctx context.Context, resource string, filters url.Values) ([]Resource, error) {
	params := url.Values{}
	for k, v := range filters {
		params[k] = v
	}
	params.Set("page", "1")
	next := c.resolve(resource)
	next.RawQuery = params.Encode()

	var all []Resource
	for page := 0; next != nil; page++ {
		if page >= maxPages {
			return nil, &shared.RemoteError{System: systemName, Message: fmt.Sprintf("%s: pagination did not terminate", resource)}
		}
		var parsed listResponse
		if err := c.do(ctx, http.MethodGet, next.String(), nil, &parsed); err != nil {
			return nil, fmt.Errorf("field: list %s: %w", resource, err)
		}
		all = append(all, parsed.Data...)
		next = nil
		if parsed.Links.Next != "" {
			ref, err := url.Parse(parsed.Links.Next)
			if err != nil {
				return nil, fmt.Errorf("field: list %s: bad next link: %w", resource, err)
			}
			next = c.baseURL.ResolveReference(ref)
		}
	}
	c.log().Debug("list complete", slog.String("resource", resource), slog.Int("rows", len(all)))
	return all, nil
}

// Create posts payload to resource and returns the created entry.
func (c *Client) Create(ctx context.Context, resource string, payload any) (Resource, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Resource{}, fmt.Errorf("field: encode %s: %w", resource, err)
	}
	var parsed createResponse
	if err := c.do(ctx, http.MethodPost, c.resolve(resource).String(), body, &parsed); err != nil {
		return Resource{}, fmt.Errorf("field: create %s: %w", resource, err)
	}
	if parsed.Data.ID == "" {
		return Resource{}, fmt.Errorf("field: create %s: %w", resource, &shared.RemoteError{System: systemName, Message: "no id returned"})
	}
	return parsed.Data, nil
}

func (c *Client) resolve(resource string) *url.URL {
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimLeft(resource, "/")})
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	bundle, err := c.secrets.Bundle(ctx)
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bundle.Field.APIToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &shared.RemoteError{System: systemName, Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &shared.RemoteError{System: systemName, Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &shared.RemoteError{System: systemName, Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &shared.RemoteError{System: systemName, Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

func (c *Client) log() *slog.Logger {
	if c != nil && c.logger != nil {
		return c.logger.With(slog.String("component", "field.client"))
	}
	return slog.Default().With(slog.String("component", "field.client"))
}
