// Package ledger talks to the ERP/accounting backend through its JSON-RPC
// endpoint. It owns session handling and the typed reads and writes the
// posting pipelines need.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/odyssey-erp/fieldsync/internal/shared"
)

const systemName = "ledger"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      int64  `json:"id"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type callParams struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

var rpcSeq atomic.Int64

func (e *rpcError) sessionExpired() bool {
	return e.Code == 100 || strings.Contains(e.Data.Name, "SessionExpired")
}

func (e *rpcError) remote() *shared.RemoteError {
	msg := e.Data.Message
	if msg == "" {
		msg = e.Message
	}
	return &shared.RemoteError{System: systemName, Message: msg}
}

// postRPC sends one JSON-RPC envelope and returns the raw HTTP response body
// together with the response for cookie inspection.
func postRPC(ctx context.Context, client *http.Client, url string, params any, cookie *http.Cookie) (rpcResponse, *http.Response, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: "call", ID: rpcSeq.Add(1), Params: params})
	if err != nil {
		return rpcResponse{}, nil, fmt.Errorf("ledger: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return rpcResponse{}, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := client.Do(req)
	if err != nil {
		return rpcResponse{}, nil, &shared.RemoteError{System: systemName, Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return rpcResponse{}, resp, &shared.RemoteError{System: systemName, Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return rpcResponse{}, resp, &shared.RemoteError{System: systemName, Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return rpcResponse{}, resp, &shared.RemoteError{System: systemName, Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return parsed, resp, nil
}
