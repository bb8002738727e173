package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fieldsync/internal/secrets"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

type staticSecrets struct{}

func (staticSecrets) Bundle(ctx context.Context) (secrets.Bundle, error) {
	return secrets.Bundle{
		Field:  secrets.FieldCredentials{APIToken: "f"},
		Ledger: secrets.LedgerCredentials{Database: "erp", Login: "bot", Password: "pw"},
	}, nil
}

type recordedCall struct {
	Model  string
	Method string
	Args   []any
	Kwargs map[string]any
	Cookie string
}

type fakeLedger struct {
	t        *testing.T
	mu       sync.Mutex
	auths    int
	calls    []recordedCall
	tokens   []string
	handlers map[string]func(call recordedCall) (any, *rpcError)
}

func newFakeLedger(t *testing.T) (*fakeLedger, *httptest.Server) {
	f := &fakeLedger{t: t, handlers: map[string]func(recordedCall) (any, *rpcError){}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeLedger) on(model, method string, fn func(call recordedCall) (any, *rpcError)) {
	f.handlers[model+"."+method] = fn
}

func (f *fakeLedger) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Params json.RawMessage `json:"params"`
	}
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/web/session/authenticate" {
		f.mu.Lock()
		f.auths++
		token := "tok-" + strings.Repeat("x", f.auths)
		f.tokens = append(f.tokens, token)
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: token})
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"uid":7}}`))
		return
	}
	var params callParams
	require.NoError(f.t, json.Unmarshal(req.Params, &params))
	call := recordedCall{Model: params.Model, Method: params.Method, Args: params.Args, Kwargs: params.Kwargs}
	if c, err := r.Cookie(SessionCookie); err == nil {
		call.Cookie = c.Value
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler := f.handlers[params.Model+"."+params.Method]
	f.mu.Unlock()
	if handler == nil {
		http.Error(w, "no handler", http.StatusNotFound)
		return
	}
	result, rpcErr := handler(call)
	resp := map[string]any{"jsonrpc": "2.0", "id": 1}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeLedger) callsFor(model, method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Model == model && c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func newTestGateway(srv *httptest.Server, pageSize int) (*Gateway, *Session) {
	session := NewSession(SessionConfig{BaseURL: srv.URL, Secrets: staticSecrets{}, HTTPClient: srv.Client()})
	gw := NewGateway(GatewayConfig{BaseURL: srv.URL, Session: session, HTTPClient: srv.Client(), PageSize: pageSize})
	return gw, session
}

func TestSessionIsReusedUntilInvalidated(t *testing.T) {
	fake, srv := newFakeLedger(t)
	fake.on("account.account", "search_read", func(call recordedCall) (any, *rpcError) {
		return []map[string]any{{"id": 11, "code": "6100", "name": "Maintenance"}}, nil
	})
	gw, session := newTestGateway(srv, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := gw.AccountIDByCode(ctx, "6100")
		require.NoError(t, err)
		require.EqualValues(t, 11, id)
	}
	require.Equal(t, 1, fake.auths)

	session.Invalidate()
	_, err := gw.AccountIDByCode(ctx, "6100")
	require.NoError(t, err)
	require.Equal(t, 2, fake.auths)

	calls := fake.callsFor("account.account", "search_read")
	require.Len(t, calls, 4)
	require.Equal(t, fake.tokens[1], calls[3].Cookie)
}

func TestSessionExpiredInvalidatesToken(t *testing.T) {
	fake, srv := newFakeLedger(t)
	expired := true
	fake.on("product.product", "search_read", func(call recordedCall) (any, *rpcError) {
		if expired {
			expired = false
			e := &rpcError{Code: 100, Message: "Odoo Session Expired"}
			e.Data.Name = "odoo.http.SessionExpiredException"
			return nil, e
		}
		return []map[string]any{}, nil
	})
	gw, _ := newTestGateway(srv, 10)

	_, err := gw.Products(context.Background())
	require.ErrorIs(t, err, shared.ErrRemoteCall)
	require.Equal(t, 1, fake.auths)

	_, err = gw.Products(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, fake.auths)
}

func TestSearchReadAllPaginates(t *testing.T) {
	fake, srv := newFakeLedger(t)
	rows := []map[string]any{}
	for i := 1; i <= 5; i++ {
		rows = append(rows, map[string]any{
			"id":           i,
			"product_id":   []any{100 + i, "Widget [WID-00" + string(rune('0'+i)) + "]"},
			"location_id":  []any{8, "WH/Stock"},
			"warehouse_id": []any{1, "WH"},
			"quantity":     float64(i),
		})
	}
	fake.on("stock.quant", "search_read", func(call recordedCall) (any, *rpcError) {
		offset := int(call.Kwargs["offset"].(float64))
		limit := int(call.Kwargs["limit"].(float64))
		end := offset + limit
		if end > len(rows) {
			end = len(rows)
		}
		return rows[offset:end], nil
	})
	gw, _ := newTestGateway(srv, 2)

	snapshot, err := gw.StockSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot, 5)
	require.Len(t, fake.callsFor("stock.quant", "search_read"), 3)
	require.Equal(t, "WID-003", snapshot[2].ProductReferenceCode)
	require.EqualValues(t, 103, snapshot[2].ProductID)
	require.EqualValues(t, 8, snapshot[2].LocationID)
	require.True(t, snapshot[4].QuantityOnHand.Equal(decimal.NewFromInt(5)))
}

func TestNon2xxIsRemoteCallError(t *testing.T) {
	_, srv := newFakeLedger(t)
	gw, _ := newTestGateway(srv, 2)
	err := gw.PostJournal(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrRemoteCall)

	var remote *shared.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, http.StatusNotFound, remote.Status)
}

func TestStockMovesAndJournalTotalFilters(t *testing.T) {
	fake, srv := newFakeLedger(t)
	fake.on("stock.move", "search_read", func(call recordedCall) (any, *rpcError) {
		return []map[string]any{{
			"id": 501, "product_id": []any{7, "Bearing [BR-1]"}, "product_uom_qty": 2,
			"location_id": []any{8, "WH/Stock"}, "location_dest_id": []any{99, "Scrap"}, "origin": "WO-1",
		}}, nil
	})
	fake.on("account.move", "search_read", func(call recordedCall) (any, *rpcError) {
		return []map[string]any{{"id": 900, "amount_total": 42.5, "state": "posted"}}, nil
	})
	gw, _ := newTestGateway(srv, 10)
	ctx := context.Background()

	moves, err := gw.StockMoves(ctx, "WO-1", []int64{501})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	require.EqualValues(t, 8, moves[0].Location.ID)
	domain := fake.callsFor("stock.move", "search_read")[0].Kwargs["domain"].([]any)
	require.Equal(t, []any{"origin", "=", "WO-1"}, domain[0])
	require.Equal(t, []any{"id", "in", []any{float64(501)}}, domain[1])

	total, err := gw.JournalTotal(ctx, []int64{900})
	require.NoError(t, err)
	require.Equal(t, "42.5", total.String())
	jdomain := fake.callsFor("account.move", "search_read")[0].Kwargs["domain"].([]any)
	require.Equal(t, []any{"id", "in", []any{float64(900)}}, jdomain[0])

	none, err := gw.StockMoves(ctx, "WO-1", nil)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestCreateAndPostJournal(t *testing.T) {
	fake, srv := newFakeLedger(t)
	fake.on("account.move", "create", func(call recordedCall) (any, *rpcError) {
		return 900, nil
	})
	fake.on("account.move", "action_post", func(call recordedCall) (any, *rpcError) {
		return true, nil
	})
	gw, _ := newTestGateway(srv, 10)
	ctx := context.Background()

	id, err := gw.CreateJournal(ctx, JournalInput{Ref: "WO-1", JournalID: 3, Lines: []JournalLineInput{
		{AccountID: 1, Name: "m", Debit: decimal.RequireFromString("10.005")},
		{AccountID: 2, Name: "m", Credit: decimal.RequireFromString("10.005")},
	}})
	require.NoError(t, err)
	require.EqualValues(t, 900, id)
	require.NoError(t, gw.PostJournal(ctx, id))

	create := fake.callsFor("account.move", "create")[0]
	vals := create.Args[0].(map[string]any)
	require.Equal(t, "entry", vals["move_type"])
	lines := vals["line_ids"].([]any)
	require.Len(t, lines, 2)
	post := fake.callsFor("account.move", "action_post")[0]
	require.Equal(t, []any{[]any{float64(900)}}, post.Args)
}

func TestJournalLineCarriesOnlyPostedFields(t *testing.T) {
	vals := JournalInput{Ref: "FAIL/10", Lines: []JournalLineInput{
		{AccountID: 61, Name: "m", Debit: decimal.RequireFromString("20")},
	}}.values()
	_, hasJournal := vals["journal_id"]
	require.False(t, hasJournal)

	line := vals["line_ids"].([]any)[0].([]any)[2].(map[string]any)
	require.Len(t, line, 4)
	require.Equal(t, int64(61), line["account_id"])
	require.InDelta(t, 20, line["debit"], 0.001)
	require.InDelta(t, 0, line["credit"], 0.001)
}

func TestMany2OneDecoding(t *testing.T) {
	var m Many2One
	require.NoError(t, json.Unmarshal([]byte(`[5,"WH/Stock"]`), &m))
	require.Equal(t, Many2One{ID: 5, Name: "WH/Stock"}, m)
	require.NoError(t, json.Unmarshal([]byte(`false`), &m))
	require.Equal(t, Many2One{}, m)

	var txt Text
	require.NoError(t, json.Unmarshal([]byte(`false`), &txt))
	require.Equal(t, Text(""), txt)
}
