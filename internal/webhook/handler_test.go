package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/pipeline"
)

type recordingRunner struct {
	triggers []pipeline.Trigger
	resp     pipeline.Response
}

func (r *recordingRunner) Run(ctx context.Context, trig pipeline.Trigger) pipeline.Response {
	r.triggers = append(r.triggers, trig)
	return r.resp
}

type syncRunner struct {
	calls int
}

func (s *syncRunner) Run(ctx context.Context) pipeline.Response {
	s.calls++
	return pipeline.OK("synced")
}

func newRouter(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(cfg).MountRoutes(r)
	return r
}

func post(h http.Handler, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMaterialEventRunsPipeline(t *testing.T) {
	materials := &recordingRunner{resp: pipeline.OK("1 items processed")}
	h := newRouter(t, Config{Materials: materials})

	rr := post(h, "/webhooks/material-requests", `{"data":{"id":10,"type":"failures"}}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"statusCode":200,"body":{"message":"1 items processed"}}`, rr.Body.String())
	require.Equal(t, []pipeline.Trigger{{OrderID: "10", OrderType: field.RelatedFailure}}, materials.triggers)
}

func TestPipelineFailureKeepsResponseShape(t *testing.T) {
	labour := &recordingRunner{resp: pipeline.Response{StatusCode: 500, Body: pipeline.Body{Message: "boom"}}}
	h := newRouter(t, Config{Labour: labour})

	rr := post(h, "/webhooks/work-orders", `{"data":{"id":"7","type":"SCHEDULE_WORK"}}`, "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), `"boom"`)
	require.Equal(t, field.RelatedSchedule, labour.triggers[0].OrderType)
}

func TestInvalidEventIsRejected(t *testing.T) {
	materials := &recordingRunner{}
	h := newRouter(t, Config{Materials: materials})

	cases := []string{
		`{"data":{"type":"FAILURE"}}`,
		`{"data":{"id":"1","type":"ORDER"}}`,
		`not json`,
	}
	for _, body := range cases {
		rr := post(h, "/webhooks/material-requests", body, "")
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	require.Empty(t, materials.triggers)
}

func TestTokenIsChecked(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	materials := &recordingRunner{resp: pipeline.OK("ok")}
	h := newRouter(t, Config{Materials: materials, TokenHash: string(hash)})

	body := `{"data":{"id":"1","type":"FAILURE"}}`
	require.Equal(t, http.StatusUnauthorized, post(h, "/webhooks/material-requests", body, "").Code)
	require.Equal(t, http.StatusUnauthorized, post(h, "/webhooks/material-requests", body, "wrong").Code)
	require.Equal(t, http.StatusOK, post(h, "/webhooks/material-requests", body, "s3cret").Code)
	require.Len(t, materials.triggers, 1)
}

func TestManualRun(t *testing.T) {
	materials := &recordingRunner{resp: pipeline.OK("nothing to do")}
	drift := &syncRunner{}
	h := newRouter(t, Config{Materials: materials, Drift: drift})

	require.Equal(t, http.StatusOK, post(h, "/pipelines/materials/run", "", "").Code)
	require.True(t, materials.triggers[0].Poll())
	require.Equal(t, http.StatusOK, post(h, "/pipelines/drift/run", "", "").Code)
	require.Equal(t, 1, drift.calls)
	require.Equal(t, http.StatusNotFound, post(h, "/pipelines/catalog/run", "", "").Code)
}
