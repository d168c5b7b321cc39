package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigboard/flagcore/pkg/eval"
	"github.com/gigboard/flagcore/pkg/model"
	"github.com/gigboard/flagcore/pkg/refresh"
	"github.com/gigboard/flagcore/pkg/store"
)

type stubRefresher struct {
	result refresh.Result
	calls  int
}

func (r *stubRefresher) Refresh(_ context.Context) refresh.Result {
	r.calls++
	return r.result
}

func newTestService(t *testing.T) (*HTTPService, *store.Store, *stubRefresher) {
	t.Helper()

	s := store.New()
	defs, dropped, err := model.ParseDefinitions([]byte(`{"flags":[
	  {"id": "community-tools", "type": "boolean", "enabled": true, "defaultValue": false},
	  {"id": "staging-only", "type": "environment", "enabled": true, "defaultValue": false, "targetEnvironments": ["staging"]}
	]}`))
	require.NoError(t, err)
	require.Empty(t, dropped)
	s.Swap(store.NewSnapshot(1, defs))

	refresher := &stubRefresher{}
	svc := &HTTPService{
		HTTPServiceConfiguration: &HTTPServiceConfiguration{Port: 0},
		Eval:                     eval.NewEvaluator(s),
		Refresher:                refresher,
		Store:                    s,
	}
	return svc, s, refresher
}

func TestResolve_KnownFlag(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/flags/community-tools/resolve", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result model.EvaluationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Decision)
	assert.Equal(t, model.RuleMatchedReason, result.Reason)
	assert.Equal(t, uint64(1), result.SnapshotVersion)
}

func TestResolve_ContextDrivesDecision(t *testing.T) {
	svc, _, _ := newTestService(t)

	body := `{"environment": "staging"}`
	req := httptest.NewRequest(http.MethodPost, "/flags/staging-only/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	var result model.EvaluationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Decision)

	body = `{"environment": "production"}`
	req = httptest.NewRequest(http.MethodPost, "/flags/staging-only/resolve", strings.NewReader(body))
	rec = httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.Decision)
}

func TestResolve_UnknownFlagIsFalseNotError(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/flags/no-such-flag/resolve", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result model.EvaluationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.Decision)
	assert.Equal(t, model.FlagNotFoundReason, result.Reason)
}

func TestResolve_MalformedBodyDegradesToEmptyContext(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodPost, "/flags/community-tools/resolve", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result model.EvaluationResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Decision)
}

func TestAllFlags(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/flags", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Version uint64                          `json:"version"`
		Flags   map[string]model.FlagDefinition `json:"flags"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, uint64(1), body.Version)
	assert.Len(t, body.Flags, 2)
	assert.Contains(t, body.Flags, "community-tools")
}

func TestRefresh_Success(t *testing.T) {
	svc, _, refresher := newTestService(t)
	refresher.result = refresh.Result{Success: true, Version: 2}

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, refresher.calls)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["version"])
}

func TestRefresh_FailureReportsErrorAndKeepsVersion(t *testing.T) {
	svc, _, refresher := newTestService(t)
	refresher.result = refresh.Result{Success: false, Version: 1, Err: errors.New("authority unreachable")}

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(1), body["version"])
	assert.Contains(t, body["error"], "unreachable")
}

func TestHealthz(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
