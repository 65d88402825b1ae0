package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/vmwatchdog/internal/domain"
	"github.com/hamed0406/vmwatchdog/internal/metrics"
	"github.com/hamed0406/vmwatchdog/internal/watchdog"
)

type fakeOps struct {
	checked []string
}

func (f *fakeOps) Status() []domain.MachineStatus {
	return []domain.MachineStatus{
		{Machine: domain.Machine{Name: "db1", URL: "https://gw/db1", IP: "1.2.3.4"}, State: domain.NewMachineState()},
	}
}

func (f *fakeOps) CheckMachine(_ context.Context, name string) (domain.StatusLine, error) {
	if name != "db1" {
		return domain.StatusLine{}, &watchdog.ErrUnknownMachine{Name: name}
	}
	f.checked = append(f.checked, name)
	return domain.StatusLine{Name: name, OK: true, Message: "already running"}, nil
}

func (f *fakeOps) CheckAll(ctx context.Context) []domain.StatusLine {
	l, _ := f.CheckMachine(ctx, "db1")
	return []domain.StatusLine{l}
}

func setupRouter(t *testing.T, keys []string) (http.Handler, *fakeOps) {
	t.Helper()
	ops := &fakeOps{}
	srv := NewServer(zap.NewNop(), ops, metrics.New().Handler())
	// very high rate limits to avoid flakiness in tests
	return srv.Router(keys, 10_000, 10_000), ops
}

func do(h http.Handler, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthzAndMetricsAreOpen(t *testing.T) {
	h, _ := setupRouter(t, []string{"adm_test"})

	rr := do(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestListMachines(t *testing.T) {
	h, _ := setupRouter(t, []string{"adm_test"})

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/machines", "").Code)

	rr := do(h, http.MethodGet, "/api/machines", "adm_test")
	require.Equal(t, http.StatusOK, rr.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "db1", got[0]["name"])
	assert.Equal(t, "1.2.3.4", got[0]["ip"])
	state := got[0]["state"].(map[string]any)
	assert.Equal(t, true, state["last_known_up"])
}

func TestCheckMachine(t *testing.T) {
	h, ops := setupRouter(t, nil)

	rr := do(h, http.MethodPost, "/api/machines/db1/check", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "db1: ✅ already running", got["line"])
	assert.Equal(t, true, got["ok"])
	assert.Equal(t, []string{"db1"}, ops.checked)

	rr = do(h, http.MethodPost, "/api/machines/ghost/check", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(h, http.MethodGet, "/api/machines/db1/check", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestCheckAll(t *testing.T) {
	h, _ := setupRouter(t, []string{"adm_test"})

	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "/api/check", "wrong").Code)

	rr := do(h, http.MethodPost, "/api/check", "adm_test")
	require.Equal(t, http.StatusOK, rr.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "db1: ✅ already running", got[0]["line"])
}
