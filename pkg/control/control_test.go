package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/loadgen/pkg/cleanup"
	"github.com/cuemby/loadgen/pkg/config"
)

func newTestController(t *testing.T) (*Controller, *httptest.Server) {
	t.Helper()

	backend := httptest.NewServeMux()
	backend.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "t", "userId": "1"})
	})
	backend.HandleFunc("/api/users/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"totalUsers": 42, "users": []string{}})
	})
	backend.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	metricsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("loadgen_active_users 3\nloadgen_websocket_connections 2\nloadgen_requests_total{service=\"user\",method=\"login\",status=\"200\"} 7\n"))
	}))
	t.Cleanup(metricsSrv.Close)

	cfg := config.Defaults()
	cfg.UserServiceURL = backendSrv.URL
	cfg.ChatServiceURL = backendSrv.URL
	cfg.PostsServiceURL = backendSrv.URL
	cfg.ProfileServiceURL = backendSrv.URL

	tracker := cleanup.NewTracker(cfg.UserServiceURL, cfg.ChatServiceURL, cfg.PostsServiceURL)
	c := New(&cfg, tracker, metricsSrv.URL)
	return c, backendSrv
}

func TestHandleStatusWhenNoRunIsCurrent(t *testing.T) {
	c, _ := newTestController(t)
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "stopped", body["status"])
}

func TestHandleStartRejectsInvalidJSON(t *testing.T) {
	c, _ := newTestController(t)
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/start", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStartThenStatusShowsRunning(t *testing.T) {
	c, _ := newTestController(t)
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	body, _ := json.Marshal(map[string]interface{}{"users": 2, "duration": "2s", "ramp": "0/s"})
	resp, err := http.Post(srv.URL+"/api/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	statusResp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer statusResp.Body.Close()

	var run run
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&run))
	assert.Equal(t, "running", run.Status)
}

func TestHandleStartWithInvalidDurationRecordsError(t *testing.T) {
	c, _ := newTestController(t)

	body, _ := json.Marshal(map[string]interface{}{"users": 1, "duration": "not-a-duration", "ramp": "0/s"})
	req := httptest.NewRequest(http.MethodPost, "/api/start", bytes.NewReader(body))
	w := httptest.NewRecorder()
	c.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	c.mu.RLock()
	defer c.mu.RUnlock()
	require.NotNil(t, c.current)
	assert.Equal(t, "error", c.current.Status)
}

func TestHandleOverviewReflectsDownstream(t *testing.T) {
	c, _ := newTestController(t)
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/overview")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(42), body["total_users"])
}

func TestHandleReportsReturnsAtMostFiveNewestLast(t *testing.T) {
	c, _ := newTestController(t)
	for i := 0; i < 7; i++ {
		c.appendReport(Report{Status: "completed", EndTime: time.Now()})
	}

	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/reports")
	require.NoError(t, err)
	defer resp.Body.Close()

	var reports []Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reports))
	require.Len(t, reports, 5)
	assert.Equal(t, 7, reports[len(reports)-1].ID)
}

func TestHandleDeleteUserRejectsWrongPrefix(t *testing.T) {
	c, _ := newTestController(t)
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"username": "bob"})
	resp, err := http.Post(srv.URL+"/api/delete-user", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, false, parsed["deleted"])
	assert.Equal(t, float64(400), parsed["status"])
}

func TestHandleMetricsProxyPassesThroughText(t *testing.T) {
	c, _ := newTestController(t)
	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
