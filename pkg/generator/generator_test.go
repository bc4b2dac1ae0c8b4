package generator

import (
	"context"
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

func TestParseRampRate(t *testing.T) {
	cases := map[string]int{
		"5/s":     5,
		"0/s":     0,
		"":        0,
		"abc/s":   0,
		"-3/s":    0,
		"10":      10,
		"100/sec": 100,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseRampRate(in), "ramp %q", in)
	}
}

func newFakeServices(t *testing.T) *config.Config {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "t", "userId": "1"})
	})
	mux.HandleFunc("/api/users/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/posts", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{})
	})
	mux.HandleFunc("/api/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{})
	})
	mux.HandleFunc("/api/users/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"totalUsers": 0, "users": []string{}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.UserServiceURL = srv.URL
	cfg.ChatServiceURL = srv.URL
	cfg.PostsServiceURL = srv.URL
	cfg.ProfileServiceURL = srv.URL
	cfg.ServiceTimeout = 2 * time.Second
	return &cfg
}

func TestRunRejectsInvalidDuration(t *testing.T) {
	cfg := newFakeServices(t)
	tracker := cleanup.NewTracker(cfg.UserServiceURL, cfg.ChatServiceURL, cfg.PostsServiceURL)

	_, err := Run(context.Background(), cfg, 1, "not-a-duration", "1/s", tracker)
	assert.Error(t, err)
}

func TestRunCompletesAndTracksUsers(t *testing.T) {
	cfg := newFakeServices(t)
	tracker := cleanup.NewTracker(cfg.UserServiceURL, cfg.ChatServiceURL, cfg.PostsServiceURL)

	report, err := Run(context.Background(), cfg, 3, "1s", "0/s", tracker)
	require.NoError(t, err)
	assert.Equal(t, "completed", report.Status)
	assert.Equal(t, 3, report.Users)
	assert.Len(t, tracker.List(), 3)
}

func TestRunTracksUsersEvenWhenAuthFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/users/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/users/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/users/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"totalUsers": 0, "users": []string{}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.UserServiceURL = srv.URL
	cfg.ChatServiceURL = srv.URL
	cfg.PostsServiceURL = srv.URL
	cfg.ProfileServiceURL = srv.URL
	cfg.ServiceTimeout = 2 * time.Second

	tracker := cleanup.NewTracker(cfg.UserServiceURL, cfg.ChatServiceURL, cfg.PostsServiceURL)

	report, err := Run(context.Background(), &cfg, 2, "200ms", "0/s", tracker)
	require.NoError(t, err)
	assert.Equal(t, "completed", report.Status)
	// register succeeded for every slot even though the login retry that
	// follows it always fails; registration alone must be enough for the
	// tracker to know about the account so ReduceLoad can still reach it.
	assert.ElementsMatch(t, []string{"user_0", "user_1"}, tracker.List())
}

func TestRunStoppedWhenCallerCancels(t *testing.T) {
	cfg := newFakeServices(t)
	tracker := cleanup.NewTracker(cfg.UserServiceURL, cfg.ChatServiceURL, cfg.PostsServiceURL)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	report, err := Run(ctx, cfg, 5, "10s", "1/s", tracker)
	require.NoError(t, err)
	assert.Equal(t, "stopped", report.Status)
}
