package control

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/cuemby/loadgen/pkg/cleanup"
	"github.com/cuemby/loadgen/pkg/config"
)

// run is the control plane's view of the current or most recent test run.
// RunID is a UUID independent of the monotonically increasing report id,
// so a run can be grepped out of logs before it has a report at all.
type run struct {
	RunID     string    `json:"run_id"`
	Users     int       `json:"users"`
	Duration  string    `json:"duration"`
	Ramp      string    `json:"ramp"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	cancel    context.CancelFunc
	reported  bool
}

// Report is an immutable record of a completed run, frozen into the
// reports history.
type Report struct {
	ID        int       `json:"id"`
	RunID     string    `json:"run_id"`
	Users     int       `json:"users"`
	Duration  string    `json:"duration"`
	Ramp      string    `json:"ramp"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Tracked   []string  `json:"tracked_users"`
}

func newRunID() string {
	return uuid.New().String()
}

// Controller holds the control plane's mutable state: the current run (if
// any) and the report history. It owns the cleanup tracker for the
// process's lifetime; every generator it spawns receives a borrowed handle.
type Controller struct {
	mu      sync.RWMutex
	current *run
	reports []Report

	nextReportID int

	cfg        *config.Config
	tracker    *cleanup.Tracker
	metricsURL string
}

// New builds a Controller bound to cfg and tracker. metricsURL is the local
// address the metrics exposition endpoint listens on (e.g.
// "http://127.0.0.1:9090/metrics"), used by the /metrics proxy and the
// /api/overview scraper.
func New(cfg *config.Config, tracker *cleanup.Tracker, metricsURL string) *Controller {
	return &Controller{
		cfg:          cfg,
		tracker:      tracker,
		metricsURL:   metricsURL,
		nextReportID: 1,
	}
}

// Router builds the chi router for the control plane's HTTP API.
func (c *Controller) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", c.handleStatusPage)
	r.Post("/api/start", c.handleStart)
	r.Post("/api/stop", c.handleStop)
	r.Get("/api/status", c.handleStatus)
	r.Get("/api/overview", c.handleOverview)
	r.Get("/api/reports", c.handleReports)
	r.Post("/api/reduce", c.handleReduce)
	r.Post("/api/delete-users", c.handleDeleteUsers)
	r.Post("/api/delete-user", c.handleDeleteUser)
	r.Get("/metrics", c.handleMetricsProxy)

	return r
}

func (c *Controller) appendReport(rep Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rep.ID = c.nextReportID
	c.nextReportID++
	c.reports = append(c.reports, rep)
}
