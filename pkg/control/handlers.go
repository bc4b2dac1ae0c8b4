package control

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/loadgen/pkg/generator"
	"github.com/cuemby/loadgen/pkg/log"
)

const (
	reduceTimeout        = 30 * time.Second
	deleteUsersTimeout   = 60 * time.Second
	deleteUserTimeout    = 15 * time.Second
	deleteConcurrency    = 10
	maxReportsInOverview = 5
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type startRequest struct {
	Users    int    `json:"users"`
	Duration string `json:"duration"`
	Ramp     string `json:"ramp"`
}

// handleStart cancels any current run, creates a fresh run record, and
// spawns a generator in the background. An invalid duration is a
// configuration error: the run is recorded as errored and no generator is
// spawned, matching the "no report emitted" contract.
func (c *Controller) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	c.mu.Lock()
	if c.current != nil && c.current.cancel != nil {
		c.current.cancel()
	}

	if _, err := time.ParseDuration(req.Duration); err != nil {
		c.current = &run{
			RunID:     newRunID(),
			Users:     req.Users,
			Duration:  req.Duration,
			Ramp:      req.Ramp,
			Status:    "error",
			StartTime: time.Now(),
		}
		c.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs := &run{
		RunID:     newRunID(),
		Users:     req.Users,
		Duration:  req.Duration,
		Ramp:      req.Ramp,
		Status:    "running",
		StartTime: time.Now(),
		cancel:    cancel,
	}
	c.current = rs
	c.mu.Unlock()

	go c.runInBackground(ctx, rs, req)

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (c *Controller) runInBackground(ctx context.Context, rs *run, req startRequest) {
	logger := log.ForRun(log.WithComponent("control"), rs.RunID)
	logger.Info().Int("users", req.Users).Str("duration", req.Duration).Str("ramp", req.Ramp).Msg("control: run started")

	report, err := generator.Run(ctx, c.cfg, req.Users, req.Duration, req.Ramp, c.tracker)

	c.mu.Lock()
	alreadyReported := rs.reported
	if c.current == rs {
		c.current = nil
	}
	c.mu.Unlock()
	if alreadyReported {
		// /api/stop already appended this run's report synchronously.
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("control: run failed")
		c.appendReport(Report{
			RunID:     rs.RunID,
			Users:     req.Users,
			Duration:  req.Duration,
			Ramp:      req.Ramp,
			Status:    "error",
			StartTime: rs.StartTime,
			EndTime:   time.Now(),
		})
	} else {
		c.appendReport(Report{
			RunID:     rs.RunID,
			Users:     report.Users,
			Duration:  report.Duration,
			Ramp:      report.Ramp,
			Status:    report.Status,
			StartTime: report.StartTime,
			EndTime:   report.EndTime,
			Tracked:   report.Tracked,
		})
	}
}

// handleStop cancels the current run, if any, marks it stopped, and
// appends its report immediately using the tracked-user list as it
// stands at stop time. runInBackground detects the report was already
// taken and skips appending a second one when the generator unwinds.
func (c *Controller) handleStop(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	if c.current != nil && c.current.cancel != nil {
		c.current.cancel()
		c.current.Status = "stopped"
		c.current.reported = true
		rs := c.current
		tracked := []string{}
		if c.tracker != nil {
			tracked = c.tracker.List()
		}
		rep := Report{
			RunID:     rs.RunID,
			Users:     rs.Users,
			Duration:  rs.Duration,
			Ramp:      rs.Ramp,
			Status:    "stopped",
			StartTime: rs.StartTime,
			EndTime:   time.Now(),
			Tracked:   tracked,
		}
		rep.ID = c.nextReportID
		c.nextReportID++
		c.reports = append(c.reports, rep)
		log.ForRun(log.WithComponent("control"), rs.RunID).Info().Msg("control: run stopped")
	}
	c.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleStatus returns the current run record, or {"status":"stopped"} if
// no run is current.
func (c *Controller) handleStatus(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
		return
	}
	writeJSON(w, http.StatusOK, c.current)
}

// handleOverview reports total users known to the user service, the
// tracked-user set, and the well-known metrics subset.
func (c *Controller) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	totalUsers := 0
	tracked := []string{}
	if c.tracker != nil {
		totalUsers = c.tracker.DashboardTotalUsers(ctx)
		tracked = c.tracker.List()
	}

	metricsSnapshot, err := scrapeMetrics(ctx, c.metricsURL)
	if err != nil {
		log.WithComponent("control").Warn().Err(err).Msg("control: metrics scrape failed")
		metricsSnapshot = map[string]int{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_users":   totalUsers,
		"tracked_users": tracked,
		"tracked_count": len(tracked),
		"metrics":       metricsSnapshot,
	})
}

// handleReports returns the last five reports, newest last.
func (c *Controller) handleReports(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := 0
	if len(c.reports) > maxReportsInOverview {
		start = len(c.reports) - maxReportsInOverview
	}
	writeJSON(w, http.StatusOK, c.reports[start:])
}

type countRequest struct {
	Count int `json:"count"`
}

// handleReduce selects and deletes up to count tracked users at random,
// then cascades to chat/posts.
func (c *Controller) handleReduce(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reduceTimeout)
	defer cancel()

	result := c.tracker.ReduceLoad(ctx, req.Count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted_count": len(result.DeletedUsernames),
		"deleted_users": result.DeletedUsernames,
		"failed_users":  result.Failed,
		"remaining":     len(c.tracker.List()),
		"status":        "completed",
	})
}

// handleDeleteUsers deletes up to count test users through a bounded
// concurrency pool of size 10.
func (c *Controller) handleDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), deleteUsersTimeout)
	defer cancel()

	result := c.tracker.DeleteConcurrent(ctx, req.Count, deleteConcurrency)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted_count": len(result.DeletedUsernames),
		"deleted_users": result.DeletedUsernames,
		"failed_users":  result.Failed,
		"remaining":     len(c.tracker.List()),
		"status":        "completed",
	})
}

type usernameRequest struct {
	Username string `json:"username"`
}

// handleDeleteUser deletes a single tracked user.
func (c *Controller) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), deleteUserTimeout)
	defer cancel()

	ok, status := c.tracker.DeleteOne(ctx, req.Username)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": ok,
		"status":  status,
	})
}
