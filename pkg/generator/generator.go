package generator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/loadgen/pkg/cleanup"
	"github.com/cuemby/loadgen/pkg/config"
	"github.com/cuemby/loadgen/pkg/log"
	"github.com/cuemby/loadgen/pkg/metrics"
	"github.com/cuemby/loadgen/pkg/vuser"
)

// Report is the immutable outcome of a single run.
type Report struct {
	Users     int
	Duration  string
	Ramp      string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Tracked   []string
}

// Run spawns N virtual users against cfg, paced by the parsed ramp
// expression, bounded by duration, and cancellable via ctx. It blocks until
// every user task returns or the run's deadline expires, then returns a
// Report.
func Run(ctx context.Context, cfg *config.Config, users int, duration, ramp string, tracker *cleanup.Tracker) (*Report, error) {
	logger := log.WithComponent("generator")

	dur, err := time.ParseDuration(duration)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", duration, err)
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, dur)
	defer cancel()

	rate := ParseRampRate(ramp)
	slots := make(chan int, users)

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, ok := <-slots
			if !ok {
				return
			}
			vu := vuser.New(slot, cfg, tracker)
			if tracker != nil {
				tracker.Add(vu.Username)
			}
			if err := vu.Run(runCtx); err != nil {
				logger.Debug().Err(err).Int("user", slot).Msg("generator: user task ended with error")
			}
		}()
	}

	go pace(runCtx, slots, users, rate)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	status := "completed"
	select {
	case <-done:
	case <-runCtx.Done():
		<-done
		if ctx.Err() != nil {
			status = "stopped"
		} else {
			status = "completed"
		}
	}

	report := &Report{
		Users:     users,
		Duration:  duration,
		Ramp:      ramp,
		Status:    status,
		StartTime: start,
		EndTime:   time.Now(),
		Tracked:   trackedSnapshot(tracker),
	}
	return report, nil
}

func trackedSnapshot(tracker *cleanup.Tracker) []string {
	if tracker == nil {
		return nil
	}
	return tracker.List()
}

// pace pushes user slots onto ch according to rate: immediately if rate<=0,
// otherwise one every 1s/rate, until n slots are emitted or ctx is done.
func pace(ctx context.Context, ch chan<- int, n, rate int) {
	defer close(ch)

	if rate <= 0 {
		for i := 0; i < n; i++ {
			select {
			case ch <- i:
				metrics.ActiveUsers.Inc()
			case <-ctx.Done():
				return
			}
		}
		return
	}

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case ch <- i:
				metrics.ActiveUsers.Inc()
			case <-ctx.Done():
				return
			}
		}
	}
}

// ParseRampRate parses a ramp expression of the form "<rate>/s". Anything
// that does not parse as a non-negative integer rate is treated as 0
// (fire-at-once).
func ParseRampRate(ramp string) int {
	parts := strings.SplitN(ramp, "/", 2)
	rate, err := strconv.Atoi(parts[0])
	if err != nil || rate < 0 {
		return 0
	}
	return rate
}
