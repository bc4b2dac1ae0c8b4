package control

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/cuemby/loadgen/pkg/log"
)

var (
	activeUsersRe    = regexp.MustCompile(`loadgen_active_users\s+(\d+)`)
	websocketConnsRe = regexp.MustCompile(`loadgen_websocket_connections\s+(\d+)`)
	requestsTotalRe  = regexp.MustCompile(`loadgen_requests_total(?:.*?)\s+(\d+)`)
)

// scrapeMetrics fetches the metrics exposition text and extracts the
// well-known subset via the spec's regexes. For requests_total, where
// multiple label combinations may match, the last match wins.
func scrapeMetrics(ctx context.Context, metricsURL string) (map[string]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metricsURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	text := string(body)

	snapshot := map[string]int{}
	if m := activeUsersRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			snapshot["active_users"] = v
		}
	}
	if m := websocketConnsRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			snapshot["websocket_connections"] = v
		}
	}
	if matches := requestsTotalRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		if v, err := strconv.Atoi(last[1]); err == nil {
			snapshot["total_requests"] = v
		}
	}

	return snapshot, nil
}

// handleMetricsProxy reverse-proxies the metrics exposition endpoint so a
// single port serves both the control API and Prometheus scraping.
func (c *Controller) handleMetricsProxy(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, c.metricsURL, nil)
	if err != nil {
		http.Error(w, "metrics unavailable", http.StatusBadGateway)
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.WithComponent("control").Warn().Err(err).Msg("control: metrics proxy failed")
		http.Error(w, "metrics unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
