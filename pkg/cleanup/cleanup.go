package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/loadgen/pkg/log"
)

const trackedPrefix = "user_"

// Result is the outcome of a bulk deletion operation.
type Result struct {
	DeletedUsernames []string
	Failed           map[string]int
}

func newResult() Result {
	return Result{
		DeletedUsernames: []string{},
		Failed:           map[string]int{},
	}
}

// Tracker records synthetic usernames created during any run and deletes a
// selectable subset from the user service, with a best-effort cascade to the
// chat and posts services.
type Tracker struct {
	mu        sync.Mutex
	usernames []string
	index     map[string]struct{}

	userServiceURL  string
	chatServiceURL  string
	postsServiceURL string

	client *http.Client

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewTracker builds a Tracker bound to the given service base URLs, with the
// spec's 10-second default HTTP client timeout.
func NewTracker(userServiceURL, chatServiceURL, postsServiceURL string) *Tracker {
	return &Tracker{
		index:           map[string]struct{}{},
		userServiceURL:  userServiceURL,
		chatServiceURL:  chatServiceURL,
		postsServiceURL: postsServiceURL,
		client:          &http.Client{Timeout: 10 * time.Second},
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add idempotently records username, preserving first-seen order.
func (t *Tracker) Add(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[username]; ok {
		return
	}
	t.index[username] = struct{}{}
	t.usernames = append(t.usernames, username)
}

// List returns a snapshot of currently tracked usernames.
func (t *Tracker) List() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.usernames))
	copy(out, t.usernames)
	return out
}

func (t *Tracker) remove(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[username]; !ok {
		return
	}
	delete(t.index, username)
	for i, u := range t.usernames {
		if u == username {
			t.usernames = append(t.usernames[:i], t.usernames[i+1:]...)
			break
		}
	}
}

func (t *Tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.usernames)
}

// DeleteOne deletes a single tracked user from the user service. Precondition:
// username must begin with the reserved "user_" prefix.
func (t *Tracker) DeleteOne(ctx context.Context, username string) (bool, int) {
	if !strings.HasPrefix(username, trackedPrefix) {
		return false, http.StatusBadRequest
	}

	url := fmt.Sprintf("%s/api/users/%s", t.userServiceURL, username)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return false, 0
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return false, 0
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		t.remove(username)
		return true, resp.StatusCode
	}
	return false, resp.StatusCode
}

// ReduceLoad selects min(n, |tracked|) usernames uniformly at random, deletes
// them sequentially, then makes a best-effort cascade to chat/posts.
func (t *Tracker) ReduceLoad(ctx context.Context, n int) Result {
	if n < 0 {
		n = 0
	}
	candidates := t.List()
	t.shuffle(candidates)
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return t.deleteAndCascade(ctx, candidates)
}

// DeleteTestUsers queries the user service's dashboard for candidate
// usernames, falling back to the tracked list if the dashboard is
// unreachable or returns nothing, then deletes up to count of them.
func (t *Tracker) DeleteTestUsers(ctx context.Context, count int) Result {
	if count < 0 {
		count = 0
	}
	candidates := t.dashboardCandidates(ctx)
	if len(candidates) == 0 {
		candidates = filterTracked(t.List())
	}
	candidates = dedupe(candidates)
	t.shuffle(candidates)
	if count < len(candidates) {
		candidates = candidates[:count]
	}
	return t.deleteAndCascade(ctx, candidates)
}

// DeleteConcurrent uses the same candidate selection as DeleteTestUsers but
// runs deletions through a bounded-concurrency pool of size
// min(concurrency, len(candidates)).
func (t *Tracker) DeleteConcurrent(ctx context.Context, count, concurrency int) Result {
	if count < 0 {
		count = 0
	}
	candidates := t.dashboardCandidates(ctx)
	if len(candidates) == 0 {
		candidates = filterTracked(t.List())
	}
	candidates = dedupe(candidates)
	t.shuffle(candidates)
	if count < len(candidates) {
		candidates = candidates[:count]
	}

	poolSize := concurrency
	if poolSize > len(candidates) {
		poolSize = len(candidates)
	}
	if poolSize <= 0 {
		return newResult()
	}

	result := newResult()
	var resultMu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, poolSize)

	for _, username := range candidates {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(username string) {
			defer wg.Done()
			defer func() { <-sem }()

			ok, status := t.DeleteOne(ctx, username)
			resultMu.Lock()
			defer resultMu.Unlock()
			if ok {
				result.DeletedUsernames = append(result.DeletedUsernames, username)
			} else if status != 0 {
				result.Failed[username] = status
			}
		}(username)
	}
	wg.Wait()

	return result
}

// deleteAndCascade deletes the given usernames sequentially via DeleteOne,
// then makes a best-effort cascade delete of their chat messages and posts.
func (t *Tracker) deleteAndCascade(ctx context.Context, usernames []string) Result {
	result := newResult()
	for _, username := range usernames {
		ok, status := t.DeleteOne(ctx, username)
		if ok {
			result.DeletedUsernames = append(result.DeletedUsernames, username)
		} else {
			result.Failed[username] = status
		}
	}

	if len(result.DeletedUsernames) > 0 {
		selected := map[string]struct{}{}
		for _, u := range result.DeletedUsernames {
			selected[u] = struct{}{}
		}
		t.cascadeDelete(ctx, t.chatServiceURL, "/api/messages", selected)
		t.cascadeDelete(ctx, t.postsServiceURL, "/api/posts", selected)
	}

	return result
}

// cascadeDelete fetches baseURL+listPath, deletes every entry whose
// "username" field is in selected, and swallows all failures.
func (t *Tracker) cascadeDelete(ctx context.Context, baseURL, listPath string, selected map[string]struct{}) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+listPath, nil)
	if err != nil {
		return
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var items []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return
	}

	for _, item := range items {
		username, _ := item["username"].(string)
		if _, ok := selected[username]; !ok {
			continue
		}
		id := fmt.Sprintf("%v", item["id"])
		delReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s%s/%s", baseURL, listPath, id), nil)
		if err != nil {
			continue
		}
		delResp, err := t.client.Do(delReq)
		if err != nil {
			continue
		}
		_ = delResp.Body.Close()
	}
}

// dashboardResponse mirrors the user service's dashboard payload. Entries in
// Users may be plain strings or objects carrying a "username" field.
type dashboardResponse struct {
	TotalUsers int               `json:"totalUsers"`
	Users      []json.RawMessage `json:"users"`
}

// DashboardTotalUsers returns the user service's reported total user count,
// or 0 if the dashboard is unreachable.
func (t *Tracker) DashboardTotalUsers(ctx context.Context) int {
	dash, err := t.fetchDashboard(ctx)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("cleanup: dashboard unreachable")
		return 0
	}
	return dash.TotalUsers
}

func (t *Tracker) fetchDashboard(ctx context.Context) (*dashboardResponse, error) {
	url := t.userServiceURL + "/api/users/dashboard"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dashboard returned status %d", resp.StatusCode)
	}

	var dash dashboardResponse
	if err := json.NewDecoder(resp.Body).Decode(&dash); err != nil {
		return nil, fmt.Errorf("decode dashboard: %w", err)
	}
	return &dash, nil
}

// dashboardCandidates returns the dashboard's tracked-prefix usernames, or an
// empty slice if the dashboard query fails or yields nothing.
func (t *Tracker) dashboardCandidates(ctx context.Context) []string {
	dash, err := t.fetchDashboard(ctx)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("cleanup: dashboard candidates unavailable")
		return nil
	}

	var names []string
	for _, raw := range dash.Users {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			names = append(names, s)
			continue
		}
		var obj struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Username != "" {
			names = append(names, obj.Username)
		}
	}
	return filterTracked(names)
}

func filterTracked(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasPrefix(n, trackedPrefix) {
			out = append(out, n)
		}
	}
	return out
}

func dedupe(names []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// shuffle performs an in-place Fisher-Yates shuffle using the tracker's PRNG.
func (t *Tracker) shuffle(s []string) {
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	for i := len(s) - 1; i > 0; i-- {
		j := t.rng.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
