package vuser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/cuemby/loadgen/pkg/metrics"
)

const (
	actionCreatePost     = "create-post"
	actionGetPosts       = "get-posts"
	actionLikePost       = "like-post"
	actionUpdateProfile  = "update-profile"
	actionGetProfile     = "get-profile"
	actionSendChat       = "send-chat"
	actionReadChat       = "read-chat"
	serviceCoveragePosts = "posts"
	serviceCoverageChat  = "chat"
	serviceCoverageProf  = "profile"
)

var captionTemplates = []string{
	"%s is having a great day!",
	"Check out this view, from %s",
	"%s just tried something new",
	"Another post from %s",
	"%s sharing a moment",
}

var bioPool = []string{
	"Load test enthusiast",
	"Synthetic user exploring the app",
	"Here for the stress test",
	"Just passing through",
}

var locationPool = []string{
	"Test City",
	"Load Lane",
	"Synthetic Springs",
	"Staging Heights",
}

// selectAction applies the service-coverage guarantee before falling back to
// weighted random selection.
func (u *User) selectAction() string {
	if !u.coverage[serviceCoveragePosts] && u.rng.Float64() < 0.4 {
		u.coverage[serviceCoveragePosts] = true
		return actionCreatePost
	}
	if !u.coverage[serviceCoverageChat] && u.rng.Float64() < 0.3 {
		u.coverage[serviceCoverageChat] = true
		return actionSendChat
	}
	if !u.coverage[serviceCoverageProf] && u.rng.Float64() < 0.2 {
		u.coverage[serviceCoverageProf] = true
		return actionUpdateProfile
	}

	weights := []struct {
		action string
		weight float64
	}{
		{actionCreatePost, 0.35},
		{actionSendChat, 0.25},
		{actionUpdateProfile, 0.15},
		{actionGetPosts, 0.15},
		{actionReadChat, 0.10},
	}

	r := u.rng.Float64()
	var cumulative float64
	for _, w := range weights {
		cumulative += w.weight
		if r < cumulative {
			return w.action
		}
	}
	return actionGetPosts
}

func (u *User) recordAction(service, method, status string, timer *metrics.Timer) {
	metrics.RequestsTotal.WithLabelValues(service, method, status).Inc()
	timer.ObserveDurationVec(metrics.RequestDuration, service, method)
}

func (u *User) createPost(ctx context.Context) {
	timer := metrics.NewTimer()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	caption := fmt.Sprintf(captionTemplates[u.cycle%len(captionTemplates)], u.Username)
	_ = writer.WriteField("caption", caption)

	part, err := writer.CreateFormFile("image", "dummy.jpg")
	if err == nil {
		_, _ = part.Write([]byte("synthetic-image-bytes"))
	}
	_ = writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.postsServiceURL+"/api/posts", &body)
	if err != nil {
		u.recordAction("posts", actionCreatePost, "error", timer)
		return
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	u.setAuth(req)

	resp, err := u.client.Do(req)
	if err != nil {
		u.recordAction("posts", actionCreatePost, "error", timer)
		return
	}
	defer resp.Body.Close()
	u.recordAction("posts", actionCreatePost, fmt.Sprintf("%d", resp.StatusCode), timer)
}

type postSummary struct {
	ID         interface{} `json:"id"`
	LikesCount int         `json:"likes_count"`
}

func (u *User) getPosts(ctx context.Context) {
	timer := metrics.NewTimer()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.postsServiceURL+"/api/posts", nil)
	if err != nil {
		u.recordAction("posts", actionGetPosts, "error", timer)
		return
	}
	u.setAuth(req)

	resp, err := u.client.Do(req)
	if err != nil {
		u.recordAction("posts", actionGetPosts, "error", timer)
		return
	}
	defer resp.Body.Close()
	u.recordAction("posts", actionGetPosts, fmt.Sprintf("%d", resp.StatusCode), timer)

	if resp.StatusCode != http.StatusOK {
		return
	}

	var posts []postSummary
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, fmt.Sprintf("%v", p.ID))
	}
	u.lastPostIDs = ids
}

func (u *User) likePost(ctx context.Context) {
	if len(u.lastPostIDs) == 0 {
		return
	}

	timer := metrics.NewTimer()
	id := u.lastPostIDs[u.rng.Intn(len(u.lastPostIDs))]

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/posts/%s/like", u.postsServiceURL, id), nil)
	if err != nil {
		u.recordAction("posts", actionLikePost, "error", timer)
		return
	}
	u.setAuth(req)

	resp, err := u.client.Do(req)
	if err != nil {
		u.recordAction("posts", actionLikePost, "error", timer)
		return
	}
	defer resp.Body.Close()
	u.recordAction("posts", actionLikePost, fmt.Sprintf("%d", resp.StatusCode), timer)
}

func (u *User) updateProfile(ctx context.Context) {
	timer := metrics.NewTimer()

	seconds := int(time.Now().Unix())
	bio := bioPool[seconds%len(bioPool)]
	location := locationPool[seconds%len(locationPool)]

	body, _ := json.Marshal(map[string]string{"bio": bio, "location": location})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/api/profile/%s", u.profileServiceURL, u.userID), bytes.NewReader(body))
	if err != nil {
		u.recordAction("profile", actionUpdateProfile, "error", timer)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	u.setAuth(req)

	resp, err := u.client.Do(req)
	if err != nil {
		u.recordAction("profile", actionUpdateProfile, "error", timer)
		return
	}
	defer resp.Body.Close()
	u.recordAction("profile", actionUpdateProfile, fmt.Sprintf("%d", resp.StatusCode), timer)
}

func (u *User) getProfile(ctx context.Context) {
	timer := metrics.NewTimer()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/profile/%s", u.profileServiceURL, u.userID), nil)
	if err != nil {
		u.recordAction("profile", actionGetProfile, "error", timer)
		return
	}
	u.setAuth(req)

	resp, err := u.client.Do(req)
	if err != nil {
		u.recordAction("profile", actionGetProfile, "error", timer)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	u.recordAction("profile", actionGetProfile, fmt.Sprintf("%d", resp.StatusCode), timer)
}

func (u *User) readChat(ctx context.Context) {
	timer := metrics.NewTimer()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.chatServiceURL+"/api/messages", nil)
	if err != nil {
		u.recordAction("chat", actionReadChat, "error", timer)
		return
	}
	u.setAuth(req)

	resp, err := u.client.Do(req)
	if err != nil {
		u.recordAction("chat", actionReadChat, "error", timer)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	u.recordAction("chat", actionReadChat, fmt.Sprintf("%d", resp.StatusCode), timer)
}

func (u *User) setAuth(req *http.Request) {
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}
}
