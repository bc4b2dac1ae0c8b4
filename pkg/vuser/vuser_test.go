package vuser

import (
	"context"
	"math/rand"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/loadgen/pkg/config"
)

func httpGetRequest(url string) (*http.Request, error) {
	return http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
}

func newTestUser(t *testing.T) *User {
	t.Helper()
	cfg := config.Defaults()
	return New(1, &cfg, nil)
}

func TestSelectActionCoversPostsFirst(t *testing.T) {
	u := newTestUser(t)
	u.rng = rand.New(rand.NewSource(1))

	action := u.selectAction()
	assert.Contains(t, []string{actionCreatePost, actionSendChat, actionUpdateProfile, actionGetPosts, actionReadChat}, action)
}

func TestSelectActionFallsBackToWeightedRandom(t *testing.T) {
	u := newTestUser(t)
	u.coverage[serviceCoveragePosts] = true
	u.coverage[serviceCoverageChat] = true
	u.coverage[serviceCoverageProf] = true
	u.rng = rand.New(rand.NewSource(42))

	for i := 0; i < 100; i++ {
		action := u.selectAction()
		assert.Contains(t, []string{actionCreatePost, actionSendChat, actionUpdateProfile, actionGetPosts, actionReadChat}, action)
	}
}

func TestSendChatWithoutConnectionRecordsNoConnection(t *testing.T) {
	u := newTestUser(t)
	// No WebSocket was dialed; sendChat must record no_connection without I/O.
	u.sendChat(context.Background(), "hello")
	// No panic and no connection means the call returned without touching conn.
	assert.Nil(t, u.conn)
}

func TestWSURLRewritesScheme(t *testing.T) {
	assert.Equal(t, "ws://chat.local/socket.io/?EIO=4&transport=websocket", wsURL("http://chat.local"))
	assert.Equal(t, "wss://chat.local/socket.io/?EIO=4&transport=websocket", wsURL("https://chat.local"))
}

func TestSetAuthOmitsHeaderBeforeLogin(t *testing.T) {
	u := newTestUser(t)
	assert.Empty(t, u.token)

	req, err := httpGetRequest(u.userServiceURL + "/api/users/dashboard")
	assert.NoError(t, err)
	u.setAuth(req)
	assert.Empty(t, req.Header.Get("Authorization"))
}
