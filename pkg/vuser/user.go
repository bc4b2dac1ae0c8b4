package vuser

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cuemby/loadgen/pkg/chaos"
	"github.com/cuemby/loadgen/pkg/cleanup"
	"github.com/cuemby/loadgen/pkg/config"
	"github.com/cuemby/loadgen/pkg/log"
	"github.com/cuemby/loadgen/pkg/metrics"
)

// State is a virtual user's lifecycle state.
type State int

const (
	StateNew State = iota
	StateAuthenticating
	StateAuthed
	StateChatConnected
	StateActive
	StateTerminating
	StateError
)

const (
	loginPassword  = "password123"
	pingInterval   = 25 * time.Second
	joinDelay      = 100 * time.Millisecond
	wsHandshakeDur = 10 * time.Second
	cycleResetMod  = 4
)

// User is a single virtual user. It owns its own HTTP client (wrapped in a
// chaos transport) and WebSocket connection, isolating its connection pool
// and chaos randomization from every other user.
type User struct {
	ID       int
	Username string

	userID string
	token  string

	client *http.Client

	userServiceURL    string
	chatServiceURL    string
	postsServiceURL   string
	profileServiceURL string

	conn   *websocket.Conn
	connMu sync.Mutex

	rng *rand.Rand

	coverage map[string]bool
	cycle    int

	lastPostIDs []string

	tracker *cleanup.Tracker

	state State
}

// New constructs a virtual user bound to the given configuration and
// cleanup tracker. seed determines both the chaos transport's and the
// action selector's PRNG sequence.
func New(id int, cfg *config.Config, tracker *cleanup.Tracker) *User {
	seed := time.Now().UnixNano() ^ int64(id)

	transport := chaos.NewTransport(nil, cfg.ChaosErrorRate, cfg.ChaosDelayRate, cfg.ChaosMaxDelay, seed)
	client := &http.Client{
		Timeout:   cfg.ServiceTimeout,
		Transport: transport,
	}

	return &User{
		ID:                id,
		Username:          fmt.Sprintf("user_%d", id),
		client:            client,
		userServiceURL:    cfg.UserServiceURL,
		chatServiceURL:    cfg.ChatServiceURL,
		postsServiceURL:   cfg.PostsServiceURL,
		profileServiceURL: cfg.ProfileServiceURL,
		rng:               rand.New(rand.NewSource(seed)),
		coverage:          map[string]bool{},
		state:             StateNew,
		tracker:           tracker,
	}
}

// Run drives the virtual user's full lifecycle until ctx is cancelled or an
// unrecoverable error occurs during authentication.
func (u *User) Run(ctx context.Context) error {
	logger := log.WithUserID(u.Username)

	// active_users was incremented by the ramp pacer when this slot started;
	// it is decremented here unconditionally when the loop returns, whether
	// or not authentication ever succeeded.
	defer metrics.ActiveUsers.Dec()

	u.state = StateAuthenticating
	if err := u.authenticate(ctx); err != nil {
		u.state = StateError
		logger.Error().Err(err).Msg("vuser: authentication failed")
		return err
	}
	u.state = StateAuthed

	if err := u.connectChat(ctx); err != nil {
		logger.Warn().Err(err).Msg("vuser: chat connect failed, continuing without chat")
	} else {
		u.state = StateChatConnected
		defer u.closeChat()
	}

	u.state = StateActive
	u.sendChat(ctx, u.firstChatMessage())

	u.actionLoop(ctx)

	u.state = StateTerminating
	return nil
}

func (u *User) firstChatMessage() string {
	return fmt.Sprintf("hello from %s", u.Username)
}

func (u *User) actionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		action := u.selectAction()
		u.invoke(ctx, action)

		u.cycle++
		if u.cycle%cycleResetMod == 0 {
			u.coverage = map[string]bool{}
			u.sendChat(ctx, fmt.Sprintf("cycle %d checkpoint from %s", u.cycle, u.Username))
		}

		sleep := time.Duration(2000+u.rng.Intn(6000)) * time.Millisecond
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (u *User) invoke(ctx context.Context, action string) {
	switch action {
	case actionCreatePost:
		u.createPost(ctx)
	case actionGetPosts:
		u.getPosts(ctx)
	case actionLikePost:
		u.likePost(ctx)
	case actionUpdateProfile:
		u.updateProfile(ctx)
	case actionGetProfile:
		u.getProfile(ctx)
	case actionSendChat:
		u.sendChat(ctx, fmt.Sprintf("update from %s at cycle %d", u.Username, u.cycle))
	case actionReadChat:
		u.readChat(ctx)
	}
}

// wsURL rewrites an http(s) base URL into the chat service's Socket.IO
// WebSocket endpoint.
func wsURL(base string) string {
	u := strings.Replace(base, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/socket.io/?EIO=4&transport=websocket"
}
