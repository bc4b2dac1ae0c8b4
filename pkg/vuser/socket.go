package vuser

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cuemby/loadgen/pkg/log"
	"github.com/cuemby/loadgen/pkg/metrics"
)

const (
	frameConnect = "40"
	framePing    = "2"
	frameEvent   = "42"
)

// connectChat dials the chat service's Socket.IO endpoint, performs the
// connect/join handshake, and starts the reader and keepalive loops.
func (u *User) connectChat(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, wsHandshakeDur)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeDur}
	conn, _, err := dialer.DialContext(dialCtx, wsURL(u.chatServiceURL), nil)
	if err != nil {
		return fmt.Errorf("dial chat socket: %w", err)
	}

	u.connMu.Lock()
	u.conn = conn
	u.connMu.Unlock()

	metrics.WebSocketConnections.Inc()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(frameConnect)); err != nil {
		return fmt.Errorf("send connect frame: %w", err)
	}

	go func() {
		select {
		case <-time.After(joinDelay):
		case <-ctx.Done():
			return
		}
		room := fmt.Sprintf("loadtest_user_%d", time.Now().Unix()%1000)
		frame := fmt.Sprintf(`42["join",%q]`, room)
		u.writeFrame(frame)
	}()

	go u.readLoop(ctx)
	go u.keepalive(ctx)

	return nil
}

func (u *User) readLoop(ctx context.Context) {
	logger := log.WithUserID(u.Username)
	for {
		u.connMu.Lock()
		conn := u.conn
		u.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		text := string(data)
		if len(text) >= 2 && text[:2] == frameEvent {
			logger.Debug().Str("frame", text).Msg("vuser: chat event received")
		}
	}
}

func (u *User) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.writeFrame(framePing)
		}
	}
}

// writeFrame writes a text frame to the live WebSocket, if any. Errors are
// logged and otherwise swallowed — a broken socket is discovered by the
// read loop exiting.
func (u *User) writeFrame(frame string) {
	u.connMu.Lock()
	conn := u.conn
	u.connMu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		log.WithUserID(u.Username).Warn().Err(err).Msg("vuser: chat frame write failed")
	}
}

func (u *User) closeChat() {
	u.connMu.Lock()
	conn := u.conn
	u.conn = nil
	u.connMu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.Close()
	metrics.WebSocketConnections.Dec()
}

// sendChat writes a Socket.IO "message" event over the live WebSocket. If no
// socket is open, it records status "no_connection" and performs no I/O.
func (u *User) sendChat(ctx context.Context, text string) {
	timer := metrics.NewTimer()

	u.connMu.Lock()
	conn := u.conn
	u.connMu.Unlock()

	if conn == nil {
		metrics.RequestsTotal.WithLabelValues("chat", "send-chat", "no_connection").Inc()
		return
	}

	payload := fmt.Sprintf(`42["message",{"message":%q,"room":"general","isPrivate":false}]`, text)
	err := conn.WriteMessage(websocket.TextMessage, []byte(payload))
	timer.ObserveDurationVec(metrics.RequestDuration, "chat", "send-chat")
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("chat", "send-chat", "error").Inc()
		return
	}
	metrics.RequestsTotal.WithLabelValues("chat", "send-chat", "ok").Inc()
}
