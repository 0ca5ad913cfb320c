package api

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"jobassist/internal/worker"
)

func (e *testEnv) dialWS(t *testing.T) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func expectPolicyClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestWebSocketRejectsBadFirstFrame(t *testing.T) {
	cases := map[string]func(*websocket.Conn) error{
		"not json": func(c *websocket.Conn) error {
			return c.WriteMessage(websocket.TextMessage, []byte("hello"))
		},
		"wrong type": func(c *websocket.Conn) error {
			return c.WriteJSON(map[string]string{"type": "subscribe", "token": "x"})
		},
		"invalid token": func(c *websocket.Conn) error {
			return c.WriteJSON(map[string]string{"type": "auth", "token": "not-a-jwt"})
		},
	}
	for name, send := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			conn := env.dialWS(t)
			if err := send(conn); err != nil {
				t.Fatalf("send: %v", err)
			}
			expectPolicyClose(t, conn)
		})
	}
}

func TestWebSocketForwardsOwnNotifications(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.seedUser(t, "ws@example.com")
	other, _ := env.seedUser(t, "ws-other@example.com")
	channel := worker.NotifyChannel(user.ID)

	conn := env.dialWS(t)
	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		t.Fatalf("auth: %v", err)
	}
	waitFor(t, "subscription", func() bool {
		return env.redis.PubSubNumSub(channel)[channel] == 1
	})

	env.redis.Publish(worker.NotifyChannel(other.ID), `{"status":"completed","coverLetterId":99}`)
	env.redis.Publish(channel, `{"status":"completed","coverLetterId":1}`)

	kind, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage || string(payload) != `{"status":"completed","coverLetterId":1}` {
		t.Fatalf("payload = %q", payload)
	}

	// 客户端断开后服务端应退订。
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitFor(t, "unsubscribe", func() bool {
		return env.redis.PubSubNumSub(channel)[channel] == 0
	})
}
