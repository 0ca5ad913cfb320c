package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"jobassist/internal/api/middleware"
	"jobassist/internal/worker"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = 2 * wsPingInterval
	wsWriteWait    = 5 * time.Second
)

var errNotificationStreamClosed = errors.New("notification stream closed")

// WsHandler 在首帧鉴权后把 user_notify:<id> 频道的消息原样推送给客户端。
type WsHandler struct {
	redisClient redis.UniversalClient
	validator   middleware.TokenValidator
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewWsHandler 构造 WebSocket 处理器；allowedOrigins 为空时只接受同源请求。
func NewWsHandler(redisClient redis.UniversalClient, validator middleware.TokenValidator, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		redisClient: redisClient,
		validator:   validator,
		logger:      logger,
		upgrader:    websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) > 0 {
			return slices.Contains(allowed, origin)
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// HandleConnection 升级连接，鉴权后并行运行读排空与通知转发，任一结束即关闭连接。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := requestLogger(c, h.logger).With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(conn)
	if err != nil {
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	log = log.With(slog.Uint64("user_id", uint64(userID)))
	log.Info("websocket authenticated")

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error { return drainClient(conn) })
	g.Go(func() error { return h.forward(ctx, conn, userID, log) })

	err = g.Wait()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Info("websocket client disconnected")
		return
	}
	log.Info("websocket connection closed", slog.Any("error", err))
}

// authenticate 读取首帧 {"type":"auth","token":...}，失败时以 1008 关闭。
func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))

	var msg wsAuthMessage
	if err := conn.ReadJSON(&msg); err != nil {
		closeConn(conn, websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, fmt.Errorf("read auth message: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		closeConn(conn, websocket.ClosePolicyViolation, "auth required")
		return 0, errors.New("first frame is not an auth message")
	}

	claims, err := h.validator.ValidateToken(msg.Token)
	if err == nil && claims.UserID == 0 {
		err = errors.New("token carries no user id")
	}
	if err != nil {
		closeConn(conn, websocket.ClosePolicyViolation, "unauthorized")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	return claims.UserID, nil
}

// drainClient 丢弃客户端后续消息，只用于感知断开与 pong 超时。
func drainClient(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return err
		}
	}
}

// forward 订阅用户通知频道并推送；返回前关闭连接以唤醒 drainClient。
func (h *WsHandler) forward(ctx context.Context, conn *websocket.Conn, userID uint, log *slog.Logger) error {
	defer conn.Close()

	channel := worker.NotifyChannel(userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	log.Debug("subscribed to notifications", slog.String("channel", channel))

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errNotificationStreamClosed
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return fmt.Errorf("push notification: %w", err)
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return fmt.Errorf("ping client: %w", err)
			}
		}
	}
}

func closeConn(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}
