package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"phFolio/internal/auth"
	"phFolio/internal/dashboard"
	"phFolio/internal/notify"
)

const wsWriteTimeout = 5 * time.Second

// WsHandler 负责 WebSocket 鉴权、通知转发与用户名实时检查。
type WsHandler struct {
	redisClient    redis.UniversalClient
	authService    *auth.AuthService
	usernames      *dashboard.UsernameChecker
	debounce       time.Duration
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。
func NewWsHandler(
	redisClient redis.UniversalClient,
	authService *auth.AuthService,
	usernames *dashboard.UsernameChecker,
	debounce time.Duration,
	logger *slog.Logger,
	allowedOrigins []string,
) *WsHandler {
	if debounce <= 0 {
		debounce = dashboard.DefaultDebounce
	}
	h := &WsHandler{
		redisClient:    redisClient,
		authService:    authService,
		usernames:      usernames,
		debounce:       debounce,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if len(h.allowedOrigins) == 0 {
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// wsClientMessage 是客户端发来的消息：先 auth，之后可发送 check_username。
type wsClientMessage struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	Username string `json:"username"`
}

// wsConn 串行化写操作，gorilla/websocket 只允许一个并发写者。
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) writeText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeText(data)
}

// HandleConnection 负责升级连接并启动读写循环。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	conn := &wsConn{Conn: raw}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	baseLog := h.logger.With(
		slog.String("client_ip", c.ClientIP()),
	)

	userIDCh := make(chan uint, 1)
	errCh := make(chan error, 2)

	go h.readLoop(ctx, conn, userIDCh, errCh, cancel, baseLog)

	var userID uint
	select {
	case <-ctx.Done():
		return
	case err := <-errCh:
		if err != nil {
			baseLog.Warn("websocket authentication failed", slog.Any("error", err))
		}
		return
	case userID = <-userIDCh:
	}

	userLog := baseLog.With(slog.Uint64("user_id", uint64(userID)))
	go h.subscribeLoop(ctx, conn, userID, errCh, cancel, userLog)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			userLog.Info("websocket connection closed", slog.Any("error", err))
		} else {
			userLog.Info("websocket connection closed")
		}
	}
}

func (h *WsHandler) readLoop(
	ctx context.Context,
	conn *wsConn,
	userIDCh chan<- uint,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	var userID uint
	debouncer := dashboard.NewDebouncer(h.debounce)
	defer debouncer.Stop()

	fail := func(code int, text string, err error) {
		writeClose(conn, code, text)
		errCh <- err
		cancel()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			fail(websocket.CloseAbnormalClosure, "read error", fmt.Errorf("read message: %w", err))
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			if userID == 0 {
				fail(websocket.ClosePolicyViolation, "invalid auth payload", fmt.Errorf("decode auth payload: %w", err))
				return
			}
			log.Debug("ignore malformed websocket message", slog.Any("error", err))
			continue
		}

		if userID == 0 {
			if msg.Type != "auth" || msg.Token == "" {
				fail(websocket.ClosePolicyViolation, "auth required", fmt.Errorf("invalid auth message"))
				return
			}
			claims, err := h.authService.ValidateTokenOfType(msg.Token, auth.TokenTypeAccess)
			if err != nil {
				fail(websocket.ClosePolicyViolation, "unauthorized", fmt.Errorf("validate token: %w", err))
				return
			}
			if claims.MustChangePassword {
				fail(websocket.ClosePolicyViolation, "password change required", fmt.Errorf("password change required"))
				return
			}

			userID = claims.UserID
			userIDCh <- userID
			log.Info("websocket authenticated", slog.Uint64("user_id", uint64(userID)))
			continue
		}

		switch msg.Type {
		case "check_username":
			candidate, uid := msg.Username, userID
			debouncer.Trigger(func() {
				result := h.usernames.Check(ctx, uid, candidate)
				reply := notify.Message{Type: notify.TypeUsernameCheck, Payload: result}
				if err := conn.writeJSON(reply); err != nil {
					log.Debug("write username check reply failed", slog.Any("error", err))
				}
			})
		default:
			log.Debug("ignore websocket message", slog.String("type", msg.Type))
		}
	}
}

func writeClose(conn *wsConn, code int, text string) {
	deadline := time.Now().Add(wsWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func (h *WsHandler) subscribeLoop(
	ctx context.Context,
	conn *wsConn,
	userID uint,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	if h.redisClient == nil {
		<-ctx.Done()
		return
	}
	channel := notify.Channel(userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Info("subscribed to redis channel", slog.String("channel", channel))

	ch := pubsub.Channel()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				errCh <- fmt.Errorf("pubsub channel closed")
				cancel()
				return
			}

			log.Debug("forwarding message to client", slog.String("channel", channel))
			if err := conn.writeText([]byte(msg.Payload)); err != nil {
				errCh <- fmt.Errorf("write message: %w", err)
				cancel()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				errCh <- fmt.Errorf("write ping: %w", err)
				cancel()
				return
			}
		}
	}
}
