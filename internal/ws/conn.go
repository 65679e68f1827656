package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"facultylink/internal/auth"
	"facultylink/internal/config"
	"facultylink/internal/metrics"
	"facultylink/internal/models"
	"facultylink/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AIResponder 是生命周期处理之外的外部协作方：读循环发现调用标记后
// 单独请求它，再把回复当作普通消息重新走 Send 路径。
type AIResponder interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Client 对应一条存活的 WebSocket 连接。身份在 join 帧到达前为空，
// roomID 只由 Hub 在其锁内读写。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	roomID uint

	userID  uint
	display string

	mu     sync.Mutex
	closed bool

	msgSvc  *service.MessageService
	roomSvc *service.RoomService
	ai      AIResponder
	cfg     config.Config
}

// checkOrigin 与 HTTP 层的 CORS 放行同一组来源：dev 不限制，其余环境
// 认配置的允许列表，没带 Origin 的非浏览器客户端直接放行，兜底同源。
func checkOrigin(cfg config.Config) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		if cfg.Env == "dev" {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[strings.TrimSuffix(origin, "/")]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// Serve 完成握手前的鉴权并升级连接。房间分配放在 join 帧里，这里只
// 确认 token 对应一个真实用户。
func Serve(h *Hub, db *gorm.DB, cfg config.Config, msgSvc *service.MessageService, roomSvc *service.RoomService, ai AIResponder) gin.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin(cfg)}
	return func(c *gin.Context) {
		// Token via Authorization header or token query param for WS
		authz := c.GetHeader("Authorization")
		token := c.Query("token")
		if token == "" && len(authz) > 7 && (authz[:7] == "Bearer " || authz[:7] == "bearer ") {
			token = authz[7:]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseAccessToken(token, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			hub:     h,
			conn:    conn,
			send:    make(chan []byte, 256),
			userID:  user.ID,
			display: user.DisplayName,
			msgSvc:  msgSvc,
			roomSvc: roomSvc,
			ai:      ai,
			cfg:     cfg,
		}
		h.Register(client)

		go client.writePump()
		client.readPump()
	}
}

// trySend 非阻塞投递。连接已关闭或缓冲已满时返回 false，调用方据此摘除。
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// shutdown 幂等关闭发送通道。
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in InboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			metrics.WsDroppedFramesTotal.Inc()
			log.Debug().Uint("user_id", c.userID).Msg("drop malformed frame")
			continue
		}
		// 坏帧只丢弃，连接和进程都不受影响。
		c.handleFrame(in)
	}
}

func (c *Client) handleFrame(in InboundFrame) {
	switch in.Type {
	case FrameJoin:
		c.handleJoin(in)
	case FrameMessage:
		c.handleMessage(in)
	case FrameEdit:
		c.handleEdit(in)
	case FrameDelete:
		c.handleDelete(in)
	case FrameReact:
		c.handleReact(in)
	default:
		metrics.WsDroppedFramesTotal.Inc()
		log.Debug().Str("type", in.Type).Uint("user_id", c.userID).Msg("drop unknown frame")
	}
}

// handleJoin 入房并立即回放历史快照：最近一窗消息，升序，客户端可以
// 直接按顺序追加渲染。
func (c *Client) handleJoin(in InboundFrame) {
	if _, err := c.roomSvc.Exists(in.RoomID); err != nil {
		c.trySend(errorFrame("room not found"))
		return
	}
	c.hub.Join(in.RoomID, c)
	msgs, err := c.msgSvc.ListByRoom(in.RoomID, c.msgSvc.HistoryWindow(), 0)
	if err != nil {
		log.Error().Err(err).Uint("room_id", in.RoomID).Msg("join history")
		c.trySend(errorFrame("history unavailable"))
		return
	}
	dtos := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		dtos = append(dtos, ToMessageDTO(m))
	}
	c.trySend(historyFrame(dtos))
}

func (c *Client) handleMessage(in InboundFrame) {
	joined := c.hub.Room(c)
	roomID := in.RoomID
	if roomID == 0 {
		roomID = joined
	}
	if roomID == 0 || roomID != joined || strings.TrimSpace(in.Content) == "" {
		metrics.WsDroppedFramesTotal.Inc()
		return
	}
	msg, err := c.msgSvc.Send(roomID, c.display, in.Content, in.Formatting, in.ReplyTo)
	if err != nil {
		log.Error().Err(err).Uint("room_id", roomID).Uint("user_id", c.userID).Msg("persist message")
		c.trySend(errorFrame("message not saved"))
		return
	}
	metrics.WsMessagesTotal.Inc()
	metrics.WsBroadcastsTotal.WithLabelValues(FrameNewMessage).Inc()
	c.hub.Broadcast(roomID, NewMessageFrame(ToMessageDTO(*msg)))

	if c.ai != nil && strings.Contains(in.Content, c.cfg.AIMarker) {
		go c.aiReply(roomID, in.Content)
	}
}

// aiReply 调外部 AI 服务，然后以合成的 AI 身份重新走 Send 路径。
// 失败只记日志，不打扰房间。
func (c *Client) aiReply(roomID uint, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reply, err := c.ai.Reply(ctx, prompt)
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Warn().Err(err).Uint("room_id", roomID).Msg("ai reply")
		return
	}
	msg, err := c.msgSvc.Send(roomID, "AI", reply, nil, "")
	if err != nil {
		log.Error().Err(err).Uint("room_id", roomID).Msg("persist ai reply")
		return
	}
	metrics.WsMessagesTotal.Inc()
	metrics.WsBroadcastsTotal.WithLabelValues(FrameNewMessage).Inc()
	c.hub.Broadcast(roomID, NewMessageFrame(ToMessageDTO(*msg)))
}

func (c *Client) handleEdit(in InboundFrame) {
	msg, err := c.msgSvc.Edit(in.MessageID, c.display, in.Content)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return
	case errors.Is(err, service.ErrNotOwner):
		c.trySend(errorFrame("not your message"))
		return
	case err != nil:
		log.Error().Err(err).Uint("message_id", in.MessageID).Msg("edit message")
		c.trySend(errorFrame("edit failed"))
		return
	}
	metrics.WsBroadcastsTotal.WithLabelValues(FrameMessageEdited).Inc()
	c.hub.Broadcast(msg.RoomID, messageEditedFrame(msg.ID, msg.Content))
}

func (c *Client) handleDelete(in InboundFrame) {
	msg, err := c.msgSvc.Delete(in.MessageID, c.display)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return
	case errors.Is(err, service.ErrNotOwner):
		c.trySend(errorFrame("not your message"))
		return
	case err != nil:
		log.Error().Err(err).Uint("message_id", in.MessageID).Msg("delete message")
		c.trySend(errorFrame("delete failed"))
		return
	}
	metrics.WsBroadcastsTotal.WithLabelValues(FrameMessageDeleted).Inc()
	c.hub.Broadcast(msg.RoomID, messageDeletedFrame(msg.ID))
}

func (c *Client) handleReact(in InboundFrame) {
	if in.Emoji == "" {
		return
	}
	msg, err := c.msgSvc.React(in.MessageID, in.Emoji, in.Remove)
	if err != nil {
		log.Error().Err(err).Uint("message_id", in.MessageID).Msg("react message")
		c.trySend(errorFrame("reaction failed"))
		return
	}
	if msg == nil {
		// 消息不存在：静默 no-op
		return
	}
	metrics.WsBroadcastsTotal.WithLabelValues(FrameMessageReacted).Inc()
	c.hub.Broadcast(msg.RoomID, messageReactedFrame(msg.ID, msg.Reactions))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
