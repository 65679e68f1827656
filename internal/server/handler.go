package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"facultylink/internal/auth"
	"facultylink/internal/metrics"
	"facultylink/internal/models"
	"facultylink/internal/service"
	"facultylink/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层与 Hub。
type Handler struct {
	db        *gorm.DB
	hub       *ws.Hub
	userSvc   *service.UserService
	roomSvc   *service.RoomService
	msgSvc    *service.MessageService
	notifSvc  *service.NotificationService
	uploadDir string
}

func NewHandler(db *gorm.DB, hub *ws.Hub, userSvc *service.UserService, roomSvc *service.RoomService, msgSvc *service.MessageService, notifSvc *service.NotificationService, uploadDir string) *Handler {
	return &Handler{db: db, hub: hub, userSvc: userSvc, roomSvc: roomSvc, msgSvc: msgSvc, notifSvc: notifSvc, uploadDir: uploadDir}
}

// Register 处理教职工注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Department  string `json:"department"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	result, err := h.userSvc.Register(req.Username, req.Password, req.DisplayName, strings.TrimSpace(req.Department))
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Login 处理登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user": gin.H{
			"id":           result.User.ID,
			"username":     result.User.Username,
			"display_name": result.User.DisplayName,
			"role":         result.User.Role,
			"department":   result.User.Department,
		},
	})
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": result.AccessToken, "refresh_token": result.RefreshToken})
}

// CreateRoom 管理员创建 custom 房间，成功后向所有在线连接广播 new_room。
func (h *Handler) CreateRoom(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Name) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
		return
	}
	room, err := h.roomSvc.Create(req.Name, auth.GetUserID(c))
	if err != nil {
		log.Error().Err(err).Uint("owner_id", auth.GetUserID(c)).Str("name", req.Name).Msg("create room")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to create room"})
		return
	}
	dto := ws.RoomDTO{ID: room.ID, Name: room.Name, Type: room.Type, Department: room.Department}
	metrics.WsBroadcastsTotal.WithLabelValues(ws.FrameNewRoom).Inc()
	h.hub.BroadcastAll(ws.NewRoomFrame(dto))
	c.JSON(http.StatusOK, gin.H{"room": dto})
}

// DeleteRoom 管理员删除房间，默认房间受保护。
func (h *Handler) DeleteRoom(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	if err := h.roomSvc.Delete(uint(roomID)); err != nil {
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		case errors.Is(err, service.ErrRoomNotDeletable):
			c.JSON(http.StatusForbidden, gin.H{"error": "default rooms are not deletable"})
		default:
			log.Error().Err(err).Int("room_id", roomID).Msg("delete room")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete room"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": roomID})
}

// ListRooms 处理获取房间列表请求。
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.roomSvc.List(100)
	if err != nil {
		log.Error().Err(err).Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// ListMessages 是历史查询的 REST 镜像，与 join 回放同一套语义。
func (h *Handler) ListMessages(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	var beforeID uint
	if bid := c.Query("before_id"); bid != "" {
		if v, err := strconv.Atoi(bid); err == nil && v > 0 {
			beforeID = uint(v)
		}
	}
	msgs, err := h.msgSvc.ListByRoom(uint(roomID), limit, beforeID)
	if err != nil {
		log.Error().Err(err).Int("room_id", roomID).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	out := make([]ws.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ws.ToMessageDTO(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// UploadImage 接收 multipart 图片，落盘后走 Send 的图片变体并广播。
func (h *Handler) UploadImage(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	if _, err := h.roomSvc.Exists(uint(roomID)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image"})
		return
	}
	if file.Size > 10<<20 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image too large"})
		return
	}
	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		log.Error().Err(err).Msg("upload dir")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	name := uuid.NewString() + filepath.Ext(file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, name)); err != nil {
		log.Error().Err(err).Msg("save upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	user := auth.GetUser(c)
	msg, err := h.msgSvc.AttachImage(uint(roomID), user.DisplayName, c.PostForm("caption"), "/uploads/"+name)
	if err != nil {
		log.Error().Err(err).Int("room_id", roomID).Msg("attach image")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	dto := ws.ToMessageDTO(*msg)
	metrics.WsMessagesTotal.Inc()
	metrics.WsBroadcastsTotal.WithLabelValues(ws.FrameNewMessage).Inc()
	h.hub.Broadcast(uint(roomID), ws.NewMessageFrame(dto))
	c.JSON(http.StatusOK, gin.H{"message": dto})
}

// CreateNotification 发布通知。权限与可见范围在 service 层校验，
// 推送 fanout 对本请求 fire-and-forget。
func (h *Handler) CreateNotification(c *gin.Context) {
	var req struct {
		Scope      string  `json:"scope"`
		Category   string  `json:"category"`
		Title      string  `json:"title"`
		Body       string  `json:"body"`
		Department *string `json:"department"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || strings.TrimSpace(req.Body) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	n, err := h.notifSvc.Create(auth.GetUser(c), req.Scope, req.Category, req.Title, req.Body, req.Department)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to post this notification"})
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scope"})
		default:
			log.Error().Err(err).Msg("create notification")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": n})
}

// ListNotifications 返回当前用户可见的通知。
func (h *Handler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	out, err := h.notifSvc.ListVisible(auth.GetUser(c), limit)
	if err != nil {
		log.Error().Err(err).Msg("list notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": out})
}

// DeleteNotification 允许作者、admin 或 principal 删除。
func (h *Handler) DeleteNotification(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	if err := h.notifSvc.Delete(auth.GetUser(c), uint(id)); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		default:
			log.Error().Err(err).Int("notification_id", id).Msg("delete notification")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete notification"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// ReactNotification 调整通知的 reaction 计数。
func (h *Handler) ReactNotification(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	var req struct {
		Emoji  string `json:"emoji"`
		Remove bool   `json:"remove"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Emoji == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	reactions, err := h.notifSvc.React(auth.GetUser(c), uint(id), req.Emoji, req.Remove)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		default:
			log.Error().Err(err).Int("notification_id", id).Msg("react notification")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to react"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

// CommentNotification 给通知追加一条评论。
func (h *Handler) CommentNotification(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	comment, err := h.notifSvc.Comment(auth.GetUser(c), uint(id), strings.TrimSpace(req.Body))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		case errors.Is(err, service.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
		default:
			log.Error().Err(err).Int("notification_id", id).Msg("comment notification")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to comment"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment": comment})
}

// SubscribePush 保存浏览器推送订阅，端点唯一，重复提交做 upsert。
func (h *Handler) SubscribePush(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	sub := models.PushSubscription{
		UserID:   auth.GetUserID(c),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	err := h.db.Where(models.PushSubscription{Endpoint: req.Endpoint}).
		Assign(models.PushSubscription{UserID: sub.UserID, P256dh: sub.P256dh, Auth: sub.Auth}).
		FirstOrCreate(&sub).Error
	if err != nil {
		log.Error().Err(err).Uint("user_id", sub.UserID).Msg("save push subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": true})
}

// UnsubscribePush 删除当前用户的某个推送端点。
func (h *Handler) UnsubscribePush(c *gin.Context) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	err := h.db.Where("user_id = ? AND endpoint = ?", auth.GetUserID(c), req.Endpoint).
		Delete(&models.PushSubscription{}).Error
	if err != nil {
		log.Error().Err(err).Msg("delete push subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unsubscribed": true})
}
