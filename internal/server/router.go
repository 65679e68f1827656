package server

import (
	"net/http"
	"time"

	"facultylink/internal/auth"
	"facultylink/internal/config"
	"facultylink/internal/metrics"
	"facultylink/internal/models"
	"facultylink/internal/mw"
	"facultylink/internal/service"
	"facultylink/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub, aiClient ws.AIResponder, dispatch service.Dispatcher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.AllowedOrigins))
	// 控制单个 IP+路由的速率，避免门户被刷爆。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	userSvc := service.NewUserService(db, cfg)
	roomSvc := service.NewRoomService(db, hub)
	msgSvc := service.NewMessageService(db, cfg.HistoryWindow, cfg.ImageTTLHours, cfg.UploadDir)
	notifSvc := service.NewNotificationService(db, dispatch)
	h := NewHandler(db, hub, userSvc, roomSvc, msgSvc, notifSvc, cfg.UploadDir)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.GET("/rooms", h.ListRooms)
	authed.POST("/rooms", auth.RequireRole(models.RoleAdmin), h.CreateRoom)
	authed.DELETE("/rooms/:id", auth.RequireRole(models.RoleAdmin), h.DeleteRoom)
	authed.GET("/rooms/:id/messages", h.ListMessages)
	authed.POST("/rooms/:id/images", h.UploadImage)

	authed.GET("/notifications", h.ListNotifications)
	authed.POST("/notifications", h.CreateNotification)
	authed.DELETE("/notifications/:id", h.DeleteNotification)
	authed.POST("/notifications/:id/reactions", h.ReactNotification)
	authed.POST("/notifications/:id/comments", h.CommentNotification)

	authed.POST("/push/subscriptions", h.SubscribePush)
	authed.DELETE("/push/subscriptions", h.UnsubscribePush)

	r.GET("/ws", ws.Serve(hub, db, cfg, msgSvc, roomSvc, aiClient))
	r.Static("/uploads", cfg.UploadDir)

	return r
}
