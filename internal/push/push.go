package push

import (
	"encoding/json"
	"net/http"
	"sync"

	"facultylink/internal/config"
	"facultylink/internal/metrics"
	"facultylink/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Sender 发送一条推送并返回 HTTP 状态码，生产实现走 Web Push 协议。
type Sender interface {
	Send(sub models.PushSubscription, payload []byte) (int, error)
}

// WebPushSender 用 VAPID 密钥对经浏览器推送服务投递。
type WebPushSender struct {
	publicKey  string
	privateKey string
	subscriber string
}

func NewWebPushSender(cfg config.Config) *WebPushSender {
	return &WebPushSender{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: cfg.VAPIDSubject,
	}
}

func (s *WebPushSender) Send(sub models.PushSubscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             60,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Fanout 在通知落库后解析受众并异步推送。对触发它的 HTTP 请求而言是
// fire-and-forget：单个端点失败只影响它自己。
type Fanout struct {
	db     *gorm.DB
	sender Sender
}

func NewFanout(db *gorm.DB, sender Sender) *Fanout {
	return &Fanout{db: db, sender: sender}
}

// pushPayload 是推送端点收到的 JSON 载荷。
type pushPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category"`
}

// Dispatch 解析受众、取各自的推送订阅并逐端点独立投递。回 410（或
// 404）的陈旧端点被静默剪除，不影响其余接收者。
func (f *Fanout) Dispatch(n models.Notification) {
	userIDs, err := f.resolveAudience(n)
	if err != nil {
		log.Error().Err(err).Uint("notification_id", n.ID).Msg("resolve push audience")
		return
	}
	if len(userIDs) == 0 {
		return
	}

	var subs []models.PushSubscription
	if err := f.db.Where("user_id IN ?", userIDs).Find(&subs).Error; err != nil {
		log.Error().Err(err).Uint("notification_id", n.ID).Msg("load push subscriptions")
		return
	}

	payload, _ := json.Marshal(pushPayload{Title: n.Title, Body: n.Body, Category: n.Category})

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub models.PushSubscription) {
			defer wg.Done()
			f.deliver(sub, payload)
		}(sub)
	}
	wg.Wait()
}

// resolveAudience 全局通知发给所有人；院系定向的发给院系成员加提升角色。
func (f *Fanout) resolveAudience(n models.Notification) ([]uint, error) {
	q := f.db.Model(&models.User{})
	if n.Scope == models.ScopeDepartment && n.Department != nil {
		q = q.Where("department = ? OR role IN ?", *n.Department, []string{models.RoleAdmin, models.RolePrincipal})
	}
	var ids []uint
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (f *Fanout) deliver(sub models.PushSubscription, payload []byte) {
	status, err := f.sender.Send(sub, payload)
	if err != nil {
		metrics.PushDeliveriesTotal.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("push delivery")
		return
	}
	switch {
	case status == http.StatusGone || status == http.StatusNotFound:
		// 端点已失效，静默剪除
		metrics.PushDeliveriesTotal.WithLabelValues("stale").Inc()
		metrics.PushPrunedEndpoints.Inc()
		if err := f.db.Where("endpoint = ?", sub.Endpoint).Delete(&models.PushSubscription{}).Error; err != nil {
			log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("prune push subscription")
		}
	case status >= 200 && status < 300:
		metrics.PushDeliveriesTotal.WithLabelValues("ok").Inc()
	default:
		metrics.PushDeliveriesTotal.WithLabelValues("failed").Inc()
		log.Warn().Int("status", status).Str("endpoint", sub.Endpoint).Msg("push delivery rejected")
	}
}
