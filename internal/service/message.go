package service

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"facultylink/internal/models"

	"gorm.io/gorm"
)

// MessageService 封装消息生命周期：创建、编辑、删除、reaction 与历史查询。
// 广播由调用方（WebSocket 层 / HTTP handler）完成，这里只负责持久化与校验。
type MessageService struct {
	db            *gorm.DB
	historyWindow int
	imageTTL      time.Duration
	uploadDir     string
}

func NewMessageService(db *gorm.DB, historyWindow, imageTTLHours int, uploadDir string) *MessageService {
	if historyWindow <= 0 {
		historyWindow = 50
	}
	return &MessageService{
		db:            db,
		historyWindow: historyWindow,
		imageTTL:      time.Duration(imageTTLHours) * time.Hour,
		uploadDir:     uploadDir,
	}
}

// HistoryWindow 返回 join 回放的最大条数。
func (s *MessageService) HistoryWindow() int { return s.historyWindow }

// ListByRoom 返回房间最近的消息，升序（最老在前）。存储按 id 降序取最近
// 一窗，再反转成对客户端追加友好的时间线。
func (s *MessageService) ListByRoom(roomID uint, limit int, beforeID uint) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = s.historyWindow
	}

	q := s.db.Where("room_id = ?", roomID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []models.Message
	if err := q.Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}

	// 反转为升序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Send 持久化一条新消息，reactions 初始化为空。返回带服务端 id 与时间戳
// 的完整记录，调用方拿它去广播。
func (s *MessageService) Send(roomID uint, sender, content string, formatting *models.Formatting, replyTo string) (*models.Message, error) {
	msg := models.Message{
		RoomID:     roomID,
		Sender:     sender,
		Content:    content,
		Formatting: formatting,
		ReplyTo:    replyTo,
		Reactions:  models.ReactionMap{},
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// AttachImage 是 Send 的图片变体：没有说明文字时用占位符，过期时间为
// 当前时间加配置的小时数，到期后由清扫任务摘除图片。
func (s *MessageService) AttachImage(roomID uint, sender, caption, imageURL string) (*models.Message, error) {
	if strings.TrimSpace(caption) == "" {
		caption = "[image]"
	}
	expires := time.Now().Add(s.imageTTL)
	msg := models.Message{
		RoomID:         roomID,
		Sender:         sender,
		Content:        caption,
		ImageURL:       &imageURL,
		ImageExpiresAt: &expires,
		Reactions:      models.ReactionMap{},
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// Edit 只允许发送者本人修改。成功时置 edited 标记，返回更新后的记录，
// 调用方用它定位广播的房间。
func (s *MessageService) Edit(messageID uint, editor, content string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if msg.Sender != editor {
		return nil, ErrNotOwner
	}
	if err := s.db.Model(&msg).Updates(map[string]interface{}{"content": content, "edited": true}).Error; err != nil {
		return nil, err
	}
	msg.Content = content
	msg.Edited = true
	return &msg, nil
}

// Delete 只允许发送者本人删除，行硬删除；消息带图时顺手清掉落盘文件。
func (s *MessageService) Delete(messageID uint, requester string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if msg.Sender != requester {
		return nil, ErrNotOwner
	}
	if err := s.db.Delete(&msg).Error; err != nil {
		return nil, err
	}
	if msg.ImageURL != nil {
		_ = os.Remove(filepath.Join(s.uploadDir, filepath.Base(*msg.ImageURL)))
	}
	return &msg, nil
}

// React 调整某条消息的 reaction 计数。消息不存在时返回 (nil, nil)，
// 调用方按 no-op 处理，不广播也不报错。计数在这一层保证不为负；
// 同一用户重复 reaction 不去重，并发突发下的丢增量是接受的局限。
func (s *MessageService) React(messageID uint, emoji string, remove bool) (*models.Message, error) {
	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if msg.Reactions == nil {
		msg.Reactions = models.ReactionMap{}
	}
	delta := 1
	if remove {
		delta = -1
	}
	msg.Reactions.Add(emoji, delta)
	if err := s.db.Model(&msg).Update("reactions", msg.Reactions).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}
