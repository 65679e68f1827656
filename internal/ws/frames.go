package ws

import (
	"encoding/json"
	"time"

	"facultylink/internal/models"
)

// 入站帧的 type 取值，封闭集合，未知类型一律丢弃。
const (
	FrameJoin    = "join"
	FrameMessage = "message"
	FrameEdit    = "edit"
	FrameDelete  = "delete"
	FrameReact   = "react"
)

// 出站帧的 type 取值。
const (
	FrameHistory        = "history"
	FrameNewMessage     = "new_message"
	FrameMessageEdited  = "message_edited"
	FrameMessageDeleted = "message_deleted"
	FrameMessageReacted = "message_reacted"
	FrameNewRoom        = "new_room"
	FrameError          = "error"
)

// InboundFrame 覆盖全部入站帧变体，按 Type 判别。
// 不认识的字段被 json 解码静默忽略，不认识的 Type 由读循环丢弃。
type InboundFrame struct {
	Type       string             `json:"type"`
	RoomID     uint               `json:"roomId,omitempty"`
	UserID     uint               `json:"userId,omitempty"`
	Sender     string             `json:"sender,omitempty"`
	Content    string             `json:"content,omitempty"`
	Formatting *models.Formatting `json:"formatting,omitempty"`
	ReplyTo    string             `json:"replyTo,omitempty"`
	MessageID  uint               `json:"messageId,omitempty"`
	Emoji      string             `json:"emoji,omitempty"`
	Remove     bool               `json:"remove,omitempty"`
}

// MessageDTO 是消息记录在线上（history、new_message）的完整形态。
type MessageDTO struct {
	ID             uint               `json:"id"`
	RoomID         uint               `json:"room_id"`
	Sender         string             `json:"sender"`
	Content        string             `json:"content"`
	Formatting     *models.Formatting `json:"formatting,omitempty"`
	ImageURL       *string            `json:"image_url,omitempty"`
	ImageExpiresAt *time.Time         `json:"image_expires_at,omitempty"`
	ReplyTo        string             `json:"reply_to,omitempty"`
	Edited         bool               `json:"edited"`
	Reactions      models.ReactionMap `json:"reactions"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ToMessageDTO 把存储模型转成线上形态。
func ToMessageDTO(m models.Message) MessageDTO {
	return MessageDTO{
		ID:             m.ID,
		RoomID:         m.RoomID,
		Sender:         m.Sender,
		Content:        m.Content,
		Formatting:     m.Formatting,
		ImageURL:       m.ImageURL,
		ImageExpiresAt: m.ImageExpiresAt,
		ReplyTo:        m.ReplyTo,
		Edited:         m.Edited,
		Reactions:      m.Reactions,
		CreatedAt:      m.CreatedAt,
	}
}

// RoomDTO 是 new_room 广播携带的房间形态。
type RoomDTO struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Department string `json:"department,omitempty"`
}

func historyFrame(msgs []MessageDTO) []byte {
	b, _ := json.Marshal(map[string]interface{}{"type": FrameHistory, "messages": msgs})
	return b
}

func NewMessageFrame(m MessageDTO) []byte {
	b, _ := json.Marshal(map[string]interface{}{"type": FrameNewMessage, "message": m})
	return b
}

// 编辑只广播 id 与新内容，保持线上负载最小。
func messageEditedFrame(id uint, content string) []byte {
	b, _ := json.Marshal(map[string]interface{}{"type": FrameMessageEdited, "messageId": id, "content": content})
	return b
}

func messageDeletedFrame(id uint) []byte {
	b, _ := json.Marshal(map[string]interface{}{"type": FrameMessageDeleted, "messageId": id})
	return b
}

func messageReactedFrame(id uint, reactions models.ReactionMap) []byte {
	b, _ := json.Marshal(map[string]interface{}{"type": FrameMessageReacted, "messageId": id, "reactions": reactions})
	return b
}

// NewRoomFrame 在管理员建房后发给所有在线连接，不限房间。
func NewRoomFrame(r RoomDTO) []byte {
	b, _ := json.Marshal(map[string]interface{}{"type": FrameNewRoom, "room": r})
	return b
}

// errorFrame 只发给出错请求的连接本身，不广播。
func errorFrame(reason string) []byte {
	b, _ := json.Marshal(map[string]interface{}{"type": FrameError, "error": reason})
	return b
}
