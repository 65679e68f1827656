package service

import (
	"errors"

	"facultylink/internal/models"

	"gorm.io/gorm"
)

// OnlineCounter 提供房间在线人数，由 WebSocket Hub 实现。
type OnlineCounter interface {
	Online(roomID uint) int
}

// RoomService 封装房间相关的业务逻辑。默认房间（general、院系）在
// 迁移阶段落库，这里只处理管理员手工创建的 custom 房间。
type RoomService struct {
	db     *gorm.DB
	online OnlineCounter
}

func NewRoomService(db *gorm.DB, online OnlineCounter) *RoomService {
	return &RoomService{db: db, online: online}
}

// RoomInfo 是对外输出的房间数据。
type RoomInfo struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Department string `json:"department,omitempty"`
	Online     int    `json:"online"`
}

// Create 创建 custom 房间。触发 new_room 全局广播是调用方的事。
func (s *RoomService) Create(name string, creatorID uint) (*models.Room, error) {
	room := models.Room{Name: name, Type: models.RoomCustom, CreatorID: creatorID}
	if err := s.db.Create(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// Delete 只允许删除 custom 房间，默认房间受保护。
func (s *RoomService) Delete(roomID uint) error {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	if !room.Deletable() {
		return ErrRoomNotDeletable
	}
	return s.db.Delete(&room).Error
}

// List 返回房间列表，附带各房间的在线人数。
func (s *RoomService) List(limit int) ([]RoomInfo, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var rooms []models.Room
	if err := s.db.Order("id asc").Limit(limit).Find(&rooms).Error; err != nil {
		return nil, err
	}
	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomInfo{ID: r.ID, Name: r.Name, Type: r.Type, Department: r.Department, Online: s.online.Online(r.ID)})
	}
	return out, nil
}

// Exists 检查房间是否存在。
func (s *RoomService) Exists(roomID uint) (*models.Room, error) {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}
