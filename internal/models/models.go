package models

import "time"

// 角色常量，权限从低到高：faculty < principal < admin。
const (
	RoleFaculty   = "faculty"
	RolePrincipal = "principal"
	RoleAdmin     = "admin"
)

// 房间类型常量。general 全系统唯一，department 随配置的院系初始化，
// custom 由管理员按需创建。
const (
	RoomGeneral    = "general"
	RoomDepartment = "department"
	RoomCustom     = "custom"
)

// 通知的可见范围与级别常量。
const (
	ScopeGeneral    = "general"
	ScopeDepartment = "department"

	CategoryUrgent        = "urgent"
	CategoryRegular       = "regular"
	CategoryInformational = "informational"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	DisplayName  string `gorm:"size:128;not null"`
	Role         string `gorm:"size:16;not null;default:faculty"`
	Department   string `gorm:"size:128;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Elevated 判断用户是否属于提升角色（可见所有院系定向内容）。
func (u User) Elevated() bool {
	return u.Role == RoleAdmin || u.Role == RolePrincipal
}

type Room struct {
	ID         uint   `gorm:"primaryKey"`
	Name       string `gorm:"uniqueIndex;size:128;not null"`
	Type       string `gorm:"size:16;not null;default:custom;index"`
	Department string `gorm:"size:128"`
	CreatorID  uint   `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Deletable 默认房间（general、department）不可删除。
func (r Room) Deletable() bool {
	return r.Type == RoomCustom
}

type Message struct {
	ID             uint        `gorm:"primaryKey"`
	RoomID         uint        `gorm:"index:idx_msg_room_id;not null"`
	Sender         string      `gorm:"size:128;not null"`
	Content        string      `gorm:"type:text;not null"`
	Formatting     *Formatting `gorm:"type:jsonb"`
	ImageURL       *string     `gorm:"size:512"`
	ImageExpiresAt *time.Time  `gorm:"index"`
	ReplyTo        string      `gorm:"type:text"`
	Edited         bool        `gorm:"not null;default:false"`
	Reactions      ReactionMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt      time.Time
}

type Notification struct {
	ID         uint        `gorm:"primaryKey"`
	Scope      string      `gorm:"size:16;not null;index"`
	Category   string      `gorm:"size:16;not null"`
	Title      string      `gorm:"size:256;not null"`
	Body       string      `gorm:"type:text;not null"`
	Author     string      `gorm:"size:128;not null"`
	AuthorID   uint        `gorm:"not null"`
	Department *string     `gorm:"size:128;index"`
	Reactions  ReactionMap `gorm:"type:jsonb;not null;default:'{}'"`
	Comments   CommentList `gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt  time.Time
}

// VisibleTo 院系定向通知只对该院系成员与提升角色可见。
func (n Notification) VisibleTo(u User) bool {
	if n.Scope != ScopeDepartment || n.Department == nil {
		return true
	}
	return u.Elevated() || u.Department == *n.Department
}

type PushSubscription struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index;not null"`
	Endpoint  string `gorm:"uniqueIndex;size:512;not null"`
	P256dh    string `gorm:"size:256;not null"`
	Auth      string `gorm:"size:256;not null"`
	CreatedAt time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
