package service

import (
	"errors"
	"time"

	"facultylink/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dispatcher 在通知落库后异步推送给受众，由 push 包实现。
type Dispatcher interface {
	Dispatch(n models.Notification)
}

// noopDispatcher 用于未配置推送的部署与测试。
type noopDispatcher struct{}

func (noopDispatcher) Dispatch(models.Notification) {}

// NotificationService 封装通知的创建、可见性过滤、reaction 与评论。
type NotificationService struct {
	db       *gorm.DB
	dispatch Dispatcher
}

func NewNotificationService(db *gorm.DB, dispatch Dispatcher) *NotificationService {
	if dispatch == nil {
		dispatch = noopDispatcher{}
	}
	return &NotificationService{db: db, dispatch: dispatch}
}

var validCategories = map[string]bool{
	models.CategoryUrgent:        true,
	models.CategoryRegular:       true,
	models.CategoryInformational: true,
}

// Create 校验发布权限后落库，并触发异步推送。全局通知只有提升角色
// 能发；院系定向通知要求发布者属于该院系或为提升角色。推送失败不影响
// 本次调用的结果。
func (s *NotificationService) Create(author models.User, scope, category, title, body string, department *string) (*models.Notification, error) {
	if !validCategories[category] {
		category = models.CategoryRegular
	}
	switch scope {
	case models.ScopeGeneral:
		if !author.Elevated() {
			return nil, ErrForbidden
		}
		department = nil
	case models.ScopeDepartment:
		if department == nil || *department == "" {
			return nil, ErrNotFound
		}
		if !author.Elevated() && author.Department != *department {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrNotFound
	}

	n := models.Notification{
		Scope:      scope,
		Category:   category,
		Title:      title,
		Body:       body,
		Author:     author.DisplayName,
		AuthorID:   author.ID,
		Department: department,
		Reactions:  models.ReactionMap{},
		Comments:   models.CommentList{},
	}
	if err := s.db.Create(&n).Error; err != nil {
		return nil, err
	}
	go s.dispatch.Dispatch(n)
	return &n, nil
}

// ListVisible 按可见性规则返回通知：全局通知所有人可见，院系定向的
// 只给院系成员和提升角色。
func (s *NotificationService) ListVisible(viewer models.User, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	q := s.db.Order("id desc").Limit(limit)
	if !viewer.Elevated() {
		q = q.Where("scope = ? OR department = ?", models.ScopeGeneral, viewer.Department)
	}
	var out []models.Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Delete 允许原作者和 admin 删除任何通知；principal 的管辖权只覆盖
// 院系定向通知，别人发的全局通知删不了。
func (s *NotificationService) Delete(requester models.User, id uint) error {
	var n models.Notification
	if err := s.db.First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !canDeleteNotification(requester, n) {
		return ErrForbidden
	}
	return s.db.Delete(&n).Error
}

func canDeleteNotification(requester models.User, n models.Notification) bool {
	if n.AuthorID == requester.ID || requester.Role == models.RoleAdmin {
		return true
	}
	return requester.Role == models.RolePrincipal && n.Scope == models.ScopeDepartment
}

// React 调整通知的 reaction 计数，计数不为负，按用户不去重。
func (s *NotificationService) React(viewer models.User, id uint, emoji string, remove bool) (models.ReactionMap, error) {
	var n models.Notification
	if err := s.db.First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !n.VisibleTo(viewer) {
		return nil, ErrForbidden
	}
	if n.Reactions == nil {
		n.Reactions = models.ReactionMap{}
	}
	delta := 1
	if remove {
		delta = -1
	}
	n.Reactions.Add(emoji, delta)
	if err := s.db.Model(&n).Update("reactions", n.Reactions).Error; err != nil {
		return nil, err
	}
	return n.Reactions, nil
}

// Comment 追加一条内嵌评论。评论只追加不重排。
func (s *NotificationService) Comment(viewer models.User, id uint, body string) (*models.Comment, error) {
	var n models.Notification
	if err := s.db.First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !n.VisibleTo(viewer) {
		return nil, ErrForbidden
	}
	comment := models.Comment{
		ID:        uuid.NewString(),
		Author:    viewer.DisplayName,
		Body:      body,
		CreatedAt: time.Now(),
	}
	n.Comments = append(n.Comments, comment)
	if err := s.db.Model(&n).Update("comments", n.Comments).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}
