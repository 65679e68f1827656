package sweep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"facultylink/internal/metrics"
	"facultylink/internal/models"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Sweeper 周期扫描图片已过期的消息：删除落盘文件、清空两个图片字段，
// 消息行与文字内容保留。过程不广播，客户端在下一次历史拉取时看到
// 清空后的结果。
type Sweeper struct {
	db        *gorm.DB
	uploadDir string
	cron      string
}

func New(db *gorm.DB, uploadDir, cron string) (*Sweeper, error) {
	if cron == "" {
		cron = "0 * * * *"
	}
	if !gronx.IsValid(cron) {
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cron)
	}
	return &Sweeper{db: db, uploadDir: uploadDir, cron: cron}, nil
}

// Start 启动调度 goroutine，返回停止用的 cancel。每次醒来都按 cron
// 表达式算下一跳再睡过去。
func (s *Sweeper) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go s.run(ctx)
	log.Info().Str("cron", s.cron).Msg("image sweeper started")
	return cancel
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cron, time.Now(), false)
		if err != nil {
			log.Error().Err(err).Str("cron", s.cron).Msg("sweep schedule")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		if n, err := s.RunOnce(); err != nil {
			log.Error().Err(err).Msg("image sweep")
		} else if n > 0 {
			log.Info().Int("cleared", n).Msg("image sweep")
		}
	}
}

// RunOnce 执行一轮清扫并返回清掉的图片数量。
func (s *Sweeper) RunOnce() (int, error) {
	var expired []models.Message
	err := s.db.Where("image_url IS NOT NULL AND image_expires_at <= ?", time.Now()).Find(&expired).Error
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, msg := range expired {
		if msg.ImageURL != nil {
			if err := os.Remove(filepath.Join(s.uploadDir, filepath.Base(*msg.ImageURL))); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Uint("message_id", msg.ID).Msg("remove expired image file")
			}
		}
		err := s.db.Model(&models.Message{}).Where("id = ?", msg.ID).
			Updates(map[string]interface{}{"image_url": nil, "image_expires_at": nil}).Error
		if err != nil {
			log.Error().Err(err).Uint("message_id", msg.ID).Msg("clear expired image fields")
			continue
		}
		cleared++
		metrics.SweptImagesTotal.Inc()
	}
	return cleared, nil
}
