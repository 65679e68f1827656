package db

import (
	"time"

	"facultylink/internal/config"
	"facultylink/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect 负责建立到 Postgres 的连接，并带有简单的重试来等待容器就绪。
func Connect(dsn string) (*gorm.DB, error) {
	var gdb *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		gdb, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetMaxOpenConns(20)
				sqlDB.SetConnMaxLifetime(time.Hour)
				return gdb, nil
			}
			err = err2
		}
		time.Sleep(time.Duration(500+i*200) * time.Millisecond)
	}
	return nil, err
}

// Migrate 自动迁移门户涉及的全部表结构。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Message{},
		&models.Notification{},
		&models.PushSubscription{},
		&models.RefreshToken{},
	)
}

// SeedRooms 保证默认房间存在：一个 general 房间加每个院系一个房间。
// 幂等，重启不会重复建房。
func SeedRooms(gdb *gorm.DB, cfg config.Config) error {
	general := models.Room{Name: "General", Type: models.RoomGeneral}
	if err := gdb.Where(models.Room{Type: models.RoomGeneral}).FirstOrCreate(&general).Error; err != nil {
		return err
	}
	for _, dept := range cfg.Departments {
		room := models.Room{Name: dept, Type: models.RoomDepartment, Department: dept}
		if err := gdb.Where(models.Room{Type: models.RoomDepartment, Department: dept}).FirstOrCreate(&room).Error; err != nil {
			return err
		}
	}
	return nil
}
