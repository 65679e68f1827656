package service

import (
	"fmt"
	"testing"

	"facultylink/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB 连接本地 Postgres，连不上就跳过（与 CI 的容器环境配合）。
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "host=localhost user=postgres password=postgres dbname=facultylink_test port=5432 sslmode=disable TimeZone=UTC"
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	err = gdb.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Message{},
		&models.Notification{},
		&models.PushSubscription{},
		&models.RefreshToken{},
	)
	if err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	for _, table := range []string{"messages", "notifications", "push_subscriptions", "rooms", "users", "refresh_tokens"} {
		gdb.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table))
	}
	return gdb
}

func seedRoom(t *testing.T, gdb *gorm.DB, name, typ string) models.Room {
	t.Helper()
	room := models.Room{Name: name, Type: typ}
	if err := gdb.Create(&room).Error; err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return room
}

func seedUser(t *testing.T, gdb *gorm.DB, username, role, department string) models.User {
	t.Helper()
	user := models.User{
		Username:     username,
		PasswordHash: "x",
		DisplayName:  username,
		Role:         role,
		Department:   department,
	}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}
