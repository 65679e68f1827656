package main

import (
	"context"

	"facultylink/internal/ai"
	"facultylink/internal/config"
	"facultylink/internal/db"
	clog "facultylink/internal/log"
	"facultylink/internal/push"
	"facultylink/internal/server"
	"facultylink/internal/sweep"
	"facultylink/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	if err := db.SeedRooms(gdb, cfg); err != nil {
		log.Fatal().Err(err).Msg("db seed rooms")
	}

	sweeper, err := sweep.New(gdb, cfg.UploadDir, cfg.SweepCron)
	if err != nil {
		log.Fatal().Err(err).Msg("sweeper init")
	}
	stopSweep := sweeper.Start(context.Background())
	defer stopSweep()

	fanout := push.NewFanout(gdb, push.NewWebPushSender(cfg))
	aiClient := ai.NewClient(cfg.AIURL, cfg.AIModel)

	hub := ws.NewHub()
	r := server.SetupRouter(cfg, gdb, hub, aiClient, fanout)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
