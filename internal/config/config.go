package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int

	// 院系列表，初始化时每个院系建一个默认房间。
	Departments []string

	// 前端部署在独立域名时需要显式放行的来源，dev 环境不做限制。
	AllowedOrigins []string

	HistoryWindow int
	ImageTTLHours int
	UploadDir     string
	SweepCron     string

	AIMarker string
	AIURL    string
	AIModel  string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func splitList(raw string) []string {
	out := []string{}
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 读取环境变量（可选叠加 .env 文件）并返回配置。
func Load() Config {
	_ = godotenv.Load()

	departments := splitList(getenv("DEPARTMENTS", "Science,Arts,Commerce"))
	origins := splitList(getenv("CORS_ORIGINS", ""))

	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=facultylink port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:             getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:                   getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes: getenvInt("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getenvInt("REFRESH_TOKEN_TTL_DAYS", 7),
		Departments:           departments,
		AllowedOrigins:        origins,
		HistoryWindow:         getenvInt("HISTORY_WINDOW", 50),
		ImageTTLHours:         getenvInt("IMAGE_TTL_HOURS", 24),
		UploadDir:             getenv("UPLOAD_DIR", "./uploads"),
		SweepCron:             getenv("IMAGE_SWEEP_CRON", "0 * * * *"),
		AIMarker:              getenv("AI_MARKER", "@ai"),
		AIURL:                 getenv("AI_URL", "http://localhost:11434"),
		AIModel:               getenv("AI_MODEL", "llama3"),
		VAPIDPublicKey:        getenv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey:       getenv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:          getenv("VAPID_SUBJECT", "mailto:admin@facultylink.local"),
	}
}

// Validate 校验配置的硬性要求，非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port must not be empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn must not be empty")
	}
	if cfg.JWTSecret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("default jwt secret is not allowed outside dev")
	}
	if cfg.HistoryWindow <= 0 {
		return errors.New("history window must be positive")
	}
	return nil
}
