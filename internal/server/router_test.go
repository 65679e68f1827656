package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"facultylink/internal/config"
	"facultylink/internal/db"
	"facultylink/internal/models"
	"facultylink/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(models.Notification) {}

func testEngine(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		Port:                  "0",
		JWTSecret:             "test-secret",
		Env:                   "dev",
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLDays:   7,
		HistoryWindow:         50,
		ImageTTLHours:         24,
		UploadDir:             t.TempDir(),
		Departments:           []string{"Science", "Arts"},
	}
	gdb, err := db.Connect("host=localhost user=postgres password=postgres dbname=facultylink_test port=5432 sslmode=disable TimeZone=UTC")
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	for _, table := range []string{"refresh_tokens", "push_subscriptions", "messages", "notifications", "rooms", "users"} {
		if err := gdb.Exec("TRUNCATE TABLE " + table + " RESTART IDENTITY CASCADE").Error; err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	if err := db.SeedRooms(gdb, cfg); err != nil {
		t.Fatalf("seed rooms: %v", err)
	}
	return SetupRouter(cfg, gdb, ws.NewHub(), nil, noopDispatcher{}), gdb
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	engine, _ := testEngine(t)

	w := doJSON(t, engine, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuthFlowAndRoomListing(t *testing.T) {
	engine, _ := testEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/auth/register", "",
		gin.H{"username": "alice", "password": "password123", "display_name": "Dr. Alice", "department": "Science"})
	if w.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, engine, http.MethodPost, "/api/v1/auth/login", "",
		gin.H{"username": "alice", "password": "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil || login.AccessToken == "" {
		t.Fatalf("login response missing access_token: %s", w.Body.String())
	}

	if w = doJSON(t, engine, http.MethodGet, "/api/v1/rooms", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("rooms without token: expected 401, got %d", w.Code)
	}

	w = doJSON(t, engine, http.MethodGet, "/api/v1/rooms", login.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rooms: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var listing struct {
		Rooms []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"rooms"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	// 迁移时播种的默认房间：general 加每个院系一个。
	if len(listing.Rooms) != 3 {
		t.Errorf("expected 3 seeded rooms, got %d", len(listing.Rooms))
	}
}

func TestRoomCreationRequiresAdmin(t *testing.T) {
	engine, gdb := testEngine(t)

	doJSON(t, engine, http.MethodPost, "/api/v1/auth/register", "",
		gin.H{"username": "bob", "password": "password123", "department": "Arts"})
	w := doJSON(t, engine, http.MethodPost, "/api/v1/auth/login", "",
		gin.H{"username": "bob", "password": "password123"})
	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	w = doJSON(t, engine, http.MethodPost, "/api/v1/rooms", login.AccessToken, gin.H{"name": "Chess Club"})
	if w.Code != http.StatusForbidden {
		t.Errorf("faculty creating room: expected 403, got %d", w.Code)
	}

	// 提升为 admin 后重新登录拿带 admin 角色声明的 token。
	if err := gdb.Model(&models.User{}).Where("username = ?", "bob").Update("role", models.RoleAdmin).Error; err != nil {
		t.Fatalf("promote user: %v", err)
	}
	w = doJSON(t, engine, http.MethodPost, "/api/v1/auth/login", "",
		gin.H{"username": "bob", "password": "password123"})
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	w = doJSON(t, engine, http.MethodPost, "/api/v1/rooms", login.AccessToken, gin.H{"name": "Chess Club"})
	if w.Code != http.StatusOK {
		t.Errorf("admin creating room: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
