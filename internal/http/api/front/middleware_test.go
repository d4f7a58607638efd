package front

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/auth"
	"github.com/router-for-me/marketplace-core/internal/db"
	"github.com/router-for-me/marketplace-core/internal/http/api/front/handlers"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/security"
	"gorm.io/gorm"
)

const testSecret = "jwt-secret"

func newAuth(t *testing.T) (*gorm.DB, *auth.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "front.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn, auth.NewService(conn, auth.Settings{JWTSecret: testSecret, OTPSecret: "otp-secret"}, nil)
}

func sessionFor(t *testing.T, conn *gorm.DB, blocked bool) (models.User, string) {
	t.Helper()
	user := models.User{
		FullName:     "Hina",
		FatherName:   "Tariq",
		CNIC:         "35202-7777777-7",
		Phone:        "+923337777777",
		Email:        "hina@example.pk",
		PasswordHash: "x",
		City:         "Multan",
		DateOfBirth:  time.Date(1994, 8, 2, 0, 0, 0, 0, time.UTC),
		Gender:       models.GenderFemale,
		IsBlocked:    blocked,
	}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	token, errToken := security.IssueSessionToken(testSecret, time.Hour, user, time.Now().UTC())
	if errToken != nil {
		t.Fatalf("issue token: %v", errToken)
	}
	return user, token
}

func serve(engine *gin.Engine, header string) (int, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func probe(middleware gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.GET("/probe", middleware, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": handlers.CurrentUserID(c)})
	})
	return engine
}

func TestAuthMiddleware(t *testing.T) {
	conn, authService := newAuth(t)
	user, token := sessionFor(t, conn, false)
	engine := probe(AuthMiddleware(authService))

	cases := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized, message: "missing authorization header"},
		{name: "scheme", header: "Token " + token, status: http.StatusUnauthorized, message: "invalid authorization format"},
		{name: "empty", header: "Bearer   ", status: http.StatusUnauthorized, message: "empty token"},
		{name: "garbage", header: "Bearer not-a-jwt", status: http.StatusUnauthorized, message: "invalid session token"},
	}
	for _, tc := range cases {
		code, body := serve(engine, tc.header)
		if code != tc.status || body["message"] != tc.message {
			t.Fatalf("%s: got %d %v", tc.name, code, body)
		}
	}

	code, body := serve(engine, "Bearer "+token)
	if code != http.StatusOK || body["userId"] != float64(user.ID) {
		t.Fatalf("valid token: got %d %v", code, body)
	}
}

func TestAuthMiddlewareRejectsBlockedUser(t *testing.T) {
	conn, authService := newAuth(t)
	_, token := sessionFor(t, conn, true)
	code, body := serve(probe(AuthMiddleware(authService)), "Bearer "+token)
	if code != http.StatusForbidden || body["error"] != "FORBIDDEN" {
		t.Fatalf("blocked user: got %d %v", code, body)
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	conn, authService := newAuth(t)
	user, token := sessionFor(t, conn, false)
	engine := probe(OptionalAuthMiddleware(authService))

	if code, body := serve(engine, ""); code != http.StatusOK || body["userId"] != float64(0) {
		t.Fatalf("anonymous: got %d %v", code, body)
	}
	if code, body := serve(engine, "Bearer "+token); code != http.StatusOK || body["userId"] != float64(user.ID) {
		t.Fatalf("authenticated: got %d %v", code, body)
	}
	if code, _ := serve(engine, "Bearer broken"); code != http.StatusUnauthorized {
		t.Fatalf("bad token should not fall back to anonymous, got %d", code)
	}
}
