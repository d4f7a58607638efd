package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/marketplace-core/internal/config"
	"github.com/router-for-me/marketplace-core/internal/models"
	"github.com/router-for-me/marketplace-core/internal/security"
)

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	return newRuntimeWith(t, nil)
}

func newRuntimeWith(t *testing.T, tweak func(cfg *config.Config)) *Runtime {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Defaults()
	cfg.Env = "test"
	cfg.DatabaseDSN = "file:" + filepath.Join(t.TempDir(), "app.db")
	cfg.JWT.Secret = "jwt-secret"
	cfg.OTP.Secret = "otp-secret"
	cfg.FingerprintSalt = "salt"
	cfg.AdminEmails = []string{"Admin@Example.pk"}
	cfg.Media.SigningSecret = "media-secret"
	cfg.Media.PublicBaseURL = "https://cdn.example.pk"
	if tweak != nil {
		tweak(&cfg)
	}

	rt, errBuild := Build(context.Background(), cfg)
	if errBuild != nil {
		t.Fatalf("build: %v", errBuild)
	}
	t.Cleanup(rt.Close)
	return rt
}

func (rt *Runtime) createUser(t *testing.T, n int, email string) (models.User, string) {
	t.Helper()
	user := models.User{
		FullName:     fmt.Sprintf("User %d", n),
		FatherName:   "Father",
		CNIC:         fmt.Sprintf("35202-900000%d-1", n),
		Phone:        fmt.Sprintf("+92302000000%d", n),
		Email:        email,
		PasswordHash: "x",
		City:         "Karachi",
		DateOfBirth:  time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		Gender:       models.GenderMale,
	}
	if errCreate := rt.DB.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	token, errToken := security.IssueSessionToken(rt.Config.JWT.Secret, rt.Config.JWT.Expiry, user, time.Now().UTC())
	if errToken != nil {
		t.Fatalf("issue token: %v", errToken)
	}
	return user, token
}

func call(t *testing.T, handler http.Handler, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:4321"
	req.Header.Set("User-Agent", "marketplace-test")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), errDecode)
		}
	}
	return rec.Code, out
}

func nested(t *testing.T, body map[string]any, key string) map[string]any {
	t.Helper()
	value, ok := body[key].(map[string]any)
	if !ok {
		t.Fatalf("expected object %q in %v", key, body)
	}
	return value
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	rt := newRuntime(t)
	router := rt.Router()

	for _, path := range []string{"/health", "/healthz"} {
		if code, body := call(t, router, http.MethodGet, path, "", nil); code != http.StatusOK || body["database"] != "ok" {
			t.Fatalf("%s: got %d %v", path, code, body)
		}
	}
	if code, body := call(t, router, http.MethodGet, "/nope", "", nil); code != http.StatusNotFound || body["error"] != "NOT_FOUND" {
		t.Fatalf("unknown route: got %d %v", code, body)
	}
	if code, body := call(t, router, http.MethodGet, "/auth/me", "", nil); code != http.StatusUnauthorized || body["error"] != "UNAUTHORIZED" {
		t.Fatalf("anonymous me: got %d %v", code, body)
	}
}

func TestSignupOverHTTP(t *testing.T) {
	rt := newRuntime(t)
	router := rt.Router()
	phone := "+923001112233"

	code, otp := call(t, router, http.MethodPost, "/auth/otp/request", "", map[string]any{"phone": phone, "purpose": "SIGNUP"})
	if code != http.StatusOK || otp["debugCode"] == nil {
		t.Fatalf("otp request: got %d %v", code, otp)
	}
	code, verified := call(t, router, http.MethodPost, "/auth/otp/verify", "", map[string]any{
		"requestId": otp["requestId"],
		"phone":     phone,
		"otp":       otp["debugCode"],
		"purpose":   "SIGNUP",
	})
	if code != http.StatusOK || verified["otpVerificationToken"] == nil {
		t.Fatalf("otp verify: got %d %v", code, verified)
	}
	code, session := call(t, router, http.MethodPost, "/auth/signup", "", map[string]any{
		"fullName":             "Bilal Ahmed",
		"fatherName":           "Ahmed Khan",
		"cnic":                 "35202-1234567-1",
		"phone":                phone,
		"email":                "bilal@example.pk",
		"password":             "correct-horse",
		"dateOfBirth":          "1995-03-14",
		"gender":               "male",
		"otpVerificationToken": verified["otpVerificationToken"],
	})
	if code != http.StatusCreated {
		t.Fatalf("signup: got %d %v", code, session)
	}
	token, _ := session["accessToken"].(string)
	if token == "" {
		t.Fatalf("expected access token in %v", session)
	}
	if _, hasHash := nested(t, session, "user")["passwordHash"]; hasHash {
		t.Fatalf("password hash leaked: %v", session)
	}

	code, me := call(t, router, http.MethodGet, "/auth/me", token, nil)
	if code != http.StatusOK {
		t.Fatalf("me: got %d %v", code, me)
	}
	user := nested(t, me, "user")
	if user["email"] != "bilal@example.pk" || user["trustScore"] == nil {
		t.Fatalf("unexpected profile: %v", user)
	}

	code, login := call(t, router, http.MethodPost, "/auth/login", "", map[string]any{"email": "bilal@example.pk", "phone": phone, "password": "correct-horse"})
	if code != http.StatusOK || login["accessToken"] == nil {
		t.Fatalf("login: got %d %v", code, login)
	}
	code, devices := call(t, router, http.MethodGet, "/auth/devices", token, nil)
	if list, _ := devices["devices"].([]any); code != http.StatusOK || len(list) != 1 {
		t.Fatalf("devices: got %d %v", code, devices)
	}
}

func TestListingModerationOverHTTP(t *testing.T) {
	rt := newRuntime(t)
	router := rt.Router()
	seller, sellerToken := rt.createUser(t, 1, "seller@example.pk")
	_, buyerToken := rt.createUser(t, 2, "buyer@example.pk")
	_, adminToken := rt.createUser(t, 3, "admin@example.pk")

	category := map[string]any{"name": "Mobiles", "slug": "Mobiles"}
	if code, body := call(t, router, http.MethodPost, "/admin/categories", sellerToken, category); code != http.StatusForbidden {
		t.Fatalf("non-admin category create: got %d %v", code, body)
	}
	code, created := call(t, router, http.MethodPost, "/admin/categories", adminToken, category)
	if code != http.StatusCreated || nested(t, created, "category")["slug"] != "mobiles" {
		t.Fatalf("category create: got %d %v", code, created)
	}
	categoryID := nested(t, created, "category")["id"]

	code, draft := call(t, router, http.MethodPost, "/listings", sellerToken, map[string]any{
		"categoryId":  categoryID,
		"title":       "Pixel 8",
		"description": "Lightly used, with box",
		"price":       120000,
		"allowChat":   true,
	})
	if code != http.StatusCreated || nested(t, draft, "listing")["status"] != "DRAFT" {
		t.Fatalf("create listing: got %d %v", code, draft)
	}
	listingID := int(nested(t, draft, "listing")["id"].(float64))

	if code, body := call(t, router, http.MethodGet, fmt.Sprintf("/listings/%d", listingID), "", nil); code != http.StatusNotFound {
		t.Fatalf("anonymous draft read: got %d %v", code, body)
	}
	if code, body := call(t, router, http.MethodPost, fmt.Sprintf("/listings/%d/activate", listingID), buyerToken, nil); code != http.StatusForbidden {
		t.Fatalf("foreign activate: got %d %v", code, body)
	}
	code, active := call(t, router, http.MethodPost, fmt.Sprintf("/listings/%d/activate", listingID), sellerToken, nil)
	if code != http.StatusOK || nested(t, active, "listing")["status"] != "ACTIVE" {
		t.Fatalf("activate: got %d %v", code, active)
	}

	code, feed := call(t, router, http.MethodGet, "/listings/feed?limit=5", "", nil)
	items, _ := feed["listings"].([]any)
	if code != http.StatusOK || len(items) != 1 {
		t.Fatalf("feed: got %d %v", code, feed)
	}
	sellerInfo := nested(t, items[0].(map[string]any), "seller")
	if sellerInfo["fullName"] != seller.FullName {
		t.Fatalf("unexpected seller summary: %v", sellerInfo)
	}
	if _, shown := sellerInfo["phone"]; shown {
		t.Fatalf("phone shown although showPhone is false: %v", sellerInfo)
	}

	code, thread := call(t, router, http.MethodPost, "/chat/threads", buyerToken, map[string]any{"listingId": listingID})
	if code != http.StatusOK {
		t.Fatalf("open thread: got %d %v", code, thread)
	}
	threadID := int(nested(t, thread, "thread")["id"].(float64))
	if code, body := call(t, router, http.MethodPost, fmt.Sprintf("/chat/threads/%d/messages", threadID), buyerToken, map[string]any{"content": "Is it available?"}); code != http.StatusCreated {
		t.Fatalf("send message: got %d %v", code, body)
	}

	code, paused := call(t, router, http.MethodPatch, fmt.Sprintf("/reports/listings/%d/deactivate", listingID), adminToken, nil)
	if code != http.StatusOK || nested(t, paused, "listing")["status"] != "PAUSED" {
		t.Fatalf("admin deactivate: got %d %v", code, paused)
	}
	code, closed := call(t, router, http.MethodPost, fmt.Sprintf("/chat/threads/%d/messages", threadID), buyerToken, map[string]any{"content": "Hello?"})
	if code < 400 {
		t.Fatalf("message on closed thread accepted: got %d %v", code, closed)
	}

	code, logs := call(t, router, http.MethodGet, "/admin/audit-logs?targetType=listing", adminToken, nil)
	entries, _ := logs["auditLogs"].([]any)
	if code != http.StatusOK || len(entries) != 1 || entries[0].(map[string]any)["action"] != "DEACTIVATE_LISTING" {
		t.Fatalf("audit logs: got %d %v", code, logs)
	}
}

func TestAdminFeatureFlagsOverHTTP(t *testing.T) {
	rt := newRuntime(t)
	router := rt.Router()
	_, userToken := rt.createUser(t, 1, "someone@example.pk")
	_, adminToken := rt.createUser(t, 2, "admin@example.pk")

	code, body := call(t, router, http.MethodPatch, "/admin/feature-flags/reporting_enabled", adminToken, map[string]any{"enabled": false})
	if code != http.StatusOK || nested(t, body, "flag")["enabled"] != false {
		t.Fatalf("toggle flag: got %d %v", code, body)
	}
	code, report := call(t, router, http.MethodPost, "/reports", userToken, map[string]any{"targetUserId": 2, "reason": "spam messages"})
	if code != http.StatusForbidden {
		t.Fatalf("report with reporting disabled: got %d %v", code, report)
	}
	if code, body := call(t, router, http.MethodPatch, "/admin/feature-flags/REPORTING_ENABLED", adminToken, map[string]any{}); code != http.StatusBadRequest {
		t.Fatalf("missing enabled: got %d %v", code, body)
	}
	if code, body := call(t, router, http.MethodGet, "/admin/feature-flags", userToken, nil); code != http.StatusForbidden {
		t.Fatalf("non-admin flag list: got %d %v", code, body)
	}
}

func TestMediaSignOverHTTP(t *testing.T) {
	rt := newRuntime(t)
	router := rt.Router()
	user, token := rt.createUser(t, 1, "uploader@example.pk")

	code, signed := call(t, router, http.MethodPost, "/media/sign-url", token, map[string]any{
		"path":      "listing/cover.jpg",
		"mediaType": "IMAGE",
		"mimeType":  "image/jpeg",
		"sizeBytes": 2048,
	})
	if code != http.StatusOK {
		t.Fatalf("sign: got %d %v", code, signed)
	}
	wantKey := fmt.Sprintf("uploads/%d/listing/cover.jpg", user.ID)
	if signed["key"] != wantKey || signed["fileUrl"] != "https://cdn.example.pk/"+wantKey {
		t.Fatalf("unexpected signed upload: %v", signed)
	}
	if code, body := call(t, router, http.MethodPost, "/media/sign-url", token, map[string]any{
		"path":      "listing/huge.png",
		"mediaType": "IMAGE",
		"mimeType":  "image/png",
		"sizeBytes": 20 << 20,
	}); code != http.StatusUnprocessableEntity {
		t.Fatalf("oversized image: got %d %v", code, body)
	}
}

func TestSweepRunsEveryJob(t *testing.T) {
	rt := newRuntime(t)
	if errSweep := rt.Sweep(context.Background()); errSweep != nil {
		t.Fatalf("sweep: %v", errSweep)
	}
}

func TestDefaultRateLimitCoversPublicRoutes(t *testing.T) {
	rt := newRuntimeWith(t, func(cfg *config.Config) {
		limit := 3
		cfg.RateLimits = map[string]config.RateLimitOverride{"default": {Max: &limit}}
	})
	router := rt.Router()

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.20:5555"
		req.Header.Set("User-Agent", "marketplace-test")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		rec := get("/listings/feed")
		if rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Limit") != "3" {
			t.Fatalf("feed request %d: got %d limit=%q", i+1, rec.Code, rec.Header().Get("X-RateLimit-Limit"))
		}
	}
	if rec := get("/listings/feed"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the default limit, got %d", rec.Code)
	}

	// Each route has its own window.
	if rec := get("/categories"); rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Remaining") != "2" {
		t.Fatalf("categories: got %d remaining=%q", rec.Code, rec.Header().Get("X-RateLimit-Remaining"))
	}
	for i := 0; i < 5; i++ {
		if rec := get("/healthz"); rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatalf("health should not be limited, got %d", rec.Code)
		}
	}
}
