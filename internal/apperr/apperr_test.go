package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKindOfWrapped(t *testing.T) {
	base := Conflict("category already has an active listing")
	wrapped := fmt.Errorf("activate: %w", base)
	if got := KindOf(wrapped); got != KindConflict {
		t.Fatalf("expected kind=%s, got %s", KindConflict, got)
	}
	if !errors.Is(wrapped, New(KindConflict, "", "")) {
		t.Fatalf("expected errors.Is to match by kind and code")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("expected unclassified error to be internal")
	}
}

func TestStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindConflict:             http.StatusConflict,
		KindAttemptsExceeded:     http.StatusTooManyRequests,
		KindUnprocessableContent: http.StatusUnprocessableEntity,
		KindServiceUnavailable:   http.StatusServiceUnavailable,
		KindExpired:              http.StatusGone,
	}
	for kind, want := range cases {
		if got := New(kind, "", "").Status(); got != want {
			t.Fatalf("kind %s: expected status=%d, got %d", kind, want, got)
		}
	}
}

func TestWriteHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

	Write(c, errors.New("pq: connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}
