package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	c, w := testContext(http.MethodGet, "/x")
	RequestID()(c)

	rid := w.Header().Get(requestIDHeader)
	if rid == "" {
		t.Fatalf("no request id on response")
	}
	if _, err := uuid.Parse(rid); err != nil {
		t.Fatalf("request id %q is not a UUID: %v", rid, err)
	}
	if got, _ := c.Get(requestIDKey); got != rid {
		t.Fatalf("context id %v != header id %q", got, rid)
	}
}

func TestRequestID_PropagatesIncoming(t *testing.T) {
	c, w := testContext(http.MethodGet, "/x")
	c.Request.Header.Set(requestIDHeader, "upstream-id")
	RequestID()(c)

	if got := w.Header().Get(requestIDHeader); got != "upstream-id" {
		t.Fatalf("request id = %q, want the incoming one", got)
	}
}

func TestRecovery_ReturnsJSON500(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("non-JSON panic body: %s", w.Body.String())
	}
	if body["code"] != "internal_error" {
		t.Fatalf("code = %q", body["code"])
	}
	if body["request_id"] == "" {
		t.Fatalf("panic response missing request id")
	}
}

func TestLoggerFrom_FallbackNeverNil(t *testing.T) {
	c, _ := testContext(http.MethodGet, "/x")
	if LoggerFrom(c) == nil {
		t.Fatalf("LoggerFrom returned nil without an attached logger")
	}
}

func TestLogger_AttachesRequestLogger(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/x", func(c *gin.Context) {
		if _, ok := c.Get("logger"); !ok {
			t.Errorf("no request-scoped logger in context")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("ab", 3); got != "ab" {
		t.Fatalf("short string modified: %q", got)
	}
	if got := truncate("abcdef", 0); got != "abcdef" {
		t.Fatalf("max=0 should disable truncation, got %q", got)
	}
}

func TestAsString(t *testing.T) {
	if asString("x") != "x" {
		t.Fatalf("string passthrough failed")
	}
	if asString(42) != "" {
		t.Fatalf("non-string should yield empty")
	}
	if asString(nil) != "" {
		t.Fatalf("nil should yield empty")
	}
}
