package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func setupLoggingTest(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	router := gin.New()
	router.Use(LoggerMiddleware(logger))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/orders", func(c *gin.Context) {
		c.Set(userIDKey, int64(7))
		c.Status(http.StatusOK)
	})
	router.GET("/api/v1/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return router, logs
}

func TestLoggerMiddleware_SkipsHealthEndpoint(t *testing.T) {
	router, logs := setupLoggingTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if logs.Len() != 0 {
		t.Errorf("Expected no log entries for /health, got %d", logs.Len())
	}
}

func TestLoggerMiddleware_LogsCallerAndStatus(t *testing.T) {
	router, logs := setupLoggingTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))

	if logs.Len() != 1 {
		t.Fatalf("Expected one log entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	fields := entry.ContextMap()
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("Expected status 200, got %v", fields["status"])
	}
	if fields["user_id"] != int64(7) {
		t.Errorf("Expected user_id 7, got %v", fields["user_id"])
	}
}

func TestLoggerMiddleware_EscalatesServerErrors(t *testing.T) {
	router, logs := setupLoggingTest(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/broken", nil))

	if logs.Len() != 1 {
		t.Fatalf("Expected one log entry, got %d", logs.Len())
	}
	if logs.All()[0].Level != zap.ErrorLevel {
		t.Errorf("Expected error level for a 500 response, got %s", logs.All()[0].Level)
	}
}
