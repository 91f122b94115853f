package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestReadinessReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHealthHandler(
		WithReadinessCheck("database", func(ctx context.Context) error { return nil }),
		WithReadinessCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") }),
	)
	r := gin.New()
	r.GET("/readyz", h.Readiness)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}

	var resp ReadinessResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Checks["database"] != "ok" || resp.Checks["redis"] != "connection refused" {
		t.Fatalf("unexpected checks %+v", resp.Checks)
	}
}

func TestReadinessWithoutChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/readyz", NewHealthHandler().Readiness)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
