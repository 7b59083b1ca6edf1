package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	up   = pingerFunc(func(context.Context) error { return nil })
	down = pingerFunc(func(context.Context) error { return errors.New("down") })
)

func readiness(t *testing.T, h *HealthHandler) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		postgres   Pinger
		redis      Pinger
		wantCode   int
		wantStatus string
		wantDeps   map[string]string
	}{
		{"all up", up, up, http.StatusOK, "ok", map[string]string{"postgres": "ok", "redis": "ok"}},
		{"redis down", up, down, http.StatusOK, "degraded", map[string]string{"postgres": "ok", "redis": "down"}},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error", map[string]string{"postgres": "down", "redis": "ok"}},
		{"memory mode", nil, nil, http.StatusOK, "ok", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := readiness(t, NewHealthHandler(tt.postgres, tt.redis, "test", "v1"))
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantDeps, resp.Dependencies)
		})
	}
}

func TestRedisPingerAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, resp := readiness(t, NewHealthHandler(nil, RedisPinger(client), "test", ""))
	assert.Equal(t, "ok", resp.Dependencies["redis"])

	mr.Close()
	_, resp = readiness(t, NewHealthHandler(nil, RedisPinger(client), "test", ""))
	assert.Equal(t, "down", resp.Dependencies["redis"])
	assert.Equal(t, "degraded", resp.Status)
}

func TestLivenessAndRequestID(t *testing.T) {
	h := newTestRouter(&stubBot{}, "", "")

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))

	var resp LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Env)
}
