package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authportal/internal/config"
	"authportal/internal/replica"
)

func TestOpenReplica_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, closeFn, err := openReplica(config.ReplicaConfig{Driver: "redis", RedisAddr: mr.Addr(), RedisPrefix: "r:users"})
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, client.Put(context.Background(), "acc-1", replica.Fields{"email": "u@x.com"}))
	assert.Equal(t, "u@x.com", mr.HGet("r:users:acc-1", "email"))
}

func TestOpenReplica_HTTPAndUnknown(t *testing.T) {
	client, closeFn, err := openReplica(config.ReplicaConfig{Driver: "http", URL: "http://localhost:1", Timeout: time.Second})
	require.NoError(t, err)
	closeFn()
	assert.NotNil(t, client)

	_, _, err = openReplica(config.ReplicaConfig{Driver: "kafka"})
	assert.Error(t, err)
}

func TestCORS_Preflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(corsMiddleware([]string{"http://app.local"}))
	r.POST("/api/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://app.local", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewLogger_Level(t *testing.T) {
	ctx := context.Background()
	assert.True(t, newLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("error").Enabled(ctx, slog.LevelWarn))
}
