package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/http/middleware"
	"github.com/jmylchreest/proofreel/internal/observability"
	"github.com/stretchr/testify/assert"
)

func TestServerConfigFromOps(t *testing.T) {
	cfg := ServerConfigFromOps(config.OpsConfig{Host: "0.0.0.0", Port: 9191, ShutdownTimeout: 3 * time.Second})
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9191, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultServerConfig().ReadTimeout, cfg.ReadTimeout)

	defaults := ServerConfigFromOps(config.OpsConfig{})
	assert.Equal(t, DefaultServerConfig(), defaults)
}

func TestServer_Middleware(t *testing.T) {
	srv := NewServer(DefaultServerConfig(), observability.Discard(), "")
	assert.Equal(t, "127.0.0.1:9090", srv.Addr())

	srv.Router().Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := NewServer(DefaultServerConfig(), observability.Discard(), "1.0.0")
	assert.NoError(t, srv.Shutdown(context.Background()))
}
