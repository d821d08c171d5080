package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/adsaver/api/handler"
	"github.com/use-agent/adsaver/api/middleware"
	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/history"
	"github.com/use-agent/adsaver/models"
	"github.com/use-agent/adsaver/quota"
	"github.com/use-agent/adsaver/scraper"
	"github.com/use-agent/adsaver/store"
)

type stubEngine struct{}

func (stubEngine) Stats() models.EngineStats {
	return models.EngineStats{Connected: true, MaxSessions: 4}
}

type stubExtractor struct{}

func (stubExtractor) Extract(context.Context, string, scraper.Progress) (*models.AdResult, error) {
	return &models.AdResult{ID: "1", VideoURL: "https://video.fbcdn.net/a.mp4"}, nil
}

type stubOpener struct{}

func (stubOpener) Open(context.Context, string) (*scraper.Download, error) {
	return nil, models.NewAdError(models.ErrCodeDownloadFailed, models.MsgDownloadFail, nil)
}

func newTestRouter(t *testing.T, mutate func(*config.Config)) *gin.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.RateLimit.Burst = 100
	if mutate != nil {
		mutate(cfg)
	}
	st := store.NewMemoryStore()
	qs := quota.New(st, cfg.Quota)
	hs := history.New(st, cfg.History)
	return NewRouter(cfg, &Services{
		Engine:     stubEngine{},
		Parser:     &handler.Parser{Extractor: stubExtractor{}, Quota: qs, History: hs},
		Batches:    handler.NewBatches(stubExtractor{}, hs, nil, cfg.Batch),
		Downloader: stubOpener{},
		Quota:      qs,
		History:    hs,
		StartTime:  time.Now(),
		Version:    "test",
	})
}

func request(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Routes(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodPost, "/api/v1/parse", `{"url":"https://www.facebook.com/ads/library/?id=1"}`, http.StatusOK},
		{http.MethodPost, "/api/v1/parse/stream", `{"url":"https://www.facebook.com/ads/library/?id=1"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/usage", "", http.StatusOK},
		{http.MethodGet, "/api/v1/history", "", http.StatusOK},
		{http.MethodDelete, "/api/v1/history", "", http.StatusNoContent},
		{http.MethodGet, "/api/v1/download?url=https://video.fbcdn.net/a.mp4", "", http.StatusBadGateway},
		{http.MethodPost, "/api/v1/download", `{"url":"https://video.fbcdn.net/a.mp4"}`, http.StatusBadGateway},
		{http.MethodGet, "/api/v1/batch/missing", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := request(r, tc.method, tc.path, tc.body, nil)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestRouter_AuthProtectsAllButHealth(t *testing.T) {
	r := newTestRouter(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKeys = []string{"secret"}
	})

	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/api/v1/health", "", nil).Code)

	w := request(r, http.MethodGet, "/api/v1/usage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.ErrCodeUnauthorized, w.Header().Get(middleware.ErrorCodeHeader))

	w = request(r, http.MethodGet, "/api/v1/usage", "", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":0,"limit":5,"remaining":5}`, w.Body.String())
}
