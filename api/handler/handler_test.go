package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/adsaver/api/middleware"
	"github.com/use-agent/adsaver/cache"
	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/history"
	"github.com/use-agent/adsaver/models"
	"github.com/use-agent/adsaver/quota"
	"github.com/use-agent/adsaver/scraper"
	"github.com/use-agent/adsaver/store"
	"github.com/use-agent/adsaver/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const validURL = "https://www.facebook.com/ads/library/?id=123"

// fakeExtractor validates like the real extractor and returns a canned
// result or error.
type fakeExtractor struct {
	calls atomic.Int32
	err   error
	gate  chan struct{} // when set, Extract waits for it to close
}

func (f *fakeExtractor) Extract(_ context.Context, rawURL string, progress scraper.Progress) (*models.AdResult, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	_, id, err := scraper.ValidateAdURL(rawURL)
	if err != nil {
		return nil, err
	}
	if progress != nil {
		progress("Loading ad page...")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &models.AdResult{
		ID:            id,
		IsActive:      true,
		PublisherName: "Acme Shoes",
		VideoURL:      "https://video.fbcdn.net/v/" + id + ".mp4",
		FileSize:      "2.5 MB",
		Resolution:    scraper.Resolution,
		Success:       true,
	}, nil
}

type testEnv struct {
	router    *gin.Engine
	extractor *fakeExtractor
	quota     *quota.Service
	history   *history.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	st := store.NewMemoryStore()
	env := &testEnv{
		extractor: &fakeExtractor{},
		quota:     quota.New(st, cfg.Quota),
		history:   history.New(st, cfg.History),
	}
	p := &Parser{
		Extractor: env.extractor,
		Cache:     cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL),
		Quota:     env.quota,
		History:   env.history,
	}

	r := gin.New()
	r.Use(middleware.Identity())
	r.POST("/parse", Parse(p))
	r.POST("/parse/stream", ParseStream(p))
	r.GET("/usage", Usage(env.quota))
	r.GET("/history", ListHistory(env.history))
	r.DELETE("/history", ClearHistory(env.history))
	env.router = r
	return env
}

func (e *testEnv) do(method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestParse_Success(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/parse", models.ParseRequest{URL: validURL}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.AdResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "123", got.ID)
	assert.Equal(t, "https://video.fbcdn.net/v/123.mp4", got.VideoURL)
	assert.Empty(t, got.CacheStatus)

	st, err := env.quota.Stats(context.Background(), "guest:192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)

	items, err := env.history.List(context.Background(), "guest:192.0.2.1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "123", items[0].ID)
}

func TestParse_CacheHit(t *testing.T) {
	env := newTestEnv(t)

	env.do(http.MethodPost, "/parse", models.ParseRequest{URL: validURL}, nil)
	w := env.do(http.MethodPost, "/parse", models.ParseRequest{URL: validURL}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got models.AdResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "hit", got.CacheStatus)
	assert.Equal(t, int32(1), env.extractor.calls.Load())
}

func TestParse_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		wantMsg string
	}{
		{"missing url", map[string]string{}, models.MsgURLRequired},
		{"not an ad library url", models.ParseRequest{URL: "https://example.com"}, models.MsgInvalidURL},
		{
			"friendly chinese message",
			models.ParseRequest{URL: "https://example.com", Lang: "zh"},
			"链接无效。请输入正确的 Facebook 广告资料库链接。",
		},
		{
			"friendly english message",
			models.ParseRequest{URL: "https://example.com", Lang: "en"},
			"Invalid URL. Please provide a valid Facebook Ad Library link.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(http.MethodPost, "/parse", tc.body, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, models.ErrCodeInvalidInput, w.Header().Get(middleware.ErrorCodeHeader))
			assert.Equal(t, tc.wantMsg, decodeError(t, w))
			assert.Equal(t, int32(0), env.extractor.calls.Load())
		})
	}
}

func TestParse_QuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, env.quota.Consume(context.Background(), "guest:192.0.2.1"))
	}

	w := env.do(http.MethodPost, "/parse", models.ParseRequest{URL: validURL}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, models.ErrCodeQuotaExceeded, w.Header().Get(middleware.ErrorCodeHeader))
	assert.Equal(t, models.MsgQuotaGuest, decodeError(t, w))
	assert.Equal(t, int32(0), env.extractor.calls.Load())

	// A signed-in user has a separate, larger allowance.
	w = env.do(http.MethodPost, "/parse", models.ParseRequest{URL: validURL},
		map[string]string{middleware.UserIDHeader: "42"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestParse_ConcurrentRequestsRespectQuota(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.gate = make(chan struct{})

	const requests = 10
	codes := make(chan int, requests)
	for i := 0; i < requests; i++ {
		go func() {
			// Distinct ads so the cache cannot answer.
			u := fmt.Sprintf("https://www.facebook.com/ads/library/?id=%d", i)
			codes <- env.do(http.MethodPost, "/parse", models.ParseRequest{URL: u}, nil).Code
		}()
	}

	// Requests past the limit are refused while the first five still run.
	got := map[int]int{}
	for i := 0; i < requests-5; i++ {
		select {
		case c := <-codes:
			got[c]++
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d requests finished while extractions were in flight", i)
		}
	}
	close(env.extractor.gate)
	for i := 0; i < 5; i++ {
		got[<-codes]++
	}

	assert.Equal(t, 5, got[http.StatusOK])
	assert.Equal(t, 5, got[http.StatusTooManyRequests])
	st, err := env.quota.Stats(context.Background(), "guest:192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, 5, st.Count)
}

func TestParse_ExtractionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{
			"no video",
			models.NewAdError(models.ErrCodeVideoNotFound, models.MsgNoVideo, nil),
			http.StatusUnprocessableEntity, models.ErrCodeVideoNotFound, models.MsgNoVideo,
		},
		{
			"navigation timeout",
			models.NewAdError(models.ErrCodeNavTimeout, models.MsgNavTimeout, context.DeadlineExceeded),
			http.StatusGatewayTimeout, models.ErrCodeNavTimeout, models.MsgNavTimeout,
		},
		{
			"caller went away",
			models.NewAdError(models.ErrCodeCanceled, models.MsgCanceled, context.Canceled),
			499, models.ErrCodeCanceled, models.MsgCanceled,
		},
		{
			"engine down",
			models.NewAdError(models.ErrCodeEngineUnavailable, models.MsgEngineDown, nil),
			http.StatusServiceUnavailable, models.ErrCodeEngineUnavailable, models.MsgEngineDown,
		},
		{
			"unexpected error hides detail",
			errors.New("cdp: websocket closed at 0xdeadbeef"),
			http.StatusInternalServerError, models.ErrCodeInternal, models.MsgServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.extractor.err = tc.err

			w := env.do(http.MethodPost, "/parse", models.ParseRequest{URL: validURL}, nil)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, w.Header().Get(middleware.ErrorCodeHeader))
			assert.Equal(t, tc.msg, decodeError(t, w))

			st, err := env.quota.Stats(context.Background(), "guest:192.0.2.1")
			require.NoError(t, err)
			assert.Equal(t, 0, st.Count, "failed parses must not consume quota")
		})
	}
}

func TestParseStream(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/parse/stream", models.ParseRequest{URL: validURL}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, body, "event:progress")
	assert.Contains(t, body, "event:result")
	assert.Less(t, strings.Index(body, "event:progress"), strings.Index(body, "event:result"))
}

func TestParseStream_Error(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.err = models.NewAdError(models.ErrCodeVideoNotFound, models.MsgNoVideo, nil)

	w := env.do(http.MethodPost, "/parse/stream", models.ParseRequest{URL: validURL, Lang: "en"}, nil)
	body := w.Body.String()
	assert.Contains(t, body, "event:error")
	assert.Contains(t, body, models.ErrCodeVideoNotFound)
	assert.NotContains(t, body, "event:result")
}

func TestUsageAndHistory(t *testing.T) {
	env := newTestEnv(t)
	user := map[string]string{middleware.UserIDHeader: "7"}

	env.do(http.MethodPost, "/parse", models.ParseRequest{URL: validURL}, user)

	w := env.do(http.MethodGet, "/usage", nil, user)
	require.Equal(t, http.StatusOK, w.Code)
	var usage models.UsageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usage))
	assert.Equal(t, models.UsageResponse{Count: 1, Limit: 50, Remaining: 49}, usage)

	w = env.do(http.MethodGet, "/history", nil, user)
	require.Equal(t, http.StatusOK, w.Code)
	var hist models.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	require.Len(t, hist.Items, 1)

	// Guests do not see the user's history.
	w = env.do(http.MethodGet, "/history", nil, nil)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())

	w = env.do(http.MethodDelete, "/history", nil, user)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodGet, "/history", nil, user)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

type fakeEngine struct{ stats models.EngineStats }

func (f fakeEngine) Stats() models.EngineStats { return f.stats }

func TestHealth(t *testing.T) {
	tests := []struct {
		active int
		want   string
	}{
		{0, "healthy"},
		{6, "healthy"},
		{7, "degraded"},
	}

	for _, tc := range tests {
		r := gin.New()
		engine := fakeEngine{models.EngineStats{Connected: true, ActiveSessions: tc.active, MaxSessions: 8}}
		r.GET("/health", Health(engine, time.Now().Add(-time.Minute), "1.2.3"))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.want, resp.Status, "active=%d", tc.active)
		assert.Equal(t, "1.2.3", resp.Version)
		assert.Equal(t, 8, resp.Engine.MaxSessions)
	}
}

type fakeOpener struct {
	body string
	err  error
	got  string
}

func (f *fakeOpener) Open(_ context.Context, rawURL string) (*scraper.Download, error) {
	f.got = rawURL
	if f.err != nil {
		return nil, f.err
	}
	return &scraper.Download{
		Body:          io.NopCloser(strings.NewReader(f.body)),
		ContentType:   "video/mp4",
		ContentLength: int64(len(f.body)),
	}, nil
}

func TestDownload(t *testing.T) {
	opener := &fakeOpener{body: "mp4-bytes"}
	r := gin.New()
	r.GET("/download", Download(opener, time.Minute))
	r.POST("/download", Download(opener, time.Minute))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/download?url=https%3A%2F%2Fvideo.fbcdn.net%2Fa.mp4&filename=ad.mp4", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp4-bytes", w.Body.String())
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, "9", w.Header().Get("Content-Length"))
	assert.Equal(t, "attachment; filename=ad.mp4", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "https://video.fbcdn.net/a.mp4", opener.got)

	req := httptest.NewRequest(http.MethodPost, "/download", strings.NewReader(`{"url":"https://video.fbcdn.net/b.mp4"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "https://video.fbcdn.net/b.mp4", opener.got)
}

func TestDownload_RedirectsStayOnAllowedHosts(t *testing.T) {
	var internalHits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		internalHits.Add(1)
		_, _ = io.WriteString(w, "INTERNAL-SECRET")
	}))
	defer internal.Close()
	_, internalPort, _ := strings.Cut(strings.TrimPrefix(internal.URL, "http://"), ":")

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/escape":
			http.Redirect(w, r, "http://localhost:"+internalPort+"/secret", http.StatusFound)
		case "/hop":
			http.Redirect(w, r, "/video.mp4", http.StatusFound)
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = io.WriteString(w, "mp4-bytes")
		}
	}))
	defer upstream.Close()

	dl, err := scraper.NewDownloader(config.DownloadConfig{AllowedHosts: []string{"127.0.0.1"}}, "test-agent", "")
	require.NoError(t, err)
	defer dl.Close()

	r := gin.New()
	r.GET("/download", Download(dl, time.Minute))
	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download?url="+url.QueryEscape(target), nil))
		return w
	}

	w := get("http://localhost:" + internalPort + "/secret")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidInput, w.Header().Get(middleware.ErrorCodeHeader))

	w = get(upstream.URL + "/escape")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, models.ErrCodeDownloadFailed, w.Header().Get(middleware.ErrorCodeHeader))
	assert.NotContains(t, w.Body.String(), "INTERNAL-SECRET")
	assert.Zero(t, internalHits.Load())

	w = get(upstream.URL + "/loop")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = get(upstream.URL + "/hop")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp4-bytes", w.Body.String())
}

func TestDownload_Errors(t *testing.T) {
	opener := &fakeOpener{err: models.NewAdError(models.ErrCodeDownloadFailed, models.MsgDownloadFail, errors.New("HTTP 403"))}
	r := gin.New()
	r.GET("/download", Download(opener, time.Minute))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.MsgURLRequired, decodeError(t, w))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download?url=https://video.fbcdn.net/a.mp4", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, models.ErrCodeDownloadFailed, w.Header().Get(middleware.ErrorCodeHeader))
	assert.Equal(t, models.MsgDownloadFail, decodeError(t, w))
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "attachment"},
		{"ad.mp4", "attachment; filename=ad.mp4"},
		{"../../etc/passwd", "attachment; filename=passwd"},
		{`C:\videos\ad.mp4`, "attachment; filename=ad.mp4"},
		{"my ad.mp4", `attachment; filename="my ad.mp4"`},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, contentDisposition(tc.in), "filename %q", tc.in)
	}
}

func TestBatches(t *testing.T) {
	var (
		mu       sync.Mutex
		received []byte
		done     = make(chan struct{})
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received, _ = io.ReadAll(r.Body)
		mu.Unlock()
		close(done)
	}))
	defer hook.Close()

	cfg := config.Default()
	hs := history.New(store.NewMemoryStore(), cfg.History)
	b := NewBatches(&fakeExtractor{}, hs, webhook.NewNotifier(""), cfg.Batch)

	resp := b.Start("guest:1", models.BatchRequest{
		URLs:       []string{validURL, "https://example.com/not-an-ad"},
		Lang:       "en",
		WebhookURL: hook.URL,
	})
	assert.Equal(t, models.BatchProcessing, resp.Status)
	assert.Equal(t, 2, resp.Total)

	b.Wait()
	status, ok := b.Get(resp.ID)
	require.True(t, ok)
	assert.Equal(t, models.BatchPartial, status.Status)
	assert.Equal(t, 2, status.Completed)
	assert.Equal(t, models.BatchCompleted, status.Items[0].Status)
	require.NotNil(t, status.Items[0].Data)
	assert.Equal(t, "123", status.Items[0].Data.ID)
	assert.Equal(t, models.BatchFailed, status.Items[1].Status)
	assert.Equal(t, "Invalid URL. Please provide a valid Facebook Ad Library link.", status.Items[1].Error)

	items, err := hs.List(context.Background(), "guest:1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, string(received), `"type":"batch.completed"`)
	assert.Contains(t, string(received), resp.ID)
}

func TestBatchHandlers(t *testing.T) {
	cfg := config.Default()
	cfg.Batch.MaxURLs = 2
	b := NewBatches(&fakeExtractor{}, nil, nil, cfg.Batch)

	r := gin.New()
	r.Use(middleware.Identity())
	r.POST("/batch", PostBatch(b))
	r.GET("/batch/:id", GetBatch(b))

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/batch", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, post(`{"urls":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"urls":["a","b","c"]}`).Code)

	w := post(`{"urls":["` + validURL + `"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	b.Wait()

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch/"+resp.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status models.BatchStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.BatchCompleted, status.Status)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batch/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrCodeNotFound, w.Header().Get(middleware.ErrorCodeHeader))
}

func TestBatchExpiry(t *testing.T) {
	cfg := config.Default()
	b := NewBatches(&fakeExtractor{}, nil, nil, cfg.Batch)
	now := time.Now()
	b.now = func() time.Time { return now }

	resp := b.Start("guest:1", models.BatchRequest{URLs: []string{validURL}})
	b.Wait()

	now = now.Add(cfg.Batch.JobTTL + time.Minute)
	b.expire()
	_, ok := b.Get(resp.ID)
	assert.False(t, ok)
}
