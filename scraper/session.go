package scraper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/models"
	"github.com/ysmood/gson"
)

// SessionProvider hands out isolated browsing sessions.
type SessionProvider interface {
	Acquire(ctx context.Context) (BrowsingSession, error)
}

// BrowsingSession is one isolated browsing context with a single page and
// its network capture. Close releases the context, never the engine.
type BrowsingSession interface {
	Driver() PageDriver
	Capture() *NetworkCapture
	Close() error
}

// Manager owns the shared headless engine and hands out short-lived
// incognito contexts. A dead engine is replaced on the next Acquire. The
// liveness probe runs without holding the launch lock; callers that saw the
// same dead engine then queue on the lock and only the first relaunches.
type Manager struct {
	cfg        config.BrowserConfig
	classifier *Classifier

	// Process lifecycle, swapped out in tests.
	launch  func() (*rod.Browser, *launcher.Launcher, error)
	probe   func(*rod.Browser) error
	dispose func(*rod.Browser, *launcher.Launcher)

	mu       sync.Mutex // serializes launch and dispose
	current  atomic.Pointer[rod.Browser]
	launcher *launcher.Launcher // guarded by mu
	healthy  atomic.Bool

	slots      chan struct{} // nil when MaxSessions is 0
	active     atomic.Int32
	relaunches atomic.Int64
	nextID     atomic.Int64
}

// NewManager creates a Manager. The engine is launched lazily on the first
// Acquire, or eagerly via Start.
func NewManager(cfg config.BrowserConfig, classifier *Classifier) *Manager {
	m := &Manager{cfg: cfg, classifier: classifier, dispose: closeChrome}
	m.launch = m.launchChrome
	m.probe = func(b *rod.Browser) error { return probeChrome(b, cfg.LivenessTimeout) }
	if cfg.MaxSessions > 0 {
		m.slots = make(chan struct{}, cfg.MaxSessions)
	}
	return m
}

// Start launches the engine ahead of the first request.
func (m *Manager) Start() error {
	_, err := m.engine()
	return err
}

// engine returns a live browser, launching or relaunching it if needed.
func (m *Manager) engine() (*rod.Browser, error) {
	seen := m.current.Load()
	if seen != nil {
		err := m.probe(seen)
		if err == nil {
			m.healthy.Store(true)
			return seen, nil
		}
		m.healthy.Store(false)
		slog.Warn("browser engine unresponsive", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load()
	if cur != nil && cur != seen {
		// Replaced while we were probing.
		return cur, nil
	}
	if cur != nil {
		slog.Warn("relaunching browser engine")
		m.disposeLocked()
		m.relaunches.Add(1)
	}

	b, l, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.launcher = l
	m.current.Store(b)
	m.healthy.Store(true)
	return b, nil
}

func probeChrome(b *rod.Browser, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := b.Context(ctx).Version()
	return err
}

// launchChrome starts a headless Chromium configured to look like a desktop
// browser and connects to it.
func (m *Manager) launchChrome() (*rod.Browser, *launcher.Launcher, error) {
	l := launcher.New().
		Headless(m.cfg.Headless).
		NoSandbox(m.cfg.NoSandbox)

	if m.cfg.BrowserBin != "" {
		l = l.Bin(m.cfg.BrowserBin)
	}
	if m.cfg.Proxy != "" {
		l = l.Proxy(m.cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	if m.cfg.NoSandbox {
		l.Set(flags.Flag("disable-setuid-sandbox"))
	}
	l.Set(flags.Flag("disable-infobars"))
	l.Set(flags.Flag("window-position"), "0,0")
	l.Set(flags.Flag("ignore-certificate-errors"))
	l.Set(flags.Flag("ignore-certificate-errors-spki-list"))
	l.Set(flags.Flag("user-agent"), m.cfg.UserAgent)
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	// Autoplay lets the video element load metadata without a gesture.
	l.Set(flags.Flag("autoplay-policy"), "no-user-gesture-required")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, models.NewAdError(models.ErrCodeEngineUnavailable, models.MsgEngineDown, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, models.NewAdError(models.ErrCodeEngineUnavailable, models.MsgEngineDown, err)
	}
	slog.Info("browser engine launched", "controlURL", controlURL, "headless", m.cfg.Headless)
	return browser, l, nil
}

// Acquire opens a fresh incognito context with one configured page, a
// resource-blocking router and a response observer feeding a new capture.
func (m *Manager) Acquire(ctx context.Context) (BrowsingSession, error) {
	if m.slots != nil {
		select {
		case m.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, models.NewAdError(models.ErrCodeEngineUnavailable, "no browsing context available", ctx.Err())
		}
	}
	release := func() {
		if m.slots != nil {
			<-m.slots
		}
	}

	b, err := m.engine()
	if err != nil {
		release()
		return nil, err
	}

	incognito, err := b.Incognito()
	if err != nil {
		release()
		return nil, models.NewAdError(models.ErrCodeEngineUnavailable, "failed to create browsing context", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		release()
		return nil, models.NewAdError(models.ErrCodeEngineUnavailable, "failed to open page", err)
	}

	if err := m.configure(page); err != nil {
		_ = incognito.Close()
		release()
		return nil, models.NewAdError(models.ErrCodeEngineUnavailable, "failed to configure page", err)
	}

	capture := &NetworkCapture{}
	router, blocked := setupHijack(page, m.classifier)

	observer := NewObserver(m.classifier, capture)
	evCtx, stopEvents := context.WithCancel(context.Background())
	wait := page.Context(evCtx).EachEvent(observer.OnResponse)
	go wait()

	m.active.Add(1)
	s := &Session{
		id:         m.nextID.Add(1),
		incognito:  incognito,
		page:       page,
		router:     router,
		blocked:    blocked,
		capture:    capture,
		stopEvents: stopEvents,
		opened:     time.Now(),
		release: func() {
			m.active.Add(-1)
			release()
		},
	}
	slog.Debug("session opened", "session", s.id, "active", m.active.Load())
	return s, nil
}

// configure applies the fixed viewport, locale, timezone, user agent and
// stealth script. Must run before navigation.
func (m *Manager) configure(page *rod.Page) error {
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: m.cfg.DeviceScaleFactor,
	}); err != nil {
		return err
	}
	if err := (proto.EmulationSetLocaleOverride{Locale: m.cfg.Locale}).Call(page); err != nil {
		return err
	}
	if err := (proto.EmulationSetTimezoneOverride{TimezoneID: m.cfg.Timezone}).Call(page); err != nil {
		return err
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      m.cfg.UserAgent,
		AcceptLanguage: m.cfg.AcceptLanguage,
	}); err != nil {
		return err
	}
	if m.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": m.cfg.AcceptLanguage}),
		}.Call(page)
	}
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
	}
	return nil
}

// Stats returns a snapshot of the engine state. It never waits for a
// launch in progress. Connected reflects the last probe or launch.
func (m *Manager) Stats() models.EngineStats {
	return models.EngineStats{
		Connected:      m.healthy.Load(),
		ActiveSessions: int(m.active.Load()),
		MaxSessions:    m.cfg.MaxSessions,
		Relaunches:     m.relaunches.Load(),
	}
}

// Close kills the engine. Call this on graceful shutdown to prevent zombie
// Chrome processes.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	slog.Info("browser engine shutting down")
	m.disposeLocked()
}

func (m *Manager) disposeLocked() {
	b := m.current.Swap(nil)
	if b != nil || m.launcher != nil {
		m.dispose(b, m.launcher)
	}
	m.launcher = nil
	m.healthy.Store(false)
}

func closeChrome(b *rod.Browser, l *launcher.Launcher) {
	if b != nil {
		_ = b.Close()
	}
	if l != nil {
		l.Kill()
		l.Cleanup()
	}
}

// Session is a BrowsingSession backed by a rod incognito context.
type Session struct {
	id         int64
	incognito  *rod.Browser
	page       *rod.Page
	router     *rod.HijackRouter
	blocked    *atomic.Int64
	capture    *NetworkCapture
	stopEvents context.CancelFunc
	release    func()
	opened     time.Time
	closeOnce  sync.Once
}

// Driver returns the page driver for the session's page.
func (s *Session) Driver() PageDriver {
	return &rodPage{page: s.page}
}

// Capture returns the session's network capture.
func (s *Session) Capture() *NetworkCapture {
	return s.capture
}

// Close stops the router and the observer and disposes the incognito
// context together with its page. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopEvents()
		if s.router != nil {
			_ = s.router.Stop()
		}
		err = s.incognito.Close()
		s.release()
		slog.Debug("session closed",
			"session", s.id,
			"blockedRequests", s.blocked.Load(),
			"elapsed", time.Since(s.opened).Round(time.Millisecond),
		)
	})
	return err
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
