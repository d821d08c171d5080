package scraper

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"github.com/use-agent/adsaver/config"
	"github.com/use-agent/adsaver/models"
	"golang.org/x/net/proxy"
)

// Download is an open upstream response. The caller must close Body.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
}

// Downloader fetches media assets with a Chrome TLS fingerprint so CDN edge
// rules treat it like the browser that discovered the URL.
type Downloader struct {
	userAgent    string
	allowedHosts []string
	client       *http.Client
}

// NewDownloader creates a Downloader. proxyURL may be empty, http(s):// or
// socks5://.
func NewDownloader(cfg config.DownloadConfig, userAgent, proxyURL string) (*Downloader, error) {
	dial, err := proxyDialer(proxyURL)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: dial,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, dial, network, addr)
		},
		ResponseHeaderTimeout: 30 * time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	if u, perr := url.Parse(proxyURL); proxyURL != "" && perr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		transport.Proxy = http.ProxyURL(u)
	}

	d := &Downloader{
		userAgent:    userAgent,
		allowedHosts: cfg.AllowedHosts,
	}
	d.client = &http.Client{Transport: transport, CheckRedirect: d.checkRedirect}
	return d, nil
}

// maxRedirects caps how many hops an upstream may send us through.
const maxRedirects = 5

// checkURL enforces the scheme and the host allow-list on every URL the
// downloader touches, redirect targets included.
func (d *Downloader) checkURL(u *url.URL) error {
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.NewAdError(models.ErrCodeInvalidInput, models.MsgInvalidURL, nil)
	}
	if len(d.allowedHosts) > 0 && !hostMatches(u.Hostname(), d.allowedHosts) {
		return models.NewAdError(models.ErrCodeInvalidInput, "host not allowed", nil)
	}
	return nil
}

func (d *Downloader) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if err := d.checkURL(req.URL); err != nil {
		return fmt.Errorf("redirect to %s refused: %w", req.URL.Redacted(), err)
	}
	return nil
}

// Open starts fetching rawURL and returns the streaming response. Bytes
// are passed through untouched. Redirects are followed only to allowed
// hosts; a refused redirect is a DOWNLOAD_FAILED.
func (d *Downloader) Open(ctx context.Context, rawURL string) (*Download, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, models.NewAdError(models.ErrCodeInvalidInput, models.MsgInvalidURL, err)
	}
	if err := d.checkURL(u); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, models.NewAdError(models.ErrCodeInvalidInput, models.MsgInvalidURL, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://www.facebook.com/")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, models.NewAdError(models.ErrCodeDownloadFailed, models.MsgDownloadFail, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, models.NewAdError(models.ErrCodeDownloadFailed, models.MsgDownloadFail,
			fmt.Errorf("upstream returned HTTP %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Download{Body: resp.Body, ContentType: contentType, ContentLength: resp.ContentLength}, nil
}

// Close releases idle upstream connections.
func (d *Downloader) Close() {
	d.client.CloseIdleConnections()
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// proxyDialer returns a dialer that goes through a SOCKS5 proxy when one is
// configured, and a direct dialer otherwise. HTTP proxies are handled by the
// transport instead.
func proxyDialer(proxyURL string) (dialFunc, error) {
	direct := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	if proxyURL == "" {
		return direct.DialContext, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy url: %w", err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return direct.DialContext, nil
	}
	d, err := proxy.FromURL(u, direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}

// dialTLSChrome establishes a TLS connection with a Chrome fingerprint via
// utls. ALPN is pinned to http/1.1 since the connection is handed to a
// plain http.Transport.
func dialTLSChrome(ctx context.Context, dial dialFunc, network, addr string) (net.Conn, error) {
	rawConn, err := dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	spec, err := tls2.UTLSIdToSpec(tls2.HelloChrome_Auto)
	if err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("utls spec: %w", err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls2.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloCustom)
	if err := tlsConn.ApplyPreset(&spec); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("utls preset: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
