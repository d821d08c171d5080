package scraper

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/go-rod/rod/lib/proto"
)

// NetworkCapture accumulates at most one video and one poster candidate for
// a single browsing session. Each field is written once; later matches are
// ignored so a good answer is never replaced by a worse one.
type NetworkCapture struct {
	mu         sync.Mutex
	videoURL   string
	videoBytes *int64
	posterURL  string
}

// SetVideo latches the video candidate. It reports whether this call won.
func (c *NetworkCapture) SetVideo(url string, size int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoURL != "" {
		return false
	}
	c.videoURL = url
	c.videoBytes = &size
	return true
}

// SetPoster latches the poster candidate. It reports whether this call won.
func (c *NetworkCapture) SetPoster(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.posterURL != "" {
		return false
	}
	c.posterURL = url
	return true
}

// Video returns the latched video URL and its byte size (nil when unknown).
func (c *NetworkCapture) Video() (string, *int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoBytes == nil {
		return c.videoURL, nil
	}
	n := *c.videoBytes
	return c.videoURL, &n
}

// Poster returns the latched poster URL.
func (c *NetworkCapture) Poster() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.posterURL
}

// Observer feeds received responses through a Classifier into a capture.
type Observer struct {
	classifier *Classifier
	capture    *NetworkCapture
}

// NewObserver creates an Observer writing into capture.
func NewObserver(classifier *Classifier, capture *NetworkCapture) *Observer {
	return &Observer{classifier: classifier, capture: capture}
}

// Observe handles one response.
func (o *Observer) Observe(typ proto.NetworkResourceType, url, contentLength string) {
	verdict, size := o.classifier.ClassifyResponse(typ, url, contentLength)
	switch verdict {
	case VerdictVideo:
		if o.capture.SetVideo(url, size) {
			slog.Info("video candidate latched", "url", truncate(url, 120), "bytes", size)
		}
	case VerdictPoster:
		if o.capture.SetPoster(url) {
			slog.Debug("poster candidate latched", "url", truncate(url, 120))
		}
	}
}

// OnResponse adapts a CDP NetworkResponseReceived event.
func (o *Observer) OnResponse(e *proto.NetworkResponseReceived) {
	if e == nil || e.Response == nil {
		return
	}
	o.Observe(e.Type, e.Response.URL, headerValue(e.Response.Headers, "content-length"))
}

// truncate shortens s to at most max bytes for logging, backing off to a
// rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
