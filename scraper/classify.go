package scraper

import (
	"strconv"
	"strings"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/adsaver/config"
)

// Verdict is the classifier's decision for one network resource.
type Verdict int

const (
	// VerdictIgnore lets the resource through and does not latch it.
	VerdictIgnore Verdict = iota
	// VerdictBlock aborts the request before it is sent.
	VerdictBlock
	// VerdictVideo marks a response as a video asset candidate.
	VerdictVideo
	// VerdictPoster marks a response as a poster image candidate.
	VerdictPoster
)

func (v Verdict) String() string {
	switch v {
	case VerdictBlock:
		return "block"
	case VerdictVideo:
		return "video"
	case VerdictPoster:
		return "poster"
	default:
		return "ignore"
	}
}

// blockedTypes are aborted regardless of URL.
var blockedTypes = map[proto.NetworkResourceType]struct{}{
	proto.NetworkResourceTypeFont:       {},
	proto.NetworkResourceTypeStylesheet: {},
}

// Classifier decides whether a request is noise, a video candidate or a
// poster candidate. It holds only its thresholds and is safe for
// concurrent use.
type Classifier struct {
	minVideoBytes  int64
	videoMarkers   []string
	mediaCDN       string
	posterMarkers  []string
	trackerMarkers []string
}

// NewClassifier builds a Classifier from the pipeline thresholds.
func NewClassifier(cfg config.PipelineConfig) *Classifier {
	return &Classifier{
		minVideoBytes:  cfg.MinVideoBytes,
		videoMarkers:   cfg.VideoMarkers,
		mediaCDN:       cfg.MediaCDN,
		posterMarkers:  cfg.PosterMarkers,
		trackerMarkers: cfg.TrackerMarkers,
	}
}

// ShouldBlock reports whether an outgoing request should be aborted.
// Fonts, stylesheets and tracker URLs are blocked; the main document and
// media requests never are.
func (c *Classifier) ShouldBlock(typ proto.NetworkResourceType, url string) bool {
	if typ == proto.NetworkResourceTypeDocument || typ == proto.NetworkResourceTypeMedia {
		return false
	}
	if _, ok := blockedTypes[typ]; ok {
		return true
	}
	return containsAny(url, c.trackerMarkers)
}

// ClassifyResponse classifies a received response. contentLength is the raw
// content-length header value, empty when absent.
func (c *Classifier) ClassifyResponse(typ proto.NetworkResourceType, url, contentLength string) (Verdict, int64) {
	if typ == proto.NetworkResourceTypeMedia || containsAny(url, c.videoMarkers) {
		if n, ok := parseLength(contentLength); ok && n > c.minVideoBytes {
			return VerdictVideo, n
		}
		return VerdictIgnore, 0
	}

	if typ == proto.NetworkResourceTypeImage &&
		strings.Contains(url, c.mediaCDN) &&
		containsAny(url, c.posterMarkers) {
		return VerdictPoster, 0
	}
	return VerdictIgnore, 0
}

// headerValue looks a header up case-insensitively.
func headerValue(headers proto.NetworkHeaders, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v.Str()
		}
	}
	return ""
}

func parseLength(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}
