package scraper

import (
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
)

// Per-field defaults used when no strategy matches.
const (
	DefaultPublisherName = "Unknown Publisher"
	DefaultAvatar        = "https://via.placeholder.com/50"
	DefaultPrimaryText   = "No text found"
	DefaultCTA           = "Learn More"
	PlaceholderPoster    = "https://via.placeholder.com/400x400?text=No+Cover"
)

// sponsoredLabel anchors the first publisher-name strategy; the name is
// rendered just before it.
const sponsoredLabel = "Sponsored"

// sponsoredWindow is how many characters before the label are searched.
const sponsoredWindow = 200

// publisherDenylist holds UI labels that look like names but are not.
var publisherDenylist = map[string]struct{}{
	"Active status":                   {},
	"Active":                          {},
	"Inactive":                        {},
	"Ad Library":                      {},
	"Learn More":                      {},
	"Sign Up":                         {},
	"Shop Now":                        {},
	"Sponsored":                       {},
	"Apply Now":                       {},
	"Download":                        {},
	"See More":                        {},
	"Watch Video":                     {},
	"Search by keyword or advertiser": {},
	"See ad details":                  {},
	"Page transparency":               {},
	"Go to Page":                      {},
}

// publisherBannedWords reject a candidate when found anywhere in its
// lowercased text.
var publisherBannedWords = []string{"status", "sponsored", "active", "search", "keyword", "advertiser"}

// ctaVocabulary lists the call-to-action labels a button must contain.
var ctaVocabulary = []string{"Learn More", "Sign Up", "Shop Now", "Apply Now", "Download"}

// largeImageMarkers identify full-size CDN images for the poster fallback.
var largeImageMarkers = []string{"s1080x1080", "s720x720", "_n.jpg", "_n.png"}

// minPosterWidth is the smallest rendered width accepted as a poster.
const minPosterWidth = 200

// maxAvatarSide bounds the rendered size of an avatar image.
const maxAvatarSide = 150

// validPublisherName reports whether text can be a publisher name.
func validPublisherName(text string) bool {
	t := strings.TrimSpace(text)
	if n := utf8.RuneCountInString(t); n < 2 || n > 100 {
		return false
	}
	if _, denied := publisherDenylist[t]; denied {
		return false
	}
	lower := strings.ToLower(t)
	for _, w := range publisherBannedWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return !strings.Contains(t, "•")
}

// strategy is one way to find a field. Strategies for a field are tried in
// order and the first match wins.
type strategy[T any] struct {
	name string
	run  func(s *Snapshot) (T, bool)
}

// firstMatch runs chain in order and returns the first match and the name
// of the strategy that produced it.
func firstMatch[T any](s *Snapshot, chain []strategy[T]) (T, string, bool) {
	for _, st := range chain {
		if v, ok := st.run(s); ok {
			return v, st.name, true
		}
	}
	var zero T
	return zero, "", false
}

// firstValidName returns a strategy that picks the first valid publisher
// name from the texts list selects.
func firstValidName(name string, list func(s *Snapshot) []string) strategy[string] {
	return strategy[string]{name: name, run: func(s *Snapshot) (string, bool) {
		for _, t := range list(s) {
			if validPublisherName(t) {
				return strings.TrimSpace(t), true
			}
		}
		return "", false
	}}
}

var publisherChain = []strategy[string]{
	{name: "sponsored-label", run: nameBeforeSponsored},
	firstValidName("h1", func(s *Snapshot) []string { return []string{s.H1} }),
	firstValidName("aria-label", func(s *Snapshot) []string { return s.PageLabels }),
	firstValidName("h2", func(s *Snapshot) []string { return s.H2 }),
	firstValidName("strong", func(s *Snapshot) []string { return s.Strong }),
	{name: "longest-span", run: longestValidSpan},
	firstValidName("profile-link", func(s *Snapshot) []string { return s.ProfileSpans }),
}

// nameBeforeSponsored walks the lines just before the first "Sponsored"
// label backwards and returns the nearest valid name.
func nameBeforeSponsored(s *Snapshot) (string, bool) {
	idx := strings.Index(s.BodyText, sponsoredLabel)
	if idx < 0 {
		return "", false
	}
	before := []rune(s.BodyText[:idx])
	if len(before) > sponsoredWindow {
		before = before[len(before)-sponsoredWindow:]
	}
	lines := strings.Split(string(before), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if validPublisherName(lines[i]) {
			return strings.TrimSpace(lines[i]), true
		}
	}
	return "", false
}

// longestValidSpan picks the longest valid span text; ties go to the
// earliest span.
func longestValidSpan(s *Snapshot) (string, bool) {
	best, bestLen := "", 0
	for _, t := range s.Spans {
		if !validPublisherName(t) {
			continue
		}
		t = strings.TrimSpace(t)
		if n := utf8.RuneCountInString(t); n > bestLen {
			best, bestLen = t, n
		}
	}
	return best, bestLen > 0
}

var primaryTextChain = []strategy[TextBlock]{
	{name: "pre-wrap", run: func(s *Snapshot) (TextBlock, bool) {
		if s.PreWrap == nil || strings.TrimSpace(s.PreWrap.Text) == "" {
			return TextBlock{}, false
		}
		return *s.PreWrap, true
	}},
	{name: "longest-auto-dir", run: func(s *Snapshot) (TextBlock, bool) {
		var best TextBlock
		bestLen := 0
		for _, b := range s.AutoDir {
			if n := utf8.RuneCountInString(b.Text); n > bestLen {
				best, bestLen = b, n
			}
		}
		return best, strings.TrimSpace(best.Text) != ""
	}},
}

var ctaChain = []strategy[string]{
	{name: "button-vocabulary", run: func(s *Snapshot) (string, bool) {
		for _, b := range s.Buttons {
			if containsAny(b, ctaVocabulary) {
				return b, true
			}
		}
		return "", false
	}},
}

var statusChain = []strategy[bool]{
	{name: "status-marker", run: func(s *Snapshot) (bool, bool) {
		switch s.StatusMarker {
		case "Active":
			return true, true
		case "Inactive":
			return false, true
		}
		return false, false
	}},
}

// AdInfo is the advertiser-facing metadata read from the page.
type AdInfo struct {
	IsActive            bool
	PublisherName       string
	PublisherAvatar     string
	PrimaryText         string
	PrimaryTextMarkdown string
	CTAType             string

	// Success is false when the in-page snapshot failed and the fields came
	// from static HTML or defaults. Diagnostic says why.
	Success    bool
	Diagnostic string
}

// DefaultAdInfo returns the info reported when nothing could be read. The
// active status defaults to true.
func DefaultAdInfo() AdInfo {
	return AdInfo{
		IsActive:        true,
		PublisherName:   DefaultPublisherName,
		PublisherAvatar: DefaultAvatar,
		PrimaryText:     DefaultPrimaryText,
		CTAType:         DefaultCTA,
	}
}

// Heuristics extracts AdInfo from a Snapshot. Each field runs its own
// strategy chain and falls back to its default independently.
type Heuristics struct {
	mediaCDN    string
	avatarChain []strategy[string]
	md          *converter.Converter
}

// NewHeuristics creates Heuristics matching images against mediaCDN.
func NewHeuristics(mediaCDN string) *Heuristics {
	h := &Heuristics{mediaCDN: mediaCDN, md: newMarkdownConverter()}
	h.avatarChain = []strategy[string]{
		{name: "circular", run: func(s *Snapshot) (string, bool) {
			for _, img := range s.Images {
				if h.isCDNImage(img) && (img.BorderRadius == "50%" || strings.Contains(img.BorderRadius, "50")) {
					return img.Src, true
				}
			}
			return "", false
		}},
		{name: "small", run: func(s *Snapshot) (string, bool) {
			for _, img := range s.Images {
				if h.isCDNImage(img) &&
					img.Width > 0 && img.Width <= maxAvatarSide &&
					img.Height > 0 && img.Height <= maxAvatarSide {
					return img.Src, true
				}
			}
			return "", false
		}},
	}
	return h
}

func (h *Heuristics) isCDNImage(img ImageInfo) bool {
	return img.Src != "" && strings.Contains(img.Src, h.mediaCDN) && !strings.Contains(img.Src, "emoji")
}

// Extract reads every field from s. It never fails; Success is left false
// for the caller to set.
func (h *Heuristics) Extract(s *Snapshot) AdInfo {
	info := DefaultAdInfo()
	if s == nil {
		return info
	}

	if v, _, ok := firstMatch(s, statusChain); ok {
		info.IsActive = v
	}
	if v, _, ok := firstMatch(s, publisherChain); ok {
		info.PublisherName = v
	}
	if v, _, ok := firstMatch(s, h.avatarChain); ok {
		info.PublisherAvatar = v
	}
	if v, _, ok := firstMatch(s, primaryTextChain); ok {
		info.PrimaryText = v.Text
		info.PrimaryTextMarkdown = toMarkdown(h.md, v.HTML)
	}
	if v, _, ok := firstMatch(s, ctaChain); ok {
		info.CTAType = v
	}
	return info
}

// PosterFromImages picks the first large CDN image wider than the poster
// threshold.
func (h *Heuristics) PosterFromImages(images []ImageInfo) (string, bool) {
	for _, img := range images {
		if img.Src == "" || !strings.Contains(img.Src, h.mediaCDN) {
			continue
		}
		if containsAny(img.Src, largeImageMarkers) && img.Width > minPosterWidth {
			return img.Src, true
		}
	}
	return "", false
}
